package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
	"med-reminder/internal/usecase/occurrence"
)

// Config задаёт горизонт планирования.
type Config struct {
	HorizonDays int
	CloseAfter  time.Duration
}

// Service поддерживает скользящий горизонт срабатываний при изменении напоминаний.
type Service struct {
	store     domain.ReminderStore
	generator *occurrence.Generator
	clock     domain.Clock
	cfg       Config
	log       zerolog.Logger
}

// NewService создаёт сервис.
func NewService(store domain.ReminderStore, generator *occurrence.Generator, clock domain.Clock, logger zerolog.Logger, cfg Config) *Service {
	if cfg.HorizonDays <= 0 {
		cfg.HorizonDays = occurrence.DefaultHorizonDays
	}
	if cfg.CloseAfter <= 0 {
		cfg.CloseAfter = time.Hour
	}
	return &Service{
		store:     store,
		generator: generator,
		clock:     clock,
		cfg:       cfg,
		log:       logger.With().Str("component", "schedule").Logger(),
	}
}

// Handle обрабатывает задачу пересчёта расписания.
// При InvalidScheduleError напоминание не изменяется, ошибка возвращается вызывающему.
func (s *Service) Handle(ctx context.Context, job domain.ScheduleJob) (err error) {
	defer func() {
		status := "ok"
		switch {
		case errors.Is(err, domain.ErrInvalidSchedule):
			status = "invalid_schedule"
		case err != nil:
			status = "error"
		}
		metrics.ScheduleJobs.WithLabelValues(string(job.Cause), status).Inc()
	}()

	reminder, err := s.store.Get(ctx, job.ReminderID)
	if err != nil {
		return fmt.Errorf("получение напоминания %s: %w", job.ReminderID, err)
	}
	now := s.clock.Now().UTC()

	if job.Cause == domain.ScheduleCauseDeactivated || !reminder.Active {
		return s.stop(ctx, reminder, now)
	}

	switch job.Cause {
	case domain.ScheduleCauseCreated:
		return s.topUp(ctx, reminder, now)
	case domain.ScheduleCauseUpdated:
		return s.regenerate(ctx, reminder, now)
	}
	return fmt.Errorf("unknown schedule cause %q", job.Cause)
}

// RefreshHorizons дополняет горизонт всех активных напоминаний.
// Ошибка одного напоминания не прерывает обход.
func (s *Service) RefreshHorizons(ctx context.Context) (refreshed, failed int, err error) {
	reminders, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("список активных напоминаний: %w", err)
	}
	now := s.clock.Now().UTC()
	for _, reminder := range reminders {
		if err := s.topUp(ctx, reminder, now); err != nil {
			failed++
			s.log.Warn().Err(err).Str("reminder", reminder.ID).Msg("schedule: горизонт не обновлён")
			continue
		}
		refreshed++
	}
	s.log.Info().Int("refreshed", refreshed).Int("failed", failed).Msg("schedule: горизонты обновлены")
	return refreshed, failed, nil
}

// RunRefresher вызывает RefreshHorizons с периодом period до отмены ctx.
func (s *Service) RunRefresher(ctx context.Context, period time.Duration) {
	if period <= 0 {
		period = time.Hour
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		if _, _, err := s.RefreshHorizons(ctx); err != nil {
			s.log.Error().Err(err).Msg("schedule: обновление горизонтов не удалось")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Service) topUp(ctx context.Context, reminder domain.Reminder, now time.Time) error {
	closed := reminder.CloseElapsed(now, s.cfg.CloseAfter)
	added, err := s.generator.Generate(ctx, &reminder, s.cfg.HorizonDays)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidSchedule) && len(closed) > 0 {
			if saveErr := s.store.Save(ctx, reminder); saveErr != nil {
				return fmt.Errorf("сохранение истории: %w", saveErr)
			}
		}
		return err
	}
	if len(added) == 0 && len(closed) > 0 {
		if err := s.store.Save(ctx, reminder); err != nil {
			return fmt.Errorf("сохранение истории: %w", err)
		}
	}
	return nil
}

func (s *Service) regenerate(ctx context.Context, reminder domain.Reminder, now time.Time) error {
	reminder.CloseElapsed(now, s.cfg.CloseAfter)
	dropped := reminder.DropFutureUnnotified(now)
	added, err := s.generator.Generate(ctx, &reminder, s.cfg.HorizonDays)
	if err != nil {
		return err
	}
	if len(added) == 0 {
		if err := s.store.Save(ctx, reminder); err != nil {
			return fmt.Errorf("сохранение напоминания: %w", err)
		}
	}
	s.log.Debug().Str("reminder", reminder.ID).Int("dropped", dropped).Msg("schedule: расписание пересчитано")
	return nil
}

func (s *Service) stop(ctx context.Context, reminder domain.Reminder, now time.Time) error {
	reminder.CloseElapsed(now, s.cfg.CloseAfter)
	dropped := reminder.DropFutureUnnotified(now)
	reminder.Active = false
	reminder.UpdatedAt = now
	if err := s.store.Save(ctx, reminder); err != nil {
		return fmt.Errorf("сохранение напоминания: %w", err)
	}
	s.log.Info().Str("reminder", reminder.ID).Int("dropped", dropped).Msg("schedule: напоминание остановлено")
	return nil
}
