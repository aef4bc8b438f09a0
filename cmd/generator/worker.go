package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
)

const maxJobAttempts = 5

type jobHandler interface {
	Handle(ctx context.Context, job domain.ScheduleJob) error
}

type jobWorker struct {
	log      zerolog.Logger
	queue    domain.ScheduleQueue
	service  jobHandler
	reporter domain.ErrorReporter
	backoff  time.Duration
}

// Run читает задачи пересчёта расписаний до отмены ctx.
func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, err := w.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			w.log.Error().Err(err).Msg("generator: ошибка чтения очереди")
			w.sleep(ctx)
			continue
		}
		w.process(ctx, job)
	}
}

func (w *jobWorker) process(ctx context.Context, job domain.ScheduleJob) {
	jobLog := w.log.With().
		Str("job_id", job.ID).
		Str("reminder", job.ReminderID).
		Str("cause", string(job.Cause)).
		Int("attempt", job.Attempt).
		Logger()

	if job.ReminderID == "" {
		jobLog.Error().Msg("generator: задача без напоминания, пропускаем")
		return
	}

	err := w.service.Handle(ctx, job)
	switch {
	case err == nil:
		jobLog.Info().Msg("generator: задача обработана")
	case errors.Is(err, domain.ErrInvalidSchedule):
		jobLog.Warn().Err(err).Msg("generator: расписание не даёт срабатываний, задача отброшена")
	case errors.Is(err, domain.ErrReminderNotFound):
		jobLog.Warn().Msg("generator: напоминание не найдено, задача отброшена")
	case errors.Is(err, domain.ErrStoreUnavailable) && job.Attempt+1 < maxJobAttempts:
		job.Attempt++
		jobLog.Warn().Err(err).Msg("generator: хранилище недоступно, повторим позже")
		w.sleep(ctx)
		if err := w.queue.Enqueue(context.WithoutCancel(ctx), job); err != nil {
			jobLog.Error().Err(err).Msg("generator: не удалось вернуть задачу в очередь")
			w.report(err, job)
		}
	default:
		jobLog.Error().Err(err).Msg("generator: задача завершилась ошибкой")
		w.report(err, job)
	}
}

func (w *jobWorker) report(err error, job domain.ScheduleJob) {
	if w.reporter == nil {
		return
	}
	w.reporter.Report(err, map[string]string{
		"component": "generator",
		"reminder":  job.ReminderID,
		"cause":     string(job.Cause),
	})
}

func (w *jobWorker) sleep(ctx context.Context) {
	d := w.backoff
	if d <= 0 {
		d = time.Second
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
