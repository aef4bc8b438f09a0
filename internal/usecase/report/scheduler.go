package report

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// ErrFiringInProgress возвращается, если предыдущий запуск того же периода ещё идёт.
var ErrFiringInProgress = errors.New("report firing already in progress")

// Trigger вычисляет следующий момент запуска.
type Trigger interface {
	Next(after time.Time) time.Time
}

// Aggregator строит отчёт пользователя.
type Aggregator interface {
	Aggregate(ctx context.Context, userID string, period domain.Period) (domain.AdherenceReport, error)
}

// FiringSummary — итог одного запуска.
type FiringSummary struct {
	Period    domain.Period
	Users     int
	Delivered int
	Failed    int
}

// Scheduler рассылает отчёты о приёме по двум независимым календарным триггерам.
type Scheduler struct {
	users      domain.UserDirectory
	aggregator Aggregator
	deliverer  domain.ReportDeliverer
	clock      domain.Clock
	triggers   map[domain.Period]Trigger
	guards     map[domain.Period]*atomic.Bool
	timeout    time.Duration
	reporter   domain.ErrorReporter
	log        zerolog.Logger
}

// NewScheduler создаёт планировщик отчётов. timeout ограничивает обработку одного пользователя.
func NewScheduler(users domain.UserDirectory, aggregator Aggregator, deliverer domain.ReportDeliverer, clock domain.Clock, logger zerolog.Logger, daily, weekly Trigger, timeout time.Duration) *Scheduler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Scheduler{
		users:      users,
		aggregator: aggregator,
		deliverer:  deliverer,
		clock:      clock,
		triggers:   map[domain.Period]Trigger{domain.PeriodDaily: daily, domain.PeriodWeekly: weekly},
		guards:     map[domain.Period]*atomic.Bool{domain.PeriodDaily: {}, domain.PeriodWeekly: {}},
		timeout:    timeout,
		log:        logger.With().Str("component", "reports").Logger(),
	}
}

// SetReporter задаёт получателя ошибок доставки.
func (s *Scheduler) SetReporter(reporter domain.ErrorReporter) {
	s.reporter = reporter
}

// Run запускает оба триггера и блокируется до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, period := range []domain.Period{domain.PeriodDaily, domain.PeriodWeekly} {
		trigger := s.triggers[period]
		if trigger == nil {
			continue
		}
		wg.Add(1)
		go func(period domain.Period, trigger Trigger) {
			defer wg.Done()
			s.loop(ctx, period, trigger)
		}(period, trigger)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, period domain.Period, trigger Trigger) {
	var next time.Time
	for {
		next = s.nextAfter(trigger, next)
		if next.IsZero() {
			s.log.Warn().Str("period", string(period)).Msg("reports: у триггера нет следующего запуска")
			return
		}
		s.log.Info().Str("period", string(period)).Time("next", next).Msg("reports: ожидаем запуск")
		wait := next.Sub(s.clock.Now())
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := s.Fire(context.WithoutCancel(ctx), period); err != nil {
			s.log.Error().Err(err).Str("period", string(period)).Msg("reports: запуск не удался")
		}
	}
}

// nextAfter вычисляет следующий запуск не раньше предыдущего prev, даже если
// системные часы переведены назад.
func (s *Scheduler) nextAfter(trigger Trigger, prev time.Time) time.Time {
	after := s.clock.Now()
	if prev.After(after) {
		after = prev
	}
	return trigger.Next(after)
}

// Fire выполняет один запуск: строит и доставляет отчёт каждому получателю.
// Ошибка одного пользователя не мешает остальным; ошибкой запуска считается
// только невозможность получить список получателей.
func (s *Scheduler) Fire(ctx context.Context, period domain.Period) (FiringSummary, error) {
	summary := FiringSummary{Period: period}
	guard, ok := s.guards[period]
	if !ok {
		return summary, fmt.Errorf("unknown period %q", period)
	}
	if !guard.CompareAndSwap(false, true) {
		return summary, ErrFiringInProgress
	}
	defer guard.Store(false)

	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	recipients, err := s.users.ListReportRecipients(listCtx)
	cancel()
	if err != nil {
		return summary, fmt.Errorf("получатели отчётов: %w", err)
	}

	summary.Users = len(recipients)
	for _, user := range recipients {
		if err := s.deliverOne(ctx, user, period); err != nil {
			summary.Failed++
			metrics.AdherenceReports.WithLabelValues(string(period), "failed").Inc()
			s.log.Error().Err(err).Str("user", user.ID).Str("period", string(period)).Msg("reports: отчёт не доставлен")
			if s.reporter != nil {
				s.reporter.Report(err, map[string]string{"user": user.ID, "period": string(period)})
			}
			continue
		}
		summary.Delivered++
		metrics.AdherenceReports.WithLabelValues(string(period), "delivered").Inc()
	}
	s.log.Info().
		Str("period", string(period)).
		Int("users", summary.Users).
		Int("delivered", summary.Delivered).
		Int("failed", summary.Failed).
		Msg("reports: запуск завершён")
	return summary, nil
}

func (s *Scheduler) deliverOne(ctx context.Context, user domain.User, period domain.Period) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	userCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.aggregator.Aggregate(userCtx, user.ID, period)
	if err != nil {
		return fmt.Errorf("агрегация: %w", err)
	}
	if err := s.deliverer.Deliver(userCtx, user, report); err != nil {
		return fmt.Errorf("доставка: %w", err)
	}
	return nil
}
