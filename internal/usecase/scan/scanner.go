package scan

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
	"med-reminder/internal/usecase/dispatch"
)

const (
	DefaultPeriod    = 60 * time.Second
	DefaultLookahead = 5 * time.Minute
)

// Dispatcher рассылает одно срабатывание.
type Dispatcher interface {
	Dispatch(ctx context.Context, reminder domain.Reminder, occ domain.Occurrence) dispatch.Outcome
}

// Config задаёт период и окно сканера.
type Config struct {
	Period       time.Duration
	Lookahead    time.Duration
	StoreTimeout time.Duration
}

// TickResult — итог одного прохода.
type TickResult struct {
	Skipped  bool
	Due      int
	Outcomes []dispatch.Outcome
	Err      error
}

// Scanner периодически ищет срабатывания в окне [now, now+lookahead]
// и передаёт их координатору. Одновременно выполняется не больше одного прохода.
type Scanner struct {
	store      domain.ReminderStore
	dispatcher Dispatcher
	clock      domain.Clock
	cfg        Config
	reporter   domain.ErrorReporter
	log        zerolog.Logger

	running  atomic.Bool
	inFlight sync.WaitGroup
}

// NewScanner создаёт сканер.
func NewScanner(store domain.ReminderStore, dispatcher Dispatcher, clock domain.Clock, logger zerolog.Logger, cfg Config) *Scanner {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = DefaultLookahead
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 5 * time.Second
	}
	return &Scanner{
		store:      store,
		dispatcher: dispatcher,
		clock:      clock,
		cfg:        cfg,
		log:        logger.With().Str("component", "scanner").Logger(),
	}
}

// SetReporter задаёт получателя паник прохода.
func (s *Scanner) SetReporter(reporter domain.ErrorReporter) {
	s.reporter = reporter
}

// Run запускает проходы до отмены ctx и дожидается завершения начатых.
// Отмена останавливает только будущие проходы: начатая рассылка доводится до конца.
func (s *Scanner) Run(ctx context.Context) {
	s.log.Info().
		Dur("period", s.cfg.Period).
		Dur("lookahead", s.cfg.Lookahead).
		Msg("scanner: запущен")

	ticker := time.NewTicker(s.cfg.Period)
	defer ticker.Stop()

	s.launch(ctx)
	for {
		select {
		case <-ctx.Done():
			s.inFlight.Wait()
			s.log.Info().Msg("scanner: остановлен")
			return
		case <-ticker.C:
			s.launch(ctx)
		}
	}
}

func (s *Scanner) launch(ctx context.Context) {
	s.inFlight.Add(1)
	go func() {
		defer s.inFlight.Done()
		s.Tick(context.WithoutCancel(ctx))
	}()
}

// Tick выполняет один проход. Если предыдущий ещё не закончился, проход пропускается.
func (s *Scanner) Tick(ctx context.Context) (res TickResult) {
	if !s.running.CompareAndSwap(false, true) {
		metrics.ScanTicks.WithLabelValues("skipped").Inc()
		s.log.Warn().Msg("scanner: предыдущий проход ещё идёт, пропускаем")
		return TickResult{Skipped: true}
	}
	defer s.running.Store(false)

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("scanner panic: %v", r)
			s.log.Error().Err(err).Msg("scanner: проход аварийно завершён")
			if s.reporter != nil {
				s.reporter.Report(err, map[string]string{"component": "scanner"})
			}
			metrics.ScanTicks.WithLabelValues("panic").Inc()
			res.Err = err
		}
		metrics.ScanDuration.Observe(time.Since(start).Seconds())
	}()

	now := s.clock.Now().UTC()
	windowEnd := now.Add(s.cfg.Lookahead)

	findCtx, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	due, err := s.store.FindDue(findCtx, now, windowEnd)
	cancel()
	if err != nil {
		metrics.ScanTicks.WithLabelValues("store_error").Inc()
		s.log.Error().Err(err).Msg("scanner: поиск срабатываний не удался, повторим на следующем проходе")
		return TickResult{Err: err}
	}

	res.Due = len(due)
	metrics.DueOccurrences.Add(float64(len(due)))
	for _, item := range due {
		res.Outcomes = append(res.Outcomes, s.dispatcher.Dispatch(ctx, item.Reminder, item.Occurrence))
	}
	metrics.ScanTicks.WithLabelValues("ok").Inc()
	if len(due) > 0 {
		s.log.Info().
			Int("due", len(due)).
			Time("window_end", windowEnd).
			Msg("scanner: проход завершён")
	}
	return res
}
