package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/adapters/memory"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/clock"
	"med-reminder/internal/usecase/adherence"
)

var now = time.Date(2026, 3, 8, 19, 0, 0, 0, time.UTC)

type stubDeliverer struct {
	mu        sync.Mutex
	failFor   map[string]error
	panicFor  string
	delivered []domain.AdherenceReport
}

func (d *stubDeliverer) Deliver(_ context.Context, user domain.User, report domain.AdherenceReport) error {
	if user.ID == d.panicFor {
		panic("mailer exploded")
	}
	if err := d.failFor[user.ID]; err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.delivered = append(d.delivered, report)
	return nil
}

type stepTrigger struct {
	step time.Duration
}

func (s stepTrigger) Next(after time.Time) time.Time { return after.Add(s.step) }

func seed(t *testing.T) *memory.Store {
	t.Helper()
	store := memory.NewStore()
	off := false
	store.PutUser(domain.User{ID: "u1"})
	store.PutUser(domain.User{ID: "u2"})
	store.PutUser(domain.User{ID: "u3", Preferences: domain.NotificationPreferences{AdherenceReports: &off}})
	for _, owner := range []string{"u1", "u2", "u3"} {
		r := domain.Reminder{
			ID:      "r-" + owner,
			OwnerID: owner,
			Active:  true,
			History: []domain.AdherenceRecord{{ScheduledTime: now.Add(-time.Hour), Status: domain.StatusTaken}},
		}
		if err := store.Save(context.Background(), r); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	return store
}

func newScheduler(store *memory.Store, d domain.ReportDeliverer) *Scheduler {
	clk := clock.NewManual(now)
	return NewScheduler(store, adherence.NewAggregator(store, clk), d, clk, zerolog.Nop(), stepTrigger{time.Hour}, stepTrigger{time.Hour}, time.Second)
}

func TestFireIsolatesUserFailures(t *testing.T) {
	store := seed(t)
	d := &stubDeliverer{failFor: map[string]error{"u1": errors.New("smtp down")}}
	s := newScheduler(store, d)

	summary, err := s.Fire(context.Background(), domain.PeriodWeekly)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if summary.Users != 2 || summary.Failed != 1 || summary.Delivered != 1 {
		t.Fatalf("неверный итог: %+v", summary)
	}
	if len(d.delivered) != 1 || d.delivered[0].UserID != "u2" {
		t.Fatalf("отчёт u2 должен быть доставлен, получили %+v", d.delivered)
	}
	if d.delivered[0].OverallRate != 100 || d.delivered[0].Period != domain.PeriodWeekly {
		t.Fatalf("неверный отчёт: %+v", d.delivered[0])
	}
}

func TestFireRecoversDeliveryPanic(t *testing.T) {
	store := seed(t)
	d := &stubDeliverer{panicFor: "u1"}
	s := newScheduler(store, d)

	summary, err := s.Fire(context.Background(), domain.PeriodDaily)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if summary.Failed != 1 || summary.Delivered != 1 {
		t.Fatalf("паника u1 не должна мешать u2: %+v", summary)
	}
}

func TestFireSkipsOptedOutUsers(t *testing.T) {
	store := seed(t)
	d := &stubDeliverer{}
	s := newScheduler(store, d)

	if _, err := s.Fire(context.Background(), domain.PeriodDaily); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	for _, r := range d.delivered {
		if r.UserID == "u3" {
			t.Fatalf("u3 отказался от отчётов")
		}
	}
}

func TestFireRejectsOverlap(t *testing.T) {
	s := newScheduler(seed(t), &stubDeliverer{})
	s.guards[domain.PeriodDaily].Store(true)

	if _, err := s.Fire(context.Background(), domain.PeriodDaily); !errors.Is(err, ErrFiringInProgress) {
		t.Fatalf("ожидали ErrFiringInProgress, получили %v", err)
	}
	if _, err := s.Fire(context.Background(), domain.PeriodWeekly); err != nil {
		t.Fatalf("недельный триггер независим от дневного: %v", err)
	}
}

func TestRunFiresOnTrigger(t *testing.T) {
	store := seed(t)
	d := &stubDeliverer{}
	clk := clock.NewManual(now)
	s := NewScheduler(store, adherence.NewAggregator(store, clk), d, clk, zerolog.Nop(), stepTrigger{5 * time.Millisecond}, nil, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for {
		d.mu.Lock()
		n := len(d.delivered)
		d.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("ожидали хотя бы один запуск")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestNextAfterIgnoresClockSetBack(t *testing.T) {
	store := seed(t)
	clk := clock.NewManual(now)
	s := NewScheduler(store, adherence.NewAggregator(store, clk), &stubDeliverer{}, clk, zerolog.Nop(), stepTrigger{time.Hour}, nil, time.Second)

	first := s.nextAfter(stepTrigger{time.Hour}, time.Time{})
	if !first.Equal(now.Add(time.Hour)) {
		t.Fatalf("ожидали первый запуск в %s, получили %s", now.Add(time.Hour), first)
	}

	// Запуск прошёл, после чего часы отвели назад на полчаса.
	clk.Set(first.Add(-30 * time.Minute))
	second := s.nextAfter(stepTrigger{time.Hour}, first)
	if !second.After(first) {
		t.Fatalf("следующий запуск %s не должен повторять прошедший %s", second, first)
	}

	// Если процесс простаивал, отсчёт идёт от текущего времени.
	clk.Set(first.Add(5 * time.Hour))
	third := s.nextAfter(stepTrigger{time.Hour}, second)
	if !third.Equal(first.Add(6 * time.Hour)) {
		t.Fatalf("ожидали запуск в %s, получили %s", first.Add(6*time.Hour), third)
	}
}
