package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/domain"
)

type memQueue struct {
	mu   sync.Mutex
	jobs []domain.ScheduleJob
}

func (q *memQueue) Enqueue(_ context.Context, job domain.ScheduleJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(ctx context.Context) (domain.ScheduleJob, error) {
	for {
		q.mu.Lock()
		if len(q.jobs) > 0 {
			job := q.jobs[0]
			q.jobs = q.jobs[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return domain.ScheduleJob{}, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

type stubHandler struct {
	mu    sync.Mutex
	calls []domain.ScheduleJob
	err   func(job domain.ScheduleJob) error
}

func (h *stubHandler) Handle(_ context.Context, job domain.ScheduleJob) error {
	h.mu.Lock()
	h.calls = append(h.calls, job)
	h.mu.Unlock()
	if h.err == nil {
		return nil
	}
	return h.err(job)
}

func (h *stubHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type recordingReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingReporter) Report(err error, _ map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestWorkerRetriesStoreErrorsUpToLimit(t *testing.T) {
	q := &memQueue{}
	h := &stubHandler{err: func(domain.ScheduleJob) error {
		return domain.StoreError("save", errors.New("conn reset"))
	}}
	rep := &recordingReporter{}
	w := &jobWorker{log: zerolog.Nop(), queue: q, service: h, reporter: rep, backoff: time.Millisecond}

	w.process(context.Background(), domain.ScheduleJob{ReminderID: "r1", Cause: domain.ScheduleCauseCreated})
	for len(q.jobs) > 0 {
		job, _ := q.Pop(context.Background())
		w.process(context.Background(), job)
	}

	if h.count() != maxJobAttempts {
		t.Fatalf("ожидали %d попыток, получили %d", maxJobAttempts, h.count())
	}
	if len(q.jobs) != 0 {
		t.Fatalf("после исчерпания попыток очередь должна быть пуста, осталось %d", len(q.jobs))
	}
	if len(rep.errs) != 1 {
		t.Fatalf("ожидали одно сообщение в мониторинг, получили %d", len(rep.errs))
	}
}

func TestWorkerDropsInvalidSchedule(t *testing.T) {
	q := &memQueue{}
	h := &stubHandler{err: func(job domain.ScheduleJob) error {
		return &domain.InvalidScheduleError{ReminderID: job.ReminderID, Reason: "no occurrences"}
	}}
	rep := &recordingReporter{}
	w := &jobWorker{log: zerolog.Nop(), queue: q, service: h, reporter: rep, backoff: time.Millisecond}

	w.process(context.Background(), domain.ScheduleJob{ReminderID: "r1", Cause: domain.ScheduleCauseUpdated})
	if len(q.jobs) != 0 || len(rep.errs) != 0 {
		t.Fatalf("неверное расписание не должно повторяться и попадать в мониторинг")
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	q := &memQueue{}
	h := &stubHandler{}
	w := &jobWorker{log: zerolog.Nop(), queue: q, service: h, backoff: time.Millisecond}
	_ = q.Enqueue(context.Background(), domain.ScheduleJob{ReminderID: "r1", Cause: domain.ScheduleCauseCreated})
	_ = q.Enqueue(context.Background(), domain.ScheduleJob{Cause: domain.ScheduleCauseCreated})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for h.count() < 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run не завершился после отмены")
	}
	if h.count() != 1 {
		t.Fatalf("задача без напоминания не должна обрабатываться, вызовов: %d", h.count())
	}
}
