package adherence

import (
	"context"
	"testing"
	"time"

	"med-reminder/internal/adapters/memory"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/clock"
)

var now = time.Date(2026, 3, 8, 20, 0, 0, 0, time.UTC)

func history(statuses ...domain.AdherenceStatus) []domain.AdherenceRecord {
	var out []domain.AdherenceRecord
	for i, st := range statuses {
		out = append(out, domain.AdherenceRecord{ScheduledTime: now.Add(-time.Duration(i+1) * time.Hour), Status: st})
	}
	return out
}

func TestSummarizeRate(t *testing.T) {
	reminders := []domain.Reminder{{
		ID:           "r1",
		MedicineName: "Аспирин",
		Active:       true,
		History:      history(domain.StatusTaken, domain.StatusTaken, domain.StatusMissed, domain.StatusTaken),
	}}
	report, err := Summarize("u1", domain.PeriodDaily, now, reminders)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(report.Medications) != 1 || report.Medications[0].AdherenceRate != 75 {
		t.Fatalf("ожидали 75%%, получили %+v", report.Medications)
	}
	if report.OverallRate != 75 || report.TakenCount != 3 || report.TotalCount != 4 {
		t.Fatalf("неверный итог: %+v", report)
	}
}

func TestSummarizeWithoutHistory(t *testing.T) {
	reminders := []domain.Reminder{{ID: "r1", Active: true}}
	report, err := Summarize("u1", domain.PeriodWeekly, now, reminders)
	if err != nil {
		t.Fatalf("отсутствие истории не ошибка: %v", err)
	}
	if report.Medications[0].AdherenceRate != 0 || report.OverallRate != 0 {
		t.Fatalf("ожидали нулевой процент, получили %+v", report)
	}
}

func TestSummarizeFiltersPeriod(t *testing.T) {
	old := domain.AdherenceRecord{ScheduledTime: now.Add(-3 * 24 * time.Hour), Status: domain.StatusMissed}
	reminders := []domain.Reminder{{
		ID:      "r1",
		Active:  true,
		History: append(history(domain.StatusTaken), old),
	}}

	daily, _ := Summarize("u1", domain.PeriodDaily, now, reminders)
	if daily.TotalCount != 1 || daily.OverallRate != 100 {
		t.Fatalf("дневной отчёт не должен учитывать записи старше суток: %+v", daily)
	}
	weekly, _ := Summarize("u1", domain.PeriodWeekly, now, reminders)
	if weekly.TotalCount != 2 || weekly.OverallRate != 50 {
		t.Fatalf("недельный отчёт должен учитывать обе записи: %+v", weekly)
	}
}

func TestSummarizeRejectsUnknownPeriod(t *testing.T) {
	if _, err := Summarize("u1", domain.Period("monthly"), now, nil); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного периода")
	}
}

func TestAggregateSkipsInactiveAndForeign(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	for _, r := range []domain.Reminder{
		{ID: "mine", OwnerID: "u1", Active: true, History: history(domain.StatusTaken, domain.StatusMissed)},
		{ID: "paused", OwnerID: "u1", Active: false, History: history(domain.StatusMissed)},
		{ID: "foreign", OwnerID: "u2", Active: true, History: history(domain.StatusMissed)},
	} {
		if err := store.Save(ctx, r); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	agg := NewAggregator(store, clock.NewManual(now))

	report, err := agg.Aggregate(ctx, "u1", domain.PeriodDaily)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(report.Medications) != 1 || report.Medications[0].ReminderID != "mine" {
		t.Fatalf("ожидали только активное напоминание пользователя, получили %+v", report.Medications)
	}
	if report.OverallRate != 50 {
		t.Fatalf("ожидали 50%%, получили %d", report.OverallRate)
	}
}
