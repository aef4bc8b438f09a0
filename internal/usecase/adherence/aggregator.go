package adherence

import (
	"context"
	"fmt"
	"time"

	"med-reminder/internal/domain"
)

// Aggregator строит отчёты о приёме лекарств по истории напоминаний.
type Aggregator struct {
	store domain.ReminderStore
	clock domain.Clock
}

// NewAggregator создаёт агрегатор.
func NewAggregator(store domain.ReminderStore, clock domain.Clock) *Aggregator {
	return &Aggregator{store: store, clock: clock}
}

// Aggregate строит отчёт пользователя за период, отсчитанный назад от текущего момента.
func (a *Aggregator) Aggregate(ctx context.Context, userID string, period domain.Period) (domain.AdherenceReport, error) {
	now := a.clock.Now().UTC()
	if _, err := period.Start(now); err != nil {
		return domain.AdherenceReport{}, err
	}
	reminders, err := a.store.ListActiveByOwner(ctx, userID)
	if err != nil {
		return domain.AdherenceReport{}, fmt.Errorf("напоминания пользователя %s: %w", userID, err)
	}
	return Summarize(userID, period, now, reminders)
}

// Summarize считает статистику по напоминаниям без обращения к хранилищу.
// Неактивные напоминания не учитываются; напоминание без истории за период даёт нулевую строку.
func Summarize(userID string, period domain.Period, now time.Time, reminders []domain.Reminder) (domain.AdherenceReport, error) {
	start, err := period.Start(now)
	if err != nil {
		return domain.AdherenceReport{}, err
	}
	report := domain.AdherenceReport{
		UserID:      userID,
		Period:      period,
		PeriodStart: start,
		PeriodEnd:   now,
		Medications: []domain.MedicationStats{},
	}
	for i := range reminders {
		r := &reminders[i]
		if !r.Active {
			continue
		}
		stats := domain.MedicationStats{ReminderID: r.ID, MedicineName: r.MedicineName}
		for _, rec := range r.HistorySince(start) {
			if rec.ScheduledTime.After(now) {
				continue
			}
			stats.TotalCount++
			if rec.Status == domain.StatusTaken {
				stats.TakenCount++
			}
		}
		stats.AdherenceRate = domain.AdherenceRate(stats.TakenCount, stats.TotalCount)
		report.Medications = append(report.Medications, stats)
		report.TakenCount += stats.TakenCount
		report.TotalCount += stats.TotalCount
	}
	report.OverallRate = domain.AdherenceRate(report.TakenCount, report.TotalCount)
	return report, nil
}
