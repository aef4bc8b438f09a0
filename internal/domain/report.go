package domain

import (
	"fmt"
	"math"
	"time"
)

// Period — отчётный период.
type Period string

const (
	PeriodDaily  Period = "daily"
	PeriodWeekly Period = "weekly"
)

// Start возвращает начало периода, отсчитанное назад от now.
func (p Period) Start(now time.Time) (time.Time, error) {
	switch p {
	case PeriodDaily:
		return now.Add(-24 * time.Hour), nil
	case PeriodWeekly:
		return now.Add(-7 * 24 * time.Hour), nil
	}
	return time.Time{}, fmt.Errorf("unknown period %q", p)
}

// MedicationStats — статистика приёма по одному напоминанию.
type MedicationStats struct {
	ReminderID    string `json:"reminder_id"`
	MedicineName  string `json:"medicine_name"`
	TakenCount    int    `json:"taken_count"`
	TotalCount    int    `json:"total_count"`
	AdherenceRate int    `json:"adherence_rate"`
}

// AdherenceReport — отчёт о приёме лекарств за период.
type AdherenceReport struct {
	UserID      string            `json:"user_id"`
	Period      Period            `json:"period"`
	PeriodStart time.Time         `json:"period_start"`
	PeriodEnd   time.Time         `json:"period_end"`
	Medications []MedicationStats `json:"medications"`
	TakenCount  int               `json:"taken_count"`
	TotalCount  int               `json:"total_count"`
	OverallRate int               `json:"overall_rate"`
}

// AdherenceRate считает round(100 * taken / total); при total = 0 возвращает 0.
func AdherenceRate(taken, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(taken) / float64(total)))
}
