package occurrence

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"med-reminder/internal/adapters/recurrence"
	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// DefaultHorizonDays — горизонт планирования по умолчанию.
const DefaultHorizonDays = 7

// Generator разворачивает правило повторения в срабатывания на горизонт вперёд.
type Generator struct {
	store domain.ReminderStore
	clock domain.Clock
	log   zerolog.Logger
}

// NewGenerator создаёт генератор.
func NewGenerator(store domain.ReminderStore, clock domain.Clock, logger zerolog.Logger) *Generator {
	return &Generator{store: store, clock: clock, log: logger}
}

// Generate дополняет reminder срабатываниями до now + horizonDays и сохраняет его.
//
// Разворот начинается с now или с последнего существующего срабатывания, если оно позже.
// Если правило не даёт ни одного срабатывания в горизонте, возвращается
// *domain.InvalidScheduleError, а reminder не изменяется.
// Для неактивного напоминания срабатывания не создаются.
func (g *Generator) Generate(ctx context.Context, reminder *domain.Reminder, horizonDays int) ([]domain.Occurrence, error) {
	if !reminder.Active {
		return nil, nil
	}
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	now := g.clock.Now().UTC()
	end := now.Add(time.Duration(horizonDays) * 24 * time.Hour)

	times, err := recurrence.Expand(reminder.Rule, now, end)
	if err != nil {
		metrics.InvalidSchedules.Inc()
		return nil, &domain.InvalidScheduleError{ReminderID: reminder.ID, Reason: err.Error()}
	}
	if len(times) == 0 {
		metrics.InvalidSchedules.Inc()
		return nil, &domain.InvalidScheduleError{ReminderID: reminder.ID, Reason: fmt.Sprintf("no occurrences within %d days", horizonDays)}
	}

	candidate := *reminder
	candidate.Occurrences = append([]domain.Occurrence(nil), reminder.Occurrences...)
	added := candidate.AppendOccurrences(times)
	if len(added) == 0 {
		return nil, nil
	}

	candidate.UpdatedAt = now
	if err := g.store.Save(ctx, candidate); err != nil {
		return nil, fmt.Errorf("сохранение срабатываний: %w", err)
	}
	*reminder = candidate
	metrics.OccurrencesGenerated.Add(float64(len(added)))
	g.log.Debug().
		Str("reminder", reminder.ID).
		Int("added", len(added)).
		Time("until", end).
		Msg("generator: горизонт дополнен")
	return added, nil
}
