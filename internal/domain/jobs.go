package domain

import (
	"context"
	"time"
)

// ScheduleJobCause описывает причину пересчёта расписания.
type ScheduleJobCause string

const (
	// ScheduleCauseCreated — напоминание создано.
	ScheduleCauseCreated ScheduleJobCause = "created"
	// ScheduleCauseUpdated — изменилось правило повторения.
	ScheduleCauseUpdated ScheduleJobCause = "updated"
	// ScheduleCauseDeactivated — напоминание выключено.
	ScheduleCauseDeactivated ScheduleJobCause = "deactivated"
)

// ScheduleJob содержит запрос на пересчёт срабатываний напоминания.
type ScheduleJob struct {
	ID          string           `json:"job_id,omitempty"`
	ReminderID  string           `json:"reminder_id"`
	Cause       ScheduleJobCause `json:"cause"`
	RequestedAt time.Time        `json:"requested_at"`
	Attempt     int              `json:"attempt,omitempty"`
}

// ScheduleQueue описывает очередь задач пересчёта расписаний.
type ScheduleQueue interface {
	Enqueue(ctx context.Context, job ScheduleJob) error
	Pop(ctx context.Context) (ScheduleJob, error)
}
