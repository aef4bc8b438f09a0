package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSchedule возвращается, если правило не даёт ни одного срабатывания в горизонте.
	ErrInvalidSchedule = errors.New("invalid schedule")
	// ErrStoreUnavailable оборачивает временные ошибки хранилища.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrReminderNotFound возвращается, если напоминание не найдено.
	ErrReminderNotFound = errors.New("reminder not found")
	// ErrUserNotFound возвращается, если пользователь не найден в справочнике.
	ErrUserNotFound = errors.New("user not found")
	// ErrNoContact означает, что у пользователя нет контакта для канала.
	ErrNoContact = errors.New("no contact for channel")
	// ErrAlreadyNotified возвращается при повторной отметке срабатывания.
	ErrAlreadyNotified = errors.New("occurrence already notified")
	// ErrOccurrenceNotFound возвращается, если у напоминания нет срабатывания на этот момент.
	ErrOccurrenceNotFound = errors.New("occurrence not found")
)

// InvalidScheduleError описывает, почему расписание напоминания не годится.
type InvalidScheduleError struct {
	ReminderID string
	Reason     string
}

func (e *InvalidScheduleError) Error() string {
	return fmt.Sprintf("invalid schedule for reminder %s: %s", e.ReminderID, e.Reason)
}

// Is позволяет сопоставлять ошибку с ErrInvalidSchedule.
func (e *InvalidScheduleError) Is(target error) bool {
	return target == ErrInvalidSchedule
}

// ChannelSendError — отказ одного канала, не влияющий на остальные.
type ChannelSendError struct {
	Channel Channel
	Reason  string
}

func (e *ChannelSendError) Error() string {
	return fmt.Sprintf("channel %s: %s", e.Channel, e.Reason)
}

// StoreError оборачивает ошибку драйвера как ErrStoreUnavailable.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
