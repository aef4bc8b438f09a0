package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"med-reminder/internal/domain"
)

// Store хранит напоминания и пользователей в памяти процесса.
// Используется в dev-режиме и в тестах.
type Store struct {
	mu        sync.Mutex
	reminders map[string]domain.Reminder
	users     map[string]domain.User
}

var (
	_ domain.ReminderStore = (*Store)(nil)
	_ domain.UserDirectory = (*Store)(nil)
)

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{reminders: make(map[string]domain.Reminder), users: make(map[string]domain.User)}
}

// PutUser добавляет или заменяет пользователя.
func (s *Store) PutUser(user domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

// Get реализует domain.ReminderStore.
func (s *Store) Get(_ context.Context, reminderID string) (domain.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[reminderID]
	if !ok {
		return domain.Reminder{}, domain.ErrReminderNotFound
	}
	return clone(r), nil
}

// FindDue реализует domain.ReminderStore.
func (s *Store) FindDue(_ context.Context, windowStart, windowEnd time.Time) ([]domain.DueOccurrence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DueOccurrence
	for _, r := range s.reminders {
		if !r.Active {
			continue
		}
		for _, occ := range r.Occurrences {
			if occ.Notified || occ.ScheduledTime.Before(windowStart) || occ.ScheduledTime.After(windowEnd) {
				continue
			}
			out = append(out, domain.DueOccurrence{Reminder: clone(r), Occurrence: occ})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Occurrence.ScheduledTime.Before(out[j].Occurrence.ScheduledTime)
	})
	return out, nil
}

// Save реализует domain.ReminderStore. Отметка notified никогда не сбрасывается.
func (s *Store) Save(_ context.Context, reminder domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	saved := clone(reminder)
	if prev, ok := s.reminders[reminder.ID]; ok {
		for i := range saved.Occurrences {
			for _, old := range prev.Occurrences {
				if old.Notified && old.ScheduledTime.Equal(saved.Occurrences[i].ScheduledTime) {
					saved.Occurrences[i].Notified = true
					saved.Occurrences[i].NotifiedAt = old.NotifiedAt
				}
			}
		}
	}
	s.reminders[reminder.ID] = saved
	return nil
}

// MarkNotified реализует domain.ReminderStore.
func (s *Store) MarkNotified(_ context.Context, reminderID string, scheduled, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[reminderID]
	if !ok {
		return false, domain.ErrReminderNotFound
	}
	r = clone(r)
	if err := r.MarkOccurrenceNotified(scheduled, at); err != nil {
		if errors.Is(err, domain.ErrAlreadyNotified) {
			return false, nil
		}
		return false, err
	}
	s.reminders[reminderID] = r
	return true, nil
}

// ListActive реализует domain.ReminderStore.
func (s *Store) ListActive(_ context.Context) ([]domain.Reminder, error) {
	return s.list(func(domain.Reminder) bool { return true }), nil
}

// ListActiveByOwner реализует domain.ReminderStore.
func (s *Store) ListActiveByOwner(_ context.Context, ownerID string) ([]domain.Reminder, error) {
	return s.list(func(r domain.Reminder) bool { return r.OwnerID == ownerID }), nil
}

func (s *Store) list(match func(domain.Reminder) bool) []domain.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reminder
	for _, r := range s.reminders {
		if r.Active && match(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetUser реализует domain.UserDirectory.
func (s *Store) GetUser(_ context.Context, userID string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

// ListReportRecipients реализует domain.UserDirectory.
func (s *Store) ListReportRecipients(_ context.Context) ([]domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.User
	for _, u := range s.users {
		if u.Preferences.ReportsEnabled() {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func clone(r domain.Reminder) domain.Reminder {
	r.ChannelSettings = append([]domain.Channel(nil), r.ChannelSettings...)
	r.Occurrences = append([]domain.Occurrence(nil), r.Occurrences...)
	r.History = append([]domain.AdherenceRecord(nil), r.History...)
	return r
}
