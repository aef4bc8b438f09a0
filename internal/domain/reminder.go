package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

var occurrenceNamespace = uuid.MustParse("5d0c8a3e-6f7b-4c39-9a51-2b7e0f1d4c86")

// OccurrenceID возвращает стабильный идентификатор срабатывания.
// Один и тот же reminderID и момент времени всегда дают один и тот же UUID.
func OccurrenceID(reminderID string, scheduled time.Time) uuid.UUID {
	key := reminderID + "|" + scheduled.UTC().Format(time.RFC3339Nano)
	return uuid.NewSHA1(occurrenceNamespace, []byte(key))
}

// NewOccurrence создаёт неотправленное срабатывание.
func NewOccurrence(reminderID string, scheduled time.Time) Occurrence {
	scheduled = scheduled.UTC()
	return Occurrence{ID: OccurrenceID(reminderID, scheduled), ScheduledTime: scheduled}
}

// HasChannel сообщает, включён ли канал в настройках напоминания.
func (r *Reminder) HasChannel(ch Channel) bool {
	for _, c := range r.ChannelSettings {
		if c == ch {
			return true
		}
	}
	return false
}

// LatestOccurrence возвращает время последнего срабатывания.
func (r *Reminder) LatestOccurrence() (time.Time, bool) {
	if len(r.Occurrences) == 0 {
		return time.Time{}, false
	}
	return r.Occurrences[len(r.Occurrences)-1].ScheduledTime, true
}

// HasOccurrence сообщает, есть ли срабатывание на указанный момент.
func (r *Reminder) HasOccurrence(t time.Time) bool {
	return r.occurrenceIndex(t) >= 0
}

func (r *Reminder) occurrenceIndex(t time.Time) int {
	for i := range r.Occurrences {
		if r.Occurrences[i].ScheduledTime.Equal(t) {
			return i
		}
	}
	return -1
}

// AppendOccurrences добавляет срабатывания строго позже последнего существующего.
// Дубликаты и более ранние моменты отбрасываются. Возвращает добавленные.
func (r *Reminder) AppendOccurrences(times []time.Time) []Occurrence {
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	latest, hasLatest := r.LatestOccurrence()
	var added []Occurrence
	for _, t := range sorted {
		t = t.UTC()
		if hasLatest && !t.After(latest) {
			continue
		}
		occ := NewOccurrence(r.ID, t)
		r.Occurrences = append(r.Occurrences, occ)
		added = append(added, occ)
		latest, hasLatest = t, true
	}
	return added
}

// MarkOccurrenceNotified отмечает срабатывание на момент scheduled как отправленное.
func (r *Reminder) MarkOccurrenceNotified(scheduled, at time.Time) error {
	idx := r.occurrenceIndex(scheduled)
	if idx < 0 {
		return ErrOccurrenceNotFound
	}
	return r.Occurrences[idx].MarkNotified(at)
}

// CloseElapsed выносит из горизонта срабатывания, окно которых закрылось
// (scheduled + closeAfter < now), и добавляет их в историю со статусом pending.
func (r *Reminder) CloseElapsed(now time.Time, closeAfter time.Duration) []AdherenceRecord {
	var (
		kept   []Occurrence
		closed []AdherenceRecord
	)
	for _, occ := range r.Occurrences {
		if !occ.ScheduledTime.Add(closeAfter).Before(now) {
			kept = append(kept, occ)
			continue
		}
		if r.hasHistory(occ.ScheduledTime) {
			continue
		}
		rec := AdherenceRecord{ScheduledTime: occ.ScheduledTime, Status: StatusPending}
		r.History = append(r.History, rec)
		closed = append(closed, rec)
	}
	r.Occurrences = kept
	return closed
}

func (r *Reminder) hasHistory(t time.Time) bool {
	for _, rec := range r.History {
		if rec.ScheduledTime.Equal(t) {
			return true
		}
	}
	return false
}

// DropFutureUnnotified удаляет ещё не отправленные срабатывания после now.
func (r *Reminder) DropFutureUnnotified(now time.Time) int {
	kept := r.Occurrences[:0:0]
	dropped := 0
	for _, occ := range r.Occurrences {
		if !occ.Notified && occ.ScheduledTime.After(now) {
			dropped++
			continue
		}
		kept = append(kept, occ)
	}
	r.Occurrences = kept
	return dropped
}

// HistorySince возвращает записи истории не раньше start.
func (r *Reminder) HistorySince(start time.Time) []AdherenceRecord {
	var out []AdherenceRecord
	for _, rec := range r.History {
		if !rec.ScheduledTime.Before(start) {
			out = append(out, rec)
		}
	}
	return out
}

// Enabled сообщает, разрешён ли канал. Не заданное явно согласие считается включённым.
func (p NotificationPreferences) Enabled(ch Channel) bool {
	switch ch {
	case ChannelPush:
		return enabled(p.Push)
	case ChannelEmail:
		return enabled(p.Email)
	case ChannelSMS:
		return enabled(p.SMS)
	}
	return false
}

// ReportsEnabled сообщает, получает ли пользователь отчёты о приёме.
func (p NotificationPreferences) ReportsEnabled() bool {
	return enabled(p.AdherenceReports)
}

func enabled(v *bool) bool {
	return v == nil || *v
}

// For возвращает адрес пользователя для канала или пустую строку.
func (c Contact) For(ch Channel) string {
	switch ch {
	case ChannelPush:
		return c.PushToken
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	}
	return ""
}
