package domain

import (
	"errors"
	"testing"
	"time"
)

var base = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func TestAppendOccurrencesSkipsDuplicatesAndEarlier(t *testing.T) {
	r := Reminder{ID: "r1"}
	added := r.AppendOccurrences([]time.Time{base.Add(time.Hour), base})
	if len(added) != 2 {
		t.Fatalf("ожидали 2 новых срабатывания, получили %d", len(added))
	}
	if !r.Occurrences[0].ScheduledTime.Equal(base) {
		t.Fatalf("ожидали сортировку по времени")
	}

	added = r.AppendOccurrences([]time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)})
	if len(added) != 1 {
		t.Fatalf("ожидали только одно новое срабатывание, получили %d", len(added))
	}
	for i := 1; i < len(r.Occurrences); i++ {
		if !r.Occurrences[i].ScheduledTime.After(r.Occurrences[i-1].ScheduledTime) {
			t.Fatalf("срабатывания должны строго возрастать")
		}
	}
}

func TestOccurrenceIDIsStable(t *testing.T) {
	a := OccurrenceID("r1", base)
	b := OccurrenceID("r1", base.In(time.FixedZone("X", 3*3600)))
	if a != b {
		t.Fatalf("идентификатор не должен зависеть от часового пояса")
	}
	if a == OccurrenceID("r2", base) {
		t.Fatalf("идентификаторы разных напоминаний должны различаться")
	}
}

func TestMarkNotifiedOnlyOnce(t *testing.T) {
	r := Reminder{ID: "r1"}
	r.AppendOccurrences([]time.Time{base})
	if err := r.MarkOccurrenceNotified(base, base); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if err := r.MarkOccurrenceNotified(base, base.Add(time.Minute)); !errors.Is(err, ErrAlreadyNotified) {
		t.Fatalf("ожидали ErrAlreadyNotified, получили %v", err)
	}
	if !r.Occurrences[0].NotifiedAt.Equal(base) {
		t.Fatalf("время отметки не должно меняться")
	}
	if err := r.MarkOccurrenceNotified(base.Add(time.Hour), base); !errors.Is(err, ErrOccurrenceNotFound) {
		t.Fatalf("ожидали ErrOccurrenceNotFound, получили %v", err)
	}
}

func TestCloseElapsedMovesToHistory(t *testing.T) {
	r := Reminder{ID: "r1"}
	r.AppendOccurrences([]time.Time{base, base.Add(3 * time.Hour)})

	closed := r.CloseElapsed(base.Add(2*time.Hour), time.Hour)
	if len(closed) != 1 || closed[0].Status != StatusPending {
		t.Fatalf("ожидали одну закрытую запись pending, получили %+v", closed)
	}
	if len(r.Occurrences) != 1 || len(r.History) != 1 {
		t.Fatalf("ожидали 1 срабатывание и 1 запись истории, получили %d и %d", len(r.Occurrences), len(r.History))
	}

	r.AppendOccurrences([]time.Time{base.Add(4 * time.Hour)})
	r.Occurrences = append([]Occurrence{NewOccurrence("r1", base)}, r.Occurrences...)
	if closed := r.CloseElapsed(base.Add(2*time.Hour), time.Hour); len(closed) != 0 {
		t.Fatalf("повторное закрытие не должно дублировать историю")
	}
}

func TestDropFutureUnnotifiedKeepsNotified(t *testing.T) {
	r := Reminder{ID: "r1"}
	r.AppendOccurrences([]time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)})
	_ = r.MarkOccurrenceNotified(base.Add(time.Hour), base)

	dropped := r.DropFutureUnnotified(base.Add(30 * time.Minute))
	if dropped != 1 {
		t.Fatalf("ожидали удалить 1 срабатывание, удалили %d", dropped)
	}
	if len(r.Occurrences) != 2 {
		t.Fatalf("прошедшее и отправленное срабатывания должны остаться")
	}
}

func TestPreferencesDefaultToEnabled(t *testing.T) {
	off := false
	prefs := NotificationPreferences{SMS: &off}
	if !prefs.Enabled(ChannelPush) || !prefs.Enabled(ChannelEmail) {
		t.Fatalf("не заданные согласия должны считаться включёнными")
	}
	if prefs.Enabled(ChannelSMS) {
		t.Fatalf("явно выключенный канал должен быть выключен")
	}
	if !prefs.ReportsEnabled() {
		t.Fatalf("отчёты по умолчанию включены")
	}
}

func TestAdherenceRate(t *testing.T) {
	cases := []struct {
		taken, total, want int
	}{
		{3, 4, 75},
		{0, 0, 0},
		{2, 3, 67},
		{1, 3, 33},
		{5, 5, 100},
	}
	for _, tc := range cases {
		if got := AdherenceRate(tc.taken, tc.total); got != tc.want {
			t.Fatalf("AdherenceRate(%d, %d) = %d, want %d", tc.taken, tc.total, got, tc.want)
		}
	}
}

func TestPeriodStart(t *testing.T) {
	daily, _ := PeriodDaily.Start(base)
	weekly, _ := PeriodWeekly.Start(base)
	if !daily.Equal(base.Add(-24*time.Hour)) || !weekly.Equal(base.Add(-7*24*time.Hour)) {
		t.Fatalf("неверное начало периода: %v %v", daily, weekly)
	}
	if _, err := Period("monthly").Start(base); err == nil {
		t.Fatalf("ожидали ошибку для неизвестного периода")
	}
}
