package recurrence

import (
	"errors"
	"testing"
	"time"

	"med-reminder/internal/domain"
)

var monday = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestExpandTimesOfDay(t *testing.T) {
	rule := domain.RecurrenceRule{TimesOfDay: []string{"20:30", "08:00"}}
	got, err := Expand(rule, monday, monday.Add(48*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []time.Time{
		monday.Add(8 * time.Hour),
		monday.Add(20*time.Hour + 30*time.Minute),
		monday.Add(32 * time.Hour),
		monday.Add(44*time.Hour + 30*time.Minute),
	}
	if len(got) != len(want) {
		t.Fatalf("ожидали %d срабатываний, получили %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if !got[i].Equal(want[i]) {
			t.Fatalf("срабатывание %d: ожидали %v, получили %v", i, want[i], got[i])
		}
	}
}

func TestExpandDaysOfWeek(t *testing.T) {
	rule := domain.RecurrenceRule{
		TimesOfDay: []string{"09:00"},
		DaysOfWeek: []time.Weekday{time.Monday, time.Wednesday, time.Friday},
	}
	got, err := Expand(rule, monday, monday.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ожидали 3 срабатывания за неделю, получили %d", len(got))
	}
	for _, ts := range got {
		switch ts.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			t.Fatalf("лишний день недели: %v", ts)
		}
	}
}

func TestExpandUsesTimezone(t *testing.T) {
	rule := domain.RecurrenceRule{TimesOfDay: []string{"08:00"}, Timezone: "europe/moscow"}
	got, err := Expand(rule, monday, monday.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 1 || got[0].Hour() != 5 {
		t.Fatalf("ожидали 05:00 UTC для 08:00 MSK, получили %v", got)
	}
}

func TestExpandRespectsStartAndEnd(t *testing.T) {
	end := monday.Add(3 * 24 * time.Hour)
	rule := domain.RecurrenceRule{
		TimesOfDay: []string{"12:00"},
		StartDate:  monday.Add(24 * time.Hour),
		EndDate:    &end,
	}
	got, err := Expand(rule, monday, monday.Add(7*24*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ожидали 2 срабатывания между началом и концом, получили %v", got)
	}
}

func TestExpandRawRRule(t *testing.T) {
	rule := domain.RecurrenceRule{TimesOfDay: []string{"07:15"}, RRule: "RRULE:FREQ=WEEKLY;BYDAY=TU"}
	got, err := Expand(rule, monday, monday.Add(14*24*time.Hour))
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(got) != 2 || got[0].Weekday() != time.Tuesday || got[0].Minute() != 15 {
		t.Fatalf("ожидали два вторника в 07:15, получили %v", got)
	}
}

func TestExpandRejectsMalformedRules(t *testing.T) {
	cases := map[string]domain.RecurrenceRule{
		"no times":     {},
		"bad clock":    {TimesOfDay: []string{"25:99"}},
		"bad timezone": {TimesOfDay: []string{"08:00"}, Timezone: "Mars/Olympus"},
		"bad rrule":    {TimesOfDay: []string{"08:00"}, RRule: "FREQ=SOMETIMES"},
	}
	for name, rule := range cases {
		if _, err := Expand(rule, monday, monday.Add(24*time.Hour)); err == nil {
			t.Fatalf("%s: ожидали ошибку", name)
		}
	}
}

func TestNormalizeTimezone(t *testing.T) {
	got, err := NormalizeTimezone("america/new york")
	if err != nil || got != "America/New_York" {
		t.Fatalf("ожидали America/New_York, получили %q (%v)", got, err)
	}
	if _, err := NormalizeTimezone(""); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone")
	}
}

func TestCadenceNext(t *testing.T) {
	daily, err := NewDailyCadence("20:00", time.UTC)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	next := daily.Next(monday.Add(21 * time.Hour))
	if !next.Equal(monday.Add(44 * time.Hour)) {
		t.Fatalf("ожидали следующий день 20:00, получили %v", next)
	}

	weekly, err := NewWeeklyCadence(time.Sunday, "19:00", time.UTC)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	next = weekly.Next(monday)
	if next.Weekday() != time.Sunday || next.Hour() != 19 || !next.After(monday) {
		t.Fatalf("ожидали воскресенье 19:00, получили %v", next)
	}

	if _, err := NewDailyCadence("8pm", time.UTC); err == nil {
		t.Fatalf("ожидали ошибку для некорректного времени")
	}
}

func TestParseWeekday(t *testing.T) {
	for input, want := range map[string]time.Weekday{"sunday": time.Sunday, "Mon": time.Monday, " FRIDAY ": time.Friday} {
		got, err := ParseWeekday(input)
		if err != nil || got != want {
			t.Fatalf("ParseWeekday(%q) = %v, %v", input, got, err)
		}
	}
	if _, err := ParseWeekday("someday"); err == nil {
		t.Fatalf("ожидали ошибку")
	}
}
