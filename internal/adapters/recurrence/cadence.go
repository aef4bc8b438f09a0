package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Cadence — календарный триггер: ежедневно или еженедельно в заданное время.
type Cadence struct {
	rule *rrule.RRule
	desc string
}

// NewDailyCadence создаёт ежедневный триггер в at (HH:MM) по часовому поясу loc.
func NewDailyCadence(at string, loc *time.Location) (*Cadence, error) {
	return newCadence(rrule.DAILY, nil, at, loc, "daily at "+at)
}

// NewWeeklyCadence создаёт еженедельный триггер в день day и время at.
func NewWeeklyCadence(day time.Weekday, at string, loc *time.Location) (*Cadence, error) {
	wd, ok := weekdays[day]
	if !ok {
		return nil, fmt.Errorf("unknown weekday %d", day)
	}
	return newCadence(rrule.WEEKLY, []rrule.Weekday{wd}, at, loc, fmt.Sprintf("weekly on %s at %s", day, at))
}

func newCadence(freq rrule.Frequency, byDay []rrule.Weekday, at string, loc *time.Location, desc string) (*Cadence, error) {
	hour, minute, err := ParseClock(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      freq,
		Dtstart:   time.Date(2000, 1, 1, hour, minute, 0, 0, loc),
		Byweekday: byDay,
		Byhour:    []int{hour},
		Byminute:  []int{minute},
		Bysecond:  []int{0},
	})
	if err != nil {
		return nil, fmt.Errorf("build cadence: %w", err)
	}
	return &Cadence{rule: r, desc: desc}, nil
}

// Next возвращает ближайшее срабатывание строго после after.
func (c *Cadence) Next(after time.Time) time.Time {
	return c.rule.After(after, false)
}

func (c *Cadence) String() string {
	return c.desc
}

// ParseWeekday разбирает название дня недели на английском: "sunday", "Mon".
func ParseWeekday(raw string) (time.Weekday, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if value == name || (len(value) >= 3 && strings.HasPrefix(name, value)) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", raw)
}
