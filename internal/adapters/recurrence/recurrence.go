package recurrence

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"med-reminder/internal/domain"
)

// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
var ErrInvalidTimezone = errors.New("invalid timezone")

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

// Expand возвращает моменты срабатывания правила в [from, to] в UTC, по возрастанию.
func Expand(rule domain.RecurrenceRule, from, to time.Time) ([]time.Time, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("empty window %s..%s", from, to)
	}
	loc, err := Location(rule.Timezone)
	if err != nil {
		return nil, err
	}
	starts, err := anchors(rule, from, loc)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	for _, dtstart := range starts {
		opt, err := options(rule, dtstart, loc)
		if err != nil {
			return nil, err
		}
		r, err := rrule.NewRRule(*opt)
		if err != nil {
			return nil, fmt.Errorf("build rrule: %w", err)
		}
		set.RRule(r)
	}

	seen := make(map[int64]struct{})
	var out []time.Time
	for _, t := range set.Between(from, to, true) {
		t = t.UTC()
		if _, ok := seen[t.UnixNano()]; ok {
			continue
		}
		seen[t.UnixNano()] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// anchors строит DTSTART для каждого времени суток из правила.
func anchors(rule domain.RecurrenceRule, from time.Time, loc *time.Location) ([]time.Time, error) {
	day := rule.StartDate
	if day.IsZero() {
		day = from.Add(-24 * time.Hour)
	}
	day = day.In(loc)

	if len(rule.TimesOfDay) == 0 {
		if rule.RRule != "" && !rule.StartDate.IsZero() {
			return []time.Time{rule.StartDate.In(loc)}, nil
		}
		return nil, errors.New("no times of day")
	}

	out := make([]time.Time, 0, len(rule.TimesOfDay))
	for _, raw := range rule.TimesOfDay {
		hour, minute, err := ParseClock(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc))
	}
	return out, nil
}

func options(rule domain.RecurrenceRule, dtstart time.Time, loc *time.Location) (*rrule.ROption, error) {
	var opt *rrule.ROption
	if raw := strings.TrimSpace(rule.RRule); raw != "" {
		parsed, err := rrule.StrToROptionInLocation(strings.TrimPrefix(raw, "RRULE:"), loc)
		if err != nil {
			return nil, fmt.Errorf("failed to parse RRULE: %w", err)
		}
		opt = parsed
	} else {
		opt = &rrule.ROption{Freq: rrule.DAILY}
		for _, d := range rule.DaysOfWeek {
			wd, ok := weekdays[d]
			if !ok {
				return nil, fmt.Errorf("unknown weekday %d", d)
			}
			opt.Byweekday = append(opt.Byweekday, wd)
		}
	}
	opt.Dtstart = dtstart
	if rule.EndDate != nil {
		opt.Until = rule.EndDate.In(loc)
	}
	return opt, nil
}

// ParseClock разбирает время в формате HH:MM.
func ParseClock(raw string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", raw)
	}
	return t.Hour(), t.Minute(), nil
}

// Location загружает часовой пояс; пустое имя означает UTC.
func Location(name string) (*time.Location, error) {
	if strings.TrimSpace(name) == "" {
		return time.UTC, nil
	}
	normalized, err := NormalizeTimezone(name)
	if err != nil {
		return nil, err
	}
	return time.LoadLocation(normalized)
}

// NormalizeTimezone приводит имя часового пояса к виду IANA (регистр, пробелы заменяются на "_").
func NormalizeTimezone(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", ErrInvalidTimezone
	}
	candidate = strings.ReplaceAll(candidate, " ", "_")
	if _, err := time.LoadLocation(candidate); err == nil {
		return candidate, nil
	}

	parts := strings.Split(strings.ToLower(candidate), "/")
	for i, part := range parts {
		segments := strings.Split(part, "_")
		for j, segment := range segments {
			pieces := strings.Split(segment, "-")
			for k, piece := range pieces {
				if piece == "" {
					continue
				}
				pieces[k] = strings.ToUpper(piece[:1]) + piece[1:]
			}
			segments[j] = strings.Join(pieces, "-")
		}
		parts[i] = strings.Join(segments, "_")
	}
	normalized := strings.Join(parts, "/")
	if _, err := time.LoadLocation(normalized); err == nil {
		return normalized, nil
	}
	return "", ErrInvalidTimezone
}
