package sender

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"med-reminder/internal/adapters/recurrence"
	"med-reminder/internal/domain"
)

// FormatReminder формирует тему и текст уведомления, общие для всех каналов.
func FormatReminder(p domain.NotificationPayload) (subject, body string) {
	subject = "Time to take " + strings.TrimSpace(p.MedicineName)

	lines := []string{"💊 " + subject}
	if dose := formatDosage(p.Dosage); dose != "" {
		lines = append(lines, "Dose: "+dose)
	}
	if instr := strings.TrimSpace(p.FoodInstructions); instr != "" {
		lines = append(lines, instr)
	}
	if notes := strings.TrimSpace(p.Notes); notes != "" {
		lines = append(lines, "Notes: "+notes)
	}
	lines = append(lines, "Scheduled for "+localTime(p.ScheduledTime, p.Timezone))
	return subject, strings.Join(lines, "\n")
}

// FormatReport формирует текст отчёта о приёме.
func FormatReport(r domain.AdherenceReport) string {
	var b strings.Builder
	title := "Daily"
	if r.Period == domain.PeriodWeekly {
		title = "Weekly"
	}
	fmt.Fprintf(&b, "📊 %s adherence report\n", title)
	fmt.Fprintf(&b, "%s - %s\n", r.PeriodStart.UTC().Format("02 Jan 15:04"), r.PeriodEnd.UTC().Format("02 Jan 15:04"))
	if len(r.Medications) == 0 {
		b.WriteString("\nNo active medications in this period.")
		return b.String()
	}
	b.WriteString("\n")
	for _, m := range r.Medications {
		name := strings.TrimSpace(m.MedicineName)
		if name == "" {
			name = m.ReminderID
		}
		fmt.Fprintf(&b, "- %s: %d/%d taken (%d%%)\n", name, m.TakenCount, m.TotalCount, m.AdherenceRate)
	}
	fmt.Fprintf(&b, "\nOverall: %d/%d taken (%d%%)", r.TakenCount, r.TotalCount, r.OverallRate)
	return b.String()
}

func formatDosage(d domain.Dosage) string {
	if d.Amount <= 0 {
		return strings.TrimSpace(d.Unit)
	}
	return strings.TrimSpace(strconv.FormatFloat(d.Amount, 'f', -1, 64) + " " + d.Unit)
}

func localTime(t time.Time, timezone string) string {
	loc, err := recurrence.Location(timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("Mon 02 Jan 15:04 MST")
}

// SplitMessage режет текст на части не длиннее limit символов,
// по возможности по границам строк.
func SplitMessage(text string, limit int) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	runes := []rune(trimmed)
	if limit <= 0 || len(runes) <= limit {
		return []string{trimmed}
	}

	var parts []string
	for start := 0; start < len(runes); {
		end := start + limit
		if end >= len(runes) {
			if chunk := strings.Trim(string(runes[start:]), "\n"); chunk != "" {
				parts = append(parts, chunk)
			}
			break
		}
		split := end
		for i := end; i > start; i-- {
			if runes[i-1] == '\n' {
				split = i
				break
			}
		}
		if chunk := strings.Trim(string(runes[start:split]), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		start = split
		for start < len(runes) && runes[start] == '\n' {
			start++
		}
	}
	return parts
}
