package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"med-reminder/internal/domain"
	"med-reminder/internal/infra/metrics"
)

// Postgres реализует хранилище напоминаний и справочник пользователей на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.ReminderStore = (*Postgres)(nil)
	_ domain.UserDirectory = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtxWithParent(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Ping проверяет доступность БД.
func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()
	return p.pool.Ping(ctx)
}

const reminderColumns = `id, owner_id, medicine_name, dosage_amount, dosage_unit, food_policy, notes, rule, channels, active, created_at, updated_at`

func scanReminder(row pgx.Row) (domain.Reminder, error) {
	var (
		r        domain.Reminder
		rule     []byte
		channels []string
		policy   string
	)
	if err := row.Scan(&r.ID, &r.OwnerID, &r.MedicineName, &r.Dosage.Amount, &r.Dosage.Unit, &policy, &r.Notes, &rule, &channels, &r.Active, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return domain.Reminder{}, err
	}
	r.FoodPolicy = domain.FoodPolicy(policy)
	if err := json.Unmarshal(rule, &r.Rule); err != nil {
		return domain.Reminder{}, fmt.Errorf("decode rule of %s: %w", r.ID, err)
	}
	for _, ch := range channels {
		r.ChannelSettings = append(r.ChannelSettings, domain.Channel(ch))
	}
	return r, nil
}

// Get реализует domain.ReminderStore.
func (p *Postgres) Get(ctx context.Context, reminderID string) (domain.Reminder, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	r, err := scanReminder(p.pool.QueryRow(ctx, `SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, reminderID))
	metrics.ObserveNetworkRequest("postgres", "reminders_get", "reminders", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reminder{}, domain.ErrReminderNotFound
	}
	if err != nil {
		return domain.Reminder{}, domain.StoreError("get reminder", err)
	}
	list := []domain.Reminder{r}
	if err := p.loadChildren(ctx, list); err != nil {
		return domain.Reminder{}, err
	}
	return list[0], nil
}

// FindDue реализует domain.ReminderStore. Напоминания возвращаются без срабатываний
// и истории: координатору нужны только их поля.
func (p *Postgres) FindDue(ctx context.Context, windowStart, windowEnd time.Time) ([]domain.DueOccurrence, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT r.id, r.owner_id, r.medicine_name, r.dosage_amount, r.dosage_unit, r.food_policy, r.notes, r.rule, r.channels, r.active, r.created_at, r.updated_at,
       o.id::text, o.scheduled_at
FROM reminder_occurrences o
JOIN reminders r ON r.id = o.reminder_id
WHERE r.active AND NOT o.notified AND o.scheduled_at BETWEEN $1 AND $2
ORDER BY o.scheduled_at
`, windowStart, windowEnd)
	metrics.ObserveNetworkRequest("postgres", "occurrences_find_due", "reminder_occurrences", start, err)
	if err != nil {
		return nil, domain.StoreError("find due", err)
	}
	defer rows.Close()

	var due []domain.DueOccurrence
	for rows.Next() {
		var (
			r        domain.Reminder
			rule     []byte
			channels []string
			policy   string
			occID    string
			occ      domain.Occurrence
		)
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.MedicineName, &r.Dosage.Amount, &r.Dosage.Unit, &policy, &r.Notes, &rule, &channels, &r.Active, &r.CreatedAt, &r.UpdatedAt, &occID, &occ.ScheduledTime); err != nil {
			return nil, domain.StoreError("scan due", err)
		}
		r.FoodPolicy = domain.FoodPolicy(policy)
		if err := json.Unmarshal(rule, &r.Rule); err != nil {
			return nil, fmt.Errorf("decode rule of %s: %w", r.ID, err)
		}
		for _, ch := range channels {
			r.ChannelSettings = append(r.ChannelSettings, domain.Channel(ch))
		}
		if occ.ID, err = uuid.Parse(occID); err != nil {
			return nil, fmt.Errorf("parse occurrence id: %w", err)
		}
		occ.ScheduledTime = occ.ScheduledTime.UTC()
		due = append(due, domain.DueOccurrence{Reminder: r, Occurrence: occ})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.StoreError("find due", err)
	}
	return due, nil
}

// Save реализует domain.ReminderStore. Запись выполняется в одной транзакции.
// Срабатывания вне переданного набора удаляются, отметка notified не сбрасывается.
func (p *Postgres) Save(ctx context.Context, r domain.Reminder) error {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	rule, err := json.Marshal(r.Rule)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	channels := make([]string, 0, len(r.ChannelSettings))
	for _, ch := range r.ChannelSettings {
		channels = append(channels, string(ch))
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}

	start := time.Now()
	err = pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO reminders (`+reminderColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO UPDATE SET
    owner_id = EXCLUDED.owner_id, medicine_name = EXCLUDED.medicine_name,
    dosage_amount = EXCLUDED.dosage_amount, dosage_unit = EXCLUDED.dosage_unit,
    food_policy = EXCLUDED.food_policy, notes = EXCLUDED.notes, rule = EXCLUDED.rule,
    channels = EXCLUDED.channels, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
`, r.ID, r.OwnerID, r.MedicineName, r.Dosage.Amount, r.Dosage.Unit, string(r.FoodPolicy), r.Notes, rule, channels, r.Active, r.CreatedAt, r.UpdatedAt); err != nil {
			return err
		}

		scheduled := make([]time.Time, 0, len(r.Occurrences))
		for _, occ := range r.Occurrences {
			scheduled = append(scheduled, occ.ScheduledTime)
		}
		if _, err := tx.Exec(ctx, `
DELETE FROM reminder_occurrences
WHERE reminder_id = $1 AND NOT (scheduled_at = ANY($2))
`, r.ID, scheduled); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, occ := range r.Occurrences {
			batch.Queue(`
INSERT INTO reminder_occurrences (id, reminder_id, scheduled_at, notified, notified_at)
VALUES ($1::uuid, $2, $3, $4, $5)
ON CONFLICT (reminder_id, scheduled_at) DO UPDATE SET
    notified = reminder_occurrences.notified OR EXCLUDED.notified,
    notified_at = COALESCE(reminder_occurrences.notified_at, EXCLUDED.notified_at)
`, occ.ID.String(), r.ID, occ.ScheduledTime, occ.Notified, occ.NotifiedAt)
		}
		for _, rec := range r.History {
			batch.Queue(`
INSERT INTO adherence_records (reminder_id, scheduled_at, status, actual_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (reminder_id, scheduled_at) DO NOTHING
`, r.ID, rec.ScheduledTime, string(rec.Status), rec.ActualTime)
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	metrics.ObserveNetworkRequest("postgres", "reminders_save", "reminders", start, err)
	if err != nil {
		return domain.StoreError("save reminder", err)
	}
	return nil
}

// MarkNotified реализует domain.ReminderStore как условное обновление.
func (p *Postgres) MarkNotified(ctx context.Context, reminderID string, scheduled, at time.Time) (bool, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `
UPDATE reminder_occurrences SET notified = TRUE, notified_at = $3
WHERE reminder_id = $1 AND scheduled_at = $2 AND NOT notified
`, reminderID, scheduled, at)
	metrics.ObserveNetworkRequest("postgres", "occurrences_mark_notified", "reminder_occurrences", start, err)
	if err != nil {
		return false, domain.StoreError("mark notified", err)
	}
	if res.RowsAffected() == 1 {
		return true, nil
	}

	var exists bool
	if err := p.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM reminder_occurrences WHERE reminder_id = $1 AND scheduled_at = $2)
`, reminderID, scheduled).Scan(&exists); err != nil {
		return false, domain.StoreError("mark notified", err)
	}
	if !exists {
		return false, domain.ErrOccurrenceNotFound
	}
	return false, nil
}

// ListActive реализует domain.ReminderStore.
func (p *Postgres) ListActive(ctx context.Context) ([]domain.Reminder, error) {
	return p.list(ctx, "reminders_list_active", `SELECT `+reminderColumns+` FROM reminders WHERE active ORDER BY id`)
}

// ListActiveByOwner реализует domain.ReminderStore.
func (p *Postgres) ListActiveByOwner(ctx context.Context, ownerID string) ([]domain.Reminder, error) {
	return p.list(ctx, "reminders_list_by_owner", `SELECT `+reminderColumns+` FROM reminders WHERE active AND owner_id = $1 ORDER BY id`, ownerID)
}

func (p *Postgres) list(ctx context.Context, op, query string, args ...any) ([]domain.Reminder, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, query, args...)
	metrics.ObserveNetworkRequest("postgres", op, "reminders", start, err)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	reminders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Reminder, error) {
		return scanReminder(row)
	})
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	if err := p.loadChildren(ctx, reminders); err != nil {
		return nil, err
	}
	return reminders, nil
}

// loadChildren подгружает срабатывания и историю для списка напоминаний.
func (p *Postgres) loadChildren(ctx context.Context, reminders []domain.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	ids := make([]string, len(reminders))
	index := make(map[string]int, len(reminders))
	for i, r := range reminders {
		ids[i] = r.ID
		index[r.ID] = i
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT reminder_id, id::text, scheduled_at, notified, notified_at
FROM reminder_occurrences WHERE reminder_id = ANY($1)
ORDER BY scheduled_at
`, ids)
	metrics.ObserveNetworkRequest("postgres", "occurrences_list", "reminder_occurrences", start, err)
	if err != nil {
		return domain.StoreError("load occurrences", err)
	}
	for rows.Next() {
		var (
			reminderID string
			rawID      string
			occ        domain.Occurrence
		)
		if err := rows.Scan(&reminderID, &rawID, &occ.ScheduledTime, &occ.Notified, &occ.NotifiedAt); err != nil {
			rows.Close()
			return domain.StoreError("scan occurrence", err)
		}
		if occ.ID, err = uuid.Parse(rawID); err != nil {
			rows.Close()
			return fmt.Errorf("parse occurrence id: %w", err)
		}
		occ.ScheduledTime = occ.ScheduledTime.UTC()
		r := &reminders[index[reminderID]]
		r.Occurrences = append(r.Occurrences, occ)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.StoreError("load occurrences", err)
	}

	start = time.Now()
	rows, err = p.pool.Query(ctx, `
SELECT reminder_id, scheduled_at, status, actual_at
FROM adherence_records WHERE reminder_id = ANY($1)
ORDER BY scheduled_at
`, ids)
	metrics.ObserveNetworkRequest("postgres", "adherence_list", "adherence_records", start, err)
	if err != nil {
		return domain.StoreError("load history", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			reminderID string
			status     string
			rec        domain.AdherenceRecord
		)
		if err := rows.Scan(&reminderID, &rec.ScheduledTime, &status, &rec.ActualTime); err != nil {
			return domain.StoreError("scan history", err)
		}
		rec.Status = domain.AdherenceStatus(status)
		rec.ScheduledTime = rec.ScheduledTime.UTC()
		r := &reminders[index[reminderID]]
		r.History = append(r.History, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.StoreError("load history", err)
	}
	return nil
}

const userColumns = `id, name, email, phone, push_token, preferences`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u     domain.User
		prefs []byte
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Contact.Email, &u.Contact.Phone, &u.Contact.PushToken, &prefs); err != nil {
		return domain.User{}, err
	}
	if len(prefs) > 0 {
		if err := json.Unmarshal(prefs, &u.Preferences); err != nil {
			return domain.User{}, fmt.Errorf("decode preferences of %s: %w", u.ID, err)
		}
	}
	return u, nil
}

// GetUser реализует domain.UserDirectory.
func (p *Postgres) GetUser(ctx context.Context, userID string) (domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	u, err := scanUser(p.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	metrics.ObserveNetworkRequest("postgres", "users_get", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, domain.StoreError("get user", err)
	}
	return u, nil
}

// ListReportRecipients реализует domain.UserDirectory.
func (p *Postgres) ListReportRecipients(ctx context.Context) ([]domain.User, error) {
	ctx, cancel := p.connCtxWithParent(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+userColumns+` FROM users
WHERE COALESCE((preferences->>'adherence_reports')::boolean, TRUE)
ORDER BY id
`)
	metrics.ObserveNetworkRequest("postgres", "users_list_report_recipients", "users", start, err)
	if err != nil {
		return nil, domain.StoreError("list report recipients", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.User, error) {
		return scanUser(row)
	})
	if err != nil {
		return nil, domain.StoreError("list report recipients", err)
	}
	return users, nil
}
