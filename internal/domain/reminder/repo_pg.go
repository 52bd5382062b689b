package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecal/carecal/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reminderCols = `id, patient_id, target_event_id, kind, target_due_date, send_at,
	status, title, message, priority, read_at, created_at, updated_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var m Reminder
	err := row.Scan(&m.ID, &m.PatientID, &m.TargetEventID, &m.Kind, &m.TargetDueDate, &m.SendAt,
		&m.Status, &m.Title, &m.Message, &m.Priority, &m.ReadAt, &m.CreatedAt, &m.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func collect(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		m, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

const insertReminder = `
	INSERT INTO reminder (id, patient_id, target_event_id, kind, target_due_date, send_at,
		status, title, message, priority, read_at, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$12)`

func insertArgs(m *Reminder, now time.Time) []interface{} {
	return []interface{}{m.ID, m.PatientID, m.TargetEventID, m.Kind, m.TargetDueDate, m.SendAt,
		m.Status, m.Title, m.Message, m.Priority, m.ReadAt, now}
}

// CreateIfAbsent checks for a reminder on the same due date under the
// caller's event row lock. The reminder_one_open unique index covers the open
// case; a conflict there leaves the table unchanged.
func (r *repoPG) CreateIfAbsent(ctx context.Context, m *Reminder) (bool, error) {
	if m.TargetEventID != nil && m.TargetDueDate != nil {
		var seen bool
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM reminder
				WHERE target_event_id = $1 AND kind = $2 AND target_due_date = $3
			)`, *m.TargetEventID, m.Kind, *m.TargetDueDate).Scan(&seen)
		if err != nil {
			return false, err
		}
		if seen {
			return false, nil
		}
	}
	return r.CreateIfNoneOpen(ctx, m)
}

func (r *repoPG) CreateIfNoneOpen(ctx context.Context, m *Reminder) (bool, error) {
	m.ID = uuid.New()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	tag, err := r.conn(ctx).Exec(ctx, insertReminder+` ON CONFLICT DO NOTHING`, insertArgs(m, now)...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) Create(ctx context.Context, m *Reminder) error {
	m.ID = uuid.New()
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, insertReminder, insertArgs(m, now)...)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx, `SELECT `+reminderCols+` FROM reminder WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, m *Reminder) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET status = $2, read_at = $3, updated_at = NOW()
		WHERE id = $1`,
		m.ID, m.Status, m.ReadAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM reminder WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ResolveStale(ctx context.Context, eventID uuid.UUID, kind Kind, due time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminder SET status = 'CONFIRMED', read_at = COALESCE(read_at, NOW()), updated_at = NOW()
		WHERE target_event_id = $1 AND kind = $2 AND status IN ('SENT', 'READ')
		  AND target_due_date <> $3`,
		eventID, kind, due)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Reminder, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM reminder
		WHERE patient_id = $1 AND ($2 = '' OR status = $2)`, patientID, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM reminder
		WHERE patient_id = $1 AND ($2 = '' OR status = $2)
		ORDER BY send_at DESC, id LIMIT $3 OFFSET $4`, patientID, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+reminderCols+` FROM reminder
		WHERE target_event_id = $1 ORDER BY send_at`, eventID)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error) {
	var s Stats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'SENT'),
		       COUNT(*) FILTER (WHERE status = 'READ'),
		       COUNT(*) FILTER (WHERE status = 'CONFIRMED')
		FROM reminder WHERE patient_id = $1`, patientID).Scan(&s.Total, &s.Unread, &s.Read, &s.Confirmed)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
