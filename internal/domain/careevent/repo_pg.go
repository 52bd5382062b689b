package careevent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
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

const eventCols = `id, kind, sub_kind, patient_id, pregnancy_id, child_id,
	due_date, completed_date, status, created_at, updated_at`

func scanEvent(row pgx.Row) (*Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.Kind, &e.SubKind, &e.PatientID, &e.PregnancyID, &e.ChildID,
		&e.DueDate, &e.CompletedDate, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func collect(rows pgx.Rows) ([]*Event, error) {
	defer rows.Close()
	var items []*Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

func (r *repoPG) CreateBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}
	now := time.Now().UTC()
	batch := &pgx.Batch{}
	for _, e := range events {
		e.ID = uuid.New()
		e.CreatedAt, e.UpdatedAt = now, now
		batch.Queue(`
			INSERT INTO care_event (id, kind, sub_kind, patient_id, pregnancy_id, child_id,
				due_date, completed_date, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)`,
			e.ID, e.Kind, e.SubKind, e.PatientID, e.PregnancyID, e.ChildID,
			e.DueDate, e.CompletedDate, e.Status, now)
	}

	br := r.conn(ctx).SendBatch(ctx, batch)
	for range events {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert care event: %w", err)
		}
	}
	return br.Close()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM care_event WHERE id = $1`, id))
}

func (r *repoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Event, error) {
	return scanEvent(r.conn(ctx).QueryRow(ctx, `SELECT `+eventCols+` FROM care_event WHERE id = $1 FOR UPDATE`, id))
}

func (r *repoPG) Update(ctx context.Context, e *Event) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE care_event SET due_date = $2, completed_date = $3, status = $4, updated_at = NOW()
		WHERE id = $1`,
		e.ID, e.DueDate, e.CompletedDate, e.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_event WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, kind schedule.Kind, limit, offset int) ([]*Event, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM care_event
		WHERE patient_id = $1 AND ($2 = '' OR kind = $2)`, patientID, string(kind)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+eventCols+` FROM care_event
		WHERE patient_id = $1 AND ($2 = '' OR kind = $2)
		ORDER BY due_date, sub_kind LIMIT $3 OFFSET $4`, patientID, string(kind), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	items, err := collect(rows)
	return items, total, err
}

func (r *repoPG) ListDue(ctx context.Context, kind schedule.Kind, due time.Time) ([]*Event, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+eventCols+` FROM care_event
		WHERE kind = $1 AND due_date = $2 AND status = 'UPCOMING'
		ORDER BY id`, kind, due)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *repoPG) CountInScope(ctx context.Context, kind schedule.Kind, scope Scope) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM care_event
		WHERE kind = $1 AND patient_id = $2
		  AND pregnancy_id IS NOT DISTINCT FROM $3
		  AND child_id IS NOT DISTINCT FROM $4`,
		kind, scope.PatientID, scope.PregnancyID, scope.ChildID).Scan(&n)
	return n, err
}
