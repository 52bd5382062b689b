package registry

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// translate maps constraint violations onto registry errors.
func translate(err error) error {
	switch {
	case db.IsForeignKeyViolation(err):
		return ErrPatientNotFound
	case db.IsUniqueViolation(err):
		return ErrActivePregnancy
	}
	return err
}

// -- Patient --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

const patientCols = `id, first_name, last_name, phone, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Phone, &p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		p.ID, p.FirstName, p.LastName, p.Phone, now)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM patient`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+patientCols+` FROM patient
		ORDER BY last_name, first_name, id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, p)
	}
	return items, total, rows.Err()
}

// -- Pregnancy --

type pregnancyRepoPG struct{ pool *pgxpool.Pool }

func NewPregnancyRepoPG(pool *pgxpool.Pool) PregnancyRepository {
	return &pregnancyRepoPG{pool: pool}
}

const pregnancyCols = `id, patient_id, lmp, expected_delivery, delivery_date, status, created_at, updated_at`

func scanPregnancy(row pgx.Row) (*Pregnancy, error) {
	var p Pregnancy
	err := row.Scan(&p.ID, &p.PatientID, &p.LMP, &p.ExpectedDelivery, &p.DeliveryDate, &p.Status,
		&p.CreatedAt, &p.UpdatedAt)
	if db.IsNoRows(err) {
		return nil, ErrPregnancyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *pregnancyRepoPG) Create(ctx context.Context, p *Pregnancy) error {
	p.ID = uuid.New()
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO pregnancy (id, patient_id, lmp, expected_delivery, delivery_date, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`,
		p.ID, p.PatientID, p.LMP, p.ExpectedDelivery, p.DeliveryDate, p.Status, now)
	return translate(err)
}

func (r *pregnancyRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return scanPregnancy(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pregnancyCols+` FROM pregnancy WHERE id = $1`, id))
}

func (r *pregnancyRepoPG) GetForUpdate(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return scanPregnancy(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pregnancyCols+` FROM pregnancy WHERE id = $1 FOR UPDATE`, id))
}

func (r *pregnancyRepoPG) GetActive(ctx context.Context, patientID uuid.UUID) (*Pregnancy, error) {
	return scanPregnancy(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+pregnancyCols+` FROM pregnancy
		WHERE patient_id = $1 AND status = 'ACTIVE' FOR UPDATE`, patientID))
}

func (r *pregnancyRepoPG) Update(ctx context.Context, p *Pregnancy) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE pregnancy SET delivery_date = $2, status = $3, updated_at = NOW()
		WHERE id = $1`,
		p.ID, p.DeliveryDate, p.Status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPregnancyNotFound
	}
	return nil
}

func (r *pregnancyRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Pregnancy, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+pregnancyCols+` FROM pregnancy
		WHERE patient_id = $1 ORDER BY lmp DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Pregnancy
	for rows.Next() {
		p, err := scanPregnancy(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

// -- Child --

type childRepoPG struct{ pool *pgxpool.Pool }

func NewChildRepoPG(pool *pgxpool.Pool) ChildRepository {
	return &childRepoPG{pool: pool}
}

const childCols = `id, patient_id, first_name, birth_date, created_at`

func scanChild(row pgx.Row) (*Child, error) {
	var c Child
	err := row.Scan(&c.ID, &c.PatientID, &c.FirstName, &c.BirthDate, &c.CreatedAt)
	if db.IsNoRows(err) {
		return nil, ErrChildNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *childRepoPG) Create(ctx context.Context, c *Child) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO child (id, patient_id, first_name, birth_date, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.PatientID, c.FirstName, c.BirthDate, c.CreatedAt)
	return translate(err)
}

func (r *childRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Child, error) {
	return scanChild(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+childCols+` FROM child WHERE id = $1`, id))
}

func (r *childRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Child, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `SELECT `+childCols+` FROM child
		WHERE patient_id = $1 ORDER BY birth_date`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Child
	for rows.Next() {
		c, err := scanChild(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}
