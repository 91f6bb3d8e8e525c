package patients

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, first_name, last_name, date_of_birth, gender, email, phone,
	active, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.DateOfBirth, &p.Gender,
		&p.Email, &p.Phone, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("patient", "")
	}
	return &p, err
}

func (r *repoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, date_of_birth, gender, email, phone, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.Phone, p.Active)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("patient", id.String())
	}
	return p, err
}

func (r *repoPG) Update(ctx context.Context, p *Patient) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, date_of_birth=$4, gender=$5,
			email=$6, phone=$7, active=$8, updated_at=NOW()
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DateOfBirth, p.Gender, p.Email, p.Phone, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("patient", p.ID.String())
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM patient WHERE active = TRUE`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+patientCols+` FROM patient WHERE active = TRUE
		ORDER BY last_name, first_name LIMIT $1 OFFSET $2`, limit, offset)
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
