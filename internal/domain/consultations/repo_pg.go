package consultations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/db"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
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

const draftCols = `id, patient_id, clinician_id, note_type, status, fields, version,
	created_at, updated_at, last_saved_at, finalized_at`

func scanDraft(row pgx.Row) (*ConsultationDraft, error) {
	var d ConsultationDraft
	err := row.Scan(&d.ID, &d.PatientID, &d.ClinicianID, &d.NoteType, &d.Status, &d.Fields,
		&d.Version, &d.CreatedAt, &d.UpdatedAt, &d.LastSavedAt, &d.FinalizedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("consultation draft", "")
	}
	return &d, err
}

func (r *repoPG) Create(ctx context.Context, d *ConsultationDraft) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.Version = 1
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consultation_draft (id, patient_id, clinician_id, note_type, status, fields, version)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		d.ID, d.PatientID, d.ClinicianID, d.NoteType, d.Status, d.Fields, d.Version)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsultationDraft, error) {
	d, err := scanDraft(r.conn(ctx).QueryRow(ctx,
		`SELECT `+draftCols+` FROM consultation_draft WHERE id = $1`, id))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("consultation draft", id.String())
	}
	return d, err
}

func (r *repoPG) Update(ctx context.Context, d *ConsultationDraft, expectedVersion int) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consultation_draft SET status=$2, fields=$3, last_saved_at=$4, finalized_at=$5,
			version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $6`,
		d.ID, d.Status, d.Fields, d.LastSavedAt, d.FinalizedAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := r.GetByID(ctx, d.ID); apperr.IsNotFound(gerr) {
			return gerr
		}
		return &apperr.ConflictError{Entity: "consultation draft", ID: d.ID.String(), Version: expectedVersion}
	}
	d.Version = expectedVersion + 1
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*ConsultationDraft, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM consultation_draft WHERE patient_id = $1`, patientID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+draftCols+` FROM consultation_draft WHERE patient_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`, patientID, p.Limit, p.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ConsultationDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
