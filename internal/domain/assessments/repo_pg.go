package assessments

import (
	"context"
	"errors"
	"fmt"
	"time"

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// =========== Instance Repository ===========

type instanceRepoPG struct{ pool *pgxpool.Pool }

func NewInstanceRepoPG(pool *pgxpool.Pool) InstanceRepository { return &instanceRepoPG{pool: pool} }

const instanceCols = `id, patient_id, scale_id, clinician_id, schedule_id, status, mode,
	current_item, total_items, is_valid, validity_notes, cancel_reason, reason,
	clinical_context, version, created_at, started_at, completed_at, expires_at, updated_at`

func scanInstance(row pgx.Row) (*AssessmentInstance, error) {
	var a AssessmentInstance
	err := row.Scan(&a.ID, &a.PatientID, &a.ScaleID, &a.ClinicianID, &a.ScheduleID, &a.Status, &a.Mode,
		&a.CurrentItem, &a.TotalItems, &a.IsValid, &a.ValidityNotes, &a.CancelReason, &a.Reason,
		&a.ClinicalContext, &a.Version,
		&a.CreatedAt, &a.StartedAt, &a.CompletedAt, &a.ExpiresAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("assessment", "")
	}
	return &a, err
}

func (r *instanceRepoPG) Create(ctx context.Context, a *AssessmentInstance) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Version = 1
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO assessment_instance (id, patient_id, scale_id, clinician_id, schedule_id,
			status, mode, current_item, total_items, is_valid, validity_notes,
			cancel_reason, reason, clinical_context, version, started_at, completed_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		a.ID, a.PatientID, a.ScaleID, a.ClinicianID, a.ScheduleID,
		a.Status, a.Mode, a.CurrentItem, a.TotalItems, a.IsValid, a.ValidityNotes,
		a.CancelReason, a.Reason, a.ClinicalContext, a.Version, a.StartedAt, a.CompletedAt, a.ExpiresAt)
	return err
}

func (r *instanceRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*AssessmentInstance, error) {
	a, err := scanInstance(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+instanceCols+` FROM assessment_instance WHERE id = $1`, id))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("assessment", id.String())
	}
	return a, err
}

func (r *instanceRepoPG) Update(ctx context.Context, a *AssessmentInstance, expectedVersion int) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment_instance SET status=$2, current_item=$3, is_valid=$4,
			validity_notes=$5, cancel_reason=$6, started_at=$7, completed_at=$8,
			expires_at=$9, version=version+1, updated_at=NOW()
		WHERE id = $1 AND version = $10`,
		a.ID, a.Status, a.CurrentItem, a.IsValid,
		a.ValidityNotes, a.CancelReason, a.StartedAt, a.CompletedAt,
		a.ExpiresAt, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a stale version from a missing row.
		if _, gerr := r.GetByID(ctx, a.ID); apperr.IsNotFound(gerr) {
			return gerr
		}
		return &apperr.ConflictError{Entity: "assessment", ID: a.ID.String(), Version: expectedVersion}
	}
	a.Version = expectedVersion + 1
	return nil
}

func (r *instanceRepoPG) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*AssessmentInstance, int, error) {
	query := `SELECT ` + instanceCols + ` FROM assessment_instance WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM assessment_instance WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.PatientID != uuid.Nil {
		cond := fmt.Sprintf(` AND patient_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.PatientID)
		idx++
	}
	if filter.ScaleID != uuid.Nil {
		cond := fmt.Sprintf(` AND scale_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.ScaleID)
		idx++
	}
	if filter.Status != "" {
		cond := fmt.Sprintf(` AND status = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.Status)
		idx++
	}

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*AssessmentInstance
	for rows.Next() {
		a, err := scanInstance(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *instanceRepoPG) ListExpired(ctx context.Context, now time.Time) ([]*AssessmentInstance, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+instanceCols+` FROM assessment_instance
		WHERE status IN ('created','in_progress') AND expires_at IS NOT NULL AND expires_at < $1
		ORDER BY expires_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*AssessmentInstance
	for rows.Next() {
		a, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}

// =========== Response Repository ===========

type responseRepoPG struct{ pool *pgxpool.Pool }

func NewResponseRepoPG(pool *pgxpool.Pool) ResponseRepository { return &responseRepoPG{pool: pool} }

const responseCols = `id, assessment_id, item, value, response_time_ms, section_id,
	quality_flags, superseded, recorded_at`

func scanResponse(row pgx.Row) (*ResponseRecord, error) {
	var rec ResponseRecord
	err := row.Scan(&rec.ID, &rec.AssessmentID, &rec.Item, &rec.Value,
		&rec.ResponseTimeMS, &rec.SectionID, &rec.QualityFlags, &rec.Superseded, &rec.RecordedAt)
	return &rec, err
}

func (r *responseRepoPG) Create(ctx context.Context, rec *ResponseRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO assessment_response (id, assessment_id, item, value, response_time_ms,
			section_id, quality_flags, superseded)
		VALUES ($1,$2,$3,$4,$5,$6,$7,FALSE)`,
		rec.ID, rec.AssessmentID, rec.Item, rec.Value, rec.ResponseTimeMS,
		rec.SectionID, rec.QualityFlags)
	return err
}

func (r *responseRepoPG) SupersedePrior(ctx context.Context, assessmentID uuid.UUID, item int) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment_response SET superseded = TRUE
		WHERE assessment_id = $1 AND item = $2 AND superseded = FALSE`, assessmentID, item)
	return err
}

func (r *responseRepoPG) ListLatest(ctx context.Context, assessmentID uuid.UUID) ([]*ResponseRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+responseCols+` FROM assessment_response
		WHERE assessment_id = $1 AND superseded = FALSE ORDER BY item`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *responseRepoPG) ListHistory(ctx context.Context, assessmentID uuid.UUID, item int) ([]*ResponseRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+responseCols+` FROM assessment_response
		WHERE assessment_id = $1 AND item = $2 ORDER BY recorded_at`, assessmentID, item)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ResponseRecord
	for rows.Next() {
		rec, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

func (r *responseRepoPG) CountAnswered(ctx context.Context, assessmentID uuid.UUID) (int, error) {
	var count int
	err := conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(DISTINCT item) FROM assessment_response
		WHERE assessment_id = $1 AND superseded = FALSE`, assessmentID).Scan(&count)
	return count, err
}

// =========== Score Repository ===========

type scoreRepoPG struct{ pool *pgxpool.Pool }

func NewScoreRepoPG(pool *pgxpool.Pool) ScoreRepository { return &scoreRepoPG{pool: pool} }

func (r *scoreRepoPG) CreateBatch(ctx context.Context, records []*ScoreRecord) error {
	for _, rec := range records {
		if rec.ID == uuid.Nil {
			rec.ID = uuid.New()
		}
		_, err := conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO scoring_result (id, assessment_id, subscale, raw_score, z_score, t_score,
				percentile, classification, ci_lower, ci_upper, interpretation, recommendations)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			rec.ID, rec.AssessmentID, rec.Subscale, rec.RawScore, rec.ZScore, rec.TScore,
			rec.Percentile, rec.Classification, rec.CILower, rec.CIUpper,
			rec.Interpretation, rec.Recommendations)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *scoreRepoPG) ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*ScoreRecord, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT id, assessment_id, subscale, raw_score, z_score, t_score, percentile,
			classification, ci_lower, ci_upper, interpretation, recommendations, scored_at
		FROM scoring_result WHERE assessment_id = $1 ORDER BY subscale`, assessmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ScoreRecord
	for rows.Next() {
		var rec ScoreRecord
		if err := rows.Scan(&rec.ID, &rec.AssessmentID, &rec.Subscale, &rec.RawScore, &rec.ZScore,
			&rec.TScore, &rec.Percentile, &rec.Classification, &rec.CILower, &rec.CIUpper,
			&rec.Interpretation, &rec.Recommendations, &rec.ScoredAt); err != nil {
			return nil, err
		}
		items = append(items, &rec)
	}
	return items, rows.Err()
}
