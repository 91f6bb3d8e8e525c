package scheduling

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

// =========== Schedule Repository ===========

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

const scheduleCols = `id, patient_id, scale_id, clinician_id, due_at, status, priority,
	assessment_id, channels, lead_times_days, cancel_reason, created_at, executed_at, updated_at`

func scanSchedule(row pgx.Row) (*ScheduledAssessment, error) {
	var s ScheduledAssessment
	err := row.Scan(&s.ID, &s.PatientID, &s.ScaleID, &s.ClinicianID, &s.DueAt, &s.Status,
		&s.Priority, &s.AssessmentID, &s.Channels, &s.LeadTimesDays, &s.CancelReason,
		&s.CreatedAt, &s.ExecutedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("scheduled assessment", "")
	}
	return &s, err
}

func (r *scheduleRepoPG) Create(ctx context.Context, s *ScheduledAssessment) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO scheduled_assessment (id, patient_id, scale_id, clinician_id, due_at,
			status, priority, assessment_id, channels, lead_times_days, cancel_reason)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.ID, s.PatientID, s.ScaleID, s.ClinicianID, s.DueAt,
		s.Status, s.Priority, s.AssessmentID, s.Channels, s.LeadTimesDays, s.CancelReason)
	return err
}

func (r *scheduleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScheduledAssessment, error) {
	s, err := scanSchedule(conn(ctx, r.pool).QueryRow(ctx,
		`SELECT `+scheduleCols+` FROM scheduled_assessment WHERE id = $1`, id))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("scheduled assessment", id.String())
	}
	return s, err
}

func (r *scheduleRepoPG) Update(ctx context.Context, s *ScheduledAssessment) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE scheduled_assessment SET status=$2, assessment_id=$3, cancel_reason=$4,
			executed_at=$5, updated_at=NOW()
		WHERE id = $1`,
		s.ID, s.Status, s.AssessmentID, s.CancelReason, s.ExecutedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("scheduled assessment", s.ID.String())
	}
	return nil
}

func (r *scheduleRepoPG) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScheduledAssessment, int, error) {
	query := `SELECT ` + scheduleCols + ` FROM scheduled_assessment WHERE 1=1`
	countQuery := `SELECT COUNT(*) FROM scheduled_assessment WHERE 1=1`
	var args []interface{}
	idx := 1

	if filter.PatientID != uuid.Nil {
		cond := fmt.Sprintf(` AND patient_id = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.PatientID)
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

	query += fmt.Sprintf(` ORDER BY due_at LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ScheduledAssessment
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

// =========== Reminder Repository ===========

type reminderRepoPG struct{ pool *pgxpool.Pool }

func NewReminderRepoPG(pool *pgxpool.Pool) ReminderRepository { return &reminderRepoPG{pool: pool} }

const reminderCols = `id, schedule_id, channel, send_at, status, sent_at, error, created_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rem Reminder
	err := row.Scan(&rem.ID, &rem.ScheduleID, &rem.Channel, &rem.SendAt, &rem.Status,
		&rem.SentAt, &rem.Error, &rem.CreatedAt)
	return &rem, err
}

func (r *reminderRepoPG) CreateBatch(ctx context.Context, reminders []*Reminder) error {
	for _, rem := range reminders {
		if rem.ID == uuid.Nil {
			rem.ID = uuid.New()
		}
		_, err := conn(ctx, r.pool).Exec(ctx, `
			INSERT INTO assessment_reminder (id, schedule_id, channel, send_at, status)
			VALUES ($1,$2,$3,$4,$5)`,
			rem.ID, rem.ScheduleID, rem.Channel, rem.SendAt, rem.Status)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *reminderRepoPG) ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Reminder, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+reminderCols+` FROM assessment_reminder
		WHERE schedule_id = $1 ORDER BY send_at`, scheduleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rem)
	}
	return items, rows.Err()
}

func (r *reminderRepoPG) ListDue(ctx context.Context, now time.Time) ([]*Reminder, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, `
		SELECT `+reminderCols+` FROM assessment_reminder
		WHERE status = 'pending' AND send_at <= $1 ORDER BY send_at`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rem)
	}
	return items, rows.Err()
}

func (r *reminderRepoPG) MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment_reminder SET status='sent', sent_at=$2, error=NULL
		WHERE id = $1 AND status='pending'`, id, at)
	return err
}

func (r *reminderRepoPG) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment_reminder SET status='failed', error=$2
		WHERE id = $1 AND status='pending'`, id, reason)
	return err
}

func (r *reminderRepoPG) CancelPending(ctx context.Context, scheduleID uuid.UUID) (int, error) {
	tag, err := conn(ctx, r.pool).Exec(ctx, `
		UPDATE assessment_reminder SET status='cancelled'
		WHERE schedule_id = $1 AND status='pending'`, scheduleID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
