package scales

import (
	"context"
	"errors"
	"fmt"

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

// NewRepoPG returns the Postgres-backed scale definition repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const scaleCols = `id, abbreviation, name, category, version, language,
	administration_mode, target_age_min, target_age_max, strategy,
	items, subscales, cutoffs, categories, active, created_at`

func (r *repoPG) scanScale(row pgx.Row) (*ScaleDefinition, error) {
	var s ScaleDefinition
	err := row.Scan(&s.ID, &s.Abbreviation, &s.Name, &s.Category, &s.Version, &s.Language,
		&s.AdministrationMode, &s.TargetAgeMin, &s.TargetAgeMax, &s.Strategy,
		&s.Items, &s.Subscales, &s.Cutoffs, &s.Categories, &s.Active, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NewNotFound("scale", s.ID.String())
	}
	return &s, err
}

func (r *repoPG) Create(ctx context.Context, def *ScaleDefinition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO scale_definition (id, abbreviation, name, category, version, language,
			administration_mode, target_age_min, target_age_max, strategy,
			items, subscales, cutoffs, categories, active)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		def.ID, def.Abbreviation, def.Name, def.Category, def.Version, def.Language,
		def.AdministrationMode, def.TargetAgeMin, def.TargetAgeMax, def.Strategy,
		def.Items, def.Subscales, def.Cutoffs, def.Categories, def.Active)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ScaleDefinition, error) {
	s, err := r.scanScale(r.conn(ctx).QueryRow(ctx, `SELECT `+scaleCols+` FROM scale_definition WHERE id = $1`, id))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("scale", id.String())
	}
	return s, err
}

func (r *repoPG) GetByAbbreviation(ctx context.Context, abbr string) (*ScaleDefinition, error) {
	s, err := r.scanScale(r.conn(ctx).QueryRow(ctx, `
		SELECT `+scaleCols+` FROM scale_definition
		WHERE abbreviation = $1 AND active = TRUE
		ORDER BY version DESC LIMIT 1`, abbr))
	if apperr.IsNotFound(err) {
		return nil, apperr.NewNotFound("scale", abbr)
	}
	return s, err
}

func (r *repoPG) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScaleDefinition, int, error) {
	query := `SELECT ` + scaleCols + ` FROM scale_definition WHERE active = TRUE`
	countQuery := `SELECT COUNT(*) FROM scale_definition WHERE active = TRUE`
	var args []interface{}
	idx := 1

	if filter.Category != "" {
		cond := fmt.Sprintf(` AND category = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.Category)
		idx++
	}
	if filter.Language != "" {
		cond := fmt.Sprintf(` AND language = $%d`, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.Language)
		idx++
	}
	if filter.Age > 0 {
		cond := fmt.Sprintf(` AND target_age_min <= $%d AND (target_age_max = 0 OR target_age_max >= $%d)`, idx, idx)
		query += cond
		countQuery += cond
		args = append(args, filter.Age)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(` ORDER BY abbreviation, version DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, p.Limit, p.Offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*ScaleDefinition
	for rows.Next() {
		s, err := r.scanScale(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE scale_definition SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NewNotFound("scale", id.String())
	}
	return nil
}
