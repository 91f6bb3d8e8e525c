package assessments

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// ListFilter narrows instance listings.
type ListFilter struct {
	PatientID uuid.UUID
	ScaleID   uuid.UUID
	Status    Status
}

// InstanceRepository persists assessment instances.
type InstanceRepository interface {
	Create(ctx context.Context, a *AssessmentInstance) error
	GetByID(ctx context.Context, id uuid.UUID) (*AssessmentInstance, error)
	// Update writes the instance only if the stored version matches
	// expectedVersion, bumping a.Version on success. A mismatch returns a
	// ConflictError.
	Update(ctx context.Context, a *AssessmentInstance, expectedVersion int) error
	List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*AssessmentInstance, int, error)
	// ListExpired returns non-terminal instances whose expiry is in the past.
	ListExpired(ctx context.Context, now time.Time) ([]*AssessmentInstance, error)
}

// ResponseRepository persists item responses.
type ResponseRepository interface {
	Create(ctx context.Context, r *ResponseRecord) error
	// SupersedePrior marks any live record for the item as superseded.
	SupersedePrior(ctx context.Context, assessmentID uuid.UUID, item int) error
	// ListLatest returns the live (non-superseded) record per item.
	ListLatest(ctx context.Context, assessmentID uuid.UUID) ([]*ResponseRecord, error)
	// ListHistory returns every record for an item, oldest first.
	ListHistory(ctx context.Context, assessmentID uuid.UUID, item int) ([]*ResponseRecord, error)
	// CountAnswered returns how many distinct items have a live record.
	CountAnswered(ctx context.Context, assessmentID uuid.UUID) (int, error)
}

// ScoreRepository persists scoring results.
type ScoreRepository interface {
	// CreateBatch inserts the full result set of one scoring run.
	CreateBatch(ctx context.Context, records []*ScoreRecord) error
	ListByAssessment(ctx context.Context, assessmentID uuid.UUID) ([]*ScoreRecord, error)
}
