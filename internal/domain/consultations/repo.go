package consultations

import (
	"context"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// Repository persists consultation drafts.
type Repository interface {
	Create(ctx context.Context, d *ConsultationDraft) error
	GetByID(ctx context.Context, id uuid.UUID) (*ConsultationDraft, error)
	// Update writes the draft only if the stored version matches
	// expectedVersion, bumping d.Version on success. A mismatch returns a
	// ConflictError.
	Update(ctx context.Context, d *ConsultationDraft, expectedVersion int) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*ConsultationDraft, int, error)
}
