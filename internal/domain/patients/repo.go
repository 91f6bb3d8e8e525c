package patients

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists patients.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

// Directory is the read-only view other domains depend on.
type Directory interface {
	GetDemographics(ctx context.Context, id uuid.UUID) (Demographics, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Contact(ctx context.Context, id uuid.UUID) (*Patient, error)
}
