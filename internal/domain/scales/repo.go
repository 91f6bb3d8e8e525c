package scales

import (
	"context"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// ListFilter narrows catalog listings. Zero values mean "no filter".
type ListFilter struct {
	Category string
	Language string
	Age      int
}

// Repository persists scale definitions.
type Repository interface {
	Create(ctx context.Context, def *ScaleDefinition) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScaleDefinition, error)
	// GetByAbbreviation returns the highest active version for the abbreviation.
	GetByAbbreviation(ctx context.Context, abbr string) (*ScaleDefinition, error)
	List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScaleDefinition, int, error)
	// Deactivate retires a definition without deleting it.
	Deactivate(ctx context.Context, id uuid.UUID) error
}
