package patients

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
)

// Service implements the patient directory on top of the repository.
type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	var missing []string
	if p.FirstName == "" {
		missing = append(missing, "first_name")
	}
	if p.LastName == "" {
		missing = append(missing, "last_name")
	}
	if p.DateOfBirth.IsZero() {
		missing = append(missing, "date_of_birth")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	if p.DateOfBirth.After(s.now()) {
		return apperr.NewValidation("date_of_birth is in the future")
	}
	p.Active = true
	return s.repo.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	return s.repo.Update(ctx, p)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.repo.List(ctx, limit, offset)
}

// GetDemographics implements Directory.
func (s *Service) GetDemographics(ctx context.Context, id uuid.UUID) (Demographics, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return Demographics{}, err
	}
	return Demographics{Age: p.AgeAt(s.now()), Gender: p.Gender}, nil
}

// Exists implements Directory.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if apperr.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Contact implements Directory.
func (s *Service) Contact(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}
