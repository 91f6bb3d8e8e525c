package scales

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// Service is the scale registry. Published definitions are immutable, so
// reads go through an in-memory cache that is filled on first access.
type Service struct {
	repo Repository
	log  zerolog.Logger

	mu     sync.RWMutex
	byID   map[uuid.UUID]*ScaleDefinition
	byAbbr map[string]*ScaleDefinition
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		log:    log.With().Str("component", "scale-registry").Logger(),
		byID:   make(map[uuid.UUID]*ScaleDefinition),
		byAbbr: make(map[string]*ScaleDefinition),
	}
}

var validAdministrationModes = map[string]bool{
	"self_administered": true, "clinician_administered": true, "both": true,
}

func validateDefinition(def *ScaleDefinition) error {
	var missing []string
	if def.Abbreviation == "" {
		missing = append(missing, "abbreviation")
	}
	if def.Name == "" {
		missing = append(missing, "name")
	}
	if len(def.Items) == 0 {
		missing = append(missing, "items")
	}
	if len(missing) > 0 {
		return apperr.MissingFields(missing...)
	}
	if !ValidStrategies[def.Strategy] {
		return apperr.NewValidation("unknown scoring strategy %q", def.Strategy)
	}
	if def.AdministrationMode != "" && !validAdministrationModes[def.AdministrationMode] {
		return apperr.NewValidation("unknown administration mode %q", def.AdministrationMode)
	}

	seen := make(map[int]bool, len(def.Items))
	for i := range def.Items {
		it := &def.Items[i]
		if it.Number < 1 || it.Number > len(def.Items) {
			return apperr.NewValidation("item number %d out of range 1..%d", it.Number, len(def.Items))
		}
		if seen[it.Number] {
			return apperr.NewValidation("duplicate item number %d", it.Number)
		}
		seen[it.Number] = true
		if it.MaxValue <= 0 {
			return apperr.NewValidation("item %d: max_value must be positive", it.Number)
		}
		if def.Strategy == StrategyWeighted && it.Weight <= 0 {
			return apperr.NewValidation("item %d: weighted scales require a positive weight", it.Number)
		}
	}

	for i := range def.Subscales {
		sub := &def.Subscales[i]
		if sub.Name == "" {
			return apperr.NewValidation("subscale %d: name is required", i+1)
		}
		for _, n := range sub.ItemNumbers {
			if !seen[n] {
				return apperr.NewValidation("subscale %q references unknown item %d", sub.Name, n)
			}
		}
		for j := range sub.Norms {
			if sub.Norms[j].SD <= 0 {
				return apperr.NewValidation("subscale %q: norm rows require sd > 0", sub.Name)
			}
		}
		for j := 1; j < len(sub.Cutoffs); j++ {
			if sub.Cutoffs[j].Threshold < sub.Cutoffs[j-1].Threshold {
				return apperr.NewValidation("subscale %q: cutoff bands must be in ascending threshold order", sub.Name)
			}
		}
	}

	for i := 1; i < len(def.Cutoffs); i++ {
		if def.Cutoffs[i].Threshold < def.Cutoffs[i-1].Threshold {
			return apperr.NewValidation("cutoff bands must be in ascending threshold order")
		}
	}

	if def.Strategy == StrategyCategorical {
		if def.Categories == nil || len(def.Categories.Rules) == 0 {
			return apperr.NewValidation("categorical scales require category rules")
		}
		if def.Categories.DefaultBucket == "" {
			return apperr.NewValidation("categorical scales require a default bucket")
		}
	}
	if def.Strategy == StrategyProfile && len(def.Subscales) == 0 {
		return apperr.NewValidation("profile scales require subscales")
	}
	return nil
}

// Publish validates and stores a new scale definition. If an active version
// of the same abbreviation already exists, the new definition gets the next
// version number; the prior version stays available for historical scorings.
func (s *Service) Publish(ctx context.Context, def *ScaleDefinition) error {
	if err := validateDefinition(def); err != nil {
		return err
	}
	if def.AdministrationMode == "" {
		def.AdministrationMode = "both"
	}
	if def.Language == "" {
		def.Language = "es"
	}
	def.Version = 1
	if prev, err := s.repo.GetByAbbreviation(ctx, def.Abbreviation); err == nil {
		def.Version = prev.Version + 1
	} else if !apperr.IsNotFound(err) {
		return err
	}
	def.Active = true
	if err := s.repo.Create(ctx, def); err != nil {
		return err
	}

	s.mu.Lock()
	s.byID[def.ID] = def
	s.byAbbr[def.Abbreviation] = def
	s.mu.Unlock()

	s.log.Info().Str("abbreviation", def.Abbreviation).Int("version", def.Version).
		Msg("scale published")
	return nil
}

// Get returns a definition by id, serving from cache when possible.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ScaleDefinition, error) {
	s.mu.RLock()
	def, ok := s.byID[id]
	s.mu.RUnlock()
	if ok {
		return def, nil
	}
	def, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.byID[def.ID] = def
	s.mu.Unlock()
	return def, nil
}

// GetByAbbreviation returns the latest active version for an abbreviation.
func (s *Service) GetByAbbreviation(ctx context.Context, abbr string) (*ScaleDefinition, error) {
	s.mu.RLock()
	def, ok := s.byAbbr[abbr]
	s.mu.RUnlock()
	if ok {
		return def, nil
	}
	def, err := s.repo.GetByAbbreviation(ctx, abbr)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.byID[def.ID] = def
	s.byAbbr[def.Abbreviation] = def
	s.mu.Unlock()
	return def, nil
}

func (s *Service) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScaleDefinition, int, error) {
	return s.repo.List(ctx, filter, p)
}

// Retire deactivates a definition so it no longer appears in the catalog.
// Existing assessments keep referencing it by id.
func (s *Service) Retire(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	if def, ok := s.byID[id]; ok {
		delete(s.byID, id)
		if cached, ok := s.byAbbr[def.Abbreviation]; ok && cached.ID == id {
			delete(s.byAbbr, def.Abbreviation)
		}
	}
	s.mu.Unlock()
	return nil
}

// SeedBuiltins publishes every built-in instrument that is not yet present.
func (s *Service) SeedBuiltins(ctx context.Context) error {
	for _, def := range BuiltinScales() {
		_, err := s.repo.GetByAbbreviation(ctx, def.Abbreviation)
		if err == nil {
			continue
		}
		if !apperr.IsNotFound(err) {
			return err
		}
		if err := s.Publish(ctx, def); err != nil {
			return err
		}
	}
	return nil
}
