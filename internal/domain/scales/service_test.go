package scales

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

type mockScaleRepo struct {
	scales map[uuid.UUID]*ScaleDefinition
}

func newMockScaleRepo() *mockScaleRepo {
	return &mockScaleRepo{scales: make(map[uuid.UUID]*ScaleDefinition)}
}

func (m *mockScaleRepo) Create(_ context.Context, def *ScaleDefinition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	cp := *def
	m.scales[def.ID] = &cp
	return nil
}

func (m *mockScaleRepo) GetByID(_ context.Context, id uuid.UUID) (*ScaleDefinition, error) {
	def, ok := m.scales[id]
	if !ok {
		return nil, apperr.NewNotFound("scale", id.String())
	}
	return def, nil
}

func (m *mockScaleRepo) GetByAbbreviation(_ context.Context, abbr string) (*ScaleDefinition, error) {
	var best *ScaleDefinition
	for _, def := range m.scales {
		if def.Abbreviation != abbr || !def.Active {
			continue
		}
		if best == nil || def.Version > best.Version {
			best = def
		}
	}
	if best == nil {
		return nil, apperr.NewNotFound("scale", abbr)
	}
	return best, nil
}

func (m *mockScaleRepo) List(_ context.Context, filter ListFilter, p pagination.Params) ([]*ScaleDefinition, int, error) {
	var items []*ScaleDefinition
	for _, def := range m.scales {
		if !def.Active {
			continue
		}
		if filter.Category != "" && def.Category != filter.Category {
			continue
		}
		if filter.Language != "" && def.Language != filter.Language {
			continue
		}
		if filter.Age > 0 && !def.EligibleForAge(filter.Age) {
			continue
		}
		items = append(items, def)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Abbreviation < items[j].Abbreviation })
	return items, len(items), nil
}

func (m *mockScaleRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	def, ok := m.scales[id]
	if !ok {
		return apperr.NewNotFound("scale", id.String())
	}
	def.Active = false
	return nil
}

func newTestRegistry() (*Service, *mockScaleRepo) {
	repo := newMockScaleRepo()
	return NewService(repo, zerolog.Nop()), repo
}

func validDef() *ScaleDefinition {
	return &ScaleDefinition{
		Abbreviation: "TST-3",
		Name:         "Test Scale",
		Category:     "test",
		Strategy:     StrategySum,
		Items: []ScaleItem{
			{Number: 1, Text: "a", MaxValue: 3},
			{Number: 2, Text: "b", MaxValue: 3},
			{Number: 3, Text: "c", MaxValue: 3},
		},
		Cutoffs: []CutoffBand{
			{Label: "low", Threshold: 0},
			{Label: "high", Threshold: 5},
		},
	}
}

func TestPublishAssignsVersionAndDefaults(t *testing.T) {
	svc, _ := newTestRegistry()
	ctx := context.Background()

	def := validDef()
	if err := svc.Publish(ctx, def); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if def.Version != 1 {
		t.Errorf("expected version 1, got %d", def.Version)
	}
	if !def.Active {
		t.Error("expected published scale to be active")
	}
	if def.Language != "es" {
		t.Errorf("expected default language es, got %q", def.Language)
	}

	rev := validDef()
	if err := svc.Publish(ctx, rev); err != nil {
		t.Fatalf("publish revision: %v", err)
	}
	if rev.Version != 2 {
		t.Errorf("expected version 2, got %d", rev.Version)
	}
}

func TestPublishValidation(t *testing.T) {
	svc, _ := newTestRegistry()
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*ScaleDefinition)
	}{
		{"missing name", func(d *ScaleDefinition) { d.Name = "" }},
		{"no items", func(d *ScaleDefinition) { d.Items = nil }},
		{"bad strategy", func(d *ScaleDefinition) { d.Strategy = "median" }},
		{"duplicate item", func(d *ScaleDefinition) { d.Items[1].Number = 1 }},
		{"item out of range", func(d *ScaleDefinition) { d.Items[2].Number = 9 }},
		{"zero max value", func(d *ScaleDefinition) { d.Items[0].MaxValue = 0 }},
		{"weighted without weights", func(d *ScaleDefinition) { d.Strategy = StrategyWeighted }},
		{"descending cutoffs", func(d *ScaleDefinition) { d.Cutoffs[1].Threshold = -1 }},
		{"categorical without rules", func(d *ScaleDefinition) { d.Strategy = StrategyCategorical }},
		{"profile without subscales", func(d *ScaleDefinition) { d.Strategy = StrategyProfile }},
		{"subscale unknown item", func(d *ScaleDefinition) {
			d.Subscales = []Subscale{{Name: "x", ItemNumbers: []int{42}}}
		}},
		{"subscale descending cutoffs", func(d *ScaleDefinition) {
			d.Subscales = []Subscale{{Name: "x", ItemNumbers: []int{1, 2},
				Cutoffs: []CutoffBand{{Label: "normal", Threshold: 5}, {Label: "high", Threshold: 2}}}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDef()
			tc.mutate(def)
			err := svc.Publish(ctx, def)
			var verr *apperr.ValidationError
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T: %v", err, err)
			}
		})
	}
}

func TestGetServesFromCache(t *testing.T) {
	svc, repo := newTestRegistry()
	ctx := context.Background()

	def := validDef()
	if err := svc.Publish(ctx, def); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// Mutating the repo behind the cache must not affect reads.
	delete(repo.scales, def.ID)

	got, err := svc.Get(ctx, def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Abbreviation != "TST-3" {
		t.Errorf("unexpected scale %q", got.Abbreviation)
	}
	if _, err := svc.GetByAbbreviation(ctx, "TST-3"); err != nil {
		t.Errorf("get by abbreviation: %v", err)
	}
}

func TestRetireEvictsFromCatalog(t *testing.T) {
	svc, _ := newTestRegistry()
	ctx := context.Background()

	def := validDef()
	if err := svc.Publish(ctx, def); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.Retire(ctx, def.ID); err != nil {
		t.Fatalf("retire: %v", err)
	}
	if _, err := svc.GetByAbbreviation(ctx, "TST-3"); !apperr.IsNotFound(err) {
		t.Errorf("expected not found after retire, got %v", err)
	}
	items, _, err := svc.List(ctx, ListFilter{}, pagination.Params{Limit: 20})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected empty catalog, got %d entries", len(items))
	}
}

func TestSeedBuiltinsIsIdempotent(t *testing.T) {
	svc, repo := newTestRegistry()
	ctx := context.Background()

	if err := svc.SeedBuiltins(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	first := len(repo.scales)
	if first != len(BuiltinScales()) {
		t.Fatalf("expected %d seeded scales, got %d", len(BuiltinScales()), first)
	}
	if err := svc.SeedBuiltins(ctx); err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if len(repo.scales) != first {
		t.Errorf("second seed inserted duplicates: %d -> %d", first, len(repo.scales))
	}
}

func TestListFiltersByAge(t *testing.T) {
	svc, _ := newTestRegistry()
	ctx := context.Background()
	if err := svc.SeedBuiltins(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	items, _, err := svc.List(ctx, ListFilter{Age: 10}, pagination.Params{Limit: 50})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, def := range items {
		if !def.EligibleForAge(10) {
			t.Errorf("scale %s should not match age 10", def.Abbreviation)
		}
	}
	found := false
	for _, def := range items {
		if def.Abbreviation == "SDQ" {
			found = true
		}
	}
	if !found {
		t.Error("expected SDQ in age-10 catalog")
	}
}
