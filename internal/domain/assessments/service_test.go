package assessments

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/patients"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// ---- mocks ----

type mockInstanceRepo struct {
	instances map[uuid.UUID]*AssessmentInstance
}

func newMockInstanceRepo() *mockInstanceRepo {
	return &mockInstanceRepo{instances: make(map[uuid.UUID]*AssessmentInstance)}
}

func (m *mockInstanceRepo) Create(_ context.Context, a *AssessmentInstance) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Version = 1
	cp := *a
	m.instances[a.ID] = &cp
	return nil
}

func (m *mockInstanceRepo) GetByID(_ context.Context, id uuid.UUID) (*AssessmentInstance, error) {
	a, ok := m.instances[id]
	if !ok {
		return nil, apperr.NewNotFound("assessment", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockInstanceRepo) Update(_ context.Context, a *AssessmentInstance, expectedVersion int) error {
	stored, ok := m.instances[a.ID]
	if !ok {
		return apperr.NewNotFound("assessment", a.ID.String())
	}
	if stored.Version != expectedVersion {
		return &apperr.ConflictError{Entity: "assessment", ID: a.ID.String(), Version: expectedVersion}
	}
	cp := *a
	cp.Version = expectedVersion + 1
	m.instances[a.ID] = &cp
	a.Version = cp.Version
	return nil
}

func (m *mockInstanceRepo) List(_ context.Context, filter ListFilter, _ pagination.Params) ([]*AssessmentInstance, int, error) {
	var items []*AssessmentInstance
	for _, a := range m.instances {
		if filter.PatientID != uuid.Nil && a.PatientID != filter.PatientID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		items = append(items, a)
	}
	return items, len(items), nil
}

func (m *mockInstanceRepo) ListExpired(_ context.Context, now time.Time) ([]*AssessmentInstance, error) {
	var items []*AssessmentInstance
	for _, a := range m.instances {
		if a.Expired(now) {
			cp := *a
			items = append(items, &cp)
		}
	}
	return items, nil
}

type mockResponseRepo struct {
	records []*ResponseRecord
}

func (m *mockResponseRepo) Create(_ context.Context, r *ResponseRecord) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	cp := *r
	m.records = append(m.records, &cp)
	return nil
}

func (m *mockResponseRepo) SupersedePrior(_ context.Context, assessmentID uuid.UUID, item int) error {
	for _, r := range m.records {
		if r.AssessmentID == assessmentID && r.Item == item && !r.Superseded {
			r.Superseded = true
		}
	}
	return nil
}

func (m *mockResponseRepo) ListLatest(_ context.Context, assessmentID uuid.UUID) ([]*ResponseRecord, error) {
	var items []*ResponseRecord
	for _, r := range m.records {
		if r.AssessmentID == assessmentID && !r.Superseded {
			items = append(items, r)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Item < items[j].Item })
	return items, nil
}

func (m *mockResponseRepo) ListHistory(_ context.Context, assessmentID uuid.UUID, item int) ([]*ResponseRecord, error) {
	var items []*ResponseRecord
	for _, r := range m.records {
		if r.AssessmentID == assessmentID && r.Item == item {
			items = append(items, r)
		}
	}
	return items, nil
}

func (m *mockResponseRepo) CountAnswered(_ context.Context, assessmentID uuid.UUID) (int, error) {
	seen := make(map[int]bool)
	for _, r := range m.records {
		if r.AssessmentID == assessmentID && !r.Superseded {
			seen[r.Item] = true
		}
	}
	return len(seen), nil
}

type mockScoreRepo struct {
	records []*ScoreRecord
	fail    error
}

func (m *mockScoreRepo) CreateBatch(_ context.Context, records []*ScoreRecord) error {
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, records...)
	return nil
}

func (m *mockScoreRepo) ListByAssessment(_ context.Context, assessmentID uuid.UUID) ([]*ScoreRecord, error) {
	var items []*ScoreRecord
	for _, r := range m.records {
		if r.AssessmentID == assessmentID {
			items = append(items, r)
		}
	}
	return items, nil
}

type mockRegistryRepo struct {
	scales map[uuid.UUID]*scales.ScaleDefinition
}

func (m *mockRegistryRepo) Create(_ context.Context, def *scales.ScaleDefinition) error {
	if def.ID == uuid.Nil {
		def.ID = uuid.New()
	}
	m.scales[def.ID] = def
	return nil
}

func (m *mockRegistryRepo) GetByID(_ context.Context, id uuid.UUID) (*scales.ScaleDefinition, error) {
	def, ok := m.scales[id]
	if !ok {
		return nil, apperr.NewNotFound("scale", id.String())
	}
	return def, nil
}

func (m *mockRegistryRepo) GetByAbbreviation(_ context.Context, abbr string) (*scales.ScaleDefinition, error) {
	for _, def := range m.scales {
		if def.Abbreviation == abbr {
			return def, nil
		}
	}
	return nil, apperr.NewNotFound("scale", abbr)
}

func (m *mockRegistryRepo) List(_ context.Context, _ scales.ListFilter, _ pagination.Params) ([]*scales.ScaleDefinition, int, error) {
	return nil, 0, nil
}

func (m *mockRegistryRepo) Deactivate(_ context.Context, _ uuid.UUID) error { return nil }

type mockDirectory struct {
	known map[uuid.UUID]patients.Demographics
}

func (m *mockDirectory) GetDemographics(_ context.Context, id uuid.UUID) (patients.Demographics, error) {
	demo, ok := m.known[id]
	if !ok {
		return patients.Demographics{}, apperr.NewNotFound("patient", id.String())
	}
	return demo, nil
}

func (m *mockDirectory) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	_, ok := m.known[id]
	return ok, nil
}

func (m *mockDirectory) Contact(_ context.Context, id uuid.UUID) (*patients.Patient, error) {
	if _, ok := m.known[id]; !ok {
		return nil, apperr.NewNotFound("patient", id.String())
	}
	return &patients.Patient{ID: id}, nil
}

// ---- fixture ----

type fixture struct {
	svc       *Service
	instances *mockInstanceRepo
	responses *mockResponseRepo
	scores    *mockScoreRepo
	patientID uuid.UUID
	scaleID   uuid.UUID
	now       time.Time
}

func testScale() *scales.ScaleDefinition {
	return &scales.ScaleDefinition{
		Abbreviation:       "TST-3",
		Name:               "Test Scale",
		AdministrationMode: "both",
		Strategy:           scales.StrategySum,
		Items: []scales.ScaleItem{
			{Number: 1, Text: "a", MaxValue: 3},
			{Number: 2, Text: "b", MaxValue: 3},
			{Number: 3, Text: "c", MaxValue: 3},
		},
		Cutoffs: []scales.CutoffBand{
			{Label: "low", Threshold: 0},
			{Label: "high", Threshold: 5},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	registryRepo := &mockRegistryRepo{scales: make(map[uuid.UUID]*scales.ScaleDefinition)}
	def := testScale()
	if err := registryRepo.Create(context.Background(), def); err != nil {
		t.Fatalf("seed scale: %v", err)
	}

	patientID := uuid.New()
	dir := &mockDirectory{known: map[uuid.UUID]patients.Demographics{
		patientID: {Age: 30, Gender: "female"},
	}}

	f := &fixture{
		instances: newMockInstanceRepo(),
		responses: &mockResponseRepo{},
		scores:    &mockScoreRepo{},
		patientID: patientID,
		scaleID:   def.ID,
		now:       time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
	f.svc = NewService(f.instances, f.responses, f.scores,
		scales.NewService(registryRepo, zerolog.Nop()), dir, nil,
		72*time.Hour, zerolog.Nop())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) create(t *testing.T) *AssessmentInstance {
	t.Helper()
	a, err := f.svc.Create(context.Background(), CreateParams{
		PatientID: f.patientID, ScaleID: f.scaleID, ClinicianID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return a
}

func (f *fixture) start(t *testing.T) *AssessmentInstance {
	t.Helper()
	a := f.create(t)
	a, err := f.svc.Start(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	return a
}

// ---- tests ----

func TestTransitionTable(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusScheduled, StatusCreated},
		{StatusScheduled, StatusCancelled},
		{StatusCreated, StatusInProgress},
		{StatusCreated, StatusCancelled},
		{StatusInProgress, StatusCompleted},
		{StatusInProgress, StatusCancelled},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusScheduled, StatusInProgress},
		{StatusScheduled, StatusCompleted},
		{StatusCreated, StatusCompleted},
		{StatusCompleted, StatusInProgress},
		{StatusCompleted, StatusCancelled},
		{StatusCancelled, StatusCreated},
		{StatusCancelled, StatusCompleted},
		{StatusInProgress, StatusCreated},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("%s -> %s should be denied", tc.from, tc.to)
		}
	}
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Error("completed and cancelled must be terminal")
	}
	if StatusInProgress.Terminal() {
		t.Error("in_progress is not terminal")
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateParams{ScaleID: f.scaleID, ClinicianID: uuid.New()})
	var verr *apperr.ValidationError
	if !errors.As(err, &verr) {
		t.Errorf("missing patient_id: expected ValidationError, got %v", err)
	}

	_, err = f.svc.Create(ctx, CreateParams{PatientID: uuid.New(), ScaleID: f.scaleID, ClinicianID: uuid.New()})
	if !apperr.IsNotFound(err) {
		t.Errorf("unknown patient: expected NotFoundError, got %v", err)
	}

	_, err = f.svc.Create(ctx, CreateParams{PatientID: f.patientID, ScaleID: uuid.New(), ClinicianID: uuid.New()})
	if !apperr.IsNotFound(err) {
		t.Errorf("unknown scale: expected NotFoundError, got %v", err)
	}

	a := f.create(t)
	if a.Status != StatusCreated || !a.IsValid || a.TotalItems != 3 || a.Version != 1 {
		t.Errorf("unexpected instance %+v", a)
	}
}

func TestStartArmsExpiry(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	if a.Status != StatusInProgress {
		t.Fatalf("expected in_progress, got %s", a.Status)
	}
	if a.StartedAt == nil || !a.StartedAt.Equal(f.now) {
		t.Error("expected started_at set")
	}
	if a.ExpiresAt == nil || !a.ExpiresAt.Equal(f.now.Add(72*time.Hour)) {
		t.Error("expected expires_at 72h after start")
	}

	// A second start violates the lifecycle.
	_, err := f.svc.Start(context.Background(), a.ID)
	var serr *apperr.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError, got %v", err)
	}
	if serr.Current != string(StatusInProgress) {
		t.Errorf("unexpected state in error: %s", serr.Current)
	}
}

func TestRecordResponseRequiresInProgress(t *testing.T) {
	f := newFixture(t)
	a := f.create(t)
	_, err := f.svc.RecordResponse(context.Background(), a.ID, RecordParams{Item: 1, Value: 2})
	var serr *apperr.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestRecordResponseValidation(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()
	var verr *apperr.ValidationError

	_, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 9, Value: 1})
	if !errors.As(err, &verr) {
		t.Errorf("unknown item: expected ValidationError, got %v", err)
	}
	_, err = f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 7})
	if !errors.As(err, &verr) {
		t.Errorf("value over max: expected ValidationError, got %v", err)
	}
}

func TestSupersedingKeepsHistory(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 1}); err != nil {
		t.Fatalf("first answer: %v", err)
	}
	if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 3}); err != nil {
		t.Fatalf("correction: %v", err)
	}

	latest, err := f.svc.Responses(ctx, a.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(latest) != 1 || latest[0].Value != 3 {
		t.Fatalf("expected single live answer 3, got %+v", latest)
	}

	history, err := f.svc.ResponseHistory(ctx, a.ID, 1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected both records preserved, got %d", len(history))
	}
	if !history[0].Superseded || history[1].Superseded {
		t.Error("expected first record superseded, second live")
	}
}

func TestRapidResponsesAreFlagged(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	fast := 120
	if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 1, ResponseTimeMS: &fast}); err != nil {
		t.Fatalf("fast answer: %v", err)
	}
	slow := 4200
	if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 2, Value: 1, ResponseTimeMS: &slow}); err != nil {
		t.Fatalf("slow answer: %v", err)
	}

	latest, err := f.svc.Responses(ctx, a.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	for _, rec := range latest {
		flagged := len(rec.QualityFlags) == 1 && rec.QualityFlags[0] == "rapid_response"
		if rec.Item == 1 && !flagged {
			t.Errorf("item 1: expected rapid_response flag, got %v", rec.QualityFlags)
		}
		if rec.Item == 2 && len(rec.QualityFlags) != 0 {
			t.Errorf("item 2: expected no flags, got %v", rec.QualityFlags)
		}
	}
}

func TestCurrentItemIsMonotonic(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 2, Value: 1}); err != nil {
		t.Fatalf("answer item 2: %v", err)
	}
	got, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 1})
	if err != nil {
		t.Fatalf("answer item 1: %v", err)
	}
	if got.CurrentItem != 2 {
		t.Errorf("answering an earlier item must not rewind progress, got %d", got.CurrentItem)
	}
}

func TestCompletionScoresAtomically(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	for item, value := range map[int]float64{1: 2, 2: 3} {
		if _, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: item, Value: value}); err != nil {
			t.Fatalf("answer %d: %v", item, err)
		}
	}
	got, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 3, Value: 1})
	if err != nil {
		t.Fatalf("final answer: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("expected completed_at")
	}

	results, err := f.svc.Results(ctx, a.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.RawScore == nil || *r.RawScore != 6 {
		t.Errorf("expected raw 6, got %v", r.RawScore)
	}
	if r.Classification != "high" {
		t.Errorf("expected high, got %q", r.Classification)
	}
	if r.Interpretation == "" {
		t.Error("expected interpretation")
	}
}

func TestResultsRequireCompletion(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	_, err := f.svc.Results(context.Background(), a.ID)
	var serr *apperr.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("expected StateError, got %v", err)
	}
}

func TestExpiredAssessmentIsForceCancelled(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	f.now = f.now.Add(73 * time.Hour)
	_, err := f.svc.RecordResponse(ctx, a.ID, RecordParams{Item: 1, Value: 1})
	var xerr *apperr.ExpiredError
	if !errors.As(err, &xerr) {
		t.Fatalf("expected ExpiredError, got %v", err)
	}

	got, err := f.svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("expected cancelled, got %s", got.Status)
	}
	if got.CancelReason == nil || *got.CancelReason != CancelReasonExpired {
		t.Errorf("expected cancel reason %q, got %v", CancelReasonExpired, got.CancelReason)
	}
}

func TestSweepExpired(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	b := f.create(t)

	f.now = f.now.Add(80 * time.Hour)
	count, err := f.svc.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 expired instance, got %d", count)
	}
	got, _ := f.svc.Get(context.Background(), a.ID)
	if got.Status != StatusCancelled {
		t.Errorf("started instance should be cancelled, got %s", got.Status)
	}
	// The never-started instance has no expiry armed.
	got, _ = f.svc.Get(context.Background(), b.ID)
	if got.Status != StatusCreated {
		t.Errorf("created instance should be untouched, got %s", got.Status)
	}
}

func TestCancel(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	if _, err := f.svc.Cancel(ctx, a.ID, ""); err == nil {
		t.Error("expected missing reason to be rejected")
	}

	got, err := f.svc.Cancel(ctx, a.ID, "patient declined")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got.Status != StatusCancelled || got.CancelReason == nil || *got.CancelReason != "patient declined" {
		t.Errorf("unexpected instance %+v", got)
	}

	_, err = f.svc.Cancel(ctx, a.ID, "again")
	var serr *apperr.StateError
	if !errors.As(err, &serr) {
		t.Fatalf("cancelling a terminal instance: expected StateError, got %v", err)
	}
}

func TestValidityIsOrthogonalToStatus(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)
	ctx := context.Background()

	got, err := f.svc.Invalidate(ctx, a.ID, "respondent distracted")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if got.IsValid {
		t.Error("expected is_valid false")
	}
	if got.Status != StatusInProgress {
		t.Errorf("invalidation must not change status, got %s", got.Status)
	}

	got, err = f.svc.Revalidate(ctx, a.ID)
	if err != nil {
		t.Fatalf("revalidate: %v", err)
	}
	if !got.IsValid || got.ValidityNotes != nil {
		t.Errorf("expected validity restored, got %+v", got)
	}
}

func TestStaleWriteIsRejected(t *testing.T) {
	f := newFixture(t)
	a := f.start(t)

	stale := *a
	stale.Version = a.Version - 1
	err := f.instances.Update(context.Background(), &stale, stale.Version)
	if !apperr.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}
