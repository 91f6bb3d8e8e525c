package assessments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/patients"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scoring"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// TxRunner executes fn atomically. The production wiring uses db.WithTx;
// tests run fn directly.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

func runDirect(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// Service drives the assessment lifecycle: creation, response capture,
// completion with scoring, cancellation and validity management.
type Service struct {
	instances InstanceRepository
	responses ResponseRepository
	scores    ScoreRepository
	registry  *scales.Service
	directory patients.Directory
	tx        TxRunner
	expiry    time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(instances InstanceRepository, responses ResponseRepository, scores ScoreRepository,
	registry *scales.Service, directory patients.Directory, tx TxRunner,
	expiry time.Duration, log zerolog.Logger) *Service {
	if tx == nil {
		tx = runDirect
	}
	return &Service{
		instances: instances,
		responses: responses,
		scores:    scores,
		registry:  registry,
		directory: directory,
		tx:        tx,
		expiry:    expiry,
		now:       time.Now,
		log:       log.With().Str("component", "assessments").Logger(),
	}
}

// CreateParams are the inputs for creating an assessment instance.
type CreateParams struct {
	PatientID   uuid.UUID  `json:"patient_id"`
	ScaleID     uuid.UUID  `json:"scale_id"`
	ClinicianID uuid.UUID  `json:"clinician_id"`
	ScheduleID  *uuid.UUID `json:"schedule_id,omitempty"`
	Mode        string     `json:"mode,omitempty"`
	Reason      *string    `json:"reason,omitempty"`
	Context     *string    `json:"clinical_context,omitempty"`
}

// Create validates the participants and opens a new instance in the created
// state.
func (s *Service) Create(ctx context.Context, params CreateParams) (*AssessmentInstance, error) {
	var missing []string
	if params.PatientID == uuid.Nil {
		missing = append(missing, "patient_id")
	}
	if params.ScaleID == uuid.Nil {
		missing = append(missing, "scale_id")
	}
	if params.ClinicianID == uuid.Nil {
		missing = append(missing, "clinician_id")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}

	ok, err := s.directory.Exists(ctx, params.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewNotFound("patient", params.PatientID.String())
	}

	def, err := s.registry.Get(ctx, params.ScaleID)
	if err != nil {
		return nil, err
	}
	mode := params.Mode
	if mode == "" {
		mode = def.AdministrationMode
	}
	if def.AdministrationMode != "both" && mode != def.AdministrationMode {
		return nil, apperr.NewValidation("scale %s does not support mode %q", def.Abbreviation, mode)
	}

	a := &AssessmentInstance{
		PatientID:       params.PatientID,
		ScaleID:         params.ScaleID,
		ClinicianID:     params.ClinicianID,
		ScheduleID:      params.ScheduleID,
		Status:          StatusCreated,
		Mode:            mode,
		TotalItems:      def.ItemCount(),
		IsValid:         true,
		Reason:          params.Reason,
		ClinicalContext: params.Context,
		CreatedAt:       s.now(),
		UpdatedAt:       s.now(),
	}
	if err := s.instances.Create(ctx, a); err != nil {
		return nil, err
	}
	s.log.Info().Str("assessment_id", a.ID.String()).Str("scale", def.Abbreviation).
		Msg("assessment created")
	return a, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*AssessmentInstance, error) {
	return s.instances.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*AssessmentInstance, int, error) {
	return s.instances.List(ctx, filter, p)
}

// Start moves a created instance to in_progress and arms its expiry clock.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (*AssessmentInstance, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusInProgress) {
		return nil, apperr.NewState("start", string(a.Status))
	}
	now := s.now()
	a.Status = StatusInProgress
	a.StartedAt = &now
	if s.expiry > 0 {
		exp := now.Add(s.expiry)
		a.ExpiresAt = &exp
	}
	if err := s.instances.Update(ctx, a, a.Version); err != nil {
		return nil, err
	}
	return a, nil
}

// RecordParams are the inputs for one item response.
type RecordParams struct {
	Item           int     `json:"item"`
	Value          float64 `json:"value"`
	ResponseTimeMS *int    `json:"response_time_ms,omitempty"`
}

// RecordResponse stores one answer. A repeated item supersedes the prior
// answer rather than overwriting it. Answering the final unanswered item
// completes the assessment and scores it in the same transaction.
func (s *Service) RecordResponse(ctx context.Context, id uuid.UUID, params RecordParams) (*AssessmentInstance, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Expired(s.now()) {
		if err := s.expire(ctx, a); err != nil {
			return nil, err
		}
		return nil, &apperr.ExpiredError{ID: a.ID.String()}
	}
	if a.Status != StatusInProgress {
		return nil, apperr.NewState("record_response", string(a.Status))
	}

	def, err := s.registry.Get(ctx, a.ScaleID)
	if err != nil {
		return nil, err
	}
	item := def.Item(params.Item)
	if item == nil {
		return nil, apperr.NewValidation("scale %s has no item %d", def.Abbreviation, params.Item)
	}
	if params.Value < 0 || params.Value > item.MaxValue {
		return nil, apperr.NewValidation("item %d: value %g outside 0..%g", params.Item, params.Value, item.MaxValue)
	}

	err = s.tx(ctx, func(ctx context.Context) error {
		if err := s.responses.SupersedePrior(ctx, a.ID, params.Item); err != nil {
			return err
		}
		rec := &ResponseRecord{
			AssessmentID:   a.ID,
			Item:           params.Item,
			Value:          params.Value,
			ResponseTimeMS: params.ResponseTimeMS,
			SectionID:      item.SectionID,
			RecordedAt:     s.now(),
		}
		if params.ResponseTimeMS != nil && *params.ResponseTimeMS > 0 && *params.ResponseTimeMS < rapidResponseMS {
			rec.QualityFlags = append(rec.QualityFlags, "rapid_response")
		}
		if err := s.responses.Create(ctx, rec); err != nil {
			return err
		}

		// current_item only moves forward; answering an earlier item again
		// never rewinds progress.
		if params.Item > a.CurrentItem {
			a.CurrentItem = params.Item
		}

		answered, err := s.responses.CountAnswered(ctx, a.ID)
		if err != nil {
			return err
		}
		if answered >= a.TotalItems {
			return s.complete(ctx, a, def)
		}
		return s.instances.Update(ctx, a, a.Version)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// complete finishes the instance and persists its scoring results. Runs
// inside the caller's transaction so the status change and the result set
// land together or not at all.
func (s *Service) complete(ctx context.Context, a *AssessmentInstance, def *scales.ScaleDefinition) error {
	latest, err := s.responses.ListLatest(ctx, a.ID)
	if err != nil {
		return err
	}
	values := make(map[int]float64, len(latest))
	for _, rec := range latest {
		values[rec.Item] = rec.Value
	}

	demo, err := s.directory.GetDemographics(ctx, a.PatientID)
	if err != nil {
		return err
	}

	now := s.now()
	a.Status = StatusCompleted
	a.CompletedAt = &now

	results, err := scoring.Score(def, values, scoring.Demographics{Age: demo.Age, Gender: demo.Gender})
	if err != nil {
		// The instance still completes, but is flagged invalid so no one
		// mistakes it for a scored administration.
		notes := "scoring failed: " + err.Error()
		a.IsValid = false
		a.ValidityNotes = &notes
		s.log.Warn().Str("assessment_id", a.ID.String()).Err(err).Msg("assessment completed without scores")
		return s.instances.Update(ctx, a, a.Version)
	}

	records := make([]*ScoreRecord, 0, len(results))
	for _, res := range results {
		rec := &ScoreRecord{
			AssessmentID:    a.ID,
			Subscale:        res.Subscale,
			RawScore:        res.RawScore,
			ZScore:          res.ZScore,
			TScore:          res.TScore,
			Percentile:      res.Percentile,
			Classification:  res.Classification,
			Interpretation:  res.Interpretation,
			Recommendations: res.Recommendations,
			ScoredAt:        now,
		}
		if res.ConfidenceInterval != nil {
			lower, upper := res.ConfidenceInterval.Lower, res.ConfidenceInterval.Upper
			rec.CILower = &lower
			rec.CIUpper = &upper
		}
		records = append(records, rec)
	}
	if err := s.scores.CreateBatch(ctx, records); err != nil {
		return err
	}
	if err := s.instances.Update(ctx, a, a.Version); err != nil {
		return err
	}
	s.log.Info().Str("assessment_id", a.ID.String()).Int("results", len(records)).
		Msg("assessment completed and scored")
	return nil
}

// Cancel moves a non-terminal instance to cancelled with a reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*AssessmentInstance, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(a.Status, StatusCancelled) {
		return nil, apperr.NewState("cancel", string(a.Status))
	}
	if reason == "" {
		return nil, apperr.MissingFields("reason")
	}
	a.Status = StatusCancelled
	a.CancelReason = &reason
	if err := s.instances.Update(ctx, a, a.Version); err != nil {
		return nil, err
	}
	return a, nil
}

// Invalidate flags the instance as clinically unusable without touching its
// lifecycle state. Validity is orthogonal to status.
func (s *Service) Invalidate(ctx context.Context, id uuid.UUID, notes string) (*AssessmentInstance, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if notes == "" {
		return nil, apperr.MissingFields("notes")
	}
	a.IsValid = false
	a.ValidityNotes = &notes
	if err := s.instances.Update(ctx, a, a.Version); err != nil {
		return nil, err
	}
	return a, nil
}

// Revalidate clears an invalidation.
func (s *Service) Revalidate(ctx context.Context, id uuid.UUID) (*AssessmentInstance, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	a.IsValid = true
	a.ValidityNotes = nil
	if err := s.instances.Update(ctx, a, a.Version); err != nil {
		return nil, err
	}
	return a, nil
}

// Results returns the persisted scoring results of a completed, valid
// instance.
func (s *Service) Results(ctx context.Context, id uuid.UUID) ([]*ScoreRecord, error) {
	a, err := s.instances.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusCompleted {
		return nil, apperr.NewState("results", string(a.Status))
	}
	return s.scores.ListByAssessment(ctx, id)
}

// Responses returns the live answer per item.
func (s *Service) Responses(ctx context.Context, id uuid.UUID) ([]*ResponseRecord, error) {
	if _, err := s.instances.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.responses.ListLatest(ctx, id)
}

// ResponseHistory returns every record for one item, including superseded
// answers.
func (s *Service) ResponseHistory(ctx context.Context, id uuid.UUID, item int) ([]*ResponseRecord, error) {
	if _, err := s.instances.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.responses.ListHistory(ctx, id, item)
}

func (s *Service) expire(ctx context.Context, a *AssessmentInstance) error {
	reason := CancelReasonExpired
	a.Status = StatusCancelled
	a.CancelReason = &reason
	err := s.instances.Update(ctx, a, a.Version)
	if apperr.IsConflict(err) {
		// Someone else moved the instance first; the sweep will settle it.
		return nil
	}
	if err == nil {
		s.log.Info().Str("assessment_id", a.ID.String()).Msg("assessment expired")
	}
	return err
}

// SweepExpired force-cancels every overdue instance. Meant to run on a
// timer from the server process.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	overdue, err := s.instances.ListExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range overdue {
		if err := s.expire(ctx, a); err != nil {
			s.log.Error().Err(err).Str("assessment_id", a.ID.String()).Msg("expiry sweep failed")
			continue
		}
		count++
	}
	return count, nil
}
