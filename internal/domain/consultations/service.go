package consultations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/patients"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// Service manages consultation drafts from open to finalize.
type Service struct {
	repo      Repository
	directory patients.Directory
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(repo Repository, directory patients.Directory, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		directory: directory,
		now:       time.Now,
		log:       log.With().Str("component", "consultations").Logger(),
	}
}

// OpenParams are the inputs for opening a draft.
type OpenParams struct {
	PatientID   uuid.UUID `json:"patient_id"`
	ClinicianID uuid.UUID `json:"clinician_id"`
	NoteType    NoteType  `json:"note_type"`
}

// Open creates a new empty draft.
func (s *Service) Open(ctx context.Context, params OpenParams) (*ConsultationDraft, error) {
	var missing []string
	if params.PatientID == uuid.Nil {
		missing = append(missing, "patient_id")
	}
	if params.ClinicianID == uuid.Nil {
		missing = append(missing, "clinician_id")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	if !ValidNoteType(params.NoteType) {
		return nil, apperr.NewValidation("unknown note type %q", params.NoteType)
	}
	ok, err := s.directory.Exists(ctx, params.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewNotFound("patient", params.PatientID.String())
	}

	d := &ConsultationDraft{
		PatientID:   params.PatientID,
		ClinicianID: params.ClinicianID,
		NoteType:    params.NoteType,
		Status:      StatusDraft,
		Fields:      make(map[string]string),
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	s.log.Info().Str("draft_id", d.ID.String()).Str("note_type", string(d.NoteType)).
		Msg("consultation draft opened")
	return d, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ConsultationDraft, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]*ConsultationDraft, int, error) {
	return s.repo.ListByPatient(ctx, patientID, p)
}

// Save merges the given fields into the draft. Only the provided keys
// change; everything else stays, so concurrent writers editing different
// fields both survive. A version conflict is retried once against the fresh
// draft; a second conflict surfaces to the caller.
func (s *Service) Save(ctx context.Context, id uuid.UUID, fields map[string]string) (*ConsultationDraft, error) {
	if len(fields) == 0 {
		return nil, apperr.NewValidation("no fields to save")
	}
	d, err := s.saveOnce(ctx, id, fields)
	if apperr.IsConflict(err) {
		s.log.Debug().Str("draft_id", id.String()).Msg("save conflict, retrying against fresh draft")
		d, err = s.saveOnce(ctx, id, fields)
	}
	return d, err
}

func (s *Service) saveOnce(ctx context.Context, id uuid.UUID, fields map[string]string) (*ConsultationDraft, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusFinalized {
		return nil, &apperr.AlreadyFinalizedError{ID: d.ID.String()}
	}
	if d.Fields == nil {
		d.Fields = make(map[string]string)
	}
	for key, value := range fields {
		d.Fields[key] = value
	}
	now := s.now()
	d.LastSavedAt = &now
	if err := s.repo.Update(ctx, d, d.Version); err != nil {
		return nil, err
	}
	return d, nil
}

// Finalize locks the draft. All required fields for the note type must be
// filled; afterwards every mutation fails with AlreadyFinalizedError.
func (s *Service) Finalize(ctx context.Context, id uuid.UUID) (*ConsultationDraft, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Status == StatusFinalized {
		return nil, &apperr.AlreadyFinalizedError{ID: d.ID.String()}
	}
	if missing := d.MissingRequired(); len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	now := s.now()
	d.Status = StatusFinalized
	d.FinalizedAt = &now
	if err := s.repo.Update(ctx, d, d.Version); err != nil {
		return nil, err
	}
	s.log.Info().Str("draft_id", d.ID.String()).Msg("consultation finalized")
	return d, nil
}
