package assessments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an assessment instance.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// transitions is the full lifecycle graph. Completed and cancelled are
// terminal.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusCreated, StatusCancelled},
	StatusCreated:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

// CanTransition reports whether the lifecycle allows moving between the two
// states.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CancelReasonExpired marks assessments force-cancelled by expiry.
const CancelReasonExpired = "expired"

// AssessmentInstance is one administration of a scale to a patient. Version
// supports optimistic concurrency: every persisted update bumps it, and
// stale writers get a ConflictError.
type AssessmentInstance struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	ScaleID     uuid.UUID `db:"scale_id" json:"scale_id"`
	ClinicianID uuid.UUID `db:"clinician_id" json:"clinician_id"`
	// ScheduleID links back to the scheduled assessment that produced this
	// instance, when there is one.
	ScheduleID    *uuid.UUID `db:"schedule_id" json:"schedule_id,omitempty"`
	Status        Status     `db:"status" json:"status"`
	Mode          string     `db:"mode" json:"mode"`
	CurrentItem   int        `db:"current_item" json:"current_item"`
	TotalItems    int        `db:"total_items" json:"total_items"`
	IsValid       bool       `db:"is_valid" json:"is_valid"`
	ValidityNotes *string    `db:"validity_notes" json:"validity_notes,omitempty"`
	CancelReason  *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	// Reason and ClinicalContext are free-text framing supplied by the
	// clinician at creation: why the instrument is being applied and under
	// what circumstances.
	Reason          *string `db:"reason" json:"reason,omitempty"`
	ClinicalContext *string `db:"clinical_context" json:"clinical_context,omitempty"`
	Version       int        `db:"version" json:"version"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	StartedAt     *time.Time `db:"started_at" json:"started_at,omitempty"`
	CompletedAt   *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	ExpiresAt     *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// Duration is the elapsed time between start and completion, or nil while
// either endpoint is missing.
func (a *AssessmentInstance) Duration() *time.Duration {
	if a.StartedAt == nil || a.CompletedAt == nil {
		return nil
	}
	d := a.CompletedAt.Sub(*a.StartedAt)
	return &d
}

// Expired reports whether the instance has an expiry in the past and is
// still in a state the expiry sweep must force-cancel.
func (a *AssessmentInstance) Expired(now time.Time) bool {
	if a.ExpiresAt == nil || a.Status.Terminal() {
		return false
	}
	return now.After(*a.ExpiresAt)
}

// ResponseRecord is one answer to one item. Records are immutable:
// corrections insert a new record and mark the prior one superseded, so the
// full answer history is preserved.
type ResponseRecord struct {
	ID           uuid.UUID `db:"id" json:"id"`
	AssessmentID uuid.UUID `db:"assessment_id" json:"assessment_id"`
	Item         int       `db:"item" json:"item"`
	Value        float64   `db:"value" json:"value"`
	// ResponseTimeMS is how long the respondent took on the item, when the
	// client reports it.
	ResponseTimeMS *int   `db:"response_time_ms" json:"response_time_ms,omitempty"`
	SectionID      string `db:"section_id" json:"section_id,omitempty"`
	// QualityFlags carry data-quality observations made at capture time,
	// such as "rapid_response" for implausibly fast answers.
	QualityFlags []string  `db:"quality_flags" json:"quality_flags,omitempty"`
	Superseded   bool      `db:"superseded" json:"superseded"`
	RecordedAt   time.Time `db:"recorded_at" json:"recorded_at"`
}

// rapidResponseMS is the threshold below which an answer is flagged as
// suspiciously fast to have been read.
const rapidResponseMS = 500

// ScoreRecord is a persisted scoring result for one dimension of a
// completed assessment.
type ScoreRecord struct {
	ID              uuid.UUID `db:"id" json:"id"`
	AssessmentID    uuid.UUID `db:"assessment_id" json:"assessment_id"`
	Subscale        string    `db:"subscale" json:"subscale"`
	RawScore        *float64  `db:"raw_score" json:"raw_score,omitempty"`
	ZScore          *float64  `db:"z_score" json:"z_score,omitempty"`
	TScore          *float64  `db:"t_score" json:"t_score,omitempty"`
	Percentile      *int      `db:"percentile" json:"percentile,omitempty"`
	Classification  string    `db:"classification" json:"classification,omitempty"`
	CILower         *float64  `db:"ci_lower" json:"ci_lower,omitempty"`
	CIUpper         *float64  `db:"ci_upper" json:"ci_upper,omitempty"`
	Interpretation  string    `db:"interpretation" json:"interpretation,omitempty"`
	Recommendations string    `db:"recommendations" json:"recommendations,omitempty"`
	ScoredAt        time.Time `db:"scored_at" json:"scored_at"`
}
