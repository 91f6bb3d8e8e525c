package consultations

import (
	"time"

	"github.com/google/uuid"
)

// DraftStatus is the lifecycle state of a consultation note. Finalized is
// terminal.
type DraftStatus string

const (
	StatusDraft     DraftStatus = "draft"
	StatusFinalized DraftStatus = "finalized"
)

// NoteType selects the documentation template and its completion rules.
type NoteType string

const (
	NoteInitialEvaluation NoteType = "initial_evaluation"
	NoteProgressNote      NoteType = "progress_note"
	NoteDischargeSummary  NoteType = "discharge_summary"
)

// requiredFields lists the structured fields a note of each type must carry
// before it can be finalized.
var requiredFields = map[NoteType][]string{
	NoteInitialEvaluation: {"chief_complaint", "history_present_illness", "mental_status_exam", "diagnosis", "plan"},
	NoteProgressNote:      {"subjective", "objective", "assessment", "plan"},
	NoteDischargeSummary:  {"admission_reason", "course_of_treatment", "discharge_diagnosis", "followup_plan"},
}

// RequiredFields returns the completion rules for a note type, or nil when
// the type is unknown.
func RequiredFields(nt NoteType) []string {
	return requiredFields[nt]
}

// ValidNoteType reports whether the note type is known.
func ValidNoteType(nt NoteType) bool {
	_, ok := requiredFields[nt]
	return ok
}

// ConsultationDraft is an in-progress clinical note. Fields holds the
// structured content keyed by field name; saves merge at field level, so two
// writers touching different fields both land. Version backs optimistic
// concurrency.
type ConsultationDraft struct {
	ID          uuid.UUID         `db:"id" json:"id"`
	PatientID   uuid.UUID         `db:"patient_id" json:"patient_id"`
	ClinicianID uuid.UUID         `db:"clinician_id" json:"clinician_id"`
	NoteType    NoteType          `db:"note_type" json:"note_type"`
	Status      DraftStatus       `db:"status" json:"status"`
	Fields      map[string]string `db:"fields" json:"fields"`
	Version     int               `db:"version" json:"version"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`
	LastSavedAt *time.Time        `db:"last_saved_at" json:"last_saved_at,omitempty"`
	FinalizedAt *time.Time        `db:"finalized_at" json:"finalized_at,omitempty"`
}

// MissingRequired returns the required fields that are still empty.
func (d *ConsultationDraft) MissingRequired() []string {
	var missing []string
	for _, field := range RequiredFields(d.NoteType) {
		if d.Fields[field] == "" {
			missing = append(missing, field)
		}
	}
	return missing
}
