package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/notification"
)

// ScheduleStatus is the state of a scheduled assessment.
type ScheduleStatus string

const (
	SchedulePending   ScheduleStatus = "pending"
	ScheduleExecuted  ScheduleStatus = "executed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

// ScheduledAssessment is a future administration of a scale. Executing it
// opens a real assessment instance; its reminders are materialized rows, not
// computed on the fly, so each one has its own delivery state.
type ScheduledAssessment struct {
	ID          uuid.UUID      `db:"id" json:"id"`
	PatientID   uuid.UUID      `db:"patient_id" json:"patient_id"`
	ScaleID     uuid.UUID      `db:"scale_id" json:"scale_id"`
	ClinicianID uuid.UUID      `db:"clinician_id" json:"clinician_id"`
	DueAt       time.Time      `db:"due_at" json:"due_at"`
	Status      ScheduleStatus `db:"status" json:"status"`
	Priority    string         `db:"priority" json:"priority"`
	// AssessmentID links to the instance created on execution.
	AssessmentID *uuid.UUID             `db:"assessment_id" json:"assessment_id,omitempty"`
	Channels     []notification.Channel `db:"channels" json:"channels"`
	// LeadTimesDays lists how many days before the due date each reminder
	// wave goes out.
	LeadTimesDays []int      `db:"lead_times_days" json:"lead_times_days"`
	CancelReason  *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	ExecutedAt    *time.Time `db:"executed_at" json:"executed_at,omitempty"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// ReminderStatus is the delivery state of one materialized reminder.
type ReminderStatus string

const (
	ReminderPending   ReminderStatus = "pending"
	ReminderSent      ReminderStatus = "sent"
	ReminderFailed    ReminderStatus = "failed"
	ReminderCancelled ReminderStatus = "cancelled"
)

// Reminder is a single scheduled notification for one channel and one send
// time. Cancelling a schedule cascades to its un-sent reminders; already
// sent ones keep their record.
type Reminder struct {
	ID         uuid.UUID            `db:"id" json:"id"`
	ScheduleID uuid.UUID            `db:"schedule_id" json:"schedule_id"`
	Channel    notification.Channel `db:"channel" json:"channel"`
	SendAt     time.Time            `db:"send_at" json:"send_at"`
	Status     ReminderStatus       `db:"status" json:"status"`
	SentAt     *time.Time           `db:"sent_at" json:"sent_at,omitempty"`
	Error      *string              `db:"error" json:"error,omitempty"`
	CreatedAt  time.Time            `db:"created_at" json:"created_at"`
}
