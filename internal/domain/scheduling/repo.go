package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

// ListFilter narrows schedule listings.
type ListFilter struct {
	PatientID uuid.UUID
	Status    ScheduleStatus
}

// ScheduleRepository persists scheduled assessments.
type ScheduleRepository interface {
	Create(ctx context.Context, s *ScheduledAssessment) error
	GetByID(ctx context.Context, id uuid.UUID) (*ScheduledAssessment, error)
	Update(ctx context.Context, s *ScheduledAssessment) error
	List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScheduledAssessment, int, error)
}

// ReminderRepository persists materialized reminders.
type ReminderRepository interface {
	CreateBatch(ctx context.Context, reminders []*Reminder) error
	ListBySchedule(ctx context.Context, scheduleID uuid.UUID) ([]*Reminder, error)
	// ListDue returns pending reminders whose send time has passed.
	ListDue(ctx context.Context, now time.Time) ([]*Reminder, error)
	MarkSent(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	// CancelPending cancels every un-sent reminder of a schedule and returns
	// how many were cancelled.
	CancelPending(ctx context.Context, scheduleID uuid.UUID) (int, error)
}
