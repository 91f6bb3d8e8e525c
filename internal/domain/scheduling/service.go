package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/assessments"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/patients"
	"github.com/dralejandroc/MINDHUB-sub003/internal/domain/scales"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/apperr"
	"github.com/dralejandroc/MINDHUB-sub003/internal/platform/notification"
	"github.com/dralejandroc/MINDHUB-sub003/pkg/pagination"
)

var validChannels = map[notification.Channel]bool{
	notification.ChannelEmail: true,
	notification.ChannelSMS:   true,
	notification.ChannelPush:  true,
}

var validPriorities = map[string]bool{
	"low":    true,
	"normal": true,
	"high":   true,
	"urgent": true,
}

// Service manages scheduled assessments and their reminder delivery.
type Service struct {
	schedules ScheduleRepository
	reminders ReminderRepository
	lifecycle *assessments.Service
	registry  *scales.Service
	directory patients.Directory
	notifier  *notification.Manager
	now       func() time.Time
	log       zerolog.Logger
}

func NewService(schedules ScheduleRepository, reminders ReminderRepository,
	lifecycle *assessments.Service, registry *scales.Service, directory patients.Directory,
	notifier *notification.Manager, log zerolog.Logger) *Service {
	return &Service{
		schedules: schedules,
		reminders: reminders,
		lifecycle: lifecycle,
		registry:  registry,
		directory: directory,
		notifier:  notifier,
		now:       time.Now,
		log:       log.With().Str("component", "scheduling").Logger(),
	}
}

// ScheduleParams are the inputs for scheduling a future assessment.
type ScheduleParams struct {
	PatientID     uuid.UUID              `json:"patient_id"`
	ScaleID       uuid.UUID              `json:"scale_id"`
	ClinicianID   uuid.UUID              `json:"clinician_id"`
	DueAt         time.Time              `json:"due_at"`
	Priority      string                 `json:"priority,omitempty"`
	Channels      []notification.Channel `json:"channels,omitempty"`
	LeadTimesDays []int                  `json:"lead_times_days,omitempty"`
}

// Schedule creates a pending scheduled assessment and materializes one
// reminder per lead time per channel. Reminder times already in the past
// are skipped rather than fired immediately.
func (s *Service) Schedule(ctx context.Context, params ScheduleParams) (*ScheduledAssessment, error) {
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
	if params.DueAt.IsZero() {
		missing = append(missing, "due_at")
	}
	if len(missing) > 0 {
		return nil, apperr.MissingFields(missing...)
	}
	if !params.DueAt.After(s.now()) {
		return nil, apperr.NewValidation("due_at must be in the future")
	}
	for _, ch := range params.Channels {
		if !validChannels[ch] {
			return nil, apperr.NewValidation("unknown reminder channel %q", ch)
		}
	}
	for _, d := range params.LeadTimesDays {
		if d < 0 {
			return nil, apperr.NewValidation("lead times must be non-negative")
		}
	}
	if params.Priority == "" {
		params.Priority = "normal"
	}
	if !validPriorities[params.Priority] {
		return nil, apperr.NewValidation("unknown priority %q", params.Priority)
	}

	ok, err := s.directory.Exists(ctx, params.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.NewNotFound("patient", params.PatientID.String())
	}
	if _, err := s.registry.Get(ctx, params.ScaleID); err != nil {
		return nil, err
	}

	if len(params.Channels) == 0 {
		params.Channels = []notification.Channel{notification.ChannelEmail}
	}
	if len(params.LeadTimesDays) == 0 {
		params.LeadTimesDays = []int{1}
	}

	sched := &ScheduledAssessment{
		PatientID:     params.PatientID,
		ScaleID:       params.ScaleID,
		ClinicianID:   params.ClinicianID,
		DueAt:         params.DueAt,
		Status:        SchedulePending,
		Priority:      params.Priority,
		Channels:      params.Channels,
		LeadTimesDays: params.LeadTimesDays,
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, err
	}

	var reminders []*Reminder
	for _, days := range params.LeadTimesDays {
		sendAt := params.DueAt.Add(-time.Duration(days) * 24 * time.Hour)
		if !sendAt.After(s.now()) {
			continue
		}
		for _, ch := range params.Channels {
			reminders = append(reminders, &Reminder{
				ScheduleID: sched.ID,
				Channel:    ch,
				SendAt:     sendAt,
				Status:     ReminderPending,
			})
		}
	}
	if len(reminders) > 0 {
		if err := s.reminders.CreateBatch(ctx, reminders); err != nil {
			return nil, err
		}
	}

	s.log.Info().Str("schedule_id", sched.ID.String()).Int("reminders", len(reminders)).
		Time("due_at", sched.DueAt).Msg("assessment scheduled")
	return sched, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ScheduledAssessment, error) {
	return s.schedules.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter, p pagination.Params) ([]*ScheduledAssessment, int, error) {
	return s.schedules.List(ctx, filter, p)
}

func (s *Service) Reminders(ctx context.Context, scheduleID uuid.UUID) ([]*Reminder, error) {
	if _, err := s.schedules.GetByID(ctx, scheduleID); err != nil {
		return nil, err
	}
	return s.reminders.ListBySchedule(ctx, scheduleID)
}

// Execute turns a pending schedule into a live assessment instance. The
// remaining un-sent reminders are cancelled: the patient is already in.
func (s *Service) Execute(ctx context.Context, id uuid.UUID) (*ScheduledAssessment, error) {
	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != SchedulePending {
		return nil, apperr.NewState("execute", string(sched.Status))
	}

	instance, err := s.lifecycle.Create(ctx, assessments.CreateParams{
		PatientID:   sched.PatientID,
		ScaleID:     sched.ScaleID,
		ClinicianID: sched.ClinicianID,
		ScheduleID:  &sched.ID,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	sched.Status = ScheduleExecuted
	sched.AssessmentID = &instance.ID
	sched.ExecutedAt = &now
	if err := s.schedules.Update(ctx, sched); err != nil {
		return nil, err
	}
	if _, err := s.reminders.CancelPending(ctx, sched.ID); err != nil {
		return nil, err
	}
	s.log.Info().Str("schedule_id", sched.ID.String()).
		Str("assessment_id", instance.ID.String()).Msg("schedule executed")
	return sched, nil
}

// Cancel cancels a pending schedule and cascades to its un-sent reminders.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*ScheduledAssessment, error) {
	sched, err := s.schedules.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sched.Status != SchedulePending {
		return nil, apperr.NewState("cancel", string(sched.Status))
	}
	if reason == "" {
		return nil, apperr.MissingFields("reason")
	}
	sched.Status = ScheduleCancelled
	sched.CancelReason = &reason
	if err := s.schedules.Update(ctx, sched); err != nil {
		return nil, err
	}
	cancelled, err := s.reminders.CancelPending(ctx, sched.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("schedule_id", sched.ID.String()).Int("reminders_cancelled", cancelled).
		Msg("schedule cancelled")
	return sched, nil
}

// DispatchDue sends every reminder whose time has come. Failures are
// recorded per reminder and do not stop the batch.
func (s *Service) DispatchDue(ctx context.Context) (int, error) {
	due, err := s.reminders.ListDue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rem := range due {
		if err := s.dispatch(ctx, rem); err != nil {
			s.log.Warn().Err(err).Str("reminder_id", rem.ID.String()).Msg("reminder dispatch failed")
			if ferr := s.reminders.MarkFailed(ctx, rem.ID, err.Error()); ferr != nil {
				return sent, ferr
			}
			continue
		}
		if err := s.reminders.MarkSent(ctx, rem.ID, s.now()); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Service) dispatch(ctx context.Context, rem *Reminder) error {
	sched, err := s.schedules.GetByID(ctx, rem.ScheduleID)
	if err != nil {
		return err
	}
	if sched.Status != SchedulePending {
		return fmt.Errorf("schedule is %s", sched.Status)
	}
	patient, err := s.directory.Contact(ctx, sched.PatientID)
	if err != nil {
		return err
	}
	recipient := ""
	switch rem.Channel {
	case notification.ChannelEmail:
		if patient.Email != nil {
			recipient = *patient.Email
		}
	case notification.ChannelSMS, notification.ChannelPush:
		if patient.Phone != nil {
			recipient = *patient.Phone
		}
	}
	if recipient == "" {
		return fmt.Errorf("patient has no %s contact", rem.Channel)
	}

	def, err := s.registry.Get(ctx, sched.ScaleID)
	if err != nil {
		return err
	}
	data := map[string]string{
		"patient_name": patient.FirstName,
		"scale_name":   def.Abbreviation,
		"date":         sched.DueAt.Format("02/01/2006"),
		"time":         sched.DueAt.Format("15:04"),
	}
	_, err = s.notifier.SendFromTemplate(ctx, notification.ReminderTemplateID(rem.Channel), data, recipient)
	return err
}

// Run dispatches due reminders on a fixed interval until the context is
// cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.log.Info().Dur("interval", interval).Msg("reminder dispatcher started")
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("reminder dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := s.DispatchDue(ctx); err != nil {
				s.log.Error().Err(err).Msg("reminder dispatch cycle failed")
			}
		}
	}
}
