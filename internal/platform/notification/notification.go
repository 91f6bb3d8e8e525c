// Package notification delivers assessment reminders over email, SMS, and
// push channels. It provides the channel sender interfaces, a template engine
// with {{key}} substitution, and a manager that records every dispatch and
// supports retrying failures.
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Channel represents the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
)

// Notification represents a single outbound message.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// PushSender is the interface for sending push notifications.
type PushSender interface {
	SendPush(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in reminder
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "assessment-reminder-email",
			Name:    "Assessment Reminder (Email)",
			Subject: "Recordatorio: evaluación {{scale_name}} el {{date}}",
			Body:    "Hola {{patient_name}}, le recordamos que su evaluación {{scale_name}} está programada para el {{date}} a las {{time}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "assessment-reminder-sms",
			Name:    "Assessment Reminder (SMS)",
			Body:    "Recordatorio: su evaluación {{scale_name}} es el {{date}} a las {{time}}. Responda BAJA para cancelar.",
			Channel: ChannelSMS,
		},
		{
			ID:      "assessment-reminder-push",
			Name:    "Assessment Reminder (Push)",
			Body:    "Su evaluación {{scale_name}} comienza a las {{time}} el {{date}}.",
			Channel: ChannelPush,
		},
		{
			ID:      "assessment-expiring-email",
			Name:    "Assessment Expiring (Email)",
			Subject: "Su evaluación {{scale_name}} está por expirar",
			Body:    "Hola {{patient_name}}, su evaluación {{scale_name}} en curso expira el {{expires_at}}. Complétela antes de esa fecha.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// ReminderTemplateID returns the built-in reminder template for a channel.
func ReminderTemplateID(ch Channel) string {
	return "assessment-reminder-" + string(ch)
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Channel returns the delivery channel declared by a template, defaulting to
// email when the template is unknown.
func (e *TemplateEngine) Channel(templateID string) Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Channel
	}
	return ChannelEmail
}

// Manager orchestrates sending, storage, and retrieval of notifications.
type Manager struct {
	emailSender   EmailSender
	smsSender     SMSSender
	pushSender    PushSender
	templates     *TemplateEngine
	mu            sync.RWMutex
	notifications map[string]*Notification
}

// NewManager constructs a Manager. Any sender may be nil; sends on a nil
// channel fail with an explicit error instead of panicking.
func NewManager(email EmailSender, sms SMSSender, push PushSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		emailSender:   email,
		smsSender:     sms,
		pushSender:    push,
		templates:     tpl,
		notifications: make(map[string]*Notification),
	}
}

func (m *Manager) dispatch(ctx context.Context, n *Notification) error {
	switch n.Channel {
	case ChannelEmail:
		if m.emailSender == nil {
			return errors.New("no email sender configured")
		}
		return m.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		if m.smsSender == nil {
			return errors.New("no sms sender configured")
		}
		return m.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	case ChannelPush:
		if m.pushSender == nil {
			return errors.New("no push sender configured")
		}
		return m.pushSender.SendPush(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported notification channel: %s", n.Channel)
	}
}

// Send dispatches a notification through the appropriate channel, assigns an
// ID and timestamps, and records the result.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := m.dispatch(ctx, n)

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:      m.templates.Channel(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// Retry re-sends a failed notification. Returns an error if the notification
// is not in "failed" status.
func (m *Manager) Retry(ctx context.Context, id string) error {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := m.dispatch(ctx, n)

	m.mu.Lock()
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	m.mu.Unlock()

	return sendErr
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}
