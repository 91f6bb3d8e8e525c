package notification

import (
	"context"

	"github.com/rs/zerolog"
)

// LogEmailSender writes outbound email to the structured log instead of an
// SMTP gateway. It is the default sender until a real provider is configured.
type LogEmailSender struct {
	Log zerolog.Logger
}

func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.Log.Info().
		Str("channel", "email").
		Str("to", to).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("notification dispatched")
	return nil
}

// LogSMSSender writes outbound SMS to the structured log.
type LogSMSSender struct {
	Log zerolog.Logger
}

func (s *LogSMSSender) SendSMS(_ context.Context, to, body string) error {
	s.Log.Info().
		Str("channel", "sms").
		Str("to", to).
		Int("body_len", len(body)).
		Msg("notification dispatched")
	return nil
}

// LogPushSender writes outbound push notifications to the structured log.
type LogPushSender struct {
	Log zerolog.Logger
}

func (s *LogPushSender) SendPush(_ context.Context, to, body string) error {
	s.Log.Info().
		Str("channel", "push").
		Str("to", to).
		Int("body_len", len(body)).
		Msg("notification dispatched")
	return nil
}
