// Package mail delivers account emails carrying one-time tokens. The
// Sender seam keeps handlers independent of the delivery mechanism until
// an SMTP or provider API is wired up.
package mail

import (
	"context"
	"log/slog"
)

// Sender delivers account emails. Implementations must not surface the
// token anywhere a client response could echo it.
type Sender interface {
	// SendVerification delivers an email-verification token.
	SendVerification(ctx context.Context, email, token string) error
	// SendPasswordReset delivers a password-reset token.
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogSender records deliveries instead of sending them. The token itself
// is logged at Debug only, so production logs (Info and up) never carry a
// live secret while development still has a way to complete the flows.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender. A nil logger falls back to slog.Default.
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

func (s *LogSender) SendVerification(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "verification email queued", "email", email)
	s.logger.DebugContext(ctx, "verification token issued", "email", email, "token", token)
	return nil
}

func (s *LogSender) SendPasswordReset(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "password reset email queued", "email", email)
	s.logger.DebugContext(ctx, "password reset token issued", "email", email, "token", token)
	return nil
}
