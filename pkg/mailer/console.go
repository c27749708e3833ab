package mailer

import (
	"context"

	"go.uber.org/zap"
)

// ConsoleSender logs invitations instead of delivering them. Used in
// development and as the fallback when no provider is configured.
type ConsoleSender struct {
	logger *zap.Logger
}

var _ BulkSender = (*ConsoleSender)(nil)

// NewConsoleSender builds a logging sender.
func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleSender{logger: logger}
}

// SendBulk logs each invitation and reports success for all recipients.
func (s *ConsoleSender) SendBulk(ctx context.Context, recipients []Recipient, invite InviteContext) ([]SendResult, error) {
	results := make([]SendResult, 0, len(recipients))
	for _, rcpt := range recipients {
		s.logger.Info("invitation (console)",
			zap.String("email", rcpt.Email),
			zap.String("subject", invite.SubjectName),
			zap.String("form", invite.FormTitle),
			zap.String("url", invite.FormURL),
		)
		results = append(results, SendResult{Recipient: rcpt, Success: true})
	}
	return results, nil
}
