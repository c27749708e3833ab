package mailer

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
)

// SendgridSender delivers invitations through the SendGrid v3 API.
type SendgridSender struct {
	client *sendgrid.Client
	from   *sgmail.Email
	logger *zap.Logger
}

var _ BulkSender = (*SendgridSender)(nil)

// NewSendgridSender builds a SendGrid-backed sender.
func NewSendgridSender(apiKey, fromName, fromEmail string, logger *zap.Logger) (*SendgridSender, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendgridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   sgmail.NewEmail(fromName, fromEmail),
		logger: logger,
	}, nil
}

// SendBulk sends one message per recipient so that each outcome is
// tracked individually. When every attempt fails the batch is reported
// as a total failure.
func (s *SendgridSender) SendBulk(ctx context.Context, recipients []Recipient, invite InviteContext) ([]SendResult, error) {
	results := make([]SendResult, 0, len(recipients))
	failures := 0

	for _, rcpt := range recipients {
		msg := s.buildMessage(rcpt, invite)
		resp, err := s.client.SendWithContext(ctx, msg)

		result := SendResult{Recipient: rcpt, Success: true}
		switch {
		case err != nil:
			result.Success = false
			result.Error = err.Error()
		case resp.StatusCode >= 400:
			result.Success = false
			result.Error = fmt.Sprintf("sendgrid responded %d", resp.StatusCode)
		}
		if !result.Success {
			failures++
			s.logger.Warn("invitation delivery failed",
				zap.String("email", rcpt.Email),
				zap.String("error", result.Error),
			)
		}
		results = append(results, result)
	}

	if len(recipients) > 0 && failures == len(recipients) {
		return nil, fmt.Errorf("bulk send failed for all %d recipients", len(recipients))
	}
	return results, nil
}

func (s *SendgridSender) buildMessage(rcpt Recipient, invite InviteContext) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.AddTos(sgmail.NewEmail(rcpt.FirstName, rcpt.Email))
	p.Subject = fmt.Sprintf("Your feedback on %s", invite.SubjectName)

	text := fmt.Sprintf(
		"Hi %s,\n\nWe would love to hear how %s is going. Please take a minute to fill in \"%s\":\n\n%s\n\nThank you!",
		rcpt.FirstName, invite.SubjectName, invite.FormTitle, invite.FormURL,
	)
	html := fmt.Sprintf(
		`<p>Hi %s,</p><p>We would love to hear how <strong>%s</strong> is going. Please take a minute to fill in <a href="%s">%s</a>.</p><p>Thank you!</p>`,
		rcpt.FirstName, invite.SubjectName, invite.FormURL, invite.FormTitle,
	)

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", text),
		sgmail.NewContent("text/html", html),
	)
	return m
}
