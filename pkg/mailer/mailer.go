package mailer

import "context"

// Recipient identifies one invitation target.
type Recipient struct {
	Email     string `db:"email" json:"email"`
	FirstName string `db:"first_name" json:"first_name"`
}

// InviteContext carries the template values rendered into an
// invitation message.
type InviteContext struct {
	SubjectName string
	FormTitle   string
	FormURL     string
}

// SendResult reports the outcome of one recipient in a bulk send.
type SendResult struct {
	Recipient Recipient
	Success   bool
	Error     string
}

// BulkSender delivers an invitation to a batch of recipients.
//
// Implementations record individual delivery failures in the returned
// results and keep going; the error return is reserved for total
// failure (bad credentials, network down), in which case no result may
// be trusted and the caller must treat the wave as not sent.
type BulkSender interface {
	SendBulk(ctx context.Context, recipients []Recipient, invite InviteContext) ([]SendResult, error)
}
