package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleSenderReportsAllSuccess(t *testing.T) {
	sender := NewConsoleSender(nil)

	recipients := []Recipient{
		{Email: "a@example.com", FirstName: "Ada"},
		{Email: "b@example.com", FirstName: "Ben"},
	}
	results, err := sender.SendBulk(context.Background(), recipients, InviteContext{
		SubjectName: "Go Fundamentals",
		FormTitle:   "Feedback",
		FormURL:     "https://reviews.example.com/forms/form-1",
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, result := range results {
		assert.True(t, result.Success)
	}
}

func TestSendgridSenderRequiresKey(t *testing.T) {
	_, err := NewSendgridSender("", "ReviewLoop", "noreply@example.com", nil)
	require.Error(t, err)
}
