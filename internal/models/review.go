package models

import (
	"encoding/json"
	"time"
)

// Review is a validated, immutable submission against a form.
type Review struct {
	ID     string `db:"id" json:"id"`
	FormID string `db:"form_id" json:"form_id"`
	// Token is the opaque public identifier handed back to the
	// submitter so they can look up their own submission without
	// authentication.
	Token       string         `db:"token" json:"token"`
	StudentID   *string        `db:"student_id" json:"student_id,omitempty"`
	SessionID   *string        `db:"session_id" json:"session_id,omitempty"`
	SubmittedAt time.Time      `db:"submitted_at" json:"submitted_at"`
	Answers     []ReviewAnswer `db:"-" json:"answers"`
}

// ReviewAnswer holds the raw JSON value submitted for one field. The
// value was already validated against the field type on the way in.
type ReviewAnswer struct {
	ID       string          `db:"id" json:"-"`
	ReviewID string          `db:"review_id" json:"-"`
	FieldID  string          `db:"field_id" json:"field_id"`
	Value    json.RawMessage `db:"value" json:"value"`
}

// ReviewFilter captures supported filters for listing reviews.
type ReviewFilter struct {
	FormID   string
	Page     int
	PageSize int
}
