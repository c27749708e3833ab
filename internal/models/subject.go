package models

import "time"

// Subject is a course unit with a lesson date range and up to two
// attached review forms. The dispatcher reads the dates and form
// references and owns the per-moment sent-at stamps; everything else
// is plain CRUD state.
type Subject struct {
	ID              string     `db:"id" json:"id"`
	Code            string     `db:"code" json:"code"`
	Name            string     `db:"name" json:"name"`
	FirstLessonDate *time.Time `db:"first_lesson_date" json:"first_lesson_date,omitempty"`
	LastLessonDate  *time.Time `db:"last_lesson_date" json:"last_lesson_date,omitempty"`
	DuringFormID    *string    `db:"during_form_id" json:"during_form_id,omitempty"`
	AfterFormID     *string    `db:"after_form_id" json:"after_form_id,omitempty"`
	// Presence of a sent-at stamp means the wave for that moment was
	// already attempted. This pair is the sole idempotency guard.
	DuringFormSentAt *time.Time `db:"during_form_sent_at" json:"during_form_sent_at,omitempty"`
	AfterFormSentAt  *time.Time `db:"after_form_sent_at" json:"after_form_sent_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// FormIDFor returns the form reference for the given moment.
func (s *Subject) FormIDFor(moment Moment) *string {
	if moment == MomentDuring {
		return s.DuringFormID
	}
	return s.AfterFormID
}

// SentAtFor returns the sent-at stamp for the given moment.
func (s *Subject) SentAtFor(moment Moment) *time.Time {
	if moment == MomentDuring {
		return s.DuringFormSentAt
	}
	return s.AfterFormSentAt
}

// SubjectFilter captures supported filters for listing subjects.
type SubjectFilter struct {
	Search   string
	Page     int
	PageSize int
}
