package models

import (
	"time"

	"github.com/lib/pq"
)

// Moment is the lifecycle point a review form is intended for.
type Moment string

const (
	MomentDuring Moment = "DURING"
	MomentAfter  Moment = "AFTER"
)

// Valid reports whether the moment is one of the known values.
func (m Moment) Valid() bool {
	return m == MomentDuring || m == MomentAfter
}

// FieldType enumerates the supported question kinds. The set is closed:
// the submission validator switches exhaustively over it.
type FieldType string

const (
	FieldTypeRating       FieldType = "RATING"
	FieldTypeSingleChoice FieldType = "SINGLE_CHOICE"
	FieldTypeMultiChoice  FieldType = "MULTI_CHOICE"
	FieldTypeFreeText     FieldType = "FREE_TEXT"
)

// Valid reports whether the field type is one of the known values.
func (t FieldType) Valid() bool {
	switch t {
	case FieldTypeRating, FieldTypeSingleChoice, FieldTypeMultiChoice, FieldTypeFreeText:
		return true
	}
	return false
}

// HasOptions reports whether the field type carries a choice set.
func (t FieldType) HasOptions() bool {
	return t == FieldTypeSingleChoice || t == FieldTypeMultiChoice
}

// FormField is one question on a review form.
type FormField struct {
	ID       string         `db:"id" json:"id"`
	FormID   string         `db:"form_id" json:"-"`
	Label    string         `db:"label" json:"label"`
	Type     FieldType      `db:"type" json:"type"`
	Required bool           `db:"required" json:"required"`
	Options  pq.StringArray `db:"options" json:"options,omitempty"`
	// Position defines display and validation order. Unique within a
	// form but not required to be contiguous.
	Position int `db:"position" json:"position"`
}

// ReviewForm is an ordered collection of fields attached to a subject
// (or global when SubjectID is nil) for one lifecycle moment.
type ReviewForm struct {
	ID        string      `db:"id" json:"id"`
	Title     string      `db:"title" json:"title"`
	Moment    Moment      `db:"moment" json:"moment"`
	SubjectID *string     `db:"subject_id" json:"subject_id,omitempty"`
	Active    bool        `db:"active" json:"active"`
	Fields    []FormField `db:"-" json:"fields"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

// FieldByID returns the field with the given id, if present.
func (f *ReviewForm) FieldByID(id string) (*FormField, bool) {
	for i := range f.Fields {
		if f.Fields[i].ID == id {
			return &f.Fields[i], true
		}
	}
	return nil, false
}

// FormFilter captures supported filters for listing forms.
type FormFilter struct {
	Moment    Moment
	SubjectID string
	Active    *bool
	Search    string
	Page      int
	PageSize  int
}
