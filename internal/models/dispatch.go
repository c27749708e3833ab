package models

import "time"

// MomentReport aggregates sweep counts for one moment.
type MomentReport struct {
	Considered       int `json:"considered"`
	Dispatched       int `json:"dispatched"`
	RecipientsSent   int `json:"recipients_sent"`
	RecipientsFailed int `json:"recipients_failed"`
	// Skipped counts subjects left pending because the form was
	// missing or no recipients were enrolled.
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SweepReport summarises one full dispatcher pass over both moments.
type SweepReport struct {
	During     MomentReport `json:"during"`
	After      MomentReport `json:"after"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// Moment returns the report bucket for the given moment.
func (r *SweepReport) Moment(moment Moment) *MomentReport {
	if moment == MomentDuring {
		return &r.During
	}
	return &r.After
}

// DispatchReceipt is the result of a manual invitation trigger.
type DispatchReceipt struct {
	SubjectName string `json:"subject_name"`
	Moment      Moment `json:"moment"`
	Sent        int    `json:"sent"`
	Failed      int    `json:"failed"`
}
