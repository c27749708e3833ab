package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
	"github.com/reviewloop/reviewloop-api/pkg/mailer"
)

type dispatchSubjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	ListPendingDispatch(ctx context.Context, moment models.Moment) ([]models.Subject, error)
	ListRecipients(ctx context.Context, subjectID string) ([]mailer.Recipient, error)
	MarkFormSent(ctx context.Context, subjectID string, moment models.Moment, at time.Time) (bool, error)
}

type dispatchFormRepository interface {
	FindByID(ctx context.Context, id string) (*models.ReviewForm, error)
}

// DispatchService decides when subjects are invited for feedback and
// performs the invitation waves. One wave per subject/moment pair,
// ever: the per-moment sent-at stamp on the subject is the idempotency
// guard, written compare-and-set so a sweep and a manual trigger
// cannot both record the same wave.
type DispatchService struct {
	subjects dispatchSubjectRepository
	forms    dispatchFormRepository
	sender   mailer.BulkSender
	metrics  *MetricsService
	logger   *zap.Logger

	// frontendBaseURL is the public origin form links point at.
	frontendBaseURL string

	// sweepMu serialises sweeps within this process; an overlapping
	// trigger is rejected rather than queued.
	sweepMu sync.Mutex

	// now is injectable for tests.
	now func() time.Time
}

// NewDispatchService constructs the service.
func NewDispatchService(subjects dispatchSubjectRepository, forms dispatchFormRepository, sender mailer.BulkSender, metrics *MetricsService, frontendBaseURL string, logger *zap.Logger) *DispatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DispatchService{
		subjects:        subjects,
		forms:           forms,
		sender:          sender,
		metrics:         metrics,
		logger:          logger,
		frontendBaseURL: frontendBaseURL,
		now:             time.Now,
	}
}

// EligibleDate computes the calendar date on which a subject/moment
// pair becomes eligible for invitation. DURING fires at the midpoint
// of the lesson date range, AFTER on the last lesson date. Missing
// dates mean the pair is not eligible until they are set.
func EligibleDate(subject *models.Subject, moment models.Moment) (time.Time, bool) {
	switch moment {
	case models.MomentDuring:
		if subject.FirstLessonDate == nil || subject.LastLessonDate == nil {
			return time.Time{}, false
		}
		first := *subject.FirstLessonDate
		last := *subject.LastLessonDate
		mid := first.Add(last.Sub(first) / 2)
		return dateOnly(mid), true
	case models.MomentAfter:
		if subject.LastLessonDate == nil {
			return time.Time{}, false
		}
		return dateOnly(*subject.LastLessonDate), true
	}
	return time.Time{}, false
}

// TriggerableOn reports whether an eligible date fires on the given
// day. The comparison is same-year, same-month, day-or-later: an
// eligible date at a month end that is first seen in the following
// month never fires. Kept as-is until the intended behaviour across
// month boundaries is settled.
func TriggerableOn(today, eligible time.Time) bool {
	return today.Year() == eligible.Year() &&
		today.Month() == eligible.Month() &&
		today.Day() >= eligible.Day()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// RunDailySweep processes every pending subject/moment pair that is
// triggerable today. A failure on one subject never aborts the rest of
// the sweep; only a failing candidate query does.
func (s *DispatchService) RunDailySweep(ctx context.Context) (*models.SweepReport, error) {
	if !s.sweepMu.TryLock() {
		return nil, appErrors.Clone(appErrors.ErrSweepInProgress, "")
	}
	defer s.sweepMu.Unlock()

	report := &models.SweepReport{StartedAt: s.now().UTC()}
	today := dateOnly(report.StartedAt)

	for _, moment := range []models.Moment{models.MomentDuring, models.MomentAfter} {
		bucket := report.Moment(moment)

		subjects, err := s.subjects.ListPendingDispatch(ctx, moment)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status,
				fmt.Sprintf("failed to query %s candidates", moment))
		}

		for i := range subjects {
			subject := &subjects[i]
			bucket.Considered++

			eligible, ok := EligibleDate(subject, moment)
			if !ok || !TriggerableOn(today, eligible) {
				continue
			}

			sent, failed, skipped, err := s.dispatchCandidate(ctx, subject, moment)
			switch {
			case err != nil:
				bucket.Errors++
				s.logger.Error("dispatch failed, subject stays pending",
					zap.String("subject_id", subject.ID),
					zap.String("moment", string(moment)),
					zap.Error(err),
				)
			case skipped:
				bucket.Skipped++
			default:
				bucket.Dispatched++
				bucket.RecipientsSent += sent
				bucket.RecipientsFailed += failed
			}
		}
	}

	report.FinishedAt = s.now().UTC()
	s.metrics.ObserveSweep(report.FinishedAt.Sub(report.StartedAt))
	s.logger.Info("invitation sweep completed",
		zap.Int("during_dispatched", report.During.Dispatched),
		zap.Int("after_dispatched", report.After.Dispatched),
		zap.Int("during_skipped", report.During.Skipped),
		zap.Int("after_skipped", report.After.Skipped),
		zap.Int("errors", report.During.Errors+report.After.Errors),
	)
	return report, nil
}

// DispatchNow sends the wave for one subject/moment immediately,
// bypassing the eligibility date. The sent-at stamp is still written,
// so the daily sweep will not repeat the wave.
func (s *DispatchService) DispatchNow(ctx context.Context, subjectID string, moment models.Moment) (*models.DispatchReceipt, error) {
	if !moment.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown moment %q", moment))
	}

	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	formID := subject.FormIDFor(moment)
	if formID == nil {
		return nil, appErrors.Clone(appErrors.ErrFormNotFound, fmt.Sprintf("subject has no %s form", moment))
	}
	form, err := s.forms.FindByID(ctx, *formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrFormNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	recipients, err := s.subjects.ListRecipients(ctx, subject.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipients")
	}
	if len(recipients) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoRecipients, "")
	}

	sent, failed, err := s.sendWave(ctx, subject, moment, form, recipients)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "bulk send failed")
	}

	return &models.DispatchReceipt{
		SubjectName: subject.Name,
		Moment:      moment,
		Sent:        sent,
		Failed:      failed,
	}, nil
}

// dispatchCandidate applies the sweep semantics for one subject: a
// missing form or an empty roster is logged and skipped WITHOUT
// writing the sent-at stamp, so the pair is retried on the next sweep.
func (s *DispatchService) dispatchCandidate(ctx context.Context, subject *models.Subject, moment models.Moment) (sent, failed int, skipped bool, err error) {
	formID := subject.FormIDFor(moment)
	if formID == nil {
		// Candidates are pre-filtered on the form reference; hitting
		// this means the subject changed between query and dispatch.
		return 0, 0, true, nil
	}

	form, err := s.forms.FindByID(ctx, *formID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("form reference points nowhere, skipping subject",
				zap.String("subject_id", subject.ID), zap.String("form_id", *formID))
			return 0, 0, true, nil
		}
		return 0, 0, false, fmt.Errorf("load form %s: %w", *formID, err)
	}

	recipients, err := s.subjects.ListRecipients(ctx, subject.ID)
	if err != nil {
		return 0, 0, false, fmt.Errorf("load recipients: %w", err)
	}
	if len(recipients) == 0 {
		s.logger.Warn("subject has no enrolled recipients, skipping",
			zap.String("subject_id", subject.ID), zap.String("moment", string(moment)))
		return 0, 0, true, nil
	}

	sent, failed, err = s.sendWave(ctx, subject, moment, form, recipients)
	return sent, failed, false, err
}

// sendWave performs the bulk send and records the wave. Per-recipient
// failures do not block the sent-at write: retrying the wave would
// re-email the recipients that already succeeded. Only a total bulk
// failure leaves the pair pending.
func (s *DispatchService) sendWave(ctx context.Context, subject *models.Subject, moment models.Moment, form *models.ReviewForm, recipients []mailer.Recipient) (int, int, error) {
	if !form.Active {
		s.logger.Warn("dispatching invitations for an inactive form",
			zap.String("form_id", form.ID), zap.String("subject_id", subject.ID))
	}

	invite := mailer.InviteContext{
		SubjectName: subject.Name,
		FormTitle:   form.Title,
		FormURL:     fmt.Sprintf("%s/forms/%s", s.frontendBaseURL, form.ID),
	}

	results, err := s.sender.SendBulk(ctx, recipients, invite)
	if err != nil {
		return 0, 0, fmt.Errorf("bulk send: %w", err)
	}

	sent, failed := 0, 0
	for _, result := range results {
		if result.Success {
			sent++
		} else {
			failed++
		}
	}

	marked, err := s.subjects.MarkFormSent(ctx, subject.ID, moment, s.now().UTC())
	if err != nil {
		// The wave went out but the stamp write failed; surface loudly
		// because the next sweep will attempt the wave again.
		return sent, failed, fmt.Errorf("mark wave sent: %w", err)
	}
	if !marked {
		s.logger.Warn("wave already recorded by a concurrent trigger",
			zap.String("subject_id", subject.ID), zap.String("moment", string(moment)))
	}

	s.metrics.ObserveDispatch(string(moment), sent, failed)
	s.logger.Info("invitation wave dispatched",
		zap.String("subject_id", subject.ID),
		zap.String("moment", string(moment)),
		zap.Int("sent", sent),
		zap.Int("failed", failed),
	)
	return sent, failed, nil
}
