package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
)

type subjectRepository interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
	List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error)
	Create(ctx context.Context, subject *models.Subject) error
	Update(ctx context.Context, subject *models.Subject) error
}

// CreateSubjectRequest describes the create payload.
type CreateSubjectRequest struct {
	Code            string     `json:"code" validate:"required"`
	Name            string     `json:"name" validate:"required"`
	FirstLessonDate *time.Time `json:"first_lesson_date"`
	LastLessonDate  *time.Time `json:"last_lesson_date"`
	DuringFormID    *string    `json:"during_form_id"`
	AfterFormID     *string    `json:"after_form_id"`
}

// UpdateSubjectRequest describes the update payload. The sent-at
// stamps are deliberately absent: they belong to the dispatcher.
type UpdateSubjectRequest struct {
	Code            string     `json:"code" validate:"required"`
	Name            string     `json:"name" validate:"required"`
	FirstLessonDate *time.Time `json:"first_lesson_date"`
	LastLessonDate  *time.Time `json:"last_lesson_date"`
	DuringFormID    *string    `json:"during_form_id"`
	AfterFormID     *string    `json:"after_form_id"`
}

// SubjectService manages course subjects and their form attachments.
type SubjectService struct {
	repo      subjectRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubjectService constructs the service.
func NewSubjectService(repo subjectRepository, validate *validator.Validate, logger *zap.Logger) *SubjectService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectService{repo: repo, validator: validate, logger: logger}
}

// Create registers a new subject.
func (s *SubjectService) Create(ctx context.Context, req CreateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := validateLessonDates(req.FirstLessonDate, req.LastLessonDate); err != nil {
		return nil, err
	}

	subject := &models.Subject{
		Code:            req.Code,
		Name:            req.Name,
		FirstLessonDate: req.FirstLessonDate,
		LastLessonDate:  req.LastLessonDate,
		DuringFormID:    req.DuringFormID,
		AfterFormID:     req.AfterFormID,
	}
	if err := s.repo.Create(ctx, subject); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create subject")
	}
	return subject, nil
}

// Update replaces the editable subject fields. Clearing a form
// reference does not clear its sent-at stamp; a wave that went out
// stays recorded.
func (s *SubjectService) Update(ctx context.Context, id string, req UpdateSubjectRequest) (*models.Subject, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid subject payload")
	}
	if err := validateLessonDates(req.FirstLessonDate, req.LastLessonDate); err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}

	existing.Code = req.Code
	existing.Name = req.Name
	existing.FirstLessonDate = req.FirstLessonDate
	existing.LastLessonDate = req.LastLessonDate
	existing.DuringFormID = req.DuringFormID
	existing.AfterFormID = req.AfterFormID

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update subject")
	}
	return existing, nil
}

// Get returns a subject by ID.
func (s *SubjectService) Get(ctx context.Context, id string) (*models.Subject, error) {
	subject, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrSubjectNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	return subject, nil
}

// List returns subjects with pagination metadata.
func (s *SubjectService) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, *models.Pagination, error) {
	subjects, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return subjects, pagination, nil
}

func validateLessonDates(first, last *time.Time) error {
	if first != nil && last != nil && last.Before(*first) {
		return appErrors.Clone(appErrors.ErrValidation, "last lesson date precedes first lesson date")
	}
	return nil
}
