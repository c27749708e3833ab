package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/reviewloop/reviewloop-api/internal/models"
	appErrors "github.com/reviewloop/reviewloop-api/pkg/errors"
)

type formRepository interface {
	Create(ctx context.Context, form *models.ReviewForm) error
	Update(ctx context.Context, form *models.ReviewForm) error
	FindByID(ctx context.Context, id string) (*models.ReviewForm, error)
	List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, int, error)
	SetActive(ctx context.Context, id string, active bool) error
}

type formCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// FieldSchemaRequest describes one question in a create/update payload.
type FieldSchemaRequest struct {
	Label    string   `json:"label" validate:"required"`
	Type     string   `json:"type" validate:"required,fieldtype"`
	Required bool     `json:"required"`
	Options  []string `json:"options"`
	Position int      `json:"position"`
}

// CreateFormRequest describes the create payload.
type CreateFormRequest struct {
	Title     string               `json:"title" validate:"required"`
	Moment    string               `json:"moment" validate:"required,moment"`
	SubjectID *string              `json:"subject_id"`
	Fields    []FieldSchemaRequest `json:"fields" validate:"required,min=1,dive"`
}

// UpdateFormRequest describes the update payload.
type UpdateFormRequest struct {
	Title     string               `json:"title" validate:"required"`
	Moment    string               `json:"moment" validate:"required,moment"`
	SubjectID *string              `json:"subject_id"`
	Active    bool                 `json:"active"`
	Fields    []FieldSchemaRequest `json:"fields" validate:"required,min=1,dive"`
}

// FormService manages review form definitions and the cached public
// read path.
type FormService struct {
	repo      formRepository
	cache     formCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFormService constructs the service.
func NewFormService(repo formRepository, cache formCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *FormService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &FormService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
	RegisterFormValidations(svc.validator)
	return svc
}

// RegisterFormValidations adds the moment and fieldtype tag validations.
func RegisterFormValidations(v *validator.Validate) {
	_ = v.RegisterValidation("moment", func(fl validator.FieldLevel) bool {
		return models.Moment(strings.ToUpper(fl.Field().String())).Valid()
	})
	_ = v.RegisterValidation("fieldtype", func(fl validator.FieldLevel) bool {
		return models.FieldType(strings.ToUpper(fl.Field().String())).Valid()
	})
}

// Create registers a new review form.
func (s *FormService) Create(ctx context.Context, req CreateFormRequest) (*models.ReviewForm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	fields, err := s.buildFields(req.Fields)
	if err != nil {
		return nil, err
	}

	form := &models.ReviewForm{
		Title:     req.Title,
		Moment:    models.Moment(strings.ToUpper(req.Moment)),
		SubjectID: req.SubjectID,
		Active:    true,
		Fields:    fields,
	}
	if err := s.repo.Create(ctx, form); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create form")
	}
	return form, nil
}

// Update replaces a form definition and invalidates the public cache.
func (s *FormService) Update(ctx context.Context, id string, req UpdateFormRequest) (*models.ReviewForm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid form payload")
	}

	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrFormNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}

	fields, err := s.buildFields(req.Fields)
	if err != nil {
		return nil, err
	}

	existing.Title = req.Title
	existing.Moment = models.Moment(strings.ToUpper(req.Moment))
	existing.SubjectID = req.SubjectID
	existing.Active = req.Active
	existing.Fields = fields

	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update form")
	}
	s.invalidate(ctx, id)
	return existing, nil
}

// Get returns a form with fields for the admin surface.
func (s *FormService) Get(ctx context.Context, id string) (*models.ReviewForm, error) {
	form, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrFormNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load form")
	}
	return form, nil
}

// GetPublic returns an active form for public display, served from
// cache when possible. Inactive forms are reported as not found.
func (s *FormService) GetPublic(ctx context.Context, id string) (*models.ReviewForm, error) {
	key := publicFormCacheKey(id)
	if s.cache != nil {
		var cached models.ReviewForm
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	form, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !form.Active {
		return nil, appErrors.Clone(appErrors.ErrFormNotFound, "")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, form, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache public form", zap.String("form_id", id), zap.Error(err))
		}
	}
	return form, nil
}

// List returns forms with pagination metadata.
func (s *FormService) List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, *models.Pagination, error) {
	forms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list forms")
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
	return forms, pagination, nil
}

// Deactivate stops a form from accepting submissions and hides it from
// public display.
func (s *FormService) Deactivate(ctx context.Context, id string) error {
	if err := s.repo.SetActive(ctx, id, false); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrFormNotFound, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate form")
	}
	s.invalidate(ctx, id)
	return nil
}

// buildFields normalises field payloads and enforces the schema rules
// that are hard errors: a known type and unique positions. Choice
// fields without options stay permissive at submission time, so an
// empty set is only logged.
func (s *FormService) buildFields(reqs []FieldSchemaRequest) ([]models.FormField, error) {
	fields := make([]models.FormField, 0, len(reqs))
	positions := make(map[int]struct{}, len(reqs))
	for _, req := range reqs {
		fieldType := models.FieldType(strings.ToUpper(req.Type))
		if _, dup := positions[req.Position]; dup {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate field position %d", req.Position))
		}
		positions[req.Position] = struct{}{}

		if fieldType.HasOptions() && len(req.Options) == 0 {
			s.logger.Warn("choice field created without options; any value will be accepted",
				zap.String("label", req.Label), zap.String("type", string(fieldType)))
		}

		fields = append(fields, models.FormField{
			Label:    req.Label,
			Type:     fieldType,
			Required: req.Required,
			Options:  pq.StringArray(req.Options),
			Position: req.Position,
		})
	}
	return fields, nil
}

func (s *FormService) invalidate(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, publicFormCacheKey(id)); err != nil {
		s.logger.Warn("failed to invalidate form cache", zap.String("form_id", id), zap.Error(err))
	}
}

func publicFormCacheKey(id string) string {
	return "forms:public:" + id
}
