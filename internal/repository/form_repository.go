package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/reviewloop/reviewloop-api/internal/models"
)

// FormRepository handles persistence of review forms and their fields.
type FormRepository struct {
	db *sqlx.DB
}

// NewFormRepository constructs the repository.
func NewFormRepository(db *sqlx.DB) *FormRepository {
	return &FormRepository{db: db}
}

// Create persists a form together with its fields in one transaction.
func (r *FormRepository) Create(ctx context.Context, form *models.ReviewForm) error {
	if form.ID == "" {
		form.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	form.CreatedAt = now
	form.UpdatedAt = now

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create form: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const formQuery = `INSERT INTO review_forms (id, title, moment, subject_id, active, created_at, updated_at)
        VALUES (:id, :title, :moment, :subject_id, :active, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, formQuery, form); err != nil {
		return fmt.Errorf("create form: %w", err)
	}

	if err := r.insertFields(ctx, tx, form.ID, form.Fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create form: %w", err)
	}
	return nil
}

// Update replaces the form row and its full field set.
func (r *FormRepository) Update(ctx context.Context, form *models.ReviewForm) error {
	form.UpdatedAt = time.Now().UTC()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin update form: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const formQuery = `UPDATE review_forms SET title = :title, moment = :moment, subject_id = :subject_id,
        active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := tx.NamedExecContext(ctx, formQuery, form)
	if err != nil {
		return fmt.Errorf("update form: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM form_fields WHERE form_id = $1`, form.ID); err != nil {
		return fmt.Errorf("clear form fields: %w", err)
	}
	if err := r.insertFields(ctx, tx, form.ID, form.Fields); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update form: %w", err)
	}
	return nil
}

func (r *FormRepository) insertFields(ctx context.Context, tx *sqlx.Tx, formID string, fields []models.FormField) error {
	const fieldQuery = `INSERT INTO form_fields (id, form_id, label, type, required, options, position)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for i := range fields {
		field := &fields[i]
		if field.ID == "" {
			field.ID = uuid.NewString()
		}
		field.FormID = formID
		if _, err := tx.ExecContext(ctx, fieldQuery,
			field.ID, field.FormID, field.Label, field.Type, field.Required,
			pq.Array([]string(field.Options)), field.Position,
		); err != nil {
			return fmt.Errorf("create form field %s: %w", field.Label, err)
		}
	}
	return nil
}

// FindByID returns a form with its fields ordered by position.
func (r *FormRepository) FindByID(ctx context.Context, id string) (*models.ReviewForm, error) {
	const formQuery = `SELECT id, title, moment, subject_id, active, created_at, updated_at
        FROM review_forms WHERE id = $1`
	var form models.ReviewForm
	if err := r.db.GetContext(ctx, &form, formQuery, id); err != nil {
		return nil, err
	}

	const fieldsQuery = `SELECT id, form_id, label, type, required, options, position
        FROM form_fields WHERE form_id = $1 ORDER BY position ASC`
	if err := r.db.SelectContext(ctx, &form.Fields, fieldsQuery, id); err != nil {
		return nil, fmt.Errorf("load form fields: %w", err)
	}
	return &form, nil
}

// List returns forms matching the filter, without their fields.
func (r *FormRepository) List(ctx context.Context, filter models.FormFilter) ([]models.ReviewForm, int, error) {
	base := `FROM review_forms f`
	var conditions []string
	var args []interface{}

	if filter.Moment != "" {
		conditions = append(conditions, fmt.Sprintf("f.moment = $%d", len(args)+1))
		args = append(args, filter.Moment)
	}
	if filter.SubjectID != "" {
		conditions = append(conditions, fmt.Sprintf("f.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("f.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("f.title ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT f.id, f.title, f.moment, f.subject_id, f.active, f.created_at, f.updated_at
        %s ORDER BY f.created_at DESC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var forms []models.ReviewForm
	if err := r.db.SelectContext(ctx, &forms, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list forms: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count forms: %w", err)
	}
	return forms, total, nil
}

// SetActive flips the active flag.
func (r *FormRepository) SetActive(ctx context.Context, id string, active bool) error {
	const query = `UPDATE review_forms SET active = $2, updated_at = $3 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("set form active: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
