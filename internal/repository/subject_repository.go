package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reviewloop/reviewloop-api/internal/models"
	"github.com/reviewloop/reviewloop-api/pkg/mailer"
)

// SubjectRepository handles persistence of subjects and the per-moment
// dispatch bookkeeping.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const subjectColumns = `id, code, name, first_lesson_date, last_lesson_date,
        during_form_id, after_form_id, during_form_sent_at, after_form_sent_at, created_at, updated_at`

// FindByID returns a subject by its ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE id = $1`, subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// List returns subjects matching the filter.
func (r *SubjectRepository) List(ctx context.Context, filter models.SubjectFilter) ([]models.Subject, int, error) {
	base := `FROM subjects s`
	var conditions []string
	var args []interface{}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(s.name ILIKE $%d OR s.code ILIKE $%d)", len(args)+1, len(args)+1))
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

	query := fmt.Sprintf(`SELECT s.id, s.code, s.name, s.first_lesson_date, s.last_lesson_date,
        s.during_form_id, s.after_form_id, s.during_form_sent_at, s.after_form_sent_at, s.created_at, s.updated_at
        %s ORDER BY s.name ASC LIMIT %d OFFSET %d`, base+clause, size, offset)

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list subjects: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count subjects: %w", err)
	}
	return subjects, total, nil
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, code, name, first_lesson_date, last_lesson_date,
        during_form_id, after_form_id, during_form_sent_at, after_form_sent_at, created_at, updated_at)
        VALUES (:id, :code, :name, :first_lesson_date, :last_lesson_date,
        :during_form_id, :after_form_id, :during_form_sent_at, :after_form_sent_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update persists mutable subject attributes. The sent-at stamps are
// deliberately excluded: they are only written through MarkFormSent.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET code = :code, name = :name,
        first_lesson_date = :first_lesson_date, last_lesson_date = :last_lesson_date,
        during_form_id = :during_form_id, after_form_id = :after_form_id, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, subject)
	if err != nil {
		return fmt.Errorf("update subject: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListPendingDispatch returns subjects that are candidates for the
// given moment: form reference set, wave not yet attempted, and the
// required lesson dates present. Final eligibility is re-checked by
// the dispatcher against the invitation window.
func (r *SubjectRepository) ListPendingDispatch(ctx context.Context, moment models.Moment) ([]models.Subject, error) {
	var clause string
	if moment == models.MomentDuring {
		clause = `during_form_id IS NOT NULL AND during_form_sent_at IS NULL
            AND first_lesson_date IS NOT NULL AND last_lesson_date IS NOT NULL`
	} else {
		clause = `after_form_id IS NOT NULL AND after_form_sent_at IS NULL
            AND last_lesson_date IS NOT NULL`
	}
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE %s`, subjectColumns, clause)

	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query); err != nil {
		return nil, fmt.Errorf("list pending dispatch (%s): %w", moment, err)
	}
	return subjects, nil
}

// ListRecipients returns the enrolled students of a subject as a
// read-only dispatch snapshot.
func (r *SubjectRepository) ListRecipients(ctx context.Context, subjectID string) ([]mailer.Recipient, error) {
	const query = `SELECT st.email AS email, st.first_name AS first_name
        FROM enrollments e
        JOIN students st ON st.id = e.student_id
        WHERE e.subject_id = $1 AND e.status = 'ACTIVE'
        ORDER BY st.email ASC`
	var recipients []mailer.Recipient
	if err := r.db.SelectContext(ctx, &recipients, query, subjectID); err != nil {
		return nil, fmt.Errorf("list subject recipients: %w", err)
	}
	return recipients, nil
}

// MarkFormSent records that a wave was attempted for the subject and
// moment. The write is conditional on the stamp still being absent so
// that a sweep and a manual trigger racing on the same pair cannot
// both record the wave; it returns false when the stamp was already
// set by the other caller.
func (r *SubjectRepository) MarkFormSent(ctx context.Context, subjectID string, moment models.Moment, at time.Time) (bool, error) {
	column := "after_form_sent_at"
	if moment == models.MomentDuring {
		column = "during_form_sent_at"
	}
	query := fmt.Sprintf(`UPDATE subjects SET %s = $2, updated_at = $2 WHERE id = $1 AND %s IS NULL`, column, column)

	res, err := r.db.ExecContext(ctx, query, subjectID, at)
	if err != nil {
		return false, fmt.Errorf("mark form sent (%s): %w", moment, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark form sent rows (%s): %w", moment, err)
	}
	return rows > 0, nil
}
