package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/reviewloop/reviewloop-api/internal/models"
)

// ReviewRepository handles persistence of validated submissions.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository constructs the repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create persists a review and its answers in one transaction. The
// record is immutable afterwards; no update path exists.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) error {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.SubmittedAt.IsZero() {
		review.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create review: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const reviewQuery = `INSERT INTO reviews (id, form_id, token, student_id, session_id, submitted_at)
        VALUES (:id, :form_id, :token, :student_id, :session_id, :submitted_at)`
	if _, err := tx.NamedExecContext(ctx, reviewQuery, review); err != nil {
		return fmt.Errorf("create review: %w", err)
	}

	const answerQuery = `INSERT INTO review_answers (id, review_id, field_id, value)
        VALUES ($1, $2, $3, $4)`
	for i := range review.Answers {
		answer := &review.Answers[i]
		if answer.ID == "" {
			answer.ID = uuid.NewString()
		}
		answer.ReviewID = review.ID
		if _, err := tx.ExecContext(ctx, answerQuery, answer.ID, answer.ReviewID, answer.FieldID, []byte(answer.Value)); err != nil {
			return fmt.Errorf("create review answer: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create review: %w", err)
	}
	return nil
}

// FindByToken returns a review with its answers by public token.
func (r *ReviewRepository) FindByToken(ctx context.Context, token string) (*models.Review, error) {
	const reviewQuery = `SELECT id, form_id, token, student_id, session_id, submitted_at
        FROM reviews WHERE token = $1`
	var review models.Review
	if err := r.db.GetContext(ctx, &review, reviewQuery, token); err != nil {
		return nil, err
	}
	if err := r.loadAnswers(ctx, &review); err != nil {
		return nil, err
	}
	return &review, nil
}

// ListByForm returns reviews for a form, newest first, with answers.
func (r *ReviewRepository) ListByForm(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, form_id, token, student_id, session_id, submitted_at
        FROM reviews WHERE form_id = $1 ORDER BY submitted_at DESC LIMIT %d OFFSET %d`, size, offset)

	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, filter.FormID); err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}
	for i := range reviews {
		if err := r.loadAnswers(ctx, &reviews[i]); err != nil {
			return nil, 0, err
		}
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reviews WHERE form_id = $1`, filter.FormID); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}
	return reviews, total, nil
}

// ListAllByForm returns every review for a form, oldest first, with
// answers. Used by exports where pagination makes no sense.
func (r *ReviewRepository) ListAllByForm(ctx context.Context, formID string) ([]models.Review, error) {
	const query = `SELECT id, form_id, token, student_id, session_id, submitted_at
        FROM reviews WHERE form_id = $1 ORDER BY submitted_at ASC`
	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, formID); err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	for i := range reviews {
		if err := r.loadAnswers(ctx, &reviews[i]); err != nil {
			return nil, err
		}
	}
	return reviews, nil
}

// CountByForm returns the number of submissions against a form.
func (r *ReviewRepository) CountByForm(ctx context.Context, formID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM reviews WHERE form_id = $1`, formID); err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return total, nil
}

func (r *ReviewRepository) loadAnswers(ctx context.Context, review *models.Review) error {
	const query = `SELECT a.id, a.review_id, a.field_id, a.value
        FROM review_answers a
        JOIN form_fields f ON f.id = a.field_id
        WHERE a.review_id = $1 ORDER BY f.position ASC`
	if err := r.db.SelectContext(ctx, &review.Answers, query, review.ID); err != nil {
		return fmt.Errorf("load review answers: %w", err)
	}
	return nil
}
