package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a ref does not resolve to a catalog row.
var ErrNotFound = errors.New("question not found")

// Repository provides read access to the question catalog in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a catalog repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanQuestionRow(row pgx.Row) (*Question, error) {
	var (
		q         Question
		rawAnswer string
	)
	err := row.Scan(&q.ID, &q.Prompt, &q.Options, &rawAnswer, &q.Explanation, &q.Category, &q.SubCategory, &q.ImageURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan question: %w", err)
	}
	idx, err := NormalizeAnswer(rawAnswer, q.Options)
	if err != nil {
		return nil, fmt.Errorf("question %s: %w", q.ID, err)
	}
	q.AnswerIndex = idx
	return &q, nil
}

// GetQuestion fetches one atomic question by id.
func (r *Repository) GetQuestion(ctx context.Context, id uuid.UUID) (*Question, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, prompt, options, answer, COALESCE(explanation, ''), category, COALESCE(sub_category, ''), COALESCE(image_url, '')
		 FROM questions WHERE id = $1`, id)
	return scanQuestionRow(row)
}

// GetComprehensive fetches a comprehensive question with its sub-questions
// in authored order.
func (r *Repository) GetComprehensive(ctx context.Context, id uuid.UUID) (*ComprehensiveQuestion, error) {
	var cq ComprehensiveQuestion
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, category, COALESCE(sub_category, '')
		 FROM comprehensive_questions WHERE id = $1`, id,
	).Scan(&cq.ID, &cq.Title, &cq.Category, &cq.SubCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan comprehensive: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, prompt, options, answer, COALESCE(explanation, ''), category, COALESCE(sub_category, ''), COALESCE(image_url, '')
		 FROM comprehensive_sub_questions
		 WHERE parent_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query sub questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		sub, err := scanQuestionRow(rows)
		if err != nil {
			return nil, err
		}
		sub.ParentID = cq.ID
		cq.SubQuestions = append(cq.SubQuestions, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sub questions: %w", err)
	}
	return &cq, nil
}

// CountByCategory returns how many questions of the given kind exist for a
// category. Used by the selector's pre-commit availability check.
func (r *Repository) CountByCategory(ctx context.Context, category string, kind RefKind) (int, error) {
	table := "questions"
	if kind == RefComprehensive {
		table = "comprehensive_questions"
	}
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+table+` WHERE category = $1`, category,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// PickForCategory returns up to limit candidate ids for a category, least
// recently chosen first with random tiebreaking. Rows never chosen sort
// before all chosen ones.
func (r *Repository) PickForCategory(ctx context.Context, category string, kind RefKind, limit int) ([]uuid.UUID, error) {
	table := "questions"
	if kind == RefComprehensive {
		table = "comprehensive_questions"
	}
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM `+table+`
		 WHERE category = $1
		 ORDER BY last_chosen_at ASC NULLS FIRST, random()
		 LIMIT $2`, category, limit)
	if err != nil {
		return nil, fmt.Errorf("pick %s: %w", table, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkChosen stamps last_chosen_at on the selected rows so subsequent
// selections are biased away from them.
func (r *Repository) MarkChosen(ctx context.Context, kind RefKind, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	table := "questions"
	if kind == RefComprehensive {
		table = "comprehensive_questions"
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE `+table+` SET last_chosen_at = $1 WHERE id = ANY($2)`, at, ids)
	if err != nil {
		return fmt.Errorf("mark chosen: %w", err)
	}
	return nil
}
