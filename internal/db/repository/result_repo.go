package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdesk/exam-platform/internal/model"
)

// ErrResultNotFound is returned when no evaluated result exists yet.
var ErrResultNotFound = errors.New("result not found")

// ResultRepository archives evaluated results so result pages survive the
// attempt store's TTL. Writes are idempotent per (test, user).
type ResultRepository struct {
	pool *pgxpool.Pool
}

func NewResultRepository(pool *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{pool: pool}
}

// Save upserts one evaluated result. A repeat save of the same attempt is
// a no-op, matching lock idempotence.
func (r *ResultRepository) Save(ctx context.Context, res model.EvaluatedResult) error {
	detail, err := json.Marshal(struct {
		Outcomes   []model.QuestionOutcome        `json:"outcomes"`
		Categories map[string]model.CategoryScore `json:"categories"`
	}{res.Outcomes, res.Categories})
	if err != nil {
		return fmt.Errorf("marshal result detail: %w", err)
	}

	_, err = r.pool.Exec(ctx,
		`INSERT INTO attempt_results (attempt_id, test_id, user_id, total_correct, total_score, tab_switch_count, detail, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (test_id, user_id) DO NOTHING`,
		res.AttemptID, res.TestID, res.UserID, res.TotalCorrect, res.TotalScore, res.TabSwitchCount, detail, res.SubmittedAt)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// Get loads one user's evaluated result for a test.
func (r *ResultRepository) Get(ctx context.Context, testID, userID uuid.UUID) (*model.EvaluatedResult, error) {
	var (
		res    model.EvaluatedResult
		detail []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT attempt_id, test_id, user_id, total_correct, total_score, tab_switch_count, detail, submitted_at
		 FROM attempt_results WHERE test_id = $1 AND user_id = $2`, testID, userID,
	).Scan(&res.AttemptID, &res.TestID, &res.UserID, &res.TotalCorrect, &res.TotalScore, &res.TabSwitchCount, &detail, &res.SubmittedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrResultNotFound
		}
		return nil, fmt.Errorf("scan result: %w", err)
	}

	var parsed struct {
		Outcomes   []model.QuestionOutcome        `json:"outcomes"`
		Categories map[string]model.CategoryScore `json:"categories"`
	}
	if err := json.Unmarshal(detail, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal result detail: %w", err)
	}
	res.Outcomes = parsed.Outcomes
	res.Categories = parsed.Categories
	return &res, nil
}

// ListByTest returns all stored results for a test (two for a challenge).
func (r *ResultRepository) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.EvaluatedResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, test_id, user_id, total_correct, total_score, tab_switch_count, submitted_at
		 FROM attempt_results WHERE test_id = $1 ORDER BY submitted_at`, testID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var out []model.EvaluatedResult
	for rows.Next() {
		var res model.EvaluatedResult
		if err := rows.Scan(&res.AttemptID, &res.TestID, &res.UserID, &res.TotalCorrect, &res.TotalScore, &res.TabSwitchCount, &res.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
