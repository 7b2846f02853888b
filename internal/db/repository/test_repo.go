package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/model"
)

// ErrTestNotFound is returned when a test id resolves to nothing.
var ErrTestNotFound = errors.New("test not found")

// TestRepository persists test definitions and their ordered question refs.
type TestRepository struct {
	pool *pgxpool.Pool
}

func NewTestRepository(pool *pgxpool.Pool) *TestRepository {
	return &TestRepository{pool: pool}
}

// CreateTx inserts a test and its ordered refs inside the caller's
// transaction, so challenge creation commits test + challenge as one unit.
func (r *TestRepository) CreateTx(ctx context.Context, tx pgx.Tx, t *model.Test) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO tests (id, title, kind, time_budget_seconds, category, sub_category, start_at, end_at, challenger_id, opponent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.Title, t.Kind, t.TimeBudgetSec, t.Category, t.SubCategory, t.StartAt, t.EndAt, t.ChallengerID, t.OpponentID)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	for i, ref := range t.Refs {
		_, err := tx.Exec(ctx,
			`INSERT INTO test_questions (test_id, position, question_id, kind)
			 VALUES ($1, $2, $3, $4)`,
			t.ID, i, ref.ID, ref.Kind)
		if err != nil {
			return fmt.Errorf("insert test question %d: %w", i, err)
		}
	}
	return nil
}

// Create inserts a test in its own transaction.
func (r *TestRepository) Create(ctx context.Context, t *model.Test) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create test: %w", err)
	}
	defer tx.Rollback(ctx)
	if err := r.CreateTx(ctx, tx, t); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Get loads a test and its refs in authored order.
func (r *TestRepository) Get(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	t := &model.Test{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, kind, time_budget_seconds, COALESCE(category, ''), COALESCE(sub_category, ''),
		        start_at, end_at, challenger_id, opponent_id, created_at
		 FROM tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.Title, &t.Kind, &t.TimeBudgetSec, &t.Category, &t.SubCategory,
		&t.StartAt, &t.EndAt, &t.ChallengerID, &t.OpponentID, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTestNotFound
		}
		return nil, fmt.Errorf("scan test: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT question_id, kind FROM test_questions
		 WHERE test_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("query test questions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref catalog.Ref
		if err := rows.Scan(&ref.ID, &ref.Kind); err != nil {
			return nil, fmt.Errorf("scan test question: %w", err)
		}
		t.Refs = append(t.Refs, ref)
	}
	return t, rows.Err()
}
