package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrInsufficientFunds means the debited account cannot cover the amount.
var ErrInsufficientFunds = errors.New("insufficient coin balance")

// Ledger owns the coin balance invariants. The evaluation path never
// touches balances directly; the single mutation it may trigger is the
// challenge stake transfer, and that goes through TransferTx inside the
// resolver's transaction.
type Ledger struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

// Balance returns a user's current coin balance.
func (l *Ledger) Balance(ctx context.Context, userID uuid.UUID) (int, error) {
	var balance int
	err := l.pool.QueryRow(ctx,
		`SELECT balance FROM coin_accounts WHERE user_id = $1`, userID,
	).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return balance, nil
}

// TransferTx moves amount from one account to the other inside the caller
// supplied transaction, recording a ledger entry. Debit and credit commit
// or roll back together with whatever else the caller does in the same tx.
func (l *Ledger) TransferTx(ctx context.Context, tx pgx.Tx, fromID, toID uuid.UUID, amount int, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %d", amount)
	}
	if err := debitTx(ctx, tx, fromID, amount); err != nil {
		return err
	}
	if err := creditTx(ctx, tx, toID, amount); err != nil {
		return err
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO coin_ledger (id, from_id, to_id, amount, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), fromID, toID, amount, reason)
	if err != nil {
		return fmt.Errorf("record ledger entry: %w", err)
	}
	return nil
}

// Transfer runs TransferTx in its own transaction.
func (l *Ledger) Transfer(ctx context.Context, fromID, toID uuid.UUID, amount int, reason string) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transfer: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := l.TransferTx(ctx, tx, fromID, toID, amount, reason); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func debitTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) error {
	tag, err := tx.Exec(ctx,
		`UPDATE coin_accounts SET balance = balance - $1
		 WHERE user_id = $2 AND balance >= $1`, amount, userID)
	if err != nil {
		return fmt.Errorf("debit %s: %w", userID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("debit %s: %w", userID, ErrInsufficientFunds)
	}
	return nil
}

func creditTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount int) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO coin_accounts (user_id, balance) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET balance = coin_accounts.balance + $2`,
		userID, amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", userID, err)
	}
	return nil
}
