package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// BalanceRepository implements domain.BalanceRepository using PostgreSQL.
type BalanceRepository struct {
	pool *pgxpool.Pool
}

// NewBalanceRepository creates a new BalanceRepository.
func NewBalanceRepository(pool *pgxpool.Pool) *BalanceRepository {
	return &BalanceRepository{pool: pool}
}

// Get reads the current balance. Returns (nil, nil) when no record exists.
func (r *BalanceRepository) Get(ctx context.Context, number string) (*domain.BalanceRecord, error) {
	return r.get(ctx, number, false)
}

// Lock reads the current balance under a row lock using SELECT ... FOR
// UPDATE. Must be called within a transaction context; this is what
// serializes postings per account key.
func (r *BalanceRepository) Lock(ctx context.Context, number string) (*domain.BalanceRecord, error) {
	return r.get(ctx, number, true)
}

func (r *BalanceRepository) get(ctx context.Context, number string, forUpdate bool) (*domain.BalanceRecord, error) {
	query := `
		SELECT account_number, balance
		FROM balances
		WHERE account_number = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var record domain.BalanceRecord
	err := runner(ctx, r.pool).QueryRow(ctx, query, number).Scan(
		&record.AccountNumber,
		&record.Balance,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}

	return &record, nil
}

// Put writes the new balance, creating the record if absent.
func (r *BalanceRepository) Put(ctx context.Context, number string, balance int64) error {
	query := `
		INSERT INTO balances (account_number, balance, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (account_number)
		DO UPDATE SET balance = EXCLUDED.balance, updated_at = now()
	`

	if _, err := runner(ctx, r.pool).Exec(ctx, query, number, balance); err != nil {
		return fmt.Errorf("failed to put balance: %w", err)
	}
	return nil
}
