package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// AccountRepository implements domain.AccountRepository using PostgreSQL.
// Accounts and overdraft instructions are reference data: read-only from the
// engine's point of view.
type AccountRepository struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new AccountRepository.
func NewAccountRepository(pool *pgxpool.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

// GetByNumber retrieves an account snapshot by account number.
// Returns (nil, nil) when the account is unknown.
func (r *AccountRepository) GetByNumber(ctx context.Context, number string) (*domain.Account, error) {
	query := `
		SELECT account_number, lifecycle_status, protect_against_overdraft
		FROM accounts
		WHERE account_number = $1
	`

	var account domain.Account
	err := runner(ctx, r.pool).QueryRow(ctx, query, number).Scan(
		&account.AccountNumber,
		&account.LifecycleStatus,
		&account.ProtectAgainstOverdraft,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}

	return &account, nil
}

// ListOverdrafts returns the overdraft instructions for an account together
// with the backing account snapshot each one points at, ordered by effective
// start.
func (r *AccountRepository) ListOverdrafts(ctx context.Context, number string) ([]domain.OverdraftInstruction, error) {
	query := `
		SELECT o.account_number, o.effective_start, o.effective_end, o.lifecycle_status,
		       a.account_number, a.lifecycle_status, a.protect_against_overdraft
		FROM overdraft_instructions o
		JOIN accounts a ON a.account_number = o.overdraft_account_number
		WHERE o.account_number = $1
		ORDER BY o.effective_start
	`

	rows, err := runner(ctx, r.pool).Query(ctx, query, number)
	if err != nil {
		return nil, fmt.Errorf("failed to list overdraft instructions: %w", err)
	}
	defer rows.Close()

	var instructions []domain.OverdraftInstruction
	for rows.Next() {
		var od domain.OverdraftInstruction
		err := rows.Scan(
			&od.AccountNumber,
			&od.EffectiveStart,
			&od.EffectiveEnd,
			&od.LifecycleStatus,
			&od.OverdraftAccount.AccountNumber,
			&od.OverdraftAccount.LifecycleStatus,
			&od.OverdraftAccount.ProtectAgainstOverdraft,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overdraft instruction: %w", err)
		}
		instructions = append(instructions, od)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read overdraft instructions: %w", err)
	}

	return instructions, nil
}
