package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// LedgerRepository implements domain.TransactionRepository using PostgreSQL.
// The logged_transactions table is append-only; a serial column preserves
// the per-account insertion order the engine decided.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Insert appends one ledger entry.
func (r *LedgerRepository) Insert(ctx context.Context, entry *domain.LoggedTransaction) error {
	query := `
		INSERT INTO logged_transactions (
			transaction_uuid, transaction_type_code, account_number,
			request_uuid, reservation_uuid,
			transaction_amount, running_balance_amount,
			transaction_metadata, transaction_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := runner(ctx, r.pool).Exec(ctx, query,
		entry.TransactionUUID,
		string(entry.TypeCode),
		entry.AccountNumber,
		entry.RequestUUID,
		entry.ReservationUUID,
		entry.TransactionAmount,
		entry.RunningBalanceAmount,
		entry.MetaData,
		entry.TransactionTime,
	)
	if err != nil {
		return fmt.Errorf("failed to insert ledger entry: %w", err)
	}
	return nil
}

// ListByAccount returns the most recent entries for an account, newest
// first.
func (r *LedgerRepository) ListByAccount(ctx context.Context, number string, limit int32) ([]domain.LoggedTransaction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT transaction_uuid, transaction_type_code, account_number,
		       request_uuid, reservation_uuid,
		       transaction_amount, running_balance_amount,
		       transaction_metadata, transaction_time
		FROM logged_transactions
		WHERE account_number = $1
		ORDER BY seq DESC
		LIMIT $2
	`

	rows, err := runner(ctx, r.pool).Query(ctx, query, number, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LoggedTransaction
	for rows.Next() {
		var entry domain.LoggedTransaction
		err := rows.Scan(
			&entry.TransactionUUID,
			&entry.TypeCode,
			&entry.AccountNumber,
			&entry.RequestUUID,
			&entry.ReservationUUID,
			&entry.TransactionAmount,
			&entry.RunningBalanceAmount,
			&entry.MetaData,
			&entry.TransactionTime,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger entries: %w", err)
	}

	return entries, nil
}
