package domain

import (
	"context"

	"github.com/google/uuid"
)

// AccountRepository is the read-only lookup of account and overdraft
// reference data.
type AccountRepository interface {
	// GetByNumber retrieves an account snapshot. Returns (nil, nil) when the
	// account is unknown.
	GetByNumber(ctx context.Context, number string) (*Account, error)

	// ListOverdrafts returns the overdraft instructions for an account,
	// ordered by effective start. The engine uses the first eligible one.
	ListOverdrafts(ctx context.Context, number string) ([]OverdraftInstruction, error)
}

// BalanceRepository is the per-account balance store. Get/Put on one account
// key form an atomic unit when executed under the same transaction with the
// row locked.
type BalanceRepository interface {
	// Get reads the current balance. Returns (nil, nil) when no balance
	// record exists yet; callers treat that as a zero balance.
	Get(ctx context.Context, number string) (*BalanceRecord, error)

	// Lock reads the current balance under a row lock. Must be called within
	// a transaction context. Returns (nil, nil) when no record exists.
	Lock(ctx context.Context, number string) (*BalanceRecord, error)

	// Put writes the new balance, creating the record if absent.
	Put(ctx context.Context, number string, balance int64) error
}

// ReservationRepository is the reservation registry. Claim is the atomic
// compare-and-set that guarantees the exactly-once commit/cancel invariant;
// it must be linearizable per UUID across concurrent callers.
type ReservationRepository interface {
	// Create persists a new OPEN reservation.
	Create(ctx context.Context, reservation *Reservation) error

	// GetByUUID retrieves a reservation. Returns (nil, nil) when unknown.
	GetByUUID(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// Lock retrieves a reservation under a row lock. Must be called within a
	// transaction context. Returns (nil, nil) when unknown.
	Lock(ctx context.Context, id uuid.UUID) (*Reservation, error)

	// Claim transitions the reservation from OPEN to the given state.
	// Returns false when the reservation is absent or no longer OPEN.
	Claim(ctx context.Context, id uuid.UUID, to ReservationState) (bool, error)
}

// TransactionRepository is the append-only ledger.
type TransactionRepository interface {
	// Insert appends one ledger entry.
	Insert(ctx context.Context, entry *LoggedTransaction) error

	// ListByAccount returns the most recent entries for an account, newest
	// first.
	ListByAccount(ctx context.Context, number string, limit int32) ([]LoggedTransaction, error)
}

// TransactionManager executes a function within a database transaction.
// On error the transaction is rolled back, otherwise committed.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
