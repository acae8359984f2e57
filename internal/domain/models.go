package domain

import (
	"time"

	"github.com/google/uuid"
)

// LifecycleStatus is the two-letter lifecycle code carried on accounts and
// overdraft instructions in the reference data feed.
type LifecycleStatus string

const (
	// LifecycleEffective marks an account or instruction as usable.
	LifecycleEffective LifecycleStatus = "EF"

	// LifecycleClosed marks an account or instruction as closed.
	LifecycleClosed LifecycleStatus = "CL"
)

// Account is a read-only snapshot of a deposit account's reference data.
type Account struct {
	AccountNumber           string          // Unique account identifier (numeric string)
	LifecycleStatus         LifecycleStatus // EF or CL
	ProtectAgainstOverdraft bool            // Account-level overdraft protection opt-in
}

// Effective reports whether the account can accept postings.
func (a *Account) Effective() bool {
	return a != nil && a.LifecycleStatus == LifecycleEffective
}

// OverdraftInstruction links a primary account to a backing account that may
// fund shortfalls within an effective time window.
type OverdraftInstruction struct {
	AccountNumber    string          // Primary account the instruction belongs to
	EffectiveStart   time.Time       // Start of the usable window (inclusive)
	EffectiveEnd     time.Time       // End of the usable window (inclusive)
	LifecycleStatus  LifecycleStatus // Instruction lifecycle, EF or CL
	OverdraftAccount Account         // The backing account snapshot
}

// EligibleAt reports whether the instruction may fund a shortfall at the
// given instant: the instruction itself is effective, the instant falls
// within the effective window, and the backing account is effective.
func (o *OverdraftInstruction) EligibleAt(now time.Time) bool {
	if o.LifecycleStatus != LifecycleEffective {
		return false
	}
	if now.Before(o.EffectiveStart) || now.After(o.EffectiveEnd) {
		return false
	}
	return o.OverdraftAccount.Effective()
}

// BalanceRecord is the current balance of an account in signed minor
// currency units. Mutated only by accepted postings.
type BalanceRecord struct {
	AccountNumber string
	Balance       int64
}

// ReservationState represents the lifecycle of a reservation.
// A reservation transitions exactly once, OPEN -> COMMITTED or
// OPEN -> CANCELED, via an atomic claim.
type ReservationState string

const (
	ReservationOpen      ReservationState = "OPEN"
	ReservationCommitted ReservationState = "COMMITTED"
	ReservationCanceled  ReservationState = "CANCELED"
)

// Reservation records a provisional hold against an account. Amount is the
// original hold magnitude and is always negative.
type Reservation struct {
	ReservationUUID uuid.UUID        // Key of the reservation; equals the transaction UUID of the RESERVATION entry
	AccountNumber   string           // Account the hold was placed on
	Amount          int64            // Original hold amount, negative
	RequestUUID     uuid.UUID        // Request that created the hold
	State           ReservationState // OPEN, COMMITTED or CANCELED
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// TransactionType is the type code of an immutable ledger entry.
type TransactionType string

const (
	TypeNormal              TransactionType = "NORMAL"
	TypeReservation         TransactionType = "RESERVATION"
	TypeReservationCommit   TransactionType = "RESERVATION_COMMIT"
	TypeReservationCancel   TransactionType = "RESERVATION_CANCEL"
	TypeRejectedTransaction TransactionType = "REJECTED_TRANSACTION"
	TypeTransferFrom        TransactionType = "TRANSFER_FROM"
	TypeTransferTo          TransactionType = "TRANSFER_TO"
)

// LoggedTransaction is an immutable, append-only ledger entry.
// RunningBalanceAmount is the account balance immediately after this entry;
// for a REJECTED_TRANSACTION entry it is the unchanged balance.
type LoggedTransaction struct {
	TransactionUUID      uuid.UUID
	TypeCode             TransactionType
	AccountNumber        string
	RequestUUID          uuid.UUID
	ReservationUUID      *uuid.UUID // Set only on commit/cancel entries
	TransactionAmount    int64
	RunningBalanceAmount int64
	MetaData             string // Caller-supplied JSON, echoed verbatim
	TransactionTime      time.Time
}
