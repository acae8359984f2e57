package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostingStatus is the deterministic outcome status of one posting request.
type PostingStatus string

const (
	// StatusSuccess means the posting was accepted and all mutations apply.
	StatusSuccess PostingStatus = "SUCCESS"

	// StatusInsufficientFunds means the posting was rejected for lack of
	// funds. A rejection entry is recorded but no balance changes.
	StatusInsufficientFunds PostingStatus = "INSUFFICIENT_FUNDS"

	// StatusConflict means a commit or cancel found no open reservation for
	// its UUID. Zero entries, no mutation.
	StatusConflict PostingStatus = "CONFLICT"

	// StatusInvalidAccount means the target account is unknown or closed.
	// Zero entries, no mutation.
	StatusInvalidAccount PostingStatus = "INVALID_ACCOUNT"
)

// DefaultOverdraftDepth bounds the overdraft cascade. Only one hop is used
// by real instruction data; the bound guards against cyclic chains.
const DefaultOverdraftDepth = 3

// BalanceMutation is one per-account balance update to apply. Mutations for
// the same account must be applied in slice order.
type BalanceMutation struct {
	AccountNumber string
	NewBalance    int64
}

// ReservationClaim is the OPEN -> {COMMITTED,CANCELED} transition to apply
// atomically at the registry.
type ReservationClaim struct {
	ReservationUUID uuid.UUID
	To              ReservationState
}

// PostingOutcome is the full decision for one posting request: a status, the
// ordered ledger entries, and the mutations the caller must apply.
type PostingOutcome struct {
	Status            PostingStatus
	ErrorMessage      string
	Entries           []LoggedTransaction
	BalanceMutations  []BalanceMutation
	CreateReservation *Reservation
	ClaimReservation  *ReservationClaim
}

// Accepted reports whether the posting succeeded.
func (o *PostingOutcome) Accepted() bool {
	return o.Status == StatusSuccess
}

// SnapshotView supplies the engine with authoritative snapshots of account,
// overdraft, balance and reservation state. Implementations must return a
// consistent view for the duration of one Evaluate call; the db-backed view
// reads under row locks inside a single transaction. A missing account or
// reservation is reported as a nil record, not an error. A missing balance
// record reads as zero.
type SnapshotView interface {
	Account(number string) (*Account, error)
	Overdrafts(number string) ([]OverdraftInstruction, error)
	Balance(number string) (int64, error)
	Reservation(id uuid.UUID) (*Reservation, error)
}

// Engine is the posting decision function. It is stateless apart from its
// configuration and never mutates anything itself: Evaluate maps one request
// plus snapshots to a PostingOutcome that the caller applies.
type Engine struct {
	maxOverdraftDepth int
	now               func() time.Time
	newUUID           func() uuid.UUID
}

// NewEngine creates an Engine with the given overdraft cascade depth bound.
// A depth below one falls back to DefaultOverdraftDepth.
func NewEngine(maxOverdraftDepth int) *Engine {
	if maxOverdraftDepth < 1 {
		maxOverdraftDepth = DefaultOverdraftDepth
	}
	return &Engine{
		maxOverdraftDepth: maxOverdraftDepth,
		now:               time.Now,
		newUUID:           uuid.New,
	}
}

// Evaluate decides one posting request against the supplied snapshots.
// It returns an error only when the view itself fails; every business
// condition is expressed through the outcome status.
func (e *Engine) Evaluate(view SnapshotView, req PostingRequest) (*PostingOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch {
	case req.Reservation != nil:
		return e.evaluateReservation(view, req.Reservation)
	case req.Commit != nil:
		return e.evaluateCommit(view, req.Commit)
	case req.Cancel != nil:
		return e.evaluateCancel(view, req.Cancel)
	case req.Transaction != nil:
		return e.evaluateTransaction(view, req.Transaction)
	default:
		return e.evaluateTransfer(view, req.Transfer)
	}
}

func (e *Engine) evaluateReservation(view SnapshotView, req *ReservationRequest) (*PostingOutcome, error) {
	account, err := view.Account(req.AccountNumber)
	if err != nil {
		return nil, err
	}
	if !account.Effective() {
		return invalidAccountOutcome(req.AccountNumber), nil
	}

	out := &PostingOutcome{Status: StatusSuccess}
	visited := map[string]bool{}
	ok, err := e.reserve(view, out, req, req.AccountNumber, visited, e.maxOverdraftDepth)
	if err != nil {
		return nil, err
	}
	if !ok {
		out.Status = StatusInsufficientFunds
		out.ErrorMessage = fmt.Sprintf("Insufficient funds in account %s", req.AccountNumber)
	}
	return out, nil
}

// reserve evaluates the hold against one account and, on a shortfall,
// cascades to an eligible overdraft-linked account. Every visited account
// that rejects leaves a REJECTED_TRANSACTION entry; acceptance terminates
// the cascade with a RESERVATION entry and an OPEN reservation keyed by
// that entry's transaction UUID.
func (e *Engine) reserve(view SnapshotView, out *PostingOutcome, req *ReservationRequest, accountNumber string, visited map[string]bool, depth int) (bool, error) {
	visited[accountNumber] = true

	balance, err := view.Balance(accountNumber)
	if err != nil {
		return false, err
	}

	prospective := balance + req.TransactionAmount
	if prospective >= 0 {
		entry := e.newEntry(TypeReservation, accountNumber, req.RequestUUID, req.TransactionAmount, prospective, req.JSONMetaData)
		out.Entries = append(out.Entries, entry)
		out.BalanceMutations = append(out.BalanceMutations, BalanceMutation{AccountNumber: accountNumber, NewBalance: prospective})
		out.CreateReservation = &Reservation{
			ReservationUUID: entry.TransactionUUID,
			AccountNumber:   accountNumber,
			Amount:          req.TransactionAmount,
			RequestUUID:     req.RequestUUID,
			State:           ReservationOpen,
		}
		return true, nil
	}

	// Shortfall: record the rejection on this account first, balance
	// unchanged, then look for a backing account.
	out.Entries = append(out.Entries, e.newEntry(TypeRejectedTransaction, accountNumber, req.RequestUUID, req.TransactionAmount, balance, req.JSONMetaData))

	if depth <= 1 {
		return false, nil
	}
	od, err := e.eligibleOverdraft(view, accountNumber, visited)
	if err != nil {
		return false, err
	}
	if od == nil {
		return false, nil
	}
	return e.reserve(view, out, req, od.OverdraftAccount.AccountNumber, visited, depth-1)
}

func (e *Engine) evaluateCommit(view SnapshotView, req *CommitReservationRequest) (*PostingOutcome, error) {
	res, err := view.Reservation(req.ReservationUUID)
	if err != nil {
		return nil, err
	}
	if res == nil || res.State != ReservationOpen {
		return conflictOutcome(req.ReservationUUID), nil
	}

	balance, err := view.Balance(res.AccountNumber)
	if err != nil {
		return nil, err
	}

	delta := req.TransactionAmount - res.Amount
	newBalance := balance + delta

	entry := e.newEntry(TypeReservationCommit, res.AccountNumber, req.RequestUUID, delta, newBalance, req.JSONMetaData)
	entry.ReservationUUID = &res.ReservationUUID

	return &PostingOutcome{
		Status:  StatusSuccess,
		Entries: []LoggedTransaction{entry},
		BalanceMutations: []BalanceMutation{
			{AccountNumber: res.AccountNumber, NewBalance: newBalance},
		},
		ClaimReservation: &ReservationClaim{ReservationUUID: res.ReservationUUID, To: ReservationCommitted},
	}, nil
}

func (e *Engine) evaluateCancel(view SnapshotView, req *CancelReservationRequest) (*PostingOutcome, error) {
	res, err := view.Reservation(req.ReservationUUID)
	if err != nil {
		return nil, err
	}
	if res == nil || res.State != ReservationOpen {
		return conflictOutcome(req.ReservationUUID), nil
	}

	balance, err := view.Balance(res.AccountNumber)
	if err != nil {
		return nil, err
	}

	// Full reversal of the original hold.
	delta := -res.Amount
	newBalance := balance + delta

	entry := e.newEntry(TypeReservationCancel, res.AccountNumber, req.RequestUUID, delta, newBalance, req.JSONMetaData)
	entry.ReservationUUID = &res.ReservationUUID

	return &PostingOutcome{
		Status:  StatusSuccess,
		Entries: []LoggedTransaction{entry},
		BalanceMutations: []BalanceMutation{
			{AccountNumber: res.AccountNumber, NewBalance: newBalance},
		},
		ClaimReservation: &ReservationClaim{ReservationUUID: res.ReservationUUID, To: ReservationCanceled},
	}, nil
}

func (e *Engine) evaluateTransaction(view SnapshotView, req *TransactionRequest) (*PostingOutcome, error) {
	account, err := view.Account(req.AccountNumber)
	if err != nil {
		return nil, err
	}
	if !account.Effective() {
		return invalidAccountOutcome(req.AccountNumber), nil
	}

	balance, err := view.Balance(req.AccountNumber)
	if err != nil {
		return nil, err
	}

	amount := req.TransactionAmount
	prospective := balance + amount

	if !req.AuthorizeAgainstBalance || prospective >= 0 {
		entry := e.newEntry(TypeNormal, req.AccountNumber, req.RequestUUID, amount, prospective, req.JSONMetaData)
		return &PostingOutcome{
			Status:  StatusSuccess,
			Entries: []LoggedTransaction{entry},
			BalanceMutations: []BalanceMutation{
				{AccountNumber: req.AccountNumber, NewBalance: prospective},
			},
		}, nil
	}

	if req.ProtectAgainstOverdraft {
		out, err := e.transactionCascade(view, req, balance)
		if err != nil || out != nil {
			return out, err
		}
	}

	entry := e.newEntry(TypeRejectedTransaction, req.AccountNumber, req.RequestUUID, amount, balance, req.JSONMetaData)
	return &PostingOutcome{
		Status:       StatusInsufficientFunds,
		ErrorMessage: fmt.Sprintf("Insufficient funds in account %s", req.AccountNumber),
		Entries:      []LoggedTransaction{entry},
	}, nil
}

// transactionCascade funds the shortfall from the first eligible overdraft
// account that can cover it. Four entries in fixed order: the informational
// rejection on the primary, the debit on the backing account, the funding
// credit on the primary, and the original transaction, which lands the
// primary balance exactly where it started. Returns nil when no backing
// account can fund the amount.
func (e *Engine) transactionCascade(view SnapshotView, req *TransactionRequest, balance int64) (*PostingOutcome, error) {
	instructions, err := view.Overdrafts(req.AccountNumber)
	if err != nil {
		return nil, err
	}

	amount := req.TransactionAmount
	now := e.now()
	for i := range instructions {
		od := &instructions[i]
		if !od.EligibleAt(now) {
			continue
		}
		odAccount := od.OverdraftAccount.AccountNumber
		if odAccount == req.AccountNumber {
			continue
		}
		odBalance, err := view.Balance(odAccount)
		if err != nil {
			return nil, err
		}
		if odBalance+amount < 0 {
			continue
		}

		funded := balance - amount // balance + |amount|, amount is negative
		entries := []LoggedTransaction{
			e.newEntry(TypeRejectedTransaction, req.AccountNumber, req.RequestUUID, amount, balance, req.JSONMetaData),
			e.newEntry(TypeTransferFrom, odAccount, req.RequestUUID, amount, odBalance+amount, req.JSONMetaData),
			e.newEntry(TypeTransferTo, req.AccountNumber, req.RequestUUID, -amount, funded, req.JSONMetaData),
			e.newEntry(TypeNormal, req.AccountNumber, req.RequestUUID, amount, funded+amount, req.JSONMetaData),
		}
		return &PostingOutcome{
			Status:  StatusSuccess,
			Entries: entries,
			BalanceMutations: []BalanceMutation{
				{AccountNumber: odAccount, NewBalance: odBalance + amount},
				{AccountNumber: req.AccountNumber, NewBalance: funded},
				{AccountNumber: req.AccountNumber, NewBalance: funded + amount},
			},
		}, nil
	}
	return nil, nil
}

func (e *Engine) evaluateTransfer(view SnapshotView, req *TransferRequest) (*PostingOutcome, error) {
	from, err := view.Account(req.TransferFromAccountNumber)
	if err != nil {
		return nil, err
	}
	if !from.Effective() {
		return invalidAccountOutcome(req.TransferFromAccountNumber), nil
	}
	to, err := view.Account(req.TransferToAccountNumber)
	if err != nil {
		return nil, err
	}
	if !to.Effective() {
		return invalidAccountOutcome(req.TransferToAccountNumber), nil
	}

	debit := req.TransactionAmount
	if debit > 0 {
		debit = -debit
	}
	credit := -debit

	fromBalance, err := view.Balance(req.TransferFromAccountNumber)
	if err != nil {
		return nil, err
	}
	prospective := fromBalance + debit
	if prospective < 0 {
		entry := e.newEntry(TypeRejectedTransaction, req.TransferFromAccountNumber, req.RequestUUID, debit, fromBalance, req.JSONMetaData)
		return &PostingOutcome{
			Status:       StatusInsufficientFunds,
			ErrorMessage: fmt.Sprintf("Insufficient funds in account %s", req.TransferFromAccountNumber),
			Entries:      []LoggedTransaction{entry},
		}, nil
	}

	toBalance, err := view.Balance(req.TransferToAccountNumber)
	if err != nil {
		return nil, err
	}

	entries := []LoggedTransaction{
		e.newEntry(TypeTransferFrom, req.TransferFromAccountNumber, req.RequestUUID, debit, prospective, req.JSONMetaData),
		e.newEntry(TypeTransferTo, req.TransferToAccountNumber, req.RequestUUID, credit, toBalance+credit, req.JSONMetaData),
	}
	return &PostingOutcome{
		Status:  StatusSuccess,
		Entries: entries,
		BalanceMutations: []BalanceMutation{
			{AccountNumber: req.TransferFromAccountNumber, NewBalance: prospective},
			{AccountNumber: req.TransferToAccountNumber, NewBalance: toBalance + credit},
		},
	}, nil
}

// eligibleOverdraft returns the first instruction usable right now whose
// backing account has not already been visited by this cascade.
func (e *Engine) eligibleOverdraft(view SnapshotView, accountNumber string, visited map[string]bool) (*OverdraftInstruction, error) {
	instructions, err := view.Overdrafts(accountNumber)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range instructions {
		od := &instructions[i]
		if !od.EligibleAt(now) {
			continue
		}
		if visited[od.OverdraftAccount.AccountNumber] {
			continue
		}
		return od, nil
	}
	return nil, nil
}

func (e *Engine) newEntry(code TransactionType, accountNumber string, requestUUID uuid.UUID, amount, running int64, metaData string) LoggedTransaction {
	return LoggedTransaction{
		TransactionUUID:      e.newUUID(),
		TypeCode:             code,
		AccountNumber:        accountNumber,
		RequestUUID:          requestUUID,
		TransactionAmount:    amount,
		RunningBalanceAmount: running,
		MetaData:             metaData,
		TransactionTime:      e.now(),
	}
}

func invalidAccountOutcome(accountNumber string) *PostingOutcome {
	return &PostingOutcome{
		Status:       StatusInvalidAccount,
		ErrorMessage: fmt.Sprintf("account %s not found or closed", accountNumber),
	}
}

func conflictOutcome(reservationUUID uuid.UUID) *PostingOutcome {
	return &PostingOutcome{
		Status:       StatusConflict,
		ErrorMessage: fmt.Sprintf("No match for reservation %s", reservationUUID),
	}
}
