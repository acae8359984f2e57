package domain

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// PostingService coordinates one posting request end to end: it assembles a
// locked snapshot view, runs the decision engine, and applies the returned
// mutations atomically. Publishing the outcome is the caller's concern.
type PostingService struct {
	accounts     AccountRepository
	balances     BalanceRepository
	reservations ReservationRepository
	ledger       TransactionRepository
	txManager    TransactionManager
	engine       *Engine
}

// NewPostingService creates a PostingService.
func NewPostingService(
	accounts AccountRepository,
	balances BalanceRepository,
	reservations ReservationRepository,
	ledger TransactionRepository,
	txManager TransactionManager,
	engine *Engine,
) *PostingService {
	return &PostingService{
		accounts:     accounts,
		balances:     balances,
		reservations: reservations,
		ledger:       ledger,
		txManager:    txManager,
		engine:       engine,
	}
}

// Process decides and applies one posting request. Operations touching the
// same account are serialized by the row locks the snapshot view takes in
// access order (primary first, then any overdraft-linked account); the
// reservation row lock plus the conditional claim update make commit/cancel
// exactly-once per reservation UUID.
//
// A returned error means a collaborator failed and nothing was applied.
// Every business condition is reported through the outcome status instead.
func (s *PostingService) Process(ctx context.Context, req PostingRequest) (*PostingOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var outcome *PostingOutcome
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		view := newRepositoryView(txCtx, s.accounts, s.balances, s.reservations)

		decided, err := s.engine.Evaluate(view, req)
		if err != nil {
			return fmt.Errorf("failed to evaluate posting: %w", err)
		}

		if err := s.apply(txCtx, decided); err != nil {
			return err
		}

		outcome = decided
		return nil
	})
	if err != nil {
		return nil, err
	}

	return outcome, nil
}

// apply persists the mutations and entries of a decided outcome, in order.
func (s *PostingService) apply(ctx context.Context, outcome *PostingOutcome) error {
	if outcome.ClaimReservation != nil {
		claimed, err := s.reservations.Claim(ctx, outcome.ClaimReservation.ReservationUUID, outcome.ClaimReservation.To)
		if err != nil {
			return fmt.Errorf("failed to claim reservation: %w", err)
		}
		if !claimed {
			return ErrClaimLost
		}
	}

	for _, m := range outcome.BalanceMutations {
		if err := s.balances.Put(ctx, m.AccountNumber, m.NewBalance); err != nil {
			return fmt.Errorf("failed to put balance for account %s: %w", m.AccountNumber, err)
		}
	}

	if outcome.CreateReservation != nil {
		if err := s.reservations.Create(ctx, outcome.CreateReservation); err != nil {
			return fmt.Errorf("failed to create reservation: %w", err)
		}
	}

	for i := range outcome.Entries {
		if err := s.ledger.Insert(ctx, &outcome.Entries[i]); err != nil {
			return fmt.Errorf("failed to insert ledger entry: %w", err)
		}
	}

	return nil
}

// AccountBalance returns the account snapshot and its current balance.
func (s *PostingService) AccountBalance(ctx context.Context, number string) (*Account, int64, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, 0, ErrAccountNotFound
	}

	record, err := s.balances.Get(ctx, number)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get balance: %w", err)
	}
	if record == nil {
		return account, 0, nil
	}
	return account, record.Balance, nil
}

// AccountTransactions returns the most recent ledger entries for an account.
func (s *PostingService) AccountTransactions(ctx context.Context, number string, limit int32) ([]LoggedTransaction, error) {
	account, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, ErrAccountNotFound
	}
	entries, err := s.ledger.ListByAccount(ctx, number, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return entries, nil
}

// ReservationByUUID returns the reservation record for a UUID.
func (s *PostingService) ReservationByUUID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	res, err := s.reservations.GetByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if res == nil {
		return nil, ErrReservationNotFound
	}
	return res, nil
}

// repositoryView adapts the repositories into the engine's SnapshotView.
// Balances and reservations are read under row locks so the snapshot stays
// authoritative until the surrounding transaction commits; every read is
// cached so the engine sees one consistent value per key.
type repositoryView struct {
	ctx          context.Context
	accounts     AccountRepository
	balances     BalanceRepository
	reservations ReservationRepository

	accountCache     map[string]*Account
	overdraftCache   map[string][]OverdraftInstruction
	balanceCache     map[string]int64
	reservationCache map[uuid.UUID]*Reservation
}

func newRepositoryView(ctx context.Context, accounts AccountRepository, balances BalanceRepository, reservations ReservationRepository) *repositoryView {
	return &repositoryView{
		ctx:              ctx,
		accounts:         accounts,
		balances:         balances,
		reservations:     reservations,
		accountCache:     map[string]*Account{},
		overdraftCache:   map[string][]OverdraftInstruction{},
		balanceCache:     map[string]int64{},
		reservationCache: map[uuid.UUID]*Reservation{},
	}
}

func (v *repositoryView) Account(number string) (*Account, error) {
	if account, ok := v.accountCache[number]; ok {
		return account, nil
	}
	account, err := v.accounts.GetByNumber(v.ctx, number)
	if err != nil {
		return nil, err
	}
	v.accountCache[number] = account
	return account, nil
}

func (v *repositoryView) Overdrafts(number string) ([]OverdraftInstruction, error) {
	if instructions, ok := v.overdraftCache[number]; ok {
		return instructions, nil
	}
	instructions, err := v.accounts.ListOverdrafts(v.ctx, number)
	if err != nil {
		return nil, err
	}
	v.overdraftCache[number] = instructions
	return instructions, nil
}

func (v *repositoryView) Balance(number string) (int64, error) {
	if balance, ok := v.balanceCache[number]; ok {
		return balance, nil
	}
	record, err := v.balances.Lock(v.ctx, number)
	if err != nil {
		return 0, err
	}
	var balance int64
	if record != nil {
		balance = record.Balance
	}
	v.balanceCache[number] = balance
	return balance, nil
}

func (v *repositoryView) Reservation(id uuid.UUID) (*Reservation, error) {
	if res, ok := v.reservationCache[id]; ok {
		return res, nil
	}
	res, err := v.reservations.Lock(v.ctx, id)
	if err != nil {
		return nil, err
	}
	v.reservationCache[id] = res
	return res, nil
}
