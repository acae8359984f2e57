package domain

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

type mockAccountRepository struct {
	getByNumberFunc    func(ctx context.Context, number string) (*Account, error)
	listOverdraftsFunc func(ctx context.Context, number string) ([]OverdraftInstruction, error)
}

func (m *mockAccountRepository) GetByNumber(ctx context.Context, number string) (*Account, error) {
	return m.getByNumberFunc(ctx, number)
}

func (m *mockAccountRepository) ListOverdrafts(ctx context.Context, number string) ([]OverdraftInstruction, error) {
	return m.listOverdraftsFunc(ctx, number)
}

type mockBalanceRepository struct {
	getFunc  func(ctx context.Context, number string) (*BalanceRecord, error)
	lockFunc func(ctx context.Context, number string) (*BalanceRecord, error)
	putFunc  func(ctx context.Context, number string, balance int64) error
}

func (m *mockBalanceRepository) Get(ctx context.Context, number string) (*BalanceRecord, error) {
	return m.getFunc(ctx, number)
}

func (m *mockBalanceRepository) Lock(ctx context.Context, number string) (*BalanceRecord, error) {
	return m.lockFunc(ctx, number)
}

func (m *mockBalanceRepository) Put(ctx context.Context, number string, balance int64) error {
	return m.putFunc(ctx, number, balance)
}

type mockReservationRepository struct {
	createFunc    func(ctx context.Context, res *Reservation) error
	getByUUIDFunc func(ctx context.Context, id uuid.UUID) (*Reservation, error)
	lockFunc      func(ctx context.Context, id uuid.UUID) (*Reservation, error)
	claimFunc     func(ctx context.Context, id uuid.UUID, to ReservationState) (bool, error)
}

func (m *mockReservationRepository) Create(ctx context.Context, res *Reservation) error {
	return m.createFunc(ctx, res)
}

func (m *mockReservationRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return m.getByUUIDFunc(ctx, id)
}

func (m *mockReservationRepository) Lock(ctx context.Context, id uuid.UUID) (*Reservation, error) {
	return m.lockFunc(ctx, id)
}

func (m *mockReservationRepository) Claim(ctx context.Context, id uuid.UUID, to ReservationState) (bool, error) {
	return m.claimFunc(ctx, id, to)
}

type mockTransactionRepository struct {
	insertFunc        func(ctx context.Context, entry *LoggedTransaction) error
	listByAccountFunc func(ctx context.Context, number string, limit int32) ([]LoggedTransaction, error)
}

func (m *mockTransactionRepository) Insert(ctx context.Context, entry *LoggedTransaction) error {
	return m.insertFunc(ctx, entry)
}

func (m *mockTransactionRepository) ListByAccount(ctx context.Context, number string, limit int32) ([]LoggedTransaction, error) {
	return m.listByAccountFunc(ctx, number, limit)
}

type mockTransactionManager struct{}

func (m *mockTransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fixtureRepos wires mocks over a mutable in-memory store so Process can be
// exercised end to end.
type fixtureStore struct {
	accounts     map[string]*Account
	overdrafts   map[string][]OverdraftInstruction
	balances     map[string]int64
	reservations map[uuid.UUID]*Reservation
	entries      []LoggedTransaction
}

func newFixtureStore() *fixtureStore {
	return &fixtureStore{
		accounts:     map[string]*Account{},
		overdrafts:   map[string][]OverdraftInstruction{},
		balances:     map[string]int64{},
		reservations: map[uuid.UUID]*Reservation{},
	}
}

func (s *fixtureStore) service(t *testing.T) *PostingService {
	t.Helper()

	accounts := &mockAccountRepository{
		getByNumberFunc: func(_ context.Context, number string) (*Account, error) {
			return s.accounts[number], nil
		},
		listOverdraftsFunc: func(_ context.Context, number string) ([]OverdraftInstruction, error) {
			return s.overdrafts[number], nil
		},
	}
	getBalance := func(_ context.Context, number string) (*BalanceRecord, error) {
		balance, ok := s.balances[number]
		if !ok {
			return nil, nil
		}
		return &BalanceRecord{AccountNumber: number, Balance: balance}, nil
	}
	balances := &mockBalanceRepository{
		getFunc:  getBalance,
		lockFunc: getBalance,
		putFunc: func(_ context.Context, number string, balance int64) error {
			s.balances[number] = balance
			return nil
		},
	}
	getReservation := func(_ context.Context, id uuid.UUID) (*Reservation, error) {
		return s.reservations[id], nil
	}
	reservations := &mockReservationRepository{
		createFunc: func(_ context.Context, res *Reservation) error {
			s.reservations[res.ReservationUUID] = res
			return nil
		},
		getByUUIDFunc: getReservation,
		lockFunc:      getReservation,
		claimFunc: func(_ context.Context, id uuid.UUID, to ReservationState) (bool, error) {
			res, ok := s.reservations[id]
			if !ok || res.State != ReservationOpen {
				return false, nil
			}
			res.State = to
			return true, nil
		},
	}
	ledger := &mockTransactionRepository{
		insertFunc: func(_ context.Context, entry *LoggedTransaction) error {
			s.entries = append(s.entries, *entry)
			return nil
		},
		listByAccountFunc: func(_ context.Context, number string, _ int32) ([]LoggedTransaction, error) {
			var out []LoggedTransaction
			for i := len(s.entries) - 1; i >= 0; i-- {
				if s.entries[i].AccountNumber == number {
					out = append(out, s.entries[i])
				}
			}
			return out, nil
		},
	}

	return NewPostingService(accounts, balances, reservations, ledger, &mockTransactionManager{}, NewEngine(DefaultOverdraftDepth))
}

func TestPostingService_ReserveCommitRoundTrip(t *testing.T) {
	store := newFixtureStore()
	store.accounts["100000000001"] = &Account{AccountNumber: "100000000001", LifecycleStatus: LifecycleEffective}
	store.balances["100000000001"] = 9999

	service := store.service(t)
	ctx := context.Background()

	resOutcome, err := service.Process(ctx, PostingRequest{Reservation: &ReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		TransactionAmount: -3333,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resOutcome.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", resOutcome.Status)
	}
	if store.balances["100000000001"] != 6666 {
		t.Fatalf("expected balance 6666 after hold, got %d", store.balances["100000000001"])
	}

	reservationUUID := resOutcome.CreateReservation.ReservationUUID
	stored, err := service.ReservationByUUID(ctx, reservationUUID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored.State != ReservationOpen {
		t.Fatalf("expected OPEN reservation, got %s", stored.State)
	}

	commitOutcome, err := service.Process(ctx, PostingRequest{Commit: &CommitReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		ReservationUUID:   reservationUUID,
		TransactionAmount: -5000,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if commitOutcome.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", commitOutcome.Status)
	}
	if store.balances["100000000001"] != 4999 {
		t.Errorf("expected final balance 4999, got %d", store.balances["100000000001"])
	}
	if store.reservations[reservationUUID].State != ReservationCommitted {
		t.Errorf("expected COMMITTED reservation, got %s", store.reservations[reservationUUID].State)
	}
	if len(store.entries) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(store.entries))
	}
	if store.entries[1].TransactionAmount != -1667 {
		t.Errorf("expected commit entry amount -1667, got %d", store.entries[1].TransactionAmount)
	}
}

func TestPostingService_SecondClaimConflicts(t *testing.T) {
	store := newFixtureStore()
	store.accounts["100000000001"] = &Account{AccountNumber: "100000000001", LifecycleStatus: LifecycleEffective}
	store.balances["100000000001"] = 9999

	service := store.service(t)
	ctx := context.Background()

	resOutcome, err := service.Process(ctx, PostingRequest{Reservation: &ReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		TransactionAmount: -3333,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reservationUUID := resOutcome.CreateReservation.ReservationUUID

	cancelOutcome, err := service.Process(ctx, PostingRequest{Cancel: &CancelReservationRequest{
		RequestUUID:     uuid.New(),
		AccountNumber:   "100000000001",
		ReservationUUID: reservationUUID,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelOutcome.Status != StatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", cancelOutcome.Status)
	}
	if store.balances["100000000001"] != 9999 {
		t.Errorf("expected restored balance 9999, got %d", store.balances["100000000001"])
	}

	// The reservation is no longer OPEN; a commit now finds no match.
	commitOutcome, err := service.Process(ctx, PostingRequest{Commit: &CommitReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		ReservationUUID:   reservationUUID,
		TransactionAmount: -3333,
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if commitOutcome.Status != StatusConflict {
		t.Fatalf("expected CONFLICT, got %s", commitOutcome.Status)
	}
	if store.balances["100000000001"] != 9999 {
		t.Errorf("expected balance untouched at 9999, got %d", store.balances["100000000001"])
	}
}

func TestPostingService_ClaimLost(t *testing.T) {
	store := newFixtureStore()
	store.accounts["100000000001"] = &Account{AccountNumber: "100000000001", LifecycleStatus: LifecycleEffective}
	store.balances["100000000001"] = 5555

	reservationUUID := uuid.New()
	store.reservations[reservationUUID] = &Reservation{
		ReservationUUID: reservationUUID,
		AccountNumber:   "100000000001",
		Amount:          -3333,
		RequestUUID:     uuid.New(),
		State:           ReservationOpen,
	}

	// Force the claim to report no rows updated despite the locked read
	// having seen an OPEN reservation.
	original := store.reservations[reservationUUID]
	claimDenied := &mockReservationRepository{
		createFunc: func(_ context.Context, res *Reservation) error { return nil },
		getByUUIDFunc: func(_ context.Context, id uuid.UUID) (*Reservation, error) {
			return original, nil
		},
		lockFunc: func(_ context.Context, id uuid.UUID) (*Reservation, error) {
			return original, nil
		},
		claimFunc: func(_ context.Context, id uuid.UUID, to ReservationState) (bool, error) {
			return false, nil
		},
	}

	accounts := &mockAccountRepository{
		getByNumberFunc: func(_ context.Context, number string) (*Account, error) {
			return store.accounts[number], nil
		},
		listOverdraftsFunc: func(_ context.Context, number string) ([]OverdraftInstruction, error) {
			return nil, nil
		},
	}
	balances := &mockBalanceRepository{
		getFunc: func(_ context.Context, number string) (*BalanceRecord, error) {
			return &BalanceRecord{AccountNumber: number, Balance: store.balances[number]}, nil
		},
		lockFunc: func(_ context.Context, number string) (*BalanceRecord, error) {
			return &BalanceRecord{AccountNumber: number, Balance: store.balances[number]}, nil
		},
		putFunc: func(_ context.Context, number string, balance int64) error {
			store.balances[number] = balance
			return nil
		},
	}
	ledger := &mockTransactionRepository{
		insertFunc:        func(_ context.Context, entry *LoggedTransaction) error { return nil },
		listByAccountFunc: func(_ context.Context, number string, _ int32) ([]LoggedTransaction, error) { return nil, nil },
	}
	service := NewPostingService(accounts, balances, claimDenied, ledger, &mockTransactionManager{}, NewEngine(DefaultOverdraftDepth))

	_, err := service.Process(context.Background(), PostingRequest{Commit: &CommitReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		ReservationUUID:   reservationUUID,
		TransactionAmount: -3333,
	}})
	if !errors.Is(err, ErrClaimLost) {
		t.Fatalf("expected ErrClaimLost, got %v", err)
	}
}

func TestPostingService_RepositoryErrorAborts(t *testing.T) {
	repoErr := errors.New("connection reset")

	accounts := &mockAccountRepository{
		getByNumberFunc: func(_ context.Context, number string) (*Account, error) {
			return nil, repoErr
		},
		listOverdraftsFunc: func(_ context.Context, number string) ([]OverdraftInstruction, error) {
			return nil, nil
		},
	}
	balances := &mockBalanceRepository{
		getFunc:  func(_ context.Context, number string) (*BalanceRecord, error) { return nil, nil },
		lockFunc: func(_ context.Context, number string) (*BalanceRecord, error) { return nil, nil },
		putFunc:  func(_ context.Context, number string, balance int64) error { return nil },
	}
	reservations := &mockReservationRepository{
		createFunc:    func(_ context.Context, res *Reservation) error { return nil },
		getByUUIDFunc: func(_ context.Context, id uuid.UUID) (*Reservation, error) { return nil, nil },
		lockFunc:      func(_ context.Context, id uuid.UUID) (*Reservation, error) { return nil, nil },
		claimFunc:     func(_ context.Context, id uuid.UUID, to ReservationState) (bool, error) { return false, nil },
	}
	ledger := &mockTransactionRepository{
		insertFunc:        func(_ context.Context, entry *LoggedTransaction) error { return nil },
		listByAccountFunc: func(_ context.Context, number string, _ int32) ([]LoggedTransaction, error) { return nil, nil },
	}

	service := NewPostingService(accounts, balances, reservations, ledger, &mockTransactionManager{}, NewEngine(DefaultOverdraftDepth))

	_, err := service.Process(context.Background(), PostingRequest{Reservation: &ReservationRequest{
		RequestUUID:       uuid.New(),
		AccountNumber:     "100000000001",
		TransactionAmount: -3333,
	}})
	if !errors.Is(err, repoErr) {
		t.Fatalf("expected wrapped repository error, got %v", err)
	}
}

func TestPostingService_AccountBalance(t *testing.T) {
	store := newFixtureStore()
	store.accounts["100000000001"] = &Account{AccountNumber: "100000000001", LifecycleStatus: LifecycleEffective}
	store.balances["100000000001"] = 4444

	service := store.service(t)
	ctx := context.Background()

	account, balance, err := service.AccountBalance(ctx, "100000000001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.AccountNumber != "100000000001" || balance != 4444 {
		t.Errorf("expected account 100000000001 with balance 4444, got %s with %d", account.AccountNumber, balance)
	}

	// No balance record yet reads as zero.
	store.accounts["200000000002"] = &Account{AccountNumber: "200000000002", LifecycleStatus: LifecycleEffective}
	_, balance, err = service.AccountBalance(ctx, "200000000002")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if balance != 0 {
		t.Errorf("expected zero balance for fresh account, got %d", balance)
	}

	if _, _, err := service.AccountBalance(ctx, "999999999999"); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPostingService_AccountTransactions(t *testing.T) {
	store := newFixtureStore()
	store.accounts["100000000001"] = &Account{AccountNumber: "100000000001", LifecycleStatus: LifecycleEffective}
	store.balances["100000000001"] = 9999

	service := store.service(t)
	ctx := context.Background()

	for _, amount := range []int64{-1000, -2000} {
		if _, err := service.Process(ctx, PostingRequest{Transaction: &TransactionRequest{
			RequestUUID:             uuid.New(),
			AccountNumber:           "100000000001",
			TransactionAmount:       amount,
			AuthorizeAgainstBalance: true,
		}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := service.AccountTransactions(ctx, "100000000001", 50)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Most recent first.
	if entries[0].TransactionAmount != -2000 || entries[1].TransactionAmount != -1000 {
		t.Errorf("expected newest-first ordering, got %d then %d", entries[0].TransactionAmount, entries[1].TransactionAmount)
	}

	if _, err := service.AccountTransactions(ctx, "999999999999", 50); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("expected ErrAccountNotFound, got %v", err)
	}
}
