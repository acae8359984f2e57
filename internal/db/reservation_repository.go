package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// ReservationRepository implements domain.ReservationRepository using
// PostgreSQL. Claim is a conditional UPDATE keyed on state = OPEN, so two
// racing commit/cancel requests for the same UUID resolve to exactly one
// winner regardless of delivery order.
type ReservationRepository struct {
	pool *pgxpool.Pool
}

// NewReservationRepository creates a new ReservationRepository.
func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

// Create persists a new OPEN reservation.
func (r *ReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	query := `
		INSERT INTO reservations (
			reservation_uuid, account_number, amount,
			request_uuid, state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, now(), now())
	`

	_, err := runner(ctx, r.pool).Exec(ctx, query,
		reservation.ReservationUUID,
		reservation.AccountNumber,
		reservation.Amount,
		reservation.RequestUUID,
		string(reservation.State),
	)
	if err != nil {
		return fmt.Errorf("failed to create reservation: %w", err)
	}
	return nil
}

// GetByUUID retrieves a reservation. Returns (nil, nil) when unknown.
func (r *ReservationRepository) GetByUUID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return r.get(ctx, id, false)
}

// Lock retrieves a reservation under a row lock. Must be called within a
// transaction context.
func (r *ReservationRepository) Lock(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return r.get(ctx, id, true)
}

func (r *ReservationRepository) get(ctx context.Context, id uuid.UUID, forUpdate bool) (*domain.Reservation, error) {
	query := `
		SELECT reservation_uuid, account_number, amount, request_uuid, state, created_at, updated_at
		FROM reservations
		WHERE reservation_uuid = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var res domain.Reservation
	err := runner(ctx, r.pool).QueryRow(ctx, query, id).Scan(
		&res.ReservationUUID,
		&res.AccountNumber,
		&res.Amount,
		&res.RequestUUID,
		&res.State,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}

	return &res, nil
}

// Claim transitions the reservation from OPEN to the given state. Returns
// false when the reservation is absent or no longer OPEN.
func (r *ReservationRepository) Claim(ctx context.Context, id uuid.UUID, to domain.ReservationState) (bool, error) {
	query := `
		UPDATE reservations
		SET state = $2, updated_at = now()
		WHERE reservation_uuid = $1 AND state = $3
	`

	tag, err := runner(ctx, r.pool).Exec(ctx, query, id, string(to), string(domain.ReservationOpen))
	if err != nil {
		return false, fmt.Errorf("failed to claim reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}
