package domain

import "errors"

var (
	// ErrMalformedRequest is returned when a posting request has no arm set,
	// more than one arm set, or is missing required fields.
	ErrMalformedRequest = errors.New("malformed posting request")

	// ErrAccountNotFound is returned when an account is absent from the
	// reference data.
	ErrAccountNotFound = errors.New("account not found")

	// ErrReservationNotFound is returned when a reservation UUID is unknown.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrClaimLost is returned when a reservation claim that the engine
	// decided should succeed is lost at apply time. It indicates a registry
	// that is not linearizing claims per UUID.
	ErrClaimLost = errors.New("reservation claim lost")
)
