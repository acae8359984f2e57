package domain

import (
	"github.com/google/uuid"
)

// ReservationRequest places a provisional hold against an account.
// TransactionAmount is negative.
type ReservationRequest struct {
	RequestUUID       uuid.UUID
	AccountNumber     string
	TransactionAmount int64
	JSONMetaData      string
}

// CommitReservationRequest finalizes an open reservation with the given
// commit amount, which may differ from the original hold.
type CommitReservationRequest struct {
	RequestUUID       uuid.UUID
	AccountNumber     string
	ReservationUUID   uuid.UUID
	TransactionAmount int64
	JSONMetaData      string
}

// CancelReservationRequest releases an open reservation in full.
type CancelReservationRequest struct {
	RequestUUID     uuid.UUID
	AccountNumber   string
	ReservationUUID uuid.UUID
	JSONMetaData    string
}

// TransactionRequest posts a direct transaction against an account.
type TransactionRequest struct {
	RequestUUID             uuid.UUID
	AccountNumber           string
	TransactionAmount       int64
	AuthorizeAgainstBalance bool
	ProtectAgainstOverdraft bool
	JSONMetaData            string
}

// TransferRequest moves funds between two accounts in one request.
type TransferRequest struct {
	RequestUUID               uuid.UUID
	TransferFromAccountNumber string
	TransferToAccountNumber   string
	TransactionAmount         int64
	JSONMetaData              string
}

// PostingRequest is a tagged union over the five request kinds. Exactly one
// field is non-nil.
type PostingRequest struct {
	Reservation *ReservationRequest
	Commit      *CommitReservationRequest
	Cancel      *CancelReservationRequest
	Transaction *TransactionRequest
	Transfer    *TransferRequest
}

// RequestKind identifies which arm of the PostingRequest union is set.
type RequestKind string

const (
	KindReservation RequestKind = "RESERVATION"
	KindCommit      RequestKind = "COMMIT_RESERVATION"
	KindCancel      RequestKind = "CANCEL_RESERVATION"
	KindTransaction RequestKind = "TRANSACTION"
	KindTransfer    RequestKind = "TRANSFER"
	KindUnknown     RequestKind = "UNKNOWN"
)

// Kind returns the request kind, or KindUnknown when no arm is set.
func (r PostingRequest) Kind() RequestKind {
	switch {
	case r.Reservation != nil:
		return KindReservation
	case r.Commit != nil:
		return KindCommit
	case r.Cancel != nil:
		return KindCancel
	case r.Transaction != nil:
		return KindTransaction
	case r.Transfer != nil:
		return KindTransfer
	default:
		return KindUnknown
	}
}

// RequestUUID returns the request UUID of whichever arm is set.
func (r PostingRequest) RequestUUID() uuid.UUID {
	switch {
	case r.Reservation != nil:
		return r.Reservation.RequestUUID
	case r.Commit != nil:
		return r.Commit.RequestUUID
	case r.Cancel != nil:
		return r.Cancel.RequestUUID
	case r.Transaction != nil:
		return r.Transaction.RequestUUID
	case r.Transfer != nil:
		return r.Transfer.RequestUUID
	default:
		return uuid.Nil
	}
}

// Validate checks that exactly one arm is set and that the set arm carries
// the fields the engine needs.
func (r PostingRequest) Validate() error {
	set := 0
	if r.Reservation != nil {
		set++
	}
	if r.Commit != nil {
		set++
	}
	if r.Cancel != nil {
		set++
	}
	if r.Transaction != nil {
		set++
	}
	if r.Transfer != nil {
		set++
	}
	if set != 1 {
		return ErrMalformedRequest
	}

	switch {
	case r.Reservation != nil:
		if r.Reservation.RequestUUID == uuid.Nil || r.Reservation.AccountNumber == "" {
			return ErrMalformedRequest
		}
		if r.Reservation.TransactionAmount >= 0 {
			return ErrMalformedRequest
		}
	case r.Commit != nil:
		if r.Commit.RequestUUID == uuid.Nil || r.Commit.AccountNumber == "" || r.Commit.ReservationUUID == uuid.Nil {
			return ErrMalformedRequest
		}
	case r.Cancel != nil:
		if r.Cancel.RequestUUID == uuid.Nil || r.Cancel.AccountNumber == "" || r.Cancel.ReservationUUID == uuid.Nil {
			return ErrMalformedRequest
		}
	case r.Transaction != nil:
		if r.Transaction.RequestUUID == uuid.Nil || r.Transaction.AccountNumber == "" {
			return ErrMalformedRequest
		}
	case r.Transfer != nil:
		t := r.Transfer
		if t.RequestUUID == uuid.Nil || t.TransferFromAccountNumber == "" || t.TransferToAccountNumber == "" {
			return ErrMalformedRequest
		}
		if t.TransactionAmount == 0 || t.TransferFromAccountNumber == t.TransferToAccountNumber {
			return ErrMalformedRequest
		}
	}
	return nil
}
