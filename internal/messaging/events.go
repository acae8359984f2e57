package messaging

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// RequestEnvelope is the JSON message consumed from the request queue.
// The trace headers are carried through unchanged onto every published
// transaction and the final response.
type RequestEnvelope struct {
	ProducerID          string         `json:"producerId"`
	BusinessTaxonomyID  string         `json:"businessTaxonomyId"`
	CorrelationID       string         `json:"correlationId"`
	MessageCreationTime time.Time      `json:"messageCreationTime"`
	Request             RequestPayload `json:"request"`
}

// RequestPayload is the wire form of the posting request union. Exactly one
// field is set.
type RequestPayload struct {
	Reservation *ReservationPayload `json:"reservationRequest,omitempty"`
	Commit      *CommitPayload      `json:"commitReservationRequest,omitempty"`
	Cancel      *CancelPayload      `json:"cancelReservationRequest,omitempty"`
	Transaction *TransactionPayload `json:"transactionRequest,omitempty"`
	Transfer    *TransferPayload    `json:"transferRequest,omitempty"`
}

// ReservationPayload requests a provisional hold.
type ReservationPayload struct {
	RequestUUID       string `json:"requestUuid"`
	AccountNumber     string `json:"accountNumber"`
	TransactionAmount int64  `json:"transactionAmount"`
	JSONMetaData      string `json:"jsonMetaData"`
}

// CommitPayload finalizes an open reservation.
type CommitPayload struct {
	RequestUUID       string `json:"requestUuid"`
	AccountNumber     string `json:"accountNumber"`
	ReservationUUID   string `json:"reservationUuid"`
	TransactionAmount int64  `json:"transactionAmount"`
	JSONMetaData      string `json:"jsonMetaData"`
}

// CancelPayload releases an open reservation.
type CancelPayload struct {
	RequestUUID     string `json:"requestUuid"`
	AccountNumber   string `json:"accountNumber"`
	ReservationUUID string `json:"reservationUuid"`
	JSONMetaData    string `json:"jsonMetaData"`
}

// TransactionPayload posts a direct transaction.
type TransactionPayload struct {
	RequestUUID             string `json:"requestUuid"`
	AccountNumber           string `json:"accountNumber"`
	TransactionAmount       int64  `json:"transactionAmount"`
	AuthorizeAgainstBalance bool   `json:"authorizeAgainstBalance"`
	ProtectAgainstOverdraft bool   `json:"protectAgainstOverdraft"`
	JSONMetaData            string `json:"jsonMetaData"`
}

// TransferPayload moves funds between two accounts.
type TransferPayload struct {
	RequestUUID               string `json:"requestUuid"`
	TransferFromAccountNumber string `json:"transferFromAccountNumber"`
	TransferToAccountNumber   string `json:"transferToAccountNumber"`
	TransactionAmount         int64  `json:"transactionAmount"`
	JSONMetaData              string `json:"jsonMetaData"`
}

// LoggedTransactionPayload is the wire form of one ledger entry.
type LoggedTransactionPayload struct {
	TransactionUUID      string    `json:"transactionUuid"`
	TransactionTypeCode  string    `json:"transactionTypeCode"`
	AccountNumber        string    `json:"accountNumber"`
	RequestUUID          string    `json:"requestUuid"`
	ReservationUUID      *string   `json:"reservationUuid,omitempty"`
	TransactionAmount    int64     `json:"transactionAmount"`
	RunningBalanceAmount int64     `json:"runningBalanceAmount"`
	TransactionMetaData  string    `json:"transactionMetaDataJson"`
	TransactionTime      time.Time `json:"transactionTime"`
}

// TransactionEvent is one ledger entry published to the transaction stream,
// wrapped in the originating request's trace headers.
type TransactionEvent struct {
	ProducerID          string                   `json:"producerId"`
	BusinessTaxonomyID  string                   `json:"businessTaxonomyId"`
	CorrelationID       string                   `json:"correlationId"`
	MessageCreationTime time.Time                `json:"messageCreationTime"`
	Transaction         LoggedTransactionPayload `json:"transaction"`
}

// ResponseEnvelope is the final response published per request.
type ResponseEnvelope struct {
	ProducerID            string                     `json:"producerId"`
	BusinessTaxonomyID    string                     `json:"businessTaxonomyId"`
	CorrelationID         string                     `json:"correlationId"`
	MessageCreationTime   time.Time                  `json:"messageCreationTime"`
	MessageCompletionTime time.Time                  `json:"messageCompletionTime"`
	Status                string                     `json:"status"`
	ErrorMessage          string                     `json:"errorMessage,omitempty"`
	Request               RequestPayload             `json:"request"`
	Transactions          []LoggedTransactionPayload `json:"transactions"`
}

// ToDomain converts the wire payload into the domain posting request.
func (p RequestPayload) ToDomain() (domain.PostingRequest, error) {
	var req domain.PostingRequest

	switch {
	case p.Reservation != nil:
		requestUUID, err := uuid.Parse(p.Reservation.RequestUUID)
		if err != nil {
			return req, fmt.Errorf("invalid requestUuid: %w", err)
		}
		req.Reservation = &domain.ReservationRequest{
			RequestUUID:       requestUUID,
			AccountNumber:     p.Reservation.AccountNumber,
			TransactionAmount: p.Reservation.TransactionAmount,
			JSONMetaData:      p.Reservation.JSONMetaData,
		}
	case p.Commit != nil:
		requestUUID, err := uuid.Parse(p.Commit.RequestUUID)
		if err != nil {
			return req, fmt.Errorf("invalid requestUuid: %w", err)
		}
		reservationUUID, err := uuid.Parse(p.Commit.ReservationUUID)
		if err != nil {
			return req, fmt.Errorf("invalid reservationUuid: %w", err)
		}
		req.Commit = &domain.CommitReservationRequest{
			RequestUUID:       requestUUID,
			AccountNumber:     p.Commit.AccountNumber,
			ReservationUUID:   reservationUUID,
			TransactionAmount: p.Commit.TransactionAmount,
			JSONMetaData:      p.Commit.JSONMetaData,
		}
	case p.Cancel != nil:
		requestUUID, err := uuid.Parse(p.Cancel.RequestUUID)
		if err != nil {
			return req, fmt.Errorf("invalid requestUuid: %w", err)
		}
		reservationUUID, err := uuid.Parse(p.Cancel.ReservationUUID)
		if err != nil {
			return req, fmt.Errorf("invalid reservationUuid: %w", err)
		}
		req.Cancel = &domain.CancelReservationRequest{
			RequestUUID:     requestUUID,
			AccountNumber:   p.Cancel.AccountNumber,
			ReservationUUID: reservationUUID,
			JSONMetaData:    p.Cancel.JSONMetaData,
		}
	case p.Transaction != nil:
		requestUUID, err := uuid.Parse(p.Transaction.RequestUUID)
		if err != nil {
			return req, fmt.Errorf("invalid requestUuid: %w", err)
		}
		req.Transaction = &domain.TransactionRequest{
			RequestUUID:             requestUUID,
			AccountNumber:           p.Transaction.AccountNumber,
			TransactionAmount:       p.Transaction.TransactionAmount,
			AuthorizeAgainstBalance: p.Transaction.AuthorizeAgainstBalance,
			ProtectAgainstOverdraft: p.Transaction.ProtectAgainstOverdraft,
			JSONMetaData:            p.Transaction.JSONMetaData,
		}
	case p.Transfer != nil:
		requestUUID, err := uuid.Parse(p.Transfer.RequestUUID)
		if err != nil {
			return req, fmt.Errorf("invalid requestUuid: %w", err)
		}
		req.Transfer = &domain.TransferRequest{
			RequestUUID:               requestUUID,
			TransferFromAccountNumber: p.Transfer.TransferFromAccountNumber,
			TransferToAccountNumber:   p.Transfer.TransferToAccountNumber,
			TransactionAmount:         p.Transfer.TransactionAmount,
			JSONMetaData:              p.Transfer.JSONMetaData,
		}
	default:
		return req, domain.ErrMalformedRequest
	}

	return req, nil
}

// transactionPayload converts a domain ledger entry to its wire form.
func transactionPayload(entry *domain.LoggedTransaction) LoggedTransactionPayload {
	payload := LoggedTransactionPayload{
		TransactionUUID:      entry.TransactionUUID.String(),
		TransactionTypeCode:  string(entry.TypeCode),
		AccountNumber:        entry.AccountNumber,
		RequestUUID:          entry.RequestUUID.String(),
		TransactionAmount:    entry.TransactionAmount,
		RunningBalanceAmount: entry.RunningBalanceAmount,
		TransactionMetaData:  entry.MetaData,
		TransactionTime:      entry.TransactionTime,
	}
	if entry.ReservationUUID != nil {
		s := entry.ReservationUUID.String()
		payload.ReservationUUID = &s
	}
	return payload
}
