package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/deposit-ledger/posting-engine/internal/domain"
)

// PostingReader is the read-only slice of the posting service the HTTP
// surface needs.
type PostingReader interface {
	AccountBalance(ctx context.Context, number string) (*domain.Account, int64, error)
	AccountTransactions(ctx context.Context, number string, limit int32) ([]domain.LoggedTransaction, error)
	ReservationByUUID(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
}

// Handler serves the read-only operational surface. Postings never arrive
// over HTTP; they come in on the request queue only.
type Handler struct {
	service PostingReader
}

// NewHandler creates a Handler backed by the posting service.
func NewHandler(service PostingReader) *Handler {
	return &Handler{service: service}
}

// Router builds the chi router for the operational endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/accounts/{number}/balance", h.accountBalance)
	r.Get("/accounts/{number}/transactions", h.accountTransactions)
	r.Get("/reservations/{uuid}", h.reservation)

	return r
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type balanceResponse struct {
	AccountNumber           string `json:"accountNumber"`
	LifecycleStatus         string `json:"lifecycleStatus"`
	ProtectAgainstOverdraft bool   `json:"protectAgainstOverdraft"`
	Balance                 int64  `json:"balance"`
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	account, balance, err := h.service.AccountBalance(r.Context(), number)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		log.Printf("failed to read account balance: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		AccountNumber:           account.AccountNumber,
		LifecycleStatus:         string(account.LifecycleStatus),
		ProtectAgainstOverdraft: account.ProtectAgainstOverdraft,
		Balance:                 balance,
	})
}

type transactionResponse struct {
	TransactionUUID      string    `json:"transactionUuid"`
	TransactionTypeCode  string    `json:"transactionTypeCode"`
	AccountNumber        string    `json:"accountNumber"`
	RequestUUID          string    `json:"requestUuid"`
	ReservationUUID      *string   `json:"reservationUuid,omitempty"`
	TransactionAmount    int64     `json:"transactionAmount"`
	RunningBalanceAmount int64     `json:"runningBalanceAmount"`
	TransactionTime      time.Time `json:"transactionTime"`
}

func (h *Handler) accountTransactions(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")

	limit := int32(50)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = int32(n)
	}

	entries, err := h.service.AccountTransactions(r.Context(), number, limit)
	if err != nil {
		if errors.Is(err, domain.ErrAccountNotFound) {
			writeError(w, http.StatusNotFound, "account not found")
			return
		}
		log.Printf("failed to list account transactions: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]transactionResponse, 0, len(entries))
	for i := range entries {
		entry := &entries[i]
		item := transactionResponse{
			TransactionUUID:      entry.TransactionUUID.String(),
			TransactionTypeCode:  string(entry.TypeCode),
			AccountNumber:        entry.AccountNumber,
			RequestUUID:          entry.RequestUUID.String(),
			TransactionAmount:    entry.TransactionAmount,
			RunningBalanceAmount: entry.RunningBalanceAmount,
			TransactionTime:      entry.TransactionTime,
		}
		if entry.ReservationUUID != nil {
			s := entry.ReservationUUID.String()
			item.ReservationUUID = &s
		}
		out = append(out, item)
	}
	writeJSON(w, http.StatusOK, out)
}

type reservationResponse struct {
	ReservationUUID string `json:"reservationUuid"`
	AccountNumber   string `json:"accountNumber"`
	Amount          int64  `json:"amount"`
	RequestUUID     string `json:"requestUuid"`
	State           string `json:"state"`
}

func (h *Handler) reservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid reservation uuid")
		return
	}

	res, err := h.service.ReservationByUUID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrReservationNotFound) {
			writeError(w, http.StatusNotFound, "reservation not found")
			return
		}
		log.Printf("failed to read reservation: %v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, reservationResponse{
		ReservationUUID: res.ReservationUUID.String(),
		AccountNumber:   res.AccountNumber,
		Amount:          res.Amount,
		RequestUUID:     res.RequestUUID.String(),
		State:           string(res.State),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
