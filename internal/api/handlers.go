package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
	"github.com/punchamoorthee/payrail/internal/store"
)

const maxBodyBytes = 1 << 20

func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/api/v1/payments"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "stream read error", method, endpoint)
		return
	}

	// Idempotency-Key is optional. When present the key is reserved before
	// the engine runs and the final response is stored for replay.
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idem != nil {
		hash := sha256.Sum256(bodyBytes)
		existing, err := h.idem.Reserve(r.Context(), key, hex.EncodeToString(hash[:]))
		switch {
		case errors.Is(err, store.ErrIdempotencyConflict):
			h.respondError(w, http.StatusConflict, "request processing in progress", method, endpoint)
			return
		case errors.Is(err, store.ErrIdempotencyMismatch):
			h.respondError(w, http.StatusUnprocessableEntity, "key reuse with mismatched payload", method, endpoint)
			return
		case err != nil:
			h.logger.Error("failed to reserve idempotency key", zap.String("key", key), zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
			return
		case existing != nil:
			h.respondRaw(w, existing.ResponseStatus, existing.ResponseBody, method, endpoint)
			return
		}
	} else {
		key = ""
	}

	code, payload := h.executePayment(r.Context(), bodyBytes)
	body, err := json.Marshal(payload)
	if err != nil {
		code, body = http.StatusInternalServerError, []byte(`{"error":"internal server error"}`)
	}

	if key != "" {
		// Server faults are retryable, everything else is a final answer.
		ctx := context.WithoutCancel(r.Context())
		if code >= http.StatusInternalServerError {
			err = h.idem.Release(ctx, key)
		} else {
			err = h.idem.Complete(ctx, key, code, body)
		}
		if err != nil {
			h.logger.Error("failed to settle idempotency key", zap.String("key", key), zap.Error(err))
		}
	}

	h.respondRaw(w, code, body, method, endpoint)
}

// executePayment decodes the body, runs the engine and maps the result to a
// status code and payload.
func (h *Handler) executePayment(ctx context.Context, body []byte) (int, any) {
	var req models.PaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return http.StatusBadRequest, models.ErrorResponse{Error: "malformed JSON body"}
	}

	sc, err := domain.ParseScheme(req.PaymentScheme)
	if err != nil {
		return http.StatusBadRequest, models.ErrorResponse{Error: err.Error()}
	}
	if !h.service.SupportsScheme(sc) {
		return http.StatusBadRequest, models.ErrorResponse{Error: fmt.Sprintf("payment scheme %s is not supported", sc)}
	}

	paymentDate := time.Now().UTC()
	if req.PaymentDate != "" {
		paymentDate, err = time.Parse(time.RFC3339, req.PaymentDate)
		if err != nil {
			return http.StatusBadRequest, models.ErrorResponse{Error: "payment_date must be RFC3339"}
		}
	}

	result, err := h.service.Transfer(ctx, domain.TransferRequest{
		DebtorAccount:   req.DebtorAccountNumber,
		CreditorAccount: req.CreditorAccountNumber,
		Amount:          req.Amount,
		Scheme:          sc,
		PaymentDate:     paymentDate,
	})
	switch {
	case err != nil && domain.IsValidationError(err):
		return http.StatusBadRequest, models.ErrorResponse{Error: err.Error()}
	case err != nil:
		h.logger.Error("payment failed", zap.Error(err))
		return http.StatusInternalServerError, models.ErrorResponse{Error: "internal server error"}
	case !result.Success:
		return http.StatusBadRequest, result
	}
	return http.StatusOK, result
}

func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/api/v1/payments/{transactionId}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	id, err := uuid.Parse(mux.Vars(r)["transactionId"])
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid transaction id", method, endpoint)
		return
	}

	payment, err := h.service.GetPayment(r.Context(), id)
	switch {
	case errors.Is(err, store.ErrPaymentNotFound):
		h.respondError(w, http.StatusNotFound, "payment not found", method, endpoint)
	case domain.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case err != nil:
		h.logger.Error("failed to load payment", zap.Stringer("transaction_id", id), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	default:
		h.respondJSON(w, http.StatusOK, payment, method, endpoint)
	}
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/api/v1/accounts/{accountNumber}"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	number := mux.Vars(r)["accountNumber"]
	account, err := h.service.GetAccount(r.Context(), number)
	if err != nil {
		h.accountError(w, err, number, method, endpoint)
		return
	}
	h.respondJSON(w, http.StatusOK, account, method, endpoint)
}

func (h *Handler) ListAccountPayments(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "GET", "/api/v1/accounts/{accountNumber}/payments"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	number := mux.Vars(r)["accountNumber"]
	payments, err := h.service.ListPayments(r.Context(), number)
	if err != nil {
		h.accountError(w, err, number, method, endpoint)
		return
	}
	if payments == nil {
		payments = []*domain.PaymentRecord{}
	}
	h.respondJSON(w, http.StatusOK, payments, method, endpoint)
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	const method, endpoint = "POST", "/api/v1/accounts"
	timer := prometheus.NewTimer(httpLatency.WithLabelValues(method, endpoint))
	defer timer.ObserveDuration()

	var req models.CreateAccountRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "malformed JSON body", method, endpoint)
		return
	}

	var flags domain.SchemeFlags
	for _, name := range req.AllowedSchemes {
		sc, err := domain.ParseScheme(name)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
			return
		}
		flags |= domain.FlagFor(sc)
	}

	status := domain.AccountStatus(req.Status)
	if status == "" {
		status = domain.StatusLive
	}

	account, err := h.service.CreateAccount(r.Context(), &domain.Account{
		Number:         req.AccountNumber,
		Balance:        req.Balance,
		Status:         status,
		AllowedSchemes: flags,
	})
	switch {
	case errors.Is(err, store.ErrAccountExists):
		h.respondError(w, http.StatusConflict, "account already exists", method, endpoint)
	case domain.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case err != nil:
		h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	default:
		w.Header().Set("Location", "/api/v1/accounts/"+account.Number)
		h.respondJSON(w, http.StatusCreated, account, method, endpoint)
	}
}

func (h *Handler) accountError(w http.ResponseWriter, err error, number, method, endpoint string) {
	switch {
	case errors.Is(err, store.ErrAccountNotFound):
		h.respondError(w, http.StatusNotFound, "account not found", method, endpoint)
	case domain.IsValidationError(err):
		h.respondError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	default:
		h.logger.Error("failed to load account", zap.String("account_number", number), zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal server error", method, endpoint)
	}
}
