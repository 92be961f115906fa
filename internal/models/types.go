package models

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// PaymentRequest is the payload from the client. Scheme stays a string so
// unknown names can be rejected with a client error before reaching the engine.
type PaymentRequest struct {
	DebtorAccountNumber   string          `json:"debtor_account_number"`
	CreditorAccountNumber string          `json:"creditor_account_number"`
	Amount                decimal.Decimal `json:"amount"`
	PaymentScheme         string          `json:"payment_scheme"`
	PaymentDate           string          `json:"payment_date,omitempty"`
}

// CreateAccountRequest seeds a new account.
type CreateAccountRequest struct {
	AccountNumber  string          `json:"account_number"`
	Balance        decimal.Decimal `json:"balance"`
	Status         string          `json:"status"`
	AllowedSchemes []string        `json:"allowed_schemes"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	IdempotencyInProgress = "in_progress"
	IdempotencyCompleted  = "completed"
)

// IdempotencyRecord holds the state of a request key.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   json.RawMessage
	ResponseStatus int
}
