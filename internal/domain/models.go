package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SystemActor is recorded as UpdatedBy when a write carries no explicit actor.
const SystemActor = "SYSTEM"

// MoneyScale is the number of decimal places balances and amounts are stored with.
const MoneyScale = 4

// FitsMoneyScale reports whether d can be stored without rounding.
func FitsMoneyScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MoneyScale))
}

// AccountStatus is the lifecycle state of an account.
type AccountStatus string

const (
	StatusLive                AccountStatus = "Live"
	StatusDisabled            AccountStatus = "Disabled"
	StatusInboundPaymentsOnly AccountStatus = "InboundPaymentsOnly"
)

// Valid reports whether s is a known status.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusLive, StatusDisabled, StatusInboundPaymentsOnly:
		return true
	}
	return false
}

// Scheme names a payment rail a transfer is requested under.
type Scheme string

const (
	SchemeFasterPayments Scheme = "FasterPayments"
	SchemeBacs           Scheme = "Bacs"
	SchemeChaps          Scheme = "Chaps"
)

// ParseScheme matches s case-insensitively against the known schemes.
func ParseScheme(s string) (Scheme, error) {
	for _, known := range []Scheme{SchemeFasterPayments, SchemeBacs, SchemeChaps} {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown payment scheme %q", s)
}

// SchemeFlags is the bitset of schemes allowed to debit an account.
type SchemeFlags uint8

const (
	FlagFasterPayments SchemeFlags = 1 << iota
	FlagBacs
	FlagChaps
)

// Has reports whether every bit of flag is set.
func (f SchemeFlags) Has(flag SchemeFlags) bool {
	return flag != 0 && f&flag == flag
}

// FlagFor returns the allowed-schemes bit of a shipped scheme, or 0.
func FlagFor(s Scheme) SchemeFlags {
	switch s {
	case SchemeFasterPayments:
		return FlagFasterPayments
	case SchemeBacs:
		return FlagBacs
	case SchemeChaps:
		return FlagChaps
	}
	return 0
}

func (f SchemeFlags) String() string {
	var names []string
	if f.Has(FlagFasterPayments) {
		names = append(names, string(SchemeFasterPayments))
	}
	if f.Has(FlagBacs) {
		names = append(names, string(SchemeBacs))
	}
	if f.Has(FlagChaps) {
		names = append(names, string(SchemeChaps))
	}
	if len(names) == 0 {
		return "None"
	}
	return strings.Join(names, "|")
}

// Account is the balance-holding entity, keyed by its account number.
// Version is bumped by every successful replace and guards against lost updates.
type Account struct {
	Number         string          `json:"account_number"`
	Balance        decimal.Decimal `json:"balance"`
	Status         AccountStatus   `json:"status"`
	AllowedSchemes SchemeFlags     `json:"allowed_schemes"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	UpdatedBy      string          `json:"updated_by"`
}

// Clone returns a copy that can be mutated without touching the original.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// TransferRequest asks for Amount to move from DebtorAccount to CreditorAccount.
type TransferRequest struct {
	DebtorAccount   string          `json:"debtor_account_number"`
	CreditorAccount string          `json:"creditor_account_number"`
	Amount          decimal.Decimal `json:"amount"`
	Scheme          Scheme          `json:"payment_scheme"`
	PaymentDate     time.Time       `json:"payment_date"`
}

// TransferResult is the outcome of a transfer attempt. TransactionID is only
// set when Success is true.
type TransferResult struct {
	Success       bool      `json:"success"`
	Detail        string    `json:"details"`
	TransactionID uuid.UUID `json:"transaction_id,omitzero"`
}

// PaymentRecord is the immutable ledger entry of a completed transfer.
type PaymentRecord struct {
	TransactionID   uuid.UUID       `json:"transaction_id"`
	DebtorAccount   string          `json:"debtor_account_number"`
	CreditorAccount string          `json:"creditor_account_number"`
	Value           decimal.Decimal `json:"value"`
	Scheme          Scheme          `json:"payment_scheme"`
	TransactionDate time.Time       `json:"transaction_date"`
	CreatedAt       time.Time       `json:"created_at"`
}

// PaymentCompleted is published once per successful transfer.
type PaymentCompleted struct {
	Payment PaymentRecord
}
