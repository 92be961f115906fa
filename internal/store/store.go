// Package store persists accounts, completed payments and idempotency keys.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
)

var (
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrDuplicatePayment    = errors.New("transaction id already recorded")
	ErrVersionConflict     = errors.New("account modified concurrently")
	ErrIdempotencyConflict = errors.New("request in progress")
	ErrIdempotencyMismatch = errors.New("key reuse with mismatched payload")
)

// AccountStore holds account state keyed by account number.
type AccountStore interface {
	FindOne(ctx context.Context, number string) (*domain.Account, error)
	Insert(ctx context.Context, account *domain.Account) (*domain.Account, error)
	// ReplaceMany writes all accounts or none. Each account must still carry
	// the Version it was read with, otherwise ErrVersionConflict.
	ReplaceMany(ctx context.Context, accounts ...*domain.Account) error
}

// LedgerStore holds completed payment records keyed by transaction id.
type LedgerStore interface {
	Insert(ctx context.Context, record *domain.PaymentRecord) (*domain.PaymentRecord, error)
	FindOne(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error)
	ListByAccount(ctx context.Context, number string) ([]*domain.PaymentRecord, error)
}

// IdempotencyStore remembers responses to keyed requests.
type IdempotencyStore interface {
	// Reserve claims key for a request whose body hashes to hash. A nil record
	// means the caller owns the key and must Complete or Release it.
	Reserve(ctx context.Context, key, hash string) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

func now() time.Time {
	return time.Now().UTC()
}

func stampInsert(a *domain.Account, at time.Time) {
	a.CreatedAt = at
	a.UpdatedAt = at
	if a.UpdatedBy == "" {
		a.UpdatedBy = domain.SystemActor
	}
}

func stampReplace(a *domain.Account, at time.Time) {
	a.UpdatedAt = at
	if a.UpdatedBy == "" {
		a.UpdatedBy = domain.SystemActor
	}
}
