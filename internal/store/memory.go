package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/models"
)

// MemoryAccounts is an AccountStore backed by a map. Values are copied in
// and out so callers never share state with the store.
type MemoryAccounts struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

func NewMemoryAccounts() *MemoryAccounts {
	return &MemoryAccounts{accounts: make(map[string]*domain.Account)}
}

func (s *MemoryAccounts) FindOne(ctx context.Context, number string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accounts[number]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return acc.Clone(), nil
}

func (s *MemoryAccounts) Insert(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.Number]; ok {
		return nil, ErrAccountExists
	}
	stampInsert(account, now())
	account.Version = 0
	s.accounts[account.Number] = account.Clone()
	return account, nil
}

func (s *MemoryAccounts) ReplaceMany(ctx context.Context, accounts ...*domain.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range accounts {
		cur, ok := s.accounts[a.Number]
		if !ok {
			return ErrAccountNotFound
		}
		if cur.Version != a.Version {
			return ErrVersionConflict
		}
	}

	at := now()
	for _, a := range accounts {
		stampReplace(a, at)
		a.Version++
		s.accounts[a.Number] = a.Clone()
	}
	return nil
}

// MemoryLedger is a LedgerStore backed by a map.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.PaymentRecord
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[uuid.UUID]*domain.PaymentRecord)}
}

func (s *MemoryLedger) Insert(ctx context.Context, record *domain.PaymentRecord) (*domain.PaymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[record.TransactionID]; ok {
		return nil, ErrDuplicatePayment
	}
	record.CreatedAt = now()
	cp := *record
	s.records[record.TransactionID] = &cp
	return record, nil
}

func (s *MemoryLedger) FindOne(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	cp := *rec
	return &cp, nil
}

// ListByAccount returns records where number is debtor or creditor, newest first.
func (s *MemoryLedger) ListByAccount(ctx context.Context, number string) ([]*domain.PaymentRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PaymentRecord
	for _, rec := range s.records {
		if rec.DebtorAccount == number || rec.CreditorAccount == number {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TransactionDate.After(out[j].TransactionDate)
	})
	return out, nil
}

// Len is the number of stored records.
func (s *MemoryLedger) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MemoryIdempotency is an IdempotencyStore backed by a map.
type MemoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]*models.IdempotencyRecord
}

func NewMemoryIdempotency() *MemoryIdempotency {
	return &MemoryIdempotency{keys: make(map[string]*models.IdempotencyRecord)}
}

func (s *MemoryIdempotency) Reserve(ctx context.Context, key, hash string) (*models.IdempotencyRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		s.keys[key] = &models.IdempotencyRecord{
			Key:         key,
			RequestHash: hash,
			Status:      models.IdempotencyInProgress,
		}
		return nil, nil
	}
	if rec.RequestHash != hash {
		return nil, ErrIdempotencyMismatch
	}
	if rec.Status != models.IdempotencyCompleted {
		return nil, ErrIdempotencyConflict
	}
	cp := *rec
	return &cp, nil
}

func (s *MemoryIdempotency) Complete(ctx context.Context, key string, status int, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.keys[key]
	if !ok {
		return ErrIdempotencyConflict
	}
	rec.Status = models.IdempotencyCompleted
	rec.ResponseStatus = status
	rec.ResponseBody = append([]byte(nil), body...)
	return nil
}

func (s *MemoryIdempotency) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.keys[key]; ok && rec.Status != models.IdempotencyCompleted {
		delete(s.keys, key)
	}
	return nil
}
