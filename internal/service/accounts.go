package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/store"
)

// SupportsScheme reports whether transfers under sc can be authorized at all.
// Callers routing user input use it to reject a scheme before Transfer would
// treat it as a configuration fault.
func (s *TransferService) SupportsScheme(sc domain.Scheme) bool {
	return s.resolver.Supports(sc)
}

// GetAccount returns the account or store.ErrAccountNotFound.
func (s *TransferService) GetAccount(ctx context.Context, number string) (*domain.Account, error) {
	if number == "" {
		return nil, domain.NewValidationError("account_number", "must be non-empty")
	}
	return s.accounts.FindOne(ctx, number)
}

// GetPayment returns the ledger record or store.ErrPaymentNotFound.
func (s *TransferService) GetPayment(ctx context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	if id == uuid.Nil {
		return nil, domain.NewValidationError("transaction_id", "must be set")
	}
	return s.ledger.FindOne(ctx, id)
}

// ListPayments returns every payment touching an existing account.
func (s *TransferService) ListPayments(ctx context.Context, number string) ([]*domain.PaymentRecord, error) {
	if _, err := s.GetAccount(ctx, number); err != nil {
		return nil, err
	}
	return s.ledger.ListByAccount(ctx, number)
}

// CreateAccount opens an account. Balances start where the caller says; this
// is the only way money enters the system.
func (s *TransferService) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	switch {
	case account.Number == "":
		return nil, domain.NewValidationError("account_number", "must be non-empty")
	case account.Balance.IsNegative():
		return nil, domain.NewValidationError("balance", "cannot be negative")
	case !domain.FitsMoneyScale(account.Balance):
		return nil, domain.NewValidationError("balance", fmt.Sprintf("at most %d decimal places", domain.MoneyScale))
	case !account.Status.Valid():
		return nil, domain.NewValidationError("status", "unknown account status")
	}

	created, err := s.accounts.Insert(ctx, account)
	if err != nil {
		if errors.Is(err, store.ErrAccountExists) {
			s.logger.Warn("account already exists", zap.String("account_number", account.Number))
		} else {
			s.logger.Error("failed to create account", zap.String("account_number", account.Number), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("account created", zap.String("account_number", created.Number))
	return created, nil
}
