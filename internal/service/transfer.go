package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/lock"
	"github.com/punchamoorthee/payrail/internal/metrics"
	"github.com/punchamoorthee/payrail/internal/scheme"
	"github.com/punchamoorthee/payrail/internal/store"
)

// Rejection details returned to callers. They are stable and safe to show.
const (
	DetailDebtorNotFound     = "debtor account not found"
	DetailDebtorNotLive      = "debtor account not live"
	DetailInsufficientFunds  = "insufficient funds"
	DetailSchemeNotPermitted = "scheme not permitted for this account"
	DetailCreditorNotFound   = "creditor account not found"
	DetailCreditorNotLive    = "creditor account not live"
)

// ErrCompensationFailed means a committed balance change could not be undone
// after the payment record failed to persist. Balances and ledger disagree
// and need manual repair.
var ErrCompensationFailed = errors.New("balance compensation failed")

// SchemeResolver finds the authorization rule for a scheme.
type SchemeResolver interface {
	Resolve(sc domain.Scheme) (scheme.Strategy, error)
	Supports(sc domain.Scheme) bool
}

// Publisher delivers a completed payment to its subscribers before returning.
type Publisher interface {
	Publish(ctx context.Context, evt domain.PaymentCompleted) error
}

type TransferService struct {
	accounts store.AccountStore
	ledger   store.LedgerStore
	resolver SchemeResolver
	notifier Publisher
	metrics  metrics.Recorder
	locks    *lock.Table
	logger   *zap.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

func NewTransferService(
	accounts store.AccountStore,
	ledger store.LedgerStore,
	resolver SchemeResolver,
	notifier Publisher,
	recorder metrics.Recorder,
	logger *zap.Logger,
) *TransferService {
	return &TransferService{
		accounts: accounts,
		ledger:   ledger,
		resolver: resolver,
		notifier: notifier,
		metrics:  recorder,
		locks:    lock.NewTable(),
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
	}
}

// Transfer moves req.Amount from the debtor to the creditor account.
//
// Business rejections come back as a result with Success=false and a nil
// error. A non-nil error means a malformed request (*domain.ValidationError),
// an unsupported scheme, cancellation before commit, or a storage failure.
// In those cases no balance has changed, except when the error wraps
// ErrCompensationFailed: the balances moved, no record exists and the
// restore write failed.
//
// Both accounts stay locked, in account-number order, from the first read
// until the ledger record is written.
func (s *TransferService) Transfer(ctx context.Context, req domain.TransferRequest) (*domain.TransferResult, error) {
	if err := validateTransferRequest(req); err != nil {
		s.logger.Warn("invalid transfer request",
			zap.String("debtor_account", req.DebtorAccount),
			zap.String("creditor_account", req.CreditorAccount),
			zap.Error(err),
		)
		return nil, err
	}

	log := s.logger.With(
		zap.String("debtor_account", req.DebtorAccount),
		zap.String("creditor_account", req.CreditorAccount),
		zap.Stringer("amount", req.Amount),
		zap.String("scheme", string(req.Scheme)),
	)

	release, err := s.locks.Acquire(ctx, req.DebtorAccount, req.CreditorAccount)
	if err != nil {
		return nil, s.abort(log, "acquire account locks", err)
	}
	defer release()

	debtor, err := s.accounts.FindOne(ctx, req.DebtorAccount)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return s.reject(log, DetailDebtorNotFound), nil
		}
		return nil, s.abort(log, "load debtor account", err)
	}
	if debtor.Status != domain.StatusLive {
		return s.reject(log, DetailDebtorNotLive), nil
	}
	if debtor.Balance.LessThan(req.Amount) {
		return s.reject(log, DetailInsufficientFunds), nil
	}

	strategy, err := s.resolver.Resolve(req.Scheme)
	if err != nil {
		return nil, s.abort(log, "resolve payment scheme", err)
	}
	if !strategy.Authorize(debtor, req) {
		return s.reject(log, DetailSchemeNotPermitted), nil
	}

	creditor, err := s.accounts.FindOne(ctx, req.CreditorAccount)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return s.reject(log, DetailCreditorNotFound), nil
		}
		return nil, s.abort(log, "load creditor account", err)
	}
	if creditor.Status != domain.StatusLive {
		return s.reject(log, DetailCreditorNotLive), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, s.abort(log, "transfer cancelled", err)
	}

	debtor.Balance = debtor.Balance.Sub(req.Amount)
	creditor.Balance = creditor.Balance.Add(req.Amount)
	if err := s.accounts.ReplaceMany(ctx, debtor, creditor); err != nil {
		return nil, s.abort(log, "update balances", err)
	}

	// Committed: from here on the caller's cancellation no longer applies.
	committed := context.WithoutCancel(ctx)

	record := domain.PaymentRecord{
		TransactionID:   s.newID(),
		DebtorAccount:   req.DebtorAccount,
		CreditorAccount: req.CreditorAccount,
		Value:           req.Amount,
		Scheme:          req.Scheme,
		TransactionDate: s.now().UTC(),
	}

	if err := s.notifier.Publish(committed, domain.PaymentCompleted{Payment: record}); err != nil {
		if cerr := s.compensate(committed, debtor, creditor, req); cerr != nil {
			log.Error("failed to restore balances after ledger failure",
				zap.String("transaction_id", record.TransactionID.String()),
				zap.Error(cerr),
			)
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrCompensationFailed, cerr))
		}
		return nil, s.abort(log, "publish payment", err)
	}

	s.metrics.RecordSuccess()
	log.Info("payment processed", zap.String("transaction_id", record.TransactionID.String()))

	return &domain.TransferResult{
		Success:       true,
		Detail:        fmt.Sprintf("payment processed with transaction id: %s", record.TransactionID),
		TransactionID: record.TransactionID,
	}, nil
}

// compensate puts both balances back after the ledger refused the record.
// The account locks are still held, so nothing else can have moved them.
func (s *TransferService) compensate(ctx context.Context, debtor, creditor *domain.Account, req domain.TransferRequest) error {
	debtor.Balance = debtor.Balance.Add(req.Amount)
	creditor.Balance = creditor.Balance.Sub(req.Amount)
	return s.accounts.ReplaceMany(ctx, debtor, creditor)
}

func (s *TransferService) reject(log *zap.Logger, detail string) *domain.TransferResult {
	s.metrics.RecordFailure()
	log.Warn("payment rejected", zap.String("detail", detail))
	return &domain.TransferResult{Success: false, Detail: detail}
}

func (s *TransferService) abort(log *zap.Logger, op string, err error) error {
	s.metrics.RecordFailure()
	log.Error("payment failed", zap.String("operation", op), zap.Error(err))
	return fmt.Errorf("%s: %w", op, err)
}

func validateTransferRequest(req domain.TransferRequest) error {
	if req.DebtorAccount == "" {
		return domain.NewValidationError("debtor_account_number", "must be non-empty")
	}
	if req.CreditorAccount == "" {
		return domain.NewValidationError("creditor_account_number", "must be non-empty")
	}
	if req.DebtorAccount == req.CreditorAccount {
		return domain.NewValidationError("creditor_account_number", "must differ from the debtor account")
	}
	if !req.Amount.IsPositive() {
		return domain.NewValidationError("amount", "must be positive")
	}
	if !domain.FitsMoneyScale(req.Amount) {
		return domain.NewValidationError("amount", fmt.Sprintf("at most %d decimal places", domain.MoneyScale))
	}
	return nil
}
