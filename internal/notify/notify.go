// Package notify dispatches completed-payment events to in-process subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/punchamoorthee/payrail/internal/domain"
	"github.com/punchamoorthee/payrail/internal/store"
)

// Subscriber observes completed payments. An error aborts dispatch.
type Subscriber interface {
	Name() string
	Handle(ctx context.Context, evt domain.PaymentCompleted) error
}

// SubscriberFunc adapts a function to Subscriber.
type SubscriberFunc struct {
	Label string
	Fn    func(ctx context.Context, evt domain.PaymentCompleted) error
}

func (f SubscriberFunc) Name() string { return f.Label }

func (f SubscriberFunc) Handle(ctx context.Context, evt domain.PaymentCompleted) error {
	return f.Fn(ctx, evt)
}

// Notifier calls its subscribers in order, synchronously. The subscriber list
// is fixed at construction so Publish is safe for concurrent use.
type Notifier struct {
	subscribers []Subscriber
	logger      *zap.Logger
}

func New(logger *zap.Logger, subscribers ...Subscriber) *Notifier {
	return &Notifier{
		subscribers: append([]Subscriber(nil), subscribers...),
		logger:      logger,
	}
}

// Publish returns once every subscriber has handled evt, or at the first failure.
func (n *Notifier) Publish(ctx context.Context, evt domain.PaymentCompleted) error {
	for _, s := range n.subscribers {
		if err := s.Handle(ctx, evt); err != nil {
			n.logger.Error("payment subscriber failed",
				zap.String("subscriber", s.Name()),
				zap.String("transaction_id", evt.Payment.TransactionID.String()),
				zap.Error(err),
			)
			return fmt.Errorf("subscriber %s: %w", s.Name(), err)
		}
	}
	return nil
}

// LedgerWriter persists every completed payment to the ledger. Redelivery of
// an already recorded payment is a no-op, so delivery may be at-least-once.
type LedgerWriter struct {
	ledger store.LedgerStore
}

func NewLedgerWriter(ledger store.LedgerStore) *LedgerWriter {
	return &LedgerWriter{ledger: ledger}
}

func (w *LedgerWriter) Name() string { return "ledger" }

func (w *LedgerWriter) Handle(ctx context.Context, evt domain.PaymentCompleted) error {
	rec := evt.Payment
	_, err := w.ledger.Insert(ctx, &rec)
	if errors.Is(err, store.ErrDuplicatePayment) {
		existing, ferr := w.ledger.FindOne(ctx, rec.TransactionID)
		if ferr != nil {
			return fmt.Errorf("record payment: %w", ferr)
		}
		if samePayment(existing, &evt.Payment) {
			return nil
		}
	}
	if err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	return nil
}

func samePayment(a, b *domain.PaymentRecord) bool {
	return a.TransactionID == b.TransactionID &&
		a.DebtorAccount == b.DebtorAccount &&
		a.CreditorAccount == b.CreditorAccount &&
		a.Value.Equal(b.Value) &&
		a.Scheme == b.Scheme
}

// AuditLog writes one structured line per completed payment.
type AuditLog struct {
	logger *zap.Logger
}

func NewAuditLog(logger *zap.Logger) *AuditLog {
	return &AuditLog{logger: logger}
}

func (a *AuditLog) Name() string { return "audit" }

func (a *AuditLog) Handle(_ context.Context, evt domain.PaymentCompleted) error {
	p := evt.Payment
	a.logger.Info("payment completed",
		zap.String("transaction_id", p.TransactionID.String()),
		zap.String("debtor_account", p.DebtorAccount),
		zap.String("creditor_account", p.CreditorAccount),
		zap.Stringer("value", p.Value),
		zap.String("scheme", string(p.Scheme)),
		zap.Time("transaction_date", p.TransactionDate),
	)
	return nil
}
