// Package scheme maps payment schemes to the rule deciding whether an account
// may be debited under them.
package scheme

import (
	"errors"
	"fmt"

	"github.com/punchamoorthee/payrail/internal/domain"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported payment scheme")
	ErrDuplicateScheme   = errors.New("payment scheme registered twice")
)

// Strategy authorizes debits for exactly one scheme.
type Strategy interface {
	Scheme() domain.Scheme
	Authorize(account *domain.Account, req domain.TransferRequest) bool
}

// FlagStrategy authorizes when the account's allowed-schemes bitset carries Flag.
type FlagStrategy struct {
	Name domain.Scheme
	Flag domain.SchemeFlags
}

func (s FlagStrategy) Scheme() domain.Scheme { return s.Name }

func (s FlagStrategy) Authorize(account *domain.Account, _ domain.TransferRequest) bool {
	return account != nil && account.AllowedSchemes.Has(s.Flag)
}

func Bacs() Strategy {
	return FlagStrategy{Name: domain.SchemeBacs, Flag: domain.FlagBacs}
}

func FasterPayments() Strategy {
	return FlagStrategy{Name: domain.SchemeFasterPayments, Flag: domain.FlagFasterPayments}
}

func Chaps() Strategy {
	return FlagStrategy{Name: domain.SchemeChaps, Flag: domain.FlagChaps}
}

// DefaultStrategies returns the schemes shipped with the service.
func DefaultStrategies() []Strategy {
	return []Strategy{Bacs(), FasterPayments(), Chaps()}
}

// Resolver is an immutable scheme → strategy table. Safe for concurrent use.
type Resolver struct {
	strategies map[domain.Scheme]Strategy
}

// NewResolver builds the table once. Registering the same scheme twice is a
// configuration error and fails construction.
func NewResolver(strategies ...Strategy) (*Resolver, error) {
	table := make(map[domain.Scheme]Strategy, len(strategies))
	for _, s := range strategies {
		if s == nil {
			return nil, errors.New("nil payment strategy")
		}
		if _, exists := table[s.Scheme()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateScheme, s.Scheme())
		}
		table[s.Scheme()] = s
	}
	return &Resolver{strategies: table}, nil
}

// Resolve returns the strategy for sc or ErrUnsupportedScheme.
func (r *Resolver) Resolve(sc domain.Scheme) (Strategy, error) {
	s, ok := r.strategies[sc]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, sc)
	}
	return s, nil
}

// Supports reports whether sc has a registered strategy.
func (r *Resolver) Supports(sc domain.Scheme) bool {
	_, ok := r.strategies[sc]
	return ok
}
