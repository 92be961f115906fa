package scheme

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/payrail/internal/domain"
)

func TestStrategiesAuthorizeByFlag(t *testing.T) {
	tests := []struct {
		name     string
		strategy Strategy
		allowed  domain.SchemeFlags
		want     bool
	}{
		{name: "bacs allowed", strategy: Bacs(), allowed: domain.FlagBacs | domain.FlagFasterPayments, want: true},
		{name: "bacs denied", strategy: Bacs(), allowed: domain.FlagFasterPayments, want: false},
		{name: "faster payments allowed", strategy: FasterPayments(), allowed: domain.FlagFasterPayments, want: true},
		{name: "faster payments denied", strategy: FasterPayments(), allowed: domain.FlagChaps, want: false},
		{name: "chaps allowed", strategy: Chaps(), allowed: domain.FlagBacs | domain.FlagChaps, want: true},
		{name: "chaps denied on empty bitset", strategy: Chaps(), allowed: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := &domain.Account{Number: "ACC1", AllowedSchemes: tt.allowed}
			assert.Equal(t, tt.want, tt.strategy.Authorize(acc, domain.TransferRequest{}))
		})
	}
}

func TestFlagStrategyNilAccount(t *testing.T) {
	assert.False(t, Bacs().Authorize(nil, domain.TransferRequest{}))
}

func TestResolverResolvesEveryDefault(t *testing.T) {
	r, err := NewResolver(DefaultStrategies()...)
	require.NoError(t, err)

	for _, sc := range []domain.Scheme{domain.SchemeBacs, domain.SchemeFasterPayments, domain.SchemeChaps} {
		s, err := r.Resolve(sc)
		require.NoError(t, err)
		assert.Equal(t, sc, s.Scheme())
		assert.True(t, r.Supports(sc))
	}
}

func TestResolverUnsupportedScheme(t *testing.T) {
	r, err := NewResolver(Bacs())
	require.NoError(t, err)

	_, err = r.Resolve(domain.SchemeChaps)
	require.ErrorIs(t, err, ErrUnsupportedScheme)
	assert.False(t, r.Supports(domain.SchemeChaps))
}

func TestResolverRejectsDuplicates(t *testing.T) {
	_, err := NewResolver(Bacs(), FasterPayments(), Bacs())
	require.ErrorIs(t, err, ErrDuplicateScheme)
}

func TestResolverAcceptsCustomScheme(t *testing.T) {
	const sepa domain.Scheme = "Sepa"
	r, err := NewResolver(append(DefaultStrategies(), FlagStrategy{Name: sepa, Flag: 1 << 3})...)
	require.NoError(t, err)

	s, err := r.Resolve(sepa)
	require.NoError(t, err)
	assert.True(t, s.Authorize(&domain.Account{AllowedSchemes: 1 << 3}, domain.TransferRequest{}))
}

func TestResolverRejectsNilStrategy(t *testing.T) {
	_, err := NewResolver(Bacs(), nil)
	assert.Error(t, err)
}
