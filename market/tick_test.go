package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickSize(t *testing.T) {
	tests := []struct {
		price float64
		want  float64
	}{
		{price: 0.05, want: 0.0001},
		{price: 0.5, want: 0.001},
		{price: 5, want: 0.01},
		{price: 50, want: 0.1},
		{price: 500, want: 1},
		{price: 1500, want: 1},
		{price: 15_000, want: 10},
		{price: 150_000, want: 50},
		{price: 600_000, want: 100},
		{price: 1_500_000, want: 500},
		{price: 3_000_000, want: 1000},
		{price: 95_000_000, want: 1000},
		{price: 150_000_000, want: 10_000},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, TickSize(tt.price), "price %v", tt.price)
	}
}

func TestCheckTick(t *testing.T) {
	// 15,000 sits in the tick-10 bracket.
	assert.NoError(t, CheckTick("KRW", 15_010))
	assert.ErrorIs(t, CheckTick("KRW", 15_005), ErrTickMisaligned)

	assert.NoError(t, CheckTick("KRW", 3_000_000))
	assert.ErrorIs(t, CheckTick("KRW", 3_000_500), ErrTickMisaligned)

	// Fractional ticks within floating epsilon.
	assert.NoError(t, CheckTick("KRW", 0.03))
	assert.ErrorIs(t, CheckTick("KRW", 5.005), ErrTickMisaligned)

	// Non-default quotes carry no tick constraint.
	assert.NoError(t, CheckTick("BTC", 15_005))
	assert.NoError(t, CheckTick("USDT", 1.2345))
}

func TestNotionalPolicy(t *testing.T) {
	policy := NotionalPolicy{"KRW": 5000, "BTC": 0.0005}

	assert.NoError(t, policy.CheckNotional("KRW", 5000))
	assert.ErrorIs(t, policy.CheckNotional("KRW", 4999), ErrBelowMinNotional)
	assert.ErrorIs(t, policy.CheckNotional("BTC", 0.0001), ErrBelowMinNotional)

	// Unconfigured quotes have no floor.
	assert.NoError(t, policy.CheckNotional("DOGE", 0.01))
}
