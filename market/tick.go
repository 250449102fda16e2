package market

import (
	"fmt"
	"math"
)

// tickStep is one bracket of the KRW price staircase.
type tickStep struct {
	from float64
	tick float64
}

// KRW tick table, largest bracket first. Prices at or above `from` move in
// increments of `tick`.
var krwTicks = []tickStep{
	{100_000_000, 10_000},
	{2_000_000, 1_000},
	{1_000_000, 500},
	{500_000, 100},
	{100_000, 50},
	{10_000, 10},
	{1_000, 1},
	{100, 1},
	{10, 0.1},
	{1, 0.01},
	{0.1, 0.001},
	{0.01, 0.0001},
	{0.001, 0.00001},
	{0.0001, 0.000001},
	{0, 0.0000001},
}

// TickSize returns the minimum price increment for a KRW-quoted price.
func TickSize(price float64) float64 {
	for _, step := range krwTicks {
		if price >= step.from {
			return step.tick
		}
	}
	return krwTicks[len(krwTicks)-1].tick
}

// CheckTick verifies a limit price is an exact multiple of the applicable
// tick, within floating epsilon. Only the default quote currency has a tick
// constraint; other quotes pass unchecked.
func CheckTick(quote string, price float64) error {
	if quote != DefaultQuote {
		return nil
	}
	tick := TickSize(price)
	rem := math.Abs(math.Remainder(price, tick))
	if rem > tick*1e-6 {
		return fmt.Errorf("%w: price %v requires tick %v", ErrTickMisaligned, price, tick)
	}
	return nil
}

// NotionalPolicy is the per-quote-currency minimum order value. It is a
// policy input: exchange-side minimums change over time.
type NotionalPolicy map[string]float64

// CheckNotional verifies the resolved quote-currency value of an order meets
// the configured floor for its quote currency.
func (p NotionalPolicy) CheckNotional(quote string, value float64) error {
	floor, ok := p[quote]
	if !ok {
		return nil
	}
	if value < floor {
		return fmt.Errorf("%w: %v %s < %v %s", ErrBelowMinNotional, value, quote, floor, quote)
	}
	return nil
}
