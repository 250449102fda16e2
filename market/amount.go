package market

import (
	"fmt"
	"strconv"
	"strings"
)

// Amount is a parsed amount token: either an absolute quantity/notional or a
// percentage of the available balance.
type Amount struct {
	Value   float64
	Percent bool
}

// ParseAmount parses a numeric token, stripping thousands separators. A
// trailing '%' marks a percentage, which must be in (0, 100].
func ParseAmount(token string) (Amount, error) {
	raw := strings.TrimSpace(token)
	percent := strings.HasSuffix(raw, "%")
	if percent {
		raw = strings.TrimSuffix(raw, "%")
	}
	raw = strings.ReplaceAll(raw, ",", "")

	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q", ErrMalformedAmount, token)
	}
	if value <= 0 {
		return Amount{}, fmt.Errorf("%w: %q", ErrMalformedAmount, token)
	}
	if percent && value > 100 {
		return Amount{}, fmt.Errorf("%w: %v%%", ErrPercentOutOfRange, value)
	}

	return Amount{Value: value, Percent: percent}, nil
}

// ParsePrice parses a positive price token.
func ParsePrice(token string) (float64, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(token), ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, token)
	}
	return value, nil
}
