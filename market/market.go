// Package market canonicalizes market symbols and amount tokens and
// enforces the exchange's price-tick and minimum-notional rules.
package market

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DefaultQuote is the quote currency assumed for bare base symbols.
const DefaultQuote = "KRW"

var (
	ErrInvalidMarket     = errors.New("invalid market symbol")
	ErrMalformedAmount   = errors.New("malformed amount")
	ErrPercentOutOfRange = errors.New("percentage must be in (0, 100]")
	ErrBelowMinNotional  = errors.New("order value below exchange minimum")
	ErrTickMisaligned    = errors.New("price not aligned to tick size")
)

// Normalize canonicalizes a market token. Tokens already in QUOTE-BASE form
// pass through; bare base symbols get the default quote prefixed. The result
// is idempotent: Normalize(Normalize(x)) == Normalize(x).
func Normalize(token string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(token))
	if !hasAlpha(symbol) {
		return "", fmt.Errorf("%w: %q", ErrInvalidMarket, token)
	}
	if strings.Contains(symbol, "-") {
		return symbol, nil
	}
	return DefaultQuote + "-" + symbol, nil
}

// Split returns the quote and base of a canonical market symbol.
func Split(symbol string) (quote, base string) {
	quote, base, found := strings.Cut(symbol, "-")
	if !found {
		return DefaultQuote, symbol
	}
	return quote, base
}

func hasAlpha(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
