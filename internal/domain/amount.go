package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// maxAmountScale bounds the number of decimal places accepted on the wire.
// The ledger stores NUMERIC(40,18); anything finer is a client error.
const maxAmountScale = 18

// ParseAmount parses a positive monetary value from its wire representation.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive, got %s", d)
	}
	if int(d.Exponent()) < -maxAmountScale {
		return decimal.Zero, fmt.Errorf("amount %s exceeds %d decimal places", d, maxAmountScale)
	}
	return d, nil
}
