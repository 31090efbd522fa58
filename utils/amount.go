package utils

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a non-negative decimal amount string.
func ParseAmount(amount string) (decimal.Decimal, error) {
	if amount == "" {
		return decimal.Decimal{}, fmt.Errorf("amount cannot be empty")
	}
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount format: %w", err)
	}
	if dec.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("amount cannot be negative")
	}
	return dec, nil
}

// ToAtomic converts a human-unit decimal amount into atomic units with the
// given number of decimals, truncating any excess precision.
func ToAtomic(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Shift(decimals).Truncate(0).BigInt()
}

// FromAtomic converts atomic units back into a human-unit decimal.
func FromAtomic(amount *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(amount, 0).Shift(-decimals)
}

// ParseBigInt parses a decimal integer string into a big.Int.
func ParseBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer format: %q", value)
	}
	return n, nil
}
