package node

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// FormatUnits renders an integer amount of base units as a decimal string with
// exactly decimals fraction digits: ("50059810", 6) -> "50.059810". Input that
// is not a plain unsigned integer is returned unchanged; empty input is "0".
func FormatUnits(value string, decimals int32) string {
	if value == "" {
		return "0"
	}
	if strings.IndexFunc(value, func(r rune) bool { return r < '0' || r > '9' }) >= 0 {
		return value
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return value
	}
	return d.Shift(-decimals).StringFixed(decimals)
}

// ParseUnits converts a human amount such as "1.5" to base units. The amount
// must be non-negative and have at most decimals fraction digits.
func ParseUnits(amount string, decimals int32) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("parse amount %q: negative", amount)
	}
	base := d.Shift(decimals)
	if !base.Equal(base.Truncate(0)) {
		return 0, fmt.Errorf("parse amount %q: more than %d decimal places", amount, decimals)
	}
	bi := base.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("parse amount %q: out of range", amount)
	}
	return bi.Uint64(), nil
}
