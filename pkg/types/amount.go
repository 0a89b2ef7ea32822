package types

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AmountPrecision is the number of fractional digits GlobalCoyn amounts
// carry.
const AmountPrecision = 8

// amountScale is 10^AmountPrecision, the number of base units per whole coin.
const amountScale = 100_000_000

// Amount is a non-negative fixed-point value, stored as an integer count
// of base units (1 base unit = 1e-8 GCN) to keep balance and fee
// arithmetic exact.
type Amount int64

// NewAmount constructs an Amount from a count of base units,
// e.g. NewAmount(5_000_000_000) == 50 GCN.
func NewAmount(units int64) Amount {
	return Amount(units)
}

// ParseAmount parses a decimal string (e.g. "10.5", "0.00000001") into an
// Amount, rejecting negative values and more than AmountPrecision
// fractional digits.
func ParseAmount(s string) (Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative amount: %s", s)
	}
	whole, frac, hasFrac := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	wholeVal, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	var fracVal int64
	if hasFrac {
		if len(frac) > AmountPrecision {
			return 0, fmt.Errorf("amount %q has more than %d fractional digits", s, AmountPrecision)
		}
		padded := frac + strings.Repeat("0", AmountPrecision-len(frac))
		fracVal, err = strconv.ParseInt(padded, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	if wholeVal > (math.MaxInt64-fracVal)/amountScale {
		return 0, fmt.Errorf("amount %q overflows", s)
	}
	return Amount(wholeVal*amountScale + fracVal), nil
}

// Add returns a+b with no overflow check (callers validate bounds first).
func (a Amount) Add(b Amount) Amount { return a + b }

// Sub returns a-b.
func (a Amount) Sub(b Amount) Amount { return a - b }

// IsNegative reports whether the amount is below zero.
func (a Amount) IsNegative() bool { return a < 0 }

// Int64 returns the raw base-unit count.
func (a Amount) Int64() int64 { return int64(a) }

// String renders the amount as a decimal string with up to AmountPrecision
// fractional digits, trimming trailing zeros (but keeping at least "0").
func (a Amount) String() string {
	neg := ""
	v := int64(a)
	if v < 0 {
		neg = "-"
		v = -v
	}
	whole := v / amountScale
	frac := v % amountScale
	fracStr := fmt.Sprintf("%08d", frac)
	fracStr = strings.TrimRight(fracStr, "0")
	if fracStr == "" {
		return fmt.Sprintf("%s%d", neg, whole)
	}
	return fmt.Sprintf("%s%d.%s", neg, whole, fracStr)
}

// MarshalJSON encodes the amount as a decimal string, not a JSON number,
// to avoid float round-tripping through the wire or on disk.
func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON decodes a decimal string into an Amount.
func (a *Amount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAmount(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
