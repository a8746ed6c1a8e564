package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is a money amount in integer minor units (cents). All internal
// arithmetic runs on this type so that accumulating thousands of entries
// cannot drift; decimal conversion happens only at the presentation boundary.
type Cents int64

// Epsilon is the balance tolerance used across the pipeline: one cent.
const Epsilon Cents = 1

// FromDecimal converts a decimal currency amount to cents, rounding to the
// nearest cent (banker's rounding is deliberately not used; the upstream
// extraction already emits two-decimal amounts).
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Shift(2).Round(0).IntPart())
}

// ParseString parses a decimal string like "7500.00" into cents.
func ParseString(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}
	return FromDecimal(d), nil
}

// FromFloat converts a float amount in major units to cents. Untrusted
// extraction output arrives as floats; convert once at the ingestion edge.
func FromFloat(f float64) Cents {
	return FromDecimal(decimal.NewFromFloat(f))
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String renders the amount with two decimal places, e.g. "75.00".
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}

// Abs returns the absolute value.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// WithinEpsilon reports whether two amounts differ by less than one cent.
// With integer minor units that means exact equality.
func WithinEpsilon(a, b Cents) bool {
	return (a - b).Abs() < Epsilon
}
