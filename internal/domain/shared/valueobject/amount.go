package valueobject

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultEpsilon is the tolerance under which two amounts are treated as equal
var DefaultEpsilon = decimal.NewFromFloat(0.01)

// Tolerance compares monetary amounts that went through text parsing or float conversion.
type Tolerance struct {
	epsilon decimal.Decimal
}

// NewTolerance creates a tolerance. A non-positive epsilon falls back to DefaultEpsilon.
func NewTolerance(epsilon decimal.Decimal) Tolerance {
	if !epsilon.IsPositive() {
		epsilon = DefaultEpsilon
	}
	return Tolerance{epsilon: epsilon}
}

// NewToleranceFromFloat creates a tolerance from a float epsilon
func NewToleranceFromFloat(epsilon float64) Tolerance {
	return NewTolerance(decimal.NewFromFloat(epsilon))
}

// Epsilon returns the configured epsilon
func (t Tolerance) Epsilon() decimal.Decimal {
	if t.epsilon.IsZero() {
		return DefaultEpsilon
	}
	return t.epsilon
}

// Equal reports |a-b| <= epsilon
func (t Tolerance) Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(t.Epsilon())
}

// Exceeds reports |a-b| > epsilon
func (t Tolerance) Exceeds(a, b decimal.Decimal) bool {
	return !t.Equal(a, b)
}

// Meets reports |a-b| >= epsilon
func (t Tolerance) Meets(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().GreaterThanOrEqual(t.Epsilon())
}

// ParseAmount parses spreadsheet money text such as "1,234.50" or "$ 99".
// Thousands separators and every character other than digits, '.' and '-' are dropped.
// Empty input yields zero.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned := keepNumeric(s)
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// ParsePercentage parses "12.5%" into 12.5
func ParsePercentage(s string) (decimal.Decimal, error) {
	return ParseAmount(strings.ReplaceAll(s, "%", ""))
}

// SumAmounts adds the given amounts
func SumAmounts(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

func keepNumeric(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
