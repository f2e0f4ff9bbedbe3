package money

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// Money is an exact decimal currency amount. Arithmetic is performed on an
// integer-scaled coefficient, so there is no binary floating-point drift and
// comparisons are always exact.
type Money struct {
	dec decimal.Decimal
}

// Zero is the zero amount.
var Zero = Money{}

// New creates a Money from major and minor-exponent parts, e.g.
// New(1200, 0) == 1200.00 and New(50, -2) == 0.50.
func New(value int64, exp int32) Money {
	return Money{dec: decimal.New(value, exp)}
}

// FromString parses a decimal string ("1200", "499.99") into a Money.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{dec: d}, nil
}

// MustFromString parses a decimal string and panics on failure. For constants
// and tests only.
func MustFromString(s string) Money {
	m, err := FromString(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{dec: m.dec.Add(o.dec)}
}

// Sub returns m - o.
func (m Money) Sub(o Money) Money {
	return Money{dec: m.dec.Sub(o.dec)}
}

// SubClamped returns m - o, floored at zero. Used for due amounts, which are
// never negative.
func (m Money) SubClamped(o Money) Money {
	r := m.dec.Sub(o.dec)
	if r.IsNegative() {
		return Zero
	}
	return Money{dec: r}
}

// Cmp compares m and o: -1 if m < o, 0 if equal, +1 if m > o.
func (m Money) Cmp(o Money) int {
	return m.dec.Cmp(o.dec)
}

// Equal reports exact equality.
func (m Money) Equal(o Money) bool {
	return m.dec.Equal(o.dec)
}

// IsPositive reports whether m > 0.
func (m Money) IsPositive() bool {
	return m.dec.IsPositive()
}

// IsNegative reports whether m < 0.
func (m Money) IsNegative() bool {
	return m.dec.IsNegative()
}

// IsZero reports whether m == 0.
func (m Money) IsZero() bool {
	return m.dec.IsZero()
}

// String renders the amount as a plain decimal string.
func (m Money) String() string {
	return m.dec.String()
}

// StringFixed renders the amount with the given number of decimal places.
func (m Money) StringFixed(places int32) string {
	return m.dec.StringFixed(places)
}

// Value implements driver.Valuer so Money maps to a SQL decimal column.
func (m Money) Value() (driver.Value, error) {
	return m.dec.Value()
}

// Scan implements sql.Scanner.
func (m *Money) Scan(value interface{}) error {
	return m.dec.Scan(value)
}

// MarshalJSON renders the amount as a JSON number string, preserving scale.
func (m Money) MarshalJSON() ([]byte, error) {
	return m.dec.MarshalJSON()
}

// UnmarshalJSON accepts both JSON numbers and decimal strings.
func (m *Money) UnmarshalJSON(data []byte) error {
	return m.dec.UnmarshalJSON(data)
}

// Sum adds a list of amounts.
func Sum(amounts ...Money) Money {
	total := Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
