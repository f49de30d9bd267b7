// Package types provides common value types used across Pledge.
package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Money is a quantity of the ledger asset in its smallest unit.
// All arithmetic is integer-only and arbitrary precision, so wei amounts
// far beyond the int64 range are represented exactly.
//
// Amount is never mutated after construction; operations return new values.
//
// Examples:
//   - New(5e17, "eth") = 0.5 ETH (in wei)
//   - New(4900, "usd") = 49.00 USD (in cents)
type Money struct {
	Amount   *big.Int `json:"amount"`   // Smallest unit (wei, satoshi, cents)
	Currency string   `json:"currency"` // Lowercase asset code: "eth", "btc", "usd"
}

// ErrCurrencyMismatch is returned by checked operations on Money values
// carrying different currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// New creates a Money value of amount smallest units.
func New(amount int64, currency string) Money {
	return FromBig(big.NewInt(amount), currency)
}

// FromBig creates a Money value from an arbitrary precision amount of
// smallest units. The amount is copied.
func FromBig(amount *big.Int, currency string) Money {
	v := new(big.Int)
	if amount != nil {
		v.Set(amount)
	}
	return Money{Amount: canon(v), Currency: strings.ToLower(currency)}
}

// ParseUnits reads a base-10 integer count of smallest units ("1500000000000000000").
func ParseUnits(s, currency string) (Money, error) {
	digits := strings.TrimPrefix(s, "-")
	if !isDigits(digits) {
		return Money{}, fmt.Errorf("money: parse units %q: not an integer", s)
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Money{}, fmt.Errorf("money: parse units %q: not an integer", s)
	}
	return Money{Amount: canon(v), Currency: strings.ToLower(currency)}, nil
}

// Zero returns a zero Money value in the specified currency.
func Zero(currency string) Money { return New(0, currency) }

// Parse reads a decimal string in major units ("0.05") into Money.
// Digits beyond the currency's precision are rejected rather than rounded.
// A single leading '-' is the only sign accepted.
func Parse(s, currency string) (Money, error) {
	currency = strings.ToLower(currency)
	in := s
	s = strings.TrimSpace(s)
	if s == "" {
		return Money{}, fmt.Errorf("money: parse %q: empty amount", in)
	}

	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return Money{}, fmt.Errorf("money: parse %q: no digits", in)
	}
	if (whole != "" && !isDigits(whole)) || (frac != "" && !isDigits(frac)) {
		return Money{}, fmt.Errorf("money: parse %q: invalid syntax", in)
	}
	decimals := Decimals(currency)
	if len(frac) > decimals {
		return Money{}, fmt.Errorf("money: parse %q: more than %d decimals for %s", in, decimals, currency)
	}
	frac += strings.Repeat("0", decimals-len(frac))

	v, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return Money{}, fmt.Errorf("money: parse %q: invalid syntax", in)
	}
	if negative {
		v.Neg(v)
	}
	return Money{Amount: canon(v), Currency: currency}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded values.
func MustParse(s, currency string) Money {
	m, err := Parse(s, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Arithmetic operations

// Add adds two Money values. Panics if currencies don't match.
func (m Money) Add(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: canon(new(big.Int).Add(m.amount(), other.amount())), Currency: m.Currency}
}

// Subtract subtracts another Money value. Panics if currencies don't match.
func (m Money) Subtract(other Money) Money {
	m.assertSameCurrency(other)
	return Money{Amount: canon(new(big.Int).Sub(m.amount(), other.amount())), Currency: m.Currency}
}

// Comparison methods

// IsZero returns true if the amount is zero.
func (m Money) IsZero() bool { return m.amount().Sign() == 0 }

// IsPositive returns true if the amount is greater than zero.
func (m Money) IsPositive() bool { return m.amount().Sign() > 0 }

// IsNegative returns true if the amount is less than zero.
func (m Money) IsNegative() bool { return m.amount().Sign() < 0 }

// SameCurrency reports whether both values share a currency.
func (m Money) SameCurrency(other Money) bool { return m.Currency == other.Currency }

// Equal returns true if both Money values are equal (same amount and currency).
func (m Money) Equal(other Money) bool {
	return m.Currency == other.Currency && m.amount().Cmp(other.amount()) == 0
}

// LessThan returns true if this Money is less than other. Panics if currencies don't match.
func (m Money) LessThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.amount().Cmp(other.amount()) < 0
}

// GreaterThan returns true if this Money is greater than other. Panics if currencies don't match.
func (m Money) GreaterThan(other Money) bool {
	m.assertSameCurrency(other)
	return m.amount().Cmp(other.amount()) > 0
}

// Formatting methods

// Units returns the amount in smallest units as a base-10 string.
func (m Money) Units() string { return m.amount().String() }

// FormatMajor returns the amount in major units without the currency code.
// "0.05" for New(5e16, "eth"), "49.00" for New(4900, "usd").
// Trailing zeros beyond two decimals are trimmed.
func (m Money) FormatMajor() string {
	decimals := Decimals(m.Currency)
	if decimals == 0 {
		return m.Units()
	}

	isNegative := m.IsNegative()
	digits := new(big.Int).Abs(m.amount()).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}

	major := digits[:len(digits)-decimals]
	minor := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if len(minor) < 2 && decimals >= 2 {
		minor += strings.Repeat("0", 2-len(minor))
	}

	result := major + "." + minor
	if isNegative {
		return "-" + result
	}
	return result
}

// String returns a human-readable string: "0.05 ETH".
func (m Money) String() string {
	return m.FormatMajor() + " " + strings.ToUpper(m.Currency)
}

// MarshalJSON implements json.Marshaler. The amount is a string of smallest
// units so values above 2^53 survive JavaScript clients.
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Amount   string `json:"amount"`
		Currency string `json:"currency"`
		Display  string `json:"display"`
	}{
		Amount:   m.Units(),
		Currency: m.Currency,
		Display:  m.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. It accepts the amount as a
// string or a bare JSON number of smallest units.
func (m *Money) UnmarshalJSON(data []byte) error {
	var raw struct {
		Amount   json.RawMessage `json:"amount"`
		Currency string          `json:"currency"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	units := strings.Trim(string(raw.Amount), `"`)
	if units == "" || units == "null" {
		units = "0"
	}
	parsed, err := ParseUnits(units, raw.Currency)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// amount returns the amount, treating a nil Amount as zero.
func (m Money) amount() *big.Int {
	if m.Amount == nil {
		return new(big.Int)
	}
	return m.Amount
}

// assertSameCurrency panics if currencies don't match.
func (m Money) assertSameCurrency(other Money) {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("%v: %s != %s", ErrCurrencyMismatch, m.Currency, other.Currency))
	}
}

// canon gives every zero the same representation so equal values are
// also deeply equal.
func canon(v *big.Int) *big.Int {
	if v.Sign() == 0 {
		return new(big.Int)
	}
	return v
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Decimals returns the number of decimal places of a currency's smallest unit.
func Decimals(currency string) int {
	switch strings.ToLower(currency) {
	case "eth", "wei":
		return 18
	case "btc", "ltc":
		return 8
	case "jpy", "krw", "unit":
		return 0
	default:
		return 2
	}
}

// Sum calculates the sum of multiple Money values. All must have the same currency.
func Sum(currency string, values ...Money) Money {
	result := Zero(currency)
	for _, v := range values {
		result = result.Add(v)
	}
	return result
}
