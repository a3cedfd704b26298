// Package money provides the decimal amount + currency pair used across
// payment history calculations.
//
// Amounts are exact decimals; arithmetic between two values is only defined
// when both carry the same currency code.
package money

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrCurrencyMismatch is returned when arithmetic mixes two currencies.
var ErrCurrencyMismatch = errors.New("money: currency mismatch")

// Scale and MaxIntegerDigits match the NUMERIC(20,6) amount columns, so a
// parsed amount is stored exactly.
const (
	Scale            = 6
	MaxIntegerDigits = 14
)

var maxAmount = decimal.New(1, MaxIntegerDigits)

// Money is an immutable amount in a single currency.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// New builds a Money from a decimal and an ISO currency code.
func New(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: Normalize(currency)}
}

// FromInt is a convenience for whole-unit amounts (100 CAD).
func FromInt(units int64, currency string) Money {
	return New(decimal.NewFromInt(units), currency)
}

// Zero returns a zero amount in the given currency.
func Zero(currency string) Money {
	return New(decimal.Zero, currency)
}

// Parse converts a decimal string (e.g. "12.50") into Money.
//
// Rules:
//   - Empty string is rejected
//   - Negative amounts are rejected
//   - At most Scale decimal places and MaxIntegerDigits whole digits
//   - The currency code must be three letters
func Parse(amount, currency string) (Money, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return Money{}, fmt.Errorf("money: empty amount")
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("money: invalid amount %q: %w", amount, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("money: negative amount %q", amount)
	}
	if !d.Truncate(Scale).Equal(d) {
		return Money{}, fmt.Errorf("money: amount %q has more than %d decimal places", amount, Scale)
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return Money{}, fmt.Errorf("money: amount %q is too large", amount)
	}
	cur := Normalize(currency)
	if !ValidCurrency(cur) {
		return Money{}, fmt.Errorf("money: invalid currency %q", currency)
	}
	return Money{Amount: d, Currency: cur}, nil
}

// ValidCurrency reports whether code looks like an ISO 4217 alphabetic code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// Add returns m + o. Both operands must share a currency.
func (m Money) Add(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Add(o.Amount), Currency: Normalize(m.Currency)}, nil
}

// Sub returns m - o. Both operands must share a currency. The result may be
// negative; callers decide whether that is an invariant violation.
func (m Money) Sub(o Money) (Money, error) {
	if err := m.sameCurrency(o); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: Normalize(m.Currency)}, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

// IsNegative reports whether the amount is strictly below zero.
func (m Money) IsNegative() bool { return m.Amount.IsNegative() }

// IsZero reports whether the amount is zero.
func (m Money) IsZero() bool { return m.Amount.IsZero() }

// Equal compares amount (numerically, so 80 == 80.00) and currency.
func (m Money) Equal(o Money) bool {
	return Normalize(m.Currency) == Normalize(o.Currency) && m.Amount.Equal(o.Amount)
}

// String renders the amount with two decimal places followed by the currency
// code (e.g. "80.00 CAD").
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

func (m Money) sameCurrency(o Money) error {
	if Normalize(m.Currency) != Normalize(o.Currency) {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return nil
}

// Normalize upper-cases and trims a currency code.
func Normalize(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}
