package entity

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point amount in a single currency. Amounts are stored at
// 2 decimal places; exchange rates at 6.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

const (
	amountPlaces = 2
	ratePlaces   = 6
)

// NewMoney builds a Money from an amount string (e.g. "100.00") and a
// currency code. The amount is normalized to 2 decimal places, half-up.
func NewMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if len(currency) != 3 {
		return Money{}, fmt.Errorf("%w: currency %q", ErrInvalidAmount, currency)
	}
	return Money{Amount: d.Round(amountPlaces), Currency: currency}, nil
}

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool {
	return m.Amount.IsPositive()
}

// String formats the amount with its currency code, e.g. "92.00 EUR".
func (m Money) String() string {
	return m.Amount.StringFixed(amountPlaces) + " " + m.Currency
}

// ConvertWithRate converts m into the target currency using the supplied
// rate. The converted amount is rounded half-up to 2 decimal places; the
// returned rate is kept at the 6-decimal audit precision. No lookup is
// performed here, so the function is pure.
func ConvertWithRate(m Money, to string, rate decimal.Decimal) (Money, decimal.Decimal) {
	to = strings.ToUpper(strings.TrimSpace(to))
	if m.Currency == to {
		return m, decimal.New(1, 0)
	}
	rate = rate.Round(ratePlaces)
	converted := m.Amount.Mul(rate).Round(amountPlaces)
	return Money{Amount: converted, Currency: to}, rate
}
