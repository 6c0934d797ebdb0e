package cart

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const moneyPlaces = 2

// Money is a decimal amount in a single currency, kept at two decimal places.
type Money struct {
	Amount       decimal.Decimal
	CurrencyCode string
}

func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount.Round(moneyPlaces), CurrencyCode: strings.ToUpper(strings.TrimSpace(currency))}
}

// ZeroMoney returns a zero amount in the given currency.
func ZeroMoney(currency string) Money {
	return NewMoney(decimal.Zero, currency)
}

// ParseMoney parses a decimal string such as "10.00".
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	return NewMoney(d, currency), nil
}

func (m Money) Mul(quantity int) Money {
	return NewMoney(m.Amount.Mul(decimal.NewFromInt(int64(quantity))), m.CurrencyCode)
}

func (m Money) Add(other Money) Money {
	return NewMoney(m.Amount.Add(other.Amount), m.CurrencyCode)
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

// Equal compares amount and currency.
func (m Money) Equal(other Money) bool {
	return m.CurrencyCode == other.CurrencyCode && m.Amount.Equal(other.Amount)
}

// String renders the amount with two decimals, e.g. "10.00".
func (m Money) String() string {
	return m.Amount.StringFixed(moneyPlaces)
}

type moneyJSON struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currency_code"`
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.String(), CurrencyCode: m.CurrencyCode})
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var raw moneyJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Amount == "" {
		raw.Amount = "0"
	}
	parsed, err := ParseMoney(raw.Amount, raw.CurrencyCode)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
