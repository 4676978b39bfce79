package values

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value in integer minor currency units
// (cents, kopecks). Auction arithmetic stays in int64 so concurrent price
// updates never accumulate floating-point drift; decimal is used only at the
// parse/format boundary.
type Money struct {
	minorUnits int64
	currency   string
}

// Common currency codes (ISO 4217)
const (
	USD = "USD"
	EUR = "EUR"
	GBP = "GBP"
	PLN = "PLN"
	CAD = "CAD"
)

// minorUnitsPerMajor is fixed at 100 for every supported currency.
const minorUnitsPerMajor = 100

// NewMoney creates a new Money value object from minor units
func NewMoney(minorUnits int64, currency string) (Money, error) {
	if err := validateCurrency(currency); err != nil {
		return Money{}, err
	}

	return Money{
		minorUnits: minorUnits,
		currency:   strings.ToUpper(currency),
	}, nil
}

// NewMoneyFromString creates Money from a decimal string amount ("1050.00")
// and currency
func NewMoneyFromString(amount, currency string) (Money, error) {
	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("invalid amount: %w", err)
	}

	minor := dec.Mul(decimal.NewFromInt(minorUnitsPerMajor))
	if !minor.IsInteger() {
		return Money{}, fmt.Errorf("amount %s has sub-minor-unit precision", amount)
	}

	return NewMoney(minor.IntPart(), currency)
}

// MustNewMoney creates Money and panics on error (for constants/tests)
func MustNewMoney(minorUnits int64, currency string) Money {
	m, err := NewMoney(minorUnits, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// Zero returns a zero Money value in the given currency
func Zero(currency string) Money {
	return MustNewMoney(0, currency)
}

// MinorUnits returns the amount in minor currency units
func (m Money) MinorUnits() int64 {
	return m.minorUnits
}

// Currency returns the currency code
func (m Money) Currency() string {
	return m.currency
}

// Decimal returns the amount as a decimal in major units
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.minorUnits).Div(decimal.NewFromInt(minorUnitsPerMajor))
}

// String returns money with currency code (e.g. "1050.00 USD")
func (m Money) String() string {
	return m.Decimal().StringFixed(2) + " " + m.currency
}

// IsZero checks if the amount is zero
func (m Money) IsZero() bool {
	return m.minorUnits == 0
}

// IsPositive checks if the amount is positive
func (m Money) IsPositive() bool {
	return m.minorUnits > 0
}

// IsNegative checks if the amount is negative
func (m Money) IsNegative() bool {
	return m.minorUnits < 0
}

// Equal checks if two Money values are equal (same amount and currency)
func (m Money) Equal(other Money) bool {
	return m.minorUnits == other.minorUnits && m.currency == other.currency
}

// Compare returns -1, 0, or 1 based on comparison with other Money.
// Panics if currencies don't match.
func (m Money) Compare(other Money) int {
	if m.currency != other.currency {
		panic(fmt.Sprintf("cannot compare different currencies: %s vs %s", m.currency, other.currency))
	}
	switch {
	case m.minorUnits < other.minorUnits:
		return -1
	case m.minorUnits > other.minorUnits:
		return 1
	default:
		return 0
	}
}

// Add adds two Money values (must have same currency)
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot add different currencies: %s and %s", m.currency, other.currency)
	}

	return Money{
		minorUnits: m.minorUnits + other.minorUnits,
		currency:   m.currency,
	}, nil
}

// Sub subtracts other Money from this Money (must have same currency)
func (m Money) Sub(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, fmt.Errorf("cannot subtract different currencies: %s and %s", m.currency, other.currency)
	}

	return Money{
		minorUnits: m.minorUnits - other.minorUnits,
		currency:   m.currency,
	}, nil
}

// JSON marshaling
func (m Money) MarshalJSON() ([]byte, error) {
	data := struct {
		MinorUnits int64  `json:"minor_units"`
		Currency   string `json:"currency"`
	}{
		MinorUnits: m.minorUnits,
		Currency:   m.currency,
	}
	return json.Marshal(data)
}

// JSON unmarshaling
func (m *Money) UnmarshalJSON(data []byte) error {
	var temp struct {
		MinorUnits int64  `json:"minor_units"`
		Currency   string `json:"currency"`
	}

	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	money, err := NewMoney(temp.MinorUnits, temp.Currency)
	if err != nil {
		return err
	}

	*m = money
	return nil
}

// Database scanning (implements sql.Scanner); columns store minor units as BIGINT
func (m *Money) Scan(value interface{}) error {
	if value == nil {
		*m = Money{}
		return nil
	}

	switch v := value.(type) {
	case int64:
		m.minorUnits = v
		if m.currency == "" {
			m.currency = USD
		}
		return nil
	case []byte:
		return m.scanFromString(string(v))
	case string:
		return m.scanFromString(v)
	default:
		return fmt.Errorf("cannot scan %T into Money", value)
	}
}

// Database value (implements driver.Valuer)
func (m Money) Value() (driver.Value, error) {
	return m.minorUnits, nil
}

func (m *Money) scanFromString(s string) error {
	if strings.HasPrefix(s, "{") {
		return m.UnmarshalJSON([]byte(s))
	}

	money, err := NewMoneyFromString(s, USD)
	if err != nil {
		return fmt.Errorf("invalid money format: %w", err)
	}

	*m = money
	return nil
}

// Helper functions

func validateCurrency(currency string) error {
	if currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}

	currency = strings.ToUpper(currency)

	// Basic ISO 4217 format validation
	if len(currency) != 3 {
		return fmt.Errorf("currency code must be 3 characters")
	}

	validCurrencies := map[string]bool{
		USD: true, EUR: true, GBP: true, PLN: true, CAD: true,
		"AUD": true, "CHF": true, "SEK": true, "NOK": true, "NZD": true,
	}

	if !validCurrencies[currency] {
		return fmt.Errorf("unsupported currency: %s", currency)
	}

	return nil
}
