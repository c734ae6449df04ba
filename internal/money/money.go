package money

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Epsilon is the tolerance for comparing stored base-currency amounts;
// RateEpsilon the tighter tolerance for conversion rates.
const (
	Epsilon     = 1e-5
	RateEpsilon = 1e-6
)

var ErrUnknownCurrency = errors.New("unknown currency")

// ApproxEqual compares two amounts at the storage tolerance.
func ApproxEqual(a, b float64) bool {
	return math.Abs(a-b) < Epsilon
}

// RatesApproxEqual compares two rates at the rate tolerance.
func RatesApproxEqual(a, b float64) bool {
	return math.Abs(a-b) < RateEpsilon
}

// Rates holds a static rate table against a base currency. Rates are
// units of base per unit of the quoted currency.
type Rates struct {
	base  string
	table map[string]float64
}

func NewRates(base string, table map[string]float64) Rates {
	copied := make(map[string]float64, len(table))
	for code, rate := range table {
		copied[code] = rate
	}
	return Rates{base: base, table: copied}
}

// DefaultRates is the built-in table used when no external rate source
// is configured.
func DefaultRates() Rates {
	return NewRates("KZT", map[string]float64{
		"USD": 500.0,
		"EUR": 590.0,
		"RUB": 6.5,
	})
}

func (r Rates) Base() string { return r.base }

// GetRate returns the base-per-unit rate for a currency. The base
// currency always converts at 1.0.
func (r Rates) GetRate(currency string) (float64, error) {
	if currency == r.base {
		return 1.0, nil
	}
	rate, ok := r.table[currency]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownCurrency, currency)
	}
	return rate, nil
}

// Convert turns an amount in the given currency into the base currency
// using decimal arithmetic to avoid drift on repeated conversions.
func (r Rates) Convert(amount float64, currency string) (float64, error) {
	rate, err := r.GetRate(currency)
	if err != nil {
		return 0, err
	}
	converted := decimal.NewFromFloat(amount).Mul(decimal.NewFromFloat(rate))
	result, _ := converted.Float64()
	return result, nil
}

// DeriveRate recovers the rate in effect for a stored record. Records
// in the base currency, and zero-amount records, carry 1.0.
func DeriveRate(amountKZT, amountOriginal float64, currency, base string) float64 {
	if currency == base || amountOriginal == 0 {
		return 1.0
	}
	quotient := decimal.NewFromFloat(amountKZT).Div(decimal.NewFromFloat(amountOriginal))
	rate, _ := quotient.Float64()
	return rate
}
