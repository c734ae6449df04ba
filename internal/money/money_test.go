package money

import (
	"errors"
	"math"
	"testing"
)

func TestGetRate(t *testing.T) {
	rates := DefaultRates()
	rate, err := rates.GetRate("KZT")
	if err != nil || rate != 1.0 {
		t.Fatalf("base rate should be 1.0, got %v/%v", rate, err)
	}
	rate, err = rates.GetRate("USD")
	if err != nil || rate != 500.0 {
		t.Fatalf("expected 500, got %v/%v", rate, err)
	}
	if _, err := rates.GetRate("GBP"); !errors.Is(err, ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestConvert(t *testing.T) {
	rates := DefaultRates()
	amount, err := rates.Convert(10, "USD")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ApproxEqual(amount, 5000) {
		t.Fatalf("expected 5000, got %v", amount)
	}
	amount, err = rates.Convert(42.5, "KZT")
	if err != nil || amount != 42.5 {
		t.Fatalf("base currency should convert 1:1, got %v/%v", amount, err)
	}
}

func TestDeriveRate(t *testing.T) {
	if rate := DeriveRate(5000, 10, "USD", "KZT"); math.Abs(rate-500) > RateEpsilon {
		t.Fatalf("expected 500, got %v", rate)
	}
	if rate := DeriveRate(100, 100, "KZT", "KZT"); rate != 1.0 {
		t.Fatalf("base currency rate should be 1.0, got %v", rate)
	}
	if rate := DeriveRate(0, 0, "USD", "KZT"); rate != 1.0 {
		t.Fatalf("zero amount rate should be 1.0, got %v", rate)
	}
}

func TestDeriveRateInvertsConvert(t *testing.T) {
	rates := DefaultRates()
	for _, currency := range []string{"USD", "EUR", "RUB"} {
		amount, err := rates.Convert(12.34, currency)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected, _ := rates.GetRate(currency)
		if derived := DeriveRate(amount, 12.34, currency, "KZT"); !RatesApproxEqual(derived, expected) {
			t.Fatalf("%s: expected %v, got %v", currency, expected, derived)
		}
	}
}

func TestApproxEqual(t *testing.T) {
	if !ApproxEqual(1.0, 1.0+1e-6) {
		t.Fatalf("values within epsilon should compare equal")
	}
	if ApproxEqual(1.0, 1.0001) {
		t.Fatalf("values beyond epsilon should differ")
	}
}
