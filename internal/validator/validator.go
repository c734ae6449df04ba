package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	ErrInvalidDate     = errors.New("invalid date")
	ErrFutureDate      = errors.New("date is in the future")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidPeriod   = errors.New("invalid period")
)

var (
	dateRegex     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	currencyRegex = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// Periods accepted for mandatory-expense templates.
var Periods = []string{"daily", "weekly", "monthly", "yearly"}

const DateLayout = "2006-01-02"

// ParseDate accepts exactly YYYY-MM-DD with a calendar-valid month and
// day. Wrong separators, five-digit years and dates like 2025-02-30
// are all rejected.
func ParseDate(value string) (time.Time, error) {
	if !dateRegex.MatchString(value) {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	parsed, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return parsed, nil
}

// EnsureNotFuture rejects dates after today. It applies to user-entered
// operations; imported history is exempt.
func EnsureNotFuture(value time.Time) error {
	today, _ := time.Parse(DateLayout, time.Now().Format(DateLayout))
	if value.After(today) {
		return fmt.Errorf("%w: %s", ErrFutureDate, value.Format(DateLayout))
	}
	return nil
}

// NormalizeCurrency validates a three-letter alphabetic code and
// returns it upper-cased.
func NormalizeCurrency(code string) (string, error) {
	trimmed := strings.TrimSpace(code)
	if !currencyRegex.MatchString(trimmed) {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, code)
	}
	return strings.ToUpper(trimmed), nil
}

func ValidatePeriod(period string) error {
	for _, known := range Periods {
		if period == known {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
}
