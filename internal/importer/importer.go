package importer

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"kassa/internal/models"
	"kassa/internal/validator"
)

// Policy selects how a row's monetary fields are interpreted.
//
//   - PolicyFullBackup trusts the row completely: original amount,
//     currency, rate and base amount must all be present.
//   - PolicyCurrentRate carries only the original amount and currency;
//     the base amount is derived through the injected rate lookup.
//   - PolicyLegacy reads a bare base-currency amount.
type Policy string

const (
	PolicyFullBackup  Policy = "full_backup"
	PolicyCurrentRate Policy = "current_rate"
	PolicyLegacy      Policy = "legacy"
)

// RateLookup resolves a currency to its base-per-unit rate. Returning
// an error marks the row as unimportable under PolicyCurrentRate.
type RateLookup func(currency string) (float64, error)

// Row is one imported line keyed by column name. Keys are matched
// case-insensitively with surrounding space ignored.
type Row map[string]string

func normalizeRow(row Row) Row {
	out := make(Row, len(row))
	for key, value := range row {
		out[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return out
}

func rowFloat(row Row, key string) (float64, bool) {
	raw, ok := row[key]
	if !ok || raw == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func rowInt(row Row, key string) (int64, bool) {
	raw, ok := row[key]
	if !ok || raw == "" {
		return 0, false
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

// ParseRow turns one row into exactly one of: a record, an initial
// balance, or a rejection message. mandatoryOnly restricts the accepted
// types to mandatory-expense templates.
func ParseRow(raw Row, policy Policy, lookup RateLookup, mandatoryOnly bool) (*models.Record, *float64, string) {
	row := normalizeRow(raw)

	if row["type"] == "initial_balance" {
		amount, ok := rowFloat(row, "amount")
		if !ok {
			if amount, ok = rowFloat(row, "amount_kzt"); !ok {
				return nil, nil, "initial_balance row has no numeric amount"
			}
		}
		return nil, &amount, ""
	}

	recordType := models.RecordType(row["type"])
	switch recordType {
	case models.TypeIncome, models.TypeExpense, models.TypeMandatoryExpense:
	default:
		return nil, nil, fmt.Sprintf("unknown record type %q", row["type"])
	}
	if mandatoryOnly && recordType != models.TypeMandatoryExpense {
		return nil, nil, fmt.Sprintf("only mandatory expenses accepted, got %q", row["type"])
	}

	date := row["date"]
	if date == "" && recordType != models.TypeMandatoryExpense {
		return nil, nil, "date is required"
	}
	if date != "" {
		if _, err := validator.ParseDate(date); err != nil {
			return nil, nil, fmt.Sprintf("invalid date %q", date)
		}
	}

	currency := row["currency"]
	if currency == "" {
		currency = models.BaseCurrency
	}
	normalized, err := validator.NormalizeCurrency(currency)
	if err != nil {
		return nil, nil, fmt.Sprintf("invalid currency %q", currency)
	}

	var amountOriginal, amountKZT float64
	switch policy {
	case PolicyFullBackup:
		var ok bool
		if amountOriginal, ok = rowFloat(row, "amount_original"); !ok {
			return nil, nil, "amount_original is required for a full backup row"
		}
		rate, ok := rowFloat(row, "rate_at_operation")
		if !ok || rate <= 0 {
			return nil, nil, "rate_at_operation is required for a full backup row"
		}
		if amountKZT, ok = rowFloat(row, "amount_kzt"); !ok {
			return nil, nil, "amount_kzt is required for a full backup row"
		}
	case PolicyCurrentRate:
		var ok bool
		if amountOriginal, ok = rowFloat(row, "amount_original"); !ok {
			if amountOriginal, ok = rowFloat(row, "amount"); !ok {
				return nil, nil, "amount_original is required"
			}
		}
		if lookup == nil {
			return nil, nil, fmt.Sprintf("no rate available for %s", normalized)
		}
		rate, err := lookup(normalized)
		if err != nil {
			return nil, nil, fmt.Sprintf("no rate available for %s", normalized)
		}
		amountKZT = amountOriginal * rate
	case PolicyLegacy:
		var ok bool
		if amountOriginal, ok = rowFloat(row, "amount"); !ok {
			return nil, nil, "amount is required"
		}
		// Legacy exports encode expenses as negative amounts.
		amountOriginal = math.Abs(amountOriginal)
		normalized = models.BaseCurrency
		amountKZT = amountOriginal
	default:
		return nil, nil, fmt.Sprintf("unknown import policy %q", policy)
	}
	if amountOriginal < 0 {
		return nil, nil, "amount_original must be >= 0"
	}

	walletID, ok := rowInt(row, "wallet_id")
	if !ok {
		walletID = 1
	}

	period := row["period"]
	if recordType == models.TypeMandatoryExpense && period == "" {
		period = "monthly"
	}

	input := models.RecordInput{
		Type:           recordType,
		Date:           date,
		WalletID:       walletID,
		AmountOriginal: amountOriginal,
		Currency:       normalized,
		AmountKZT:      amountKZT,
		Category:       row["category"],
		Description:    row["description"],
	}
	if recordType == models.TypeMandatoryExpense {
		input.Period = period
	}
	if transferID, ok := rowInt(row, "transfer_id"); ok {
		input.TransferID = &transferID
	}
	if commissionID, ok := rowInt(row, "commission_for_transfer_id"); ok {
		input.CommissionForTransferID = &commissionID
	}

	record, err := models.NewRecord(input)
	if err != nil {
		return nil, nil, err.Error()
	}
	return &record, nil, ""
}
