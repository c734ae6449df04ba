package models

import (
	"errors"
	"math"
	"testing"

	"kassa/internal/validator"
)

func TestNewRecordDerivesRateFromAmounts(t *testing.T) {
	record, err := NewRecord(RecordInput{
		Type:           TypeIncome,
		Date:           "2025-01-15",
		WalletID:       1,
		AmountOriginal: 10,
		Currency:       "USD",
		AmountKZT:      5000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.RateAtOperation != 500 {
		t.Fatalf("expected rate 500, got %v", record.RateAtOperation)
	}
}

func TestNewRecordBaseCurrencyRateIsOne(t *testing.T) {
	record, err := NewRecord(RecordInput{
		Type:           TypeExpense,
		Date:           "2025-01-15",
		WalletID:       1,
		AmountOriginal: 250,
		AmountKZT:      250,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.Currency != BaseCurrency {
		t.Fatalf("expected default currency %s, got %s", BaseCurrency, record.Currency)
	}
	if record.RateAtOperation != 1.0 {
		t.Fatalf("expected rate 1.0, got %v", record.RateAtOperation)
	}
}

func TestNewRecordZeroAmountRateIsOne(t *testing.T) {
	record, err := NewRecord(RecordInput{
		Type:     TypeIncome,
		Date:     "2025-01-15",
		WalletID: 1,
		Currency: "USD",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.RateAtOperation != 1.0 {
		t.Fatalf("expected rate 1.0 for zero amount, got %v", record.RateAtOperation)
	}
}

func TestNewRecordRequiresDateExceptForTemplates(t *testing.T) {
	if _, err := NewRecord(RecordInput{Type: TypeExpense, WalletID: 1, AmountOriginal: 5, AmountKZT: 5}); !errors.Is(err, ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
	template, err := NewRecord(RecordInput{
		Type:           TypeMandatoryExpense,
		WalletID:       1,
		AmountOriginal: 5,
		AmountKZT:      5,
		Period:         "monthly",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if template.Date != "" {
		t.Fatalf("expected empty date, got %q", template.Date)
	}
}

func TestNewRecordRejectsInvalidInput(t *testing.T) {
	base := RecordInput{Type: TypeExpense, Date: "2025-01-15", WalletID: 1, AmountOriginal: 5, AmountKZT: 5}

	input := base
	input.Type = "refund"
	if _, err := NewRecord(input); !errors.Is(err, ErrInvalidRecordType) {
		t.Fatalf("expected ErrInvalidRecordType, got %v", err)
	}

	input = base
	input.WalletID = 0
	if _, err := NewRecord(input); !errors.Is(err, ErrInvalidWalletID) {
		t.Fatalf("expected ErrInvalidWalletID, got %v", err)
	}

	input = base
	bad := int64(-2)
	input.TransferID = &bad
	if _, err := NewRecord(input); !errors.Is(err, ErrInvalidTransferID) {
		t.Fatalf("expected ErrInvalidTransferID, got %v", err)
	}

	input = base
	input.Date = "2025-02-30"
	if _, err := NewRecord(input); !errors.Is(err, validator.ErrInvalidDate) {
		t.Fatalf("expected ErrInvalidDate, got %v", err)
	}

	input = base
	input.Currency = "tenge"
	if _, err := NewRecord(input); !errors.Is(err, validator.ErrInvalidCurrency) {
		t.Fatalf("expected ErrInvalidCurrency, got %v", err)
	}
}

func TestSignedAmountKZT(t *testing.T) {
	income, _ := NewRecord(RecordInput{Type: TypeIncome, Date: "2025-01-15", WalletID: 1, AmountOriginal: 100, AmountKZT: 100})
	expense, _ := NewRecord(RecordInput{Type: TypeExpense, Date: "2025-01-15", WalletID: 1, AmountOriginal: 40, AmountKZT: 40})
	if income.SignedAmountKZT() != 100 {
		t.Fatalf("expected +100, got %v", income.SignedAmountKZT())
	}
	if expense.SignedAmountKZT() != -40 {
		t.Fatalf("expected -40, got %v", expense.SignedAmountKZT())
	}
}

func TestNewRecordStoresAbsoluteAmounts(t *testing.T) {
	record, err := NewRecord(RecordInput{
		Type:           TypeExpense,
		Date:           "2025-01-15",
		WalletID:       1,
		AmountOriginal: -40,
		AmountKZT:      -40,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.AmountKZT != 40 || record.AmountOriginal != 40 {
		t.Fatalf("expected absolute amounts, got %v/%v", record.AmountOriginal, record.AmountKZT)
	}
	if record.SignedAmountKZT() != -40 {
		t.Fatalf("expected signed -40, got %v", record.SignedAmountKZT())
	}
}

func TestWithAmountKZTReDerivesRate(t *testing.T) {
	record, _ := NewRecord(RecordInput{
		Type:           TypeExpense,
		Date:           "2025-01-15",
		WalletID:       1,
		AmountOriginal: 10,
		Currency:       "USD",
		AmountKZT:      5000,
	})
	updated, err := record.WithAmountKZT(5200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(updated.RateAtOperation-520) > 1e-9 {
		t.Fatalf("expected rate 520, got %v", updated.RateAtOperation)
	}
	if record.AmountKZT != 5000 {
		t.Fatalf("original record mutated: %v", record.AmountKZT)
	}
}

func TestWithAmountKZTRejectsTransferLegs(t *testing.T) {
	transferID := int64(3)
	record, _ := NewRecord(RecordInput{
		Type:           TypeExpense,
		Date:           "2025-01-15",
		WalletID:       1,
		TransferID:     &transferID,
		AmountOriginal: 10,
		AmountKZT:      10,
	})
	if _, err := record.WithAmountKZT(20); !errors.Is(err, ErrTransferLinkUpdate) {
		t.Fatalf("expected ErrTransferLinkUpdate, got %v", err)
	}
}

func TestNewTransferValidations(t *testing.T) {
	valid := TransferInput{
		FromWalletID:   1,
		ToWalletID:     2,
		Date:           "2025-02-01",
		AmountOriginal: 30,
		AmountKZT:      30,
	}
	if _, err := NewTransfer(valid); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	input := valid
	input.ToWalletID = 1
	if _, err := NewTransfer(input); !errors.Is(err, ErrSameWallet) {
		t.Fatalf("expected ErrSameWallet, got %v", err)
	}

	input = valid
	input.FromWalletID = 0
	if _, err := NewTransfer(input); !errors.Is(err, ErrInvalidWalletID) {
		t.Fatalf("expected ErrInvalidWalletID, got %v", err)
	}

	input = valid
	input.AmountOriginal = 0
	if _, err := NewTransfer(input); !errors.Is(err, ErrNonPositiveAmount) {
		t.Fatalf("expected ErrNonPositiveAmount, got %v", err)
	}

	input = valid
	input.Date = ""
	if _, err := NewTransfer(input); !errors.Is(err, ErrMissingDate) {
		t.Fatalf("expected ErrMissingDate, got %v", err)
	}
}

func TestNewWallet(t *testing.T) {
	wallet, err := NewWallet("  Savings ", "usd", 100, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wallet.Name != "Savings" || wallet.Currency != "USD" || !wallet.IsActive {
		t.Fatalf("unexpected wallet: %+v", wallet)
	}
	if _, err := NewWallet("   ", "KZT", 0, false); !errors.Is(err, ErrEmptyWalletName) {
		t.Fatalf("expected ErrEmptyWalletName, got %v", err)
	}
}
