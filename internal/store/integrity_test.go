package store

import (
	"errors"
	"testing"

	"kassa/internal/models"
)

func transferPair(transferID int64, fromWallet, toWallet int64, amount float64) ([]models.Record, models.Transfer) {
	expense, _ := models.NewRecord(models.RecordInput{
		Type:           models.TypeExpense,
		Date:           "2025-02-01",
		WalletID:       fromWallet,
		TransferID:     &transferID,
		AmountOriginal: amount,
		AmountKZT:      amount,
		Category:       "Transfer",
	})
	income, _ := models.NewRecord(models.RecordInput{
		Type:           models.TypeIncome,
		Date:           "2025-02-01",
		WalletID:       toWallet,
		TransferID:     &transferID,
		AmountOriginal: amount,
		AmountKZT:      amount,
		Category:       "Transfer",
	})
	transfer, _ := models.NewTransfer(models.TransferInput{
		ID:             transferID,
		FromWalletID:   fromWallet,
		ToWalletID:     toWallet,
		Date:           "2025-02-01",
		AmountOriginal: amount,
		AmountKZT:      amount,
	})
	return []models.Record{expense, income}, transfer
}

func TestValidateTransferIntegrityAcceptsPairs(t *testing.T) {
	records, transfer := transferPair(1, 1, 2, 10)
	if err := ValidateTransferIntegrity(records, []models.Transfer{transfer}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTransferIntegrityRejectsSingleLeg(t *testing.T) {
	records, transfer := transferPair(1, 1, 2, 10)
	err := ValidateTransferIntegrity(records[:1], []models.Transfer{transfer})
	if !errors.Is(err, ErrBrokenTransferPair) {
		t.Fatalf("expected ErrBrokenTransferPair, got %v", err)
	}
}

func TestValidateTransferIntegrityRejectsDanglingLink(t *testing.T) {
	records, _ := transferPair(7, 1, 2, 10)
	err := ValidateTransferIntegrity(records, nil)
	if !errors.Is(err, ErrDanglingTransferLink) {
		t.Fatalf("expected ErrDanglingTransferLink, got %v", err)
	}
}

func TestValidateTransferIntegrityRejectsSameTypeLegs(t *testing.T) {
	records, transfer := transferPair(1, 1, 2, 10)
	records[1].Type = models.TypeExpense
	err := ValidateTransferIntegrity(records, []models.Transfer{transfer})
	if !errors.Is(err, ErrBrokenTransferPair) {
		t.Fatalf("expected ErrBrokenTransferPair, got %v", err)
	}
}

func TestValidateTransferIntegrityRejectsDanglingCommission(t *testing.T) {
	missing := int64(9)
	commission, _ := models.NewRecord(models.RecordInput{
		Type:                    models.TypeExpense,
		Date:                    "2025-02-01",
		WalletID:                1,
		CommissionForTransferID: &missing,
		AmountOriginal:          2,
		AmountKZT:               2,
		Category:                "Commission",
	})
	err := ValidateTransferIntegrity([]models.Record{commission}, nil)
	if !errors.Is(err, ErrDanglingTransferLink) {
		t.Fatalf("expected ErrDanglingTransferLink, got %v", err)
	}
}

func TestValidateTransferIntegrityIgnoresCommissionAsLeg(t *testing.T) {
	records, transfer := transferPair(1, 1, 2, 10)
	commission, _ := models.NewRecord(models.RecordInput{
		Type:                    models.TypeExpense,
		Date:                    "2025-02-01",
		WalletID:                1,
		CommissionForTransferID: &transfer.ID,
		AmountOriginal:          2,
		AmountKZT:               2,
		Category:                "Commission",
	})
	records = append(records, commission)
	if err := ValidateTransferIntegrity(records, []models.Transfer{transfer}); err != nil {
		t.Fatalf("commission must not count as a third leg: %v", err)
	}
}
