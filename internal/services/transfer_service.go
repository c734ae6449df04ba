package services

import (
	"context"
	"fmt"

	"kassa/internal/models"
	"kassa/internal/money"
	"kassa/internal/store"
	"kassa/internal/validator"
)

const (
	transferCategory   = "Transfer"
	commissionCategory = "Commission"
)

type TransferService struct {
	storage store.Storage
	wallets *WalletService
	rates   money.Rates
}

func NewTransferService(storage store.Storage, wallets *WalletService, rates money.Rates) *TransferService {
	return &TransferService{storage: storage, wallets: wallets, rates: rates}
}

type CreateTransferRequest struct {
	FromWalletID       int64
	ToWalletID         int64
	Date               string
	AmountOriginal     float64
	Currency           string
	CommissionAmount   float64
	CommissionCurrency string
	Description        string
}

// CreateTransfer writes the transfer aggregate, its two legs and the
// optional commission row in one atomic replace so the double-entry
// invariant can never be observed broken.
func (s *TransferService) CreateTransfer(ctx context.Context, req CreateTransferRequest) (int64, error) {
	if req.AmountOriginal <= 0 {
		return 0, fmt.Errorf("%w: transfer amount %.2f", ErrInvalidAmount, req.AmountOriginal)
	}
	if req.CommissionAmount < 0 {
		return 0, fmt.Errorf("%w: commission %.2f", ErrInvalidAmount, req.CommissionAmount)
	}
	if req.FromWalletID == req.ToWalletID {
		return 0, ErrSameWalletTransfer
	}
	date, err := validator.ParseDate(req.Date)
	if err != nil {
		return 0, err
	}
	if err := validator.EnsureNotFuture(date); err != nil {
		return 0, err
	}

	from, err := s.wallets.GetWallet(ctx, req.FromWalletID)
	if err != nil {
		return 0, err
	}
	if _, err := s.wallets.GetWallet(ctx, req.ToWalletID); err != nil {
		return 0, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.rates.Base()
	}
	amountKZT, err := s.rates.Convert(req.AmountOriginal, currency)
	if err != nil {
		return 0, err
	}

	commissionCurrency := req.CommissionCurrency
	if commissionCurrency == "" {
		commissionCurrency = currency
	}
	var commissionKZT float64
	if req.CommissionAmount > 0 {
		commissionKZT, err = s.rates.Convert(req.CommissionAmount, commissionCurrency)
		if err != nil {
			return 0, err
		}
	}

	if !from.AllowNegative {
		balance, err := s.wallets.Balance(ctx, req.FromWalletID)
		if err != nil {
			return 0, err
		}
		if balance-amountKZT-commissionKZT < -money.Epsilon {
			return 0, fmt.Errorf("%w: wallet %d has %.2f, needs %.2f", ErrInsufficientFunds, req.FromWalletID, balance, amountKZT+commissionKZT)
		}
	}

	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return 0, err
	}
	transfers, err := s.storage.LoadTransfers(ctx)
	if err != nil {
		return 0, err
	}

	transferID := maxTransferID(transfers) + 1
	transfer, err := models.NewTransfer(models.TransferInput{
		ID:             transferID,
		FromWalletID:   req.FromWalletID,
		ToWalletID:     req.ToWalletID,
		Date:           req.Date,
		AmountOriginal: req.AmountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Description:    req.Description,
	})
	if err != nil {
		return 0, err
	}

	nextRecordID := maxRecordID(records) + 1
	expenseLeg, err := models.NewRecord(models.RecordInput{
		Type:           models.TypeExpense,
		Date:           req.Date,
		WalletID:       req.FromWalletID,
		TransferID:     &transferID,
		AmountOriginal: req.AmountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Category:       transferCategory,
		Description:    req.Description,
	})
	if err != nil {
		return 0, err
	}
	expenseLeg.ID = nextRecordID
	nextRecordID++

	incomeLeg, err := models.NewRecord(models.RecordInput{
		Type:           models.TypeIncome,
		Date:           req.Date,
		WalletID:       req.ToWalletID,
		TransferID:     &transferID,
		AmountOriginal: req.AmountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Category:       transferCategory,
		Description:    req.Description,
	})
	if err != nil {
		return 0, err
	}
	incomeLeg.ID = nextRecordID
	nextRecordID++

	records = append(records, expenseLeg, incomeLeg)
	transfers = append(transfers, transfer)

	if req.CommissionAmount > 0 {
		commission, err := models.NewRecord(models.RecordInput{
			Type:                    models.TypeExpense,
			Date:                    req.Date,
			WalletID:                req.FromWalletID,
			CommissionForTransferID: &transferID,
			AmountOriginal:          req.CommissionAmount,
			Currency:                commissionCurrency,
			AmountKZT:               commissionKZT,
			Category:                commissionCategory,
		})
		if err != nil {
			return 0, err
		}
		commission.ID = nextRecordID
		records = append(records, commission)
	}

	if err := s.storage.ReplaceRecordsAndTransfers(ctx, records, transfers); err != nil {
		return 0, err
	}
	return transferID, nil
}

// DeleteTransfer removes the transfer, both legs and any commission row
// pointing at it. Deleting an unknown or already-deleted transfer is an
// error.
func (s *TransferService) DeleteTransfer(ctx context.Context, transferID int64) error {
	transfers, err := s.storage.LoadTransfers(ctx)
	if err != nil {
		return err
	}
	kept := transfers[:0:0]
	found := false
	for _, transfer := range transfers {
		if transfer.ID == transferID {
			found = true
			continue
		}
		kept = append(kept, transfer)
	}
	if !found {
		return fmt.Errorf("%w: %d", ErrTransferNotFound, transferID)
	}

	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return err
	}
	keptRecords := records[:0:0]
	for _, record := range records {
		if record.TransferID != nil && *record.TransferID == transferID {
			continue
		}
		if record.CommissionForTransferID != nil && *record.CommissionForTransferID == transferID {
			continue
		}
		keptRecords = append(keptRecords, record)
	}
	return s.storage.ReplaceRecordsAndTransfers(ctx, keptRecords, kept)
}

func maxTransferID(transfers []models.Transfer) int64 {
	var max int64
	for _, transfer := range transfers {
		if transfer.ID > max {
			max = transfer.ID
		}
	}
	return max
}

func maxRecordID(records []models.Record) int64 {
	var max int64
	for _, record := range records {
		if record.ID > max {
			max = record.ID
		}
	}
	return max
}
