package services

import (
	"context"
	"fmt"

	"kassa/internal/models"
	"kassa/internal/money"
	"kassa/internal/store"
	"kassa/internal/validator"
)

type RecordService struct {
	storage   store.Storage
	wallets   *WalletService
	transfers *TransferService
	rates     money.Rates
}

func NewRecordService(storage store.Storage, wallets *WalletService, transfers *TransferService, rates money.Rates) *RecordService {
	return &RecordService{storage: storage, wallets: wallets, transfers: transfers, rates: rates}
}

type RecordRequest struct {
	Date           string
	WalletID       int64
	AmountOriginal float64
	Currency       string
	Category       string
	Description    string
	Period         string
}

func (s *RecordService) CreateIncome(ctx context.Context, req RecordRequest) (models.Record, error) {
	return s.create(ctx, models.TypeIncome, req)
}

func (s *RecordService) CreateExpense(ctx context.Context, req RecordRequest) (models.Record, error) {
	return s.create(ctx, models.TypeExpense, req)
}

func (s *RecordService) create(ctx context.Context, recordType models.RecordType, req RecordRequest) (models.Record, error) {
	if req.AmountOriginal <= 0 {
		return models.Record{}, fmt.Errorf("%w: %.2f", ErrInvalidAmount, req.AmountOriginal)
	}
	date, err := validator.ParseDate(req.Date)
	if err != nil {
		return models.Record{}, err
	}
	if err := validator.EnsureNotFuture(date); err != nil {
		return models.Record{}, err
	}
	walletID, currency, amountKZT, err := s.resolve(ctx, req)
	if err != nil {
		return models.Record{}, err
	}
	record, err := models.NewRecord(models.RecordInput{
		Type:           recordType,
		Date:           req.Date,
		WalletID:       walletID,
		AmountOriginal: req.AmountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Category:       req.Category,
		Description:    req.Description,
	})
	if err != nil {
		return models.Record{}, err
	}
	return s.storage.SaveRecord(ctx, record)
}

// CreateMandatoryExpense saves a recurring-expense template. Templates
// may omit the date; they only acquire one when applied.
func (s *RecordService) CreateMandatoryExpense(ctx context.Context, req RecordRequest) (models.Record, error) {
	if req.AmountOriginal <= 0 {
		return models.Record{}, fmt.Errorf("%w: %.2f", ErrInvalidAmount, req.AmountOriginal)
	}
	if err := validator.ValidatePeriod(req.Period); err != nil {
		return models.Record{}, err
	}
	walletID, currency, amountKZT, err := s.resolve(ctx, req)
	if err != nil {
		return models.Record{}, err
	}
	template, err := models.NewRecord(models.RecordInput{
		Type:           models.TypeMandatoryExpense,
		Date:           req.Date,
		WalletID:       walletID,
		AmountOriginal: req.AmountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Category:       req.Category,
		Description:    req.Description,
		Period:         req.Period,
	})
	if err != nil {
		return models.Record{}, err
	}
	return s.storage.SaveMandatoryExpense(ctx, template)
}

// ApplyMandatoryExpense materializes a template into a dated expense
// record. The template itself stays untouched.
func (s *RecordService) ApplyMandatoryExpense(ctx context.Context, index int, date string) (models.Record, error) {
	parsed, err := validator.ParseDate(date)
	if err != nil {
		return models.Record{}, err
	}
	if err := validator.EnsureNotFuture(parsed); err != nil {
		return models.Record{}, err
	}
	templates, err := s.storage.LoadMandatoryExpenses(ctx)
	if err != nil {
		return models.Record{}, err
	}
	if index < 0 || index >= len(templates) {
		return models.Record{}, fmt.Errorf("%w: mandatory expense %d", store.ErrIndexOutOfRange, index)
	}
	template := templates[index]
	record, err := models.NewRecord(models.RecordInput{
		Type:           models.TypeExpense,
		Date:           date,
		WalletID:       template.WalletID,
		AmountOriginal: template.AmountOriginal,
		Currency:       template.Currency,
		AmountKZT:      template.AmountKZT,
		Category:       template.Category,
		Description:    template.Description,
	})
	if err != nil {
		return models.Record{}, err
	}
	return s.storage.SaveRecord(ctx, record)
}

// UpdateRecordAmountKZT replaces a record with a copy carrying a new
// base-currency amount. Transfer legs are immutable; delete the
// transfer instead.
func (s *RecordService) UpdateRecordAmountKZT(ctx context.Context, index int, amountKZT float64) error {
	if amountKZT <= 0 {
		return fmt.Errorf("%w: %.2f", ErrInvalidAmount, amountKZT)
	}
	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("%w: record %d", store.ErrIndexOutOfRange, index)
	}
	if records[index].IsTransferLeg() {
		return fmt.Errorf("%w: record %d", ErrTransferLinkedRecord, index)
	}
	updated, err := records[index].WithAmountKZT(amountKZT)
	if err != nil {
		return err
	}
	return s.storage.ReplaceRecord(ctx, index, updated)
}

// DeleteRecord removes the record at the given position. Deleting one
// leg of a transfer cascades to the whole transfer, its other leg and
// any commission, so the pair invariant survives.
func (s *RecordService) DeleteRecord(ctx context.Context, index int) error {
	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(records) {
		return fmt.Errorf("%w: record %d", store.ErrIndexOutOfRange, index)
	}
	record := records[index]
	if record.TransferID != nil {
		return s.transfers.DeleteTransfer(ctx, *record.TransferID)
	}
	_, err = s.storage.DeleteRecordByIndex(ctx, index)
	return err
}

func (s *RecordService) DeleteMandatoryExpense(ctx context.Context, index int) error {
	return s.storage.DeleteMandatoryExpenseByIndex(ctx, index)
}

// resolve fills in the wallet (system wallet when unset), normalizes
// the currency and converts the amount into the base currency.
func (s *RecordService) resolve(ctx context.Context, req RecordRequest) (int64, string, float64, error) {
	walletID := req.WalletID
	if walletID == 0 {
		system, err := s.wallets.GetSystemWallet(ctx)
		if err != nil {
			return 0, "", 0, err
		}
		walletID = system.ID
	} else if _, err := s.wallets.GetWallet(ctx, walletID); err != nil {
		return 0, "", 0, err
	}
	currency := req.Currency
	if currency == "" {
		currency = s.rates.Base()
	}
	normalized, err := validator.NormalizeCurrency(currency)
	if err != nil {
		return 0, "", 0, err
	}
	amountKZT, err := s.rates.Convert(req.AmountOriginal, normalized)
	if err != nil {
		return 0, "", 0, err
	}
	return walletID, normalized, amountKZT, nil
}
