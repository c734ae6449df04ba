package importer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"kassa/internal/models"
	"kassa/internal/store"
	"kassa/internal/validator"
)

// MaxImportRows caps one batch. Oversized imports are rejected before
// any row is processed.
const MaxImportRows = 10000

var (
	ErrTooManyRows   = errors.New("import exceeds the row ceiling")
	ErrImportSkipped = errors.New("import rejected: some rows could not be parsed")
)

// Summary is the outcome of parsing one batch.
type Summary struct {
	BatchID        string
	Imported       int
	Skipped        int
	Errors         []string
	InitialBalance *float64

	records   []models.Record
	transfers []models.Transfer
}

// Batch parses rows into records and reconstructed transfers.
type Batch struct {
	policy  Policy
	lookup  RateLookup
	wallets map[int64]bool
}

func NewBatch(policy Policy, lookup RateLookup, wallets []models.Wallet) *Batch {
	known := make(map[int64]bool, len(wallets))
	for _, wallet := range wallets {
		known[wallet.ID] = true
	}
	return &Batch{policy: policy, lookup: lookup, wallets: known}
}

// Parse walks the rows, expanding compact transfer rows into two linked
// legs plus the aggregate, and rebuilding aggregates for orphaned leg
// pairs. Every rejected row is reported with its position; one bad row
// never aborts parsing, but any skip blocks Apply.
func (b *Batch) Parse(rows []Row) (Summary, error) {
	if len(rows) > MaxImportRows {
		return Summary{}, fmt.Errorf("%w: %d rows, limit %d", ErrTooManyRows, len(rows), MaxImportRows)
	}
	summary := Summary{BatchID: uuid.NewString()}

	nextRecordID := int64(1)
	nextTransferID := int64(1)
	for i, raw := range rows {
		position := i + 1
		row := normalizeRow(raw)

		if row["type"] == "transfer" {
			legs, transfer, errMsg := b.parseTransferRow(row, nextTransferID, nextRecordID)
			if errMsg != "" {
				summary.Skipped++
				summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %s", position, errMsg))
				continue
			}
			summary.records = append(summary.records, legs...)
			summary.transfers = append(summary.transfers, transfer)
			summary.Imported += len(legs)
			nextRecordID += int64(len(legs))
			nextTransferID++
			continue
		}

		record, initialBalance, errMsg := ParseRow(row, b.policy, b.lookup, false)
		if errMsg != "" {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: %s", position, errMsg))
			continue
		}
		if initialBalance != nil {
			if summary.InitialBalance != nil {
				summary.Skipped++
				summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: duplicate initial_balance row", position))
				continue
			}
			summary.InitialBalance = initialBalance
			continue
		}
		if len(b.wallets) > 0 && !b.wallets[record.WalletID] {
			summary.Skipped++
			summary.Errors = append(summary.Errors, fmt.Sprintf("row %d: unknown wallet %d", position, record.WalletID))
			continue
		}
		record.ID = nextRecordID
		nextRecordID++
		if record.TransferID != nil && *record.TransferID >= nextTransferID {
			nextTransferID = *record.TransferID + 1
		}
		summary.records = append(summary.records, *record)
		summary.Imported++
	}

	restored, errMsgs := restoreMissingTransfers(summary.records, summary.transfers)
	summary.transfers = append(summary.transfers, restored...)
	for _, msg := range errMsgs {
		summary.Skipped++
		summary.Errors = append(summary.Errors, msg)
	}
	if summary.Skipped == 0 {
		if err := store.ValidateTransferIntegrity(summary.records, summary.transfers); err != nil {
			summary.Skipped++
			summary.Errors = append(summary.Errors, err.Error())
		}
	}
	return summary, nil
}

// parseTransferRow expands the compact transfer form into an expense
// leg, an income leg and the aggregate, cross-checking that both legs
// agree with it.
func (b *Batch) parseTransferRow(row Row, transferID, nextRecordID int64) ([]models.Record, models.Transfer, string) {
	fromID, ok := rowInt(row, "from_wallet_id")
	if !ok {
		return nil, models.Transfer{}, "from_wallet_id is required for a transfer row"
	}
	toID, ok := rowInt(row, "to_wallet_id")
	if !ok {
		return nil, models.Transfer{}, "to_wallet_id is required for a transfer row"
	}
	if len(b.wallets) > 0 && (!b.wallets[fromID] || !b.wallets[toID]) {
		return nil, models.Transfer{}, fmt.Sprintf("transfer references unknown wallets %d/%d", fromID, toID)
	}
	date := row["date"]
	if _, err := validator.ParseDate(date); err != nil {
		return nil, models.Transfer{}, fmt.Sprintf("invalid date %q", date)
	}
	amountOriginal, ok := rowFloat(row, "amount_original")
	if !ok {
		if amountOriginal, ok = rowFloat(row, "amount"); !ok {
			return nil, models.Transfer{}, "amount is required for a transfer row"
		}
	}
	currency := row["currency"]
	if currency == "" {
		currency = models.BaseCurrency
	}
	amountKZT, ok := rowFloat(row, "amount_kzt")
	if !ok {
		if currency == models.BaseCurrency {
			amountKZT = amountOriginal
		} else if b.lookup != nil {
			rate, err := b.lookup(currency)
			if err != nil {
				return nil, models.Transfer{}, fmt.Sprintf("no rate available for %s", currency)
			}
			amountKZT = amountOriginal * rate
		} else {
			return nil, models.Transfer{}, fmt.Sprintf("no rate available for %s", currency)
		}
	}

	transfer, err := models.NewTransfer(models.TransferInput{
		ID:             transferID,
		FromWalletID:   fromID,
		ToWalletID:     toID,
		Date:           date,
		AmountOriginal: amountOriginal,
		Currency:       currency,
		AmountKZT:      amountKZT,
		Description:    row["description"],
	})
	if err != nil {
		return nil, models.Transfer{}, err.Error()
	}

	legs := make([]models.Record, 0, 2)
	for _, leg := range []struct {
		recordType models.RecordType
		walletID   int64
	}{
		{models.TypeExpense, fromID},
		{models.TypeIncome, toID},
	} {
		record, err := models.NewRecord(models.RecordInput{
			Type:           leg.recordType,
			Date:           date,
			WalletID:       leg.walletID,
			TransferID:     &transfer.ID,
			AmountOriginal: amountOriginal,
			Currency:       transfer.Currency,
			AmountKZT:      amountKZT,
			Category:       "Transfer",
			Description:    transfer.Description,
		})
		if err != nil {
			return nil, models.Transfer{}, err.Error()
		}
		record.ID = nextRecordID + int64(len(legs))
		legs = append(legs, record)
	}
	return legs, transfer, ""
}

// restoreMissingTransfers rebuilds aggregates for complete leg pairs
// whose transfer row was lost. Pairs that disagree on amount or date,
// or incomplete pairs, are reported instead.
func restoreMissingTransfers(records []models.Record, transfers []models.Transfer) ([]models.Transfer, []string) {
	known := make(map[int64]bool, len(transfers))
	for _, transfer := range transfers {
		known[transfer.ID] = true
	}
	legsByTransfer := make(map[int64][]models.Record)
	var orphanIDs []int64
	for _, record := range records {
		if record.TransferID == nil || known[*record.TransferID] {
			continue
		}
		id := *record.TransferID
		if _, seen := legsByTransfer[id]; !seen {
			orphanIDs = append(orphanIDs, id)
		}
		legsByTransfer[id] = append(legsByTransfer[id], record)
	}

	var restored []models.Transfer
	var errMsgs []string
	for _, id := range orphanIDs {
		legs := legsByTransfer[id]
		if len(legs) != 2 {
			errMsgs = append(errMsgs, fmt.Sprintf("transfer %d has %d legs, cannot restore", id, len(legs)))
			continue
		}
		var expense, income *models.Record
		for i := range legs {
			switch legs[i].Type {
			case models.TypeExpense:
				expense = &legs[i]
			case models.TypeIncome:
				income = &legs[i]
			}
		}
		if expense == nil || income == nil {
			errMsgs = append(errMsgs, fmt.Sprintf("transfer %d legs are not an expense/income pair", id))
			continue
		}
		if expense.Date != income.Date || expense.AmountKZT != income.AmountKZT {
			errMsgs = append(errMsgs, fmt.Sprintf("transfer %d legs disagree, cannot restore", id))
			continue
		}
		transfer, err := models.NewTransfer(models.TransferInput{
			ID:             id,
			FromWalletID:   expense.WalletID,
			ToWalletID:     income.WalletID,
			Date:           expense.Date,
			AmountOriginal: expense.AmountOriginal,
			Currency:       expense.Currency,
			AmountKZT:      expense.AmountKZT,
			Description:    expense.Description,
		})
		if err != nil {
			errMsgs = append(errMsgs, fmt.Sprintf("transfer %d: %v", id, err))
			continue
		}
		restored = append(restored, transfer)
	}
	return restored, errMsgs
}

// Apply replaces the stored records and transfers with the parsed
// batch. A batch with any skipped row is rejected wholesale so a
// partial import can never corrupt the data set.
func Apply(ctx context.Context, storage store.Storage, summary Summary) error {
	if summary.Skipped > 0 {
		return fmt.Errorf("%w: %d rows skipped", ErrImportSkipped, summary.Skipped)
	}
	if err := storage.ReplaceRecordsAndTransfers(ctx, summary.records, summary.transfers); err != nil {
		return err
	}
	if summary.InitialBalance != nil {
		return storage.SaveInitialBalance(ctx, *summary.InitialBalance)
	}
	return nil
}

// Records exposes the parsed records, mainly for inspection in callers
// that preview an import before applying it.
func (s Summary) Records() []models.Record { return s.records }

// Transfers exposes the parsed and restored transfer aggregates.
func (s Summary) Transfers() []models.Transfer { return s.transfers }
