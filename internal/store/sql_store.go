package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/jmoiron/sqlx"

	"kassa/internal/db"
	"kassa/internal/models"
)

// SQLStore is the SQLite implementation of Storage over sqlx. Writes
// that touch more than one row run inside one transaction through the
// shared retry runner.
type SQLStore struct {
	db     *sqlx.DB
	runner db.TxRunner
}

func NewSQLStore(database *sqlx.DB) *SQLStore {
	return &SQLStore{db: database, runner: db.NewTxRunner(database)}
}

// InitSchema applies the schema file. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS) so re-running is safe.
func (s *SQLStore) InitSchema(ctx context.Context, schemaPath string) error {
	content, err := os.ReadFile(schemaPath)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

type walletRow struct {
	ID             int64   `db:"id"`
	Name           string  `db:"name"`
	Currency       string  `db:"currency"`
	InitialBalance float64 `db:"initial_balance"`
	System         bool    `db:"system"`
	AllowNegative  bool    `db:"allow_negative"`
	IsActive       bool    `db:"is_active"`
}

func (r walletRow) model() models.Wallet {
	return models.Wallet(r)
}

func walletToRow(w models.Wallet) walletRow {
	return walletRow(w)
}

type recordRow struct {
	ID                      int64          `db:"id"`
	Type                    string         `db:"type"`
	Date                    sql.NullString `db:"date"`
	WalletID                int64          `db:"wallet_id"`
	TransferID              sql.NullInt64  `db:"transfer_id"`
	CommissionForTransferID sql.NullInt64  `db:"commission_for_transfer_id"`
	AmountOriginal          float64        `db:"amount_original"`
	Currency                string         `db:"currency"`
	RateAtOperation         float64        `db:"rate_at_operation"`
	AmountKZT               float64        `db:"amount_kzt"`
	Category                string         `db:"category"`
	Description             string         `db:"description"`
	Period                  sql.NullString `db:"period"`
}

func (r recordRow) model() models.Record {
	record := models.Record{
		ID:              r.ID,
		Type:            models.RecordType(r.Type),
		WalletID:        r.WalletID,
		AmountOriginal:  r.AmountOriginal,
		Currency:        r.Currency,
		RateAtOperation: r.RateAtOperation,
		AmountKZT:       r.AmountKZT,
		Category:        r.Category,
		Description:     r.Description,
	}
	if r.Date.Valid {
		record.Date = r.Date.String
	}
	if r.TransferID.Valid {
		id := r.TransferID.Int64
		record.TransferID = &id
	}
	if r.CommissionForTransferID.Valid {
		id := r.CommissionForTransferID.Int64
		record.CommissionForTransferID = &id
	}
	if r.Period.Valid {
		record.Period = r.Period.String
	}
	return record
}

func recordToRow(record models.Record) recordRow {
	row := recordRow{
		ID:              record.ID,
		Type:            string(record.Type),
		WalletID:        record.WalletID,
		AmountOriginal:  record.AmountOriginal,
		Currency:        record.Currency,
		RateAtOperation: record.RateAtOperation,
		AmountKZT:       record.AmountKZT,
		Category:        record.Category,
		Description:     record.Description,
	}
	if record.Date != "" {
		row.Date = sql.NullString{String: record.Date, Valid: true}
	}
	if record.TransferID != nil {
		row.TransferID = sql.NullInt64{Int64: *record.TransferID, Valid: true}
	}
	if record.CommissionForTransferID != nil {
		row.CommissionForTransferID = sql.NullInt64{Int64: *record.CommissionForTransferID, Valid: true}
	}
	if record.Period != "" {
		row.Period = sql.NullString{String: record.Period, Valid: true}
	}
	return row
}

type transferRow struct {
	ID              int64   `db:"id"`
	FromWalletID    int64   `db:"from_wallet_id"`
	ToWalletID      int64   `db:"to_wallet_id"`
	Date            string  `db:"date"`
	AmountOriginal  float64 `db:"amount_original"`
	Currency        string  `db:"currency"`
	RateAtOperation float64 `db:"rate_at_operation"`
	AmountKZT       float64 `db:"amount_kzt"`
	Description     string  `db:"description"`
}

func (r transferRow) model() models.Transfer {
	return models.Transfer(r)
}

func transferToRow(t models.Transfer) transferRow {
	return transferRow(t)
}

const insertWalletSQL = `
	INSERT INTO wallets (id, name, currency, initial_balance, system, allow_negative, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		currency = excluded.currency,
		initial_balance = excluded.initial_balance,
		system = excluded.system,
		allow_negative = excluded.allow_negative,
		is_active = excluded.is_active
`

const insertTransferSQL = `
	INSERT INTO transfers (id, from_wallet_id, to_wallet_id, date, amount_original, currency, rate_at_operation, amount_kzt, description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		from_wallet_id = excluded.from_wallet_id,
		to_wallet_id = excluded.to_wallet_id,
		date = excluded.date,
		amount_original = excluded.amount_original,
		currency = excluded.currency,
		rate_at_operation = excluded.rate_at_operation,
		amount_kzt = excluded.amount_kzt,
		description = excluded.description
`

const insertRecordSQL = `
	INSERT INTO records (id, type, date, wallet_id, transfer_id, commission_for_transfer_id, amount_original, currency, rate_at_operation, amount_kzt, category, description)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		type = excluded.type,
		date = excluded.date,
		wallet_id = excluded.wallet_id,
		transfer_id = excluded.transfer_id,
		commission_for_transfer_id = excluded.commission_for_transfer_id,
		amount_original = excluded.amount_original,
		currency = excluded.currency,
		rate_at_operation = excluded.rate_at_operation,
		amount_kzt = excluded.amount_kzt,
		category = excluded.category,
		description = excluded.description
`

const insertMandatorySQL = `
	INSERT INTO mandatory_expenses (id, wallet_id, date, amount_original, currency, rate_at_operation, amount_kzt, category, description, period)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		wallet_id = excluded.wallet_id,
		date = excluded.date,
		amount_original = excluded.amount_original,
		currency = excluded.currency,
		rate_at_operation = excluded.rate_at_operation,
		amount_kzt = excluded.amount_kzt,
		category = excluded.category,
		description = excluded.description,
		period = excluded.period
`

func InsertWallet(ctx context.Context, tx Execer, w models.Wallet) error {
	row := walletToRow(w)
	_, err := tx.ExecContext(ctx, insertWalletSQL,
		row.ID, row.Name, row.Currency, row.InitialBalance, row.System, row.AllowNegative, row.IsActive)
	return err
}

func InsertTransfer(ctx context.Context, tx Execer, t models.Transfer) error {
	row := transferToRow(t)
	_, err := tx.ExecContext(ctx, insertTransferSQL,
		row.ID, row.FromWalletID, row.ToWalletID, row.Date, row.AmountOriginal,
		row.Currency, row.RateAtOperation, row.AmountKZT, row.Description)
	return err
}

func InsertRecord(ctx context.Context, tx Execer, record models.Record) error {
	row := recordToRow(record)
	_, err := tx.ExecContext(ctx, insertRecordSQL,
		row.ID, row.Type, row.Date, row.WalletID, row.TransferID, row.CommissionForTransferID,
		row.AmountOriginal, row.Currency, row.RateAtOperation, row.AmountKZT, row.Category, row.Description)
	return err
}

func InsertMandatoryExpense(ctx context.Context, tx Execer, expense models.Record) error {
	row := recordToRow(expense)
	_, err := tx.ExecContext(ctx, insertMandatorySQL,
		row.ID, row.WalletID, row.Date, row.AmountOriginal, row.Currency,
		row.RateAtOperation, row.AmountKZT, row.Category, row.Description, row.Period)
	return err
}

func nextTableID(ctx context.Context, q Getter, table string) (int64, error) {
	var id int64
	err := q.GetContext(ctx, &id, `SELECT COALESCE(MAX(id), 0) + 1 FROM `+table)
	return id, err
}

func (s *SQLStore) LoadWallets(ctx context.Context) ([]models.Wallet, error) {
	var rows []walletRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT * FROM wallets ORDER BY id`); err != nil {
		return nil, err
	}
	wallets := make([]models.Wallet, len(rows))
	for i, row := range rows {
		wallets[i] = row.model()
	}
	return wallets, nil
}

func (s *SQLStore) SaveWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error) {
	err := s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if wallet.ID == 0 {
			id, err := nextTableID(ctx, tx, "wallets")
			if err != nil {
				return err
			}
			wallet.ID = id
		}
		return InsertWallet(ctx, tx, wallet)
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

// loadValidated fetches records and transfers together so every read
// path re-checks the double-entry invariant.
func (s *SQLStore) loadValidated(ctx context.Context) ([]models.Record, []models.Transfer, error) {
	var recordRows []recordRow
	if err := s.db.SelectContext(ctx, &recordRows, `SELECT * FROM records ORDER BY id`); err != nil {
		return nil, nil, err
	}
	var transferRows []transferRow
	if err := s.db.SelectContext(ctx, &transferRows, `SELECT * FROM transfers ORDER BY id`); err != nil {
		return nil, nil, err
	}
	records := make([]models.Record, len(recordRows))
	for i, row := range recordRows {
		records[i] = row.model()
	}
	transfers := make([]models.Transfer, len(transferRows))
	for i, row := range transferRows {
		transfers[i] = row.model()
	}
	if err := ValidateTransferIntegrity(records, transfers); err != nil {
		return nil, nil, err
	}
	return records, transfers, nil
}

func (s *SQLStore) LoadRecords(ctx context.Context) ([]models.Record, error) {
	records, _, err := s.loadValidated(ctx)
	return records, err
}

func (s *SQLStore) SaveRecord(ctx context.Context, record models.Record) (models.Record, error) {
	err := s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if record.ID == 0 {
			id, err := nextTableID(ctx, tx, "records")
			if err != nil {
				return err
			}
			record.ID = id
		}
		return InsertRecord(ctx, tx, record)
	})
	if err != nil {
		return models.Record{}, err
	}
	return record, nil
}

// recordIDAtIndex resolves a position in the id-ordered record list.
func recordIDAtIndex(ctx context.Context, q Getter, table string, index int) (int64, error) {
	if index < 0 {
		return 0, fmt.Errorf("%w: %s %d", ErrIndexOutOfRange, table, index)
	}
	var id int64
	err := q.GetContext(ctx, &id, `SELECT id FROM `+table+` ORDER BY id LIMIT 1 OFFSET ?`, index)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%w: %s %d", ErrIndexOutOfRange, table, index)
	}
	return id, err
}

func (s *SQLStore) ReplaceRecord(ctx context.Context, index int, record models.Record) error {
	return s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := recordIDAtIndex(ctx, tx, "records", index)
		if err != nil {
			return err
		}
		record.ID = id
		return InsertRecord(ctx, tx, record)
	})
}

func (s *SQLStore) DeleteRecordByIndex(ctx context.Context, index int) (models.Record, error) {
	var removed models.Record
	err := s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := recordIDAtIndex(ctx, tx, "records", index)
		if err != nil {
			return err
		}
		var row recordRow
		if err := tx.GetContext(ctx, &row, `SELECT * FROM records WHERE id = ?`, id); err != nil {
			return err
		}
		removed = row.model()
		_, err = tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
		return err
	})
	if err != nil {
		return models.Record{}, err
	}
	return removed, nil
}

func (s *SQLStore) DeleteAllRecords(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}

func (s *SQLStore) LoadTransfers(ctx context.Context) ([]models.Transfer, error) {
	_, transfers, err := s.loadValidated(ctx)
	return transfers, err
}

func (s *SQLStore) SaveTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error) {
	err := s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if transfer.ID == 0 {
			id, err := nextTableID(ctx, tx, "transfers")
			if err != nil {
				return err
			}
			transfer.ID = id
		}
		return InsertTransfer(ctx, tx, transfer)
	})
	if err != nil {
		return models.Transfer{}, err
	}
	return transfer, nil
}

func (s *SQLStore) LoadMandatoryExpenses(ctx context.Context) ([]models.Record, error) {
	var rows []recordRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT id, wallet_id, date, amount_original, currency, rate_at_operation, amount_kzt, category, description, period FROM mandatory_expenses ORDER BY id`); err != nil {
		return nil, err
	}
	expenses := make([]models.Record, len(rows))
	for i, row := range rows {
		expense := row.model()
		expense.Type = models.TypeMandatoryExpense
		expenses[i] = expense
	}
	return expenses, nil
}

func (s *SQLStore) SaveMandatoryExpense(ctx context.Context, expense models.Record) (models.Record, error) {
	err := s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if expense.ID == 0 {
			id, err := nextTableID(ctx, tx, "mandatory_expenses")
			if err != nil {
				return err
			}
			expense.ID = id
		}
		return InsertMandatoryExpense(ctx, tx, expense)
	})
	if err != nil {
		return models.Record{}, err
	}
	return expense, nil
}

func (s *SQLStore) DeleteMandatoryExpenseByIndex(ctx context.Context, index int) error {
	return s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		id, err := recordIDAtIndex(ctx, tx, "mandatory_expenses", index)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM mandatory_expenses WHERE id = ?`, id); err != nil {
			return err
		}
		// Templates keep compact sequential ids.
		_, err = tx.ExecContext(ctx, `UPDATE mandatory_expenses SET id = id - 1 WHERE id > ?`, id)
		return err
	})
}

func (s *SQLStore) DeleteAllMandatoryExpenses(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM mandatory_expenses`)
	return err
}

func (s *SQLStore) LoadInitialBalance(ctx context.Context) (float64, error) {
	var balance float64
	err := s.db.GetContext(ctx, &balance, `SELECT initial_balance FROM wallets WHERE system = 1 ORDER BY id LIMIT 1`)
	if err == sql.ErrNoRows {
		err = s.db.GetContext(ctx, &balance, `SELECT initial_balance FROM wallets WHERE id = 1`)
		if err == sql.ErrNoRows {
			return 0, nil
		}
	}
	return balance, err
}

func (s *SQLStore) SaveInitialBalance(ctx context.Context, amount float64) error {
	return s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `UPDATE wallets SET initial_balance = ? WHERE system = 1`, amount)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return InsertWallet(ctx, tx, models.SystemWallet(amount))
		}
		return nil
	})
}

func (s *SQLStore) ReplaceRecordsAndTransfers(ctx context.Context, records []models.Record, transfers []models.Transfer) error {
	if err := ValidateTransferIntegrity(records, transfers); err != nil {
		return err
	}
	return s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transfers`); err != nil {
			return err
		}
		for _, transfer := range transfers {
			if err := InsertTransfer(ctx, tx, transfer); err != nil {
				return err
			}
		}
		for _, record := range records {
			if err := InsertRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) ReplaceAllData(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateTransferIntegrity(snapshot.Records, snapshot.Transfers); err != nil {
		return err
	}
	wallets := snapshot.Wallets
	if len(wallets) == 0 {
		wallets = []models.Wallet{models.SystemWallet(snapshot.InitialBalance)}
	}
	return s.runner.WithTx(ctx, func(tx *sqlx.Tx) error {
		for _, table := range []string{"records", "mandatory_expenses", "transfers", "wallets"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
				return err
			}
		}
		for _, wallet := range wallets {
			if err := InsertWallet(ctx, tx, wallet); err != nil {
				return err
			}
		}
		for _, transfer := range snapshot.Transfers {
			if err := InsertTransfer(ctx, tx, transfer); err != nil {
				return err
			}
		}
		for _, record := range snapshot.Records {
			if err := InsertRecord(ctx, tx, record); err != nil {
				return err
			}
		}
		for _, expense := range snapshot.MandatoryExpenses {
			if err := InsertMandatoryExpense(ctx, tx, expense); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Export(ctx context.Context) (Snapshot, error) {
	wallets, err := s.LoadWallets(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	records, transfers, err := s.loadValidated(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	mandatory, err := s.LoadMandatoryExpenses(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	initial, err := s.LoadInitialBalance(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		InitialBalance:    initial,
		Wallets:           wallets,
		Records:           records,
		MandatoryExpenses: mandatory,
		Transfers:         transfers,
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
