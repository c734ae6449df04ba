package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"kassa/internal/db"
	"kassa/internal/models"
)

const schemaPath = "../../migrations/001_init.sql"

func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	ctx := context.Background()
	database, err := db.Connect(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	sqlStore := NewSQLStore(database)
	if err := sqlStore.InitSchema(ctx, schemaPath); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return sqlStore
}

func TestInsertRecordPassesNullsForOptionalFields(t *testing.T) {
	record, _ := models.NewRecord(models.RecordInput{
		Type:           models.TypeIncome,
		Date:           "2025-01-10",
		WalletID:       1,
		AmountOriginal: 100,
		AmountKZT:      100,
	})
	var captured []any
	execer := stubExecer{execFn: func(ctx context.Context, query string, args ...any) (sql.Result, error) {
		captured = args
		return stubResult{rows: 1}, nil
	}}
	if err := InsertRecord(context.Background(), execer, record); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(captured) != 12 {
		t.Fatalf("expected 12 args, got %d", len(captured))
	}
	transferID, ok := captured[4].(sql.NullInt64)
	if !ok || transferID.Valid {
		t.Fatalf("expected NULL transfer_id, got %#v", captured[4])
	}
	commissionID, ok := captured[5].(sql.NullInt64)
	if !ok || commissionID.Valid {
		t.Fatalf("expected NULL commission_for_transfer_id, got %#v", captured[5])
	}
}

func TestNextTableIDStartsAtOne(t *testing.T) {
	getter := stubGetter{getFn: func(ctx context.Context, dest any, query string, args ...any) error {
		*(dest.(*int64)) = 1
		return nil
	}}
	id, err := nextTableID(context.Background(), getter, "records")
	if err != nil || id != 1 {
		t.Fatalf("expected id 1, got %d/%v", id, err)
	}
}

func TestSQLStoreWalletRoundTrip(t *testing.T) {
	ctx := context.Background()
	sqlStore := newTestSQLStore(t)

	wallet, err := sqlStore.SaveWallet(ctx, models.Wallet{Name: "Main", Currency: "KZT", InitialBalance: 50, System: true, IsActive: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if wallet.ID != 1 {
		t.Fatalf("expected wallet id 1, got %d", wallet.ID)
	}
	wallets, err := sqlStore.LoadWallets(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wallets) != 1 || wallets[0].Name != "Main" || !wallets[0].System {
		t.Fatalf("wallet did not survive the round trip: %+v", wallets)
	}
}

func TestSQLStoreRecordRoundTripWithNullables(t *testing.T) {
	ctx := context.Background()
	sqlStore := newTestSQLStore(t)
	wallet, _ := sqlStore.SaveWallet(ctx, models.Wallet{Name: "Main", Currency: "KZT", IsActive: true})

	plain, _ := models.NewRecord(models.RecordInput{
		Type:           models.TypeExpense,
		Date:           "2025-01-10",
		WalletID:       wallet.ID,
		AmountOriginal: 10,
		Currency:       "USD",
		AmountKZT:      5000,
		Category:       "Groceries",
	})
	saved, err := sqlStore.SaveRecord(ctx, plain)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	records, err := sqlStore.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	got := records[0]
	if got.ID != saved.ID || got.TransferID != nil || got.CommissionForTransferID != nil {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.RateAtOperation != 500 || got.Category != "Groceries" {
		t.Fatalf("record fields lost: %+v", got)
	}
}

func TestSQLStoreReplaceRecordsAndTransfersIsAtomic(t *testing.T) {
	ctx := context.Background()
	sqlStore := newTestSQLStore(t)
	wallet, _ := sqlStore.SaveWallet(ctx, models.Wallet{Name: "A", Currency: "KZT", IsActive: true})
	other, _ := sqlStore.SaveWallet(ctx, models.Wallet{Name: "B", Currency: "KZT", IsActive: true})

	legs, transfer := transferPair(1, wallet.ID, other.ID, 25)
	legs[0].ID = 1
	legs[1].ID = 2
	if err := sqlStore.ReplaceRecordsAndTransfers(ctx, legs, []models.Transfer{transfer}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	transfers, err := sqlStore.LoadTransfers(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(transfers) != 1 || transfers[0].AmountKZT != 25 {
		t.Fatalf("unexpected transfers: %+v", transfers)
	}

	// A broken pair is rejected up front and the old content survives.
	err = sqlStore.ReplaceRecordsAndTransfers(ctx, legs[:1], []models.Transfer{transfer})
	if !errors.Is(err, ErrBrokenTransferPair) {
		t.Fatalf("expected ErrBrokenTransferPair, got %v", err)
	}
	records, err := sqlStore.LoadRecords(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after rejected replace, got %d", len(records))
	}
}

func TestSQLStoreReplaceAllDataSynthesizesSystemWallet(t *testing.T) {
	ctx := context.Background()
	sqlStore := newTestSQLStore(t)

	if err := sqlStore.ReplaceAllData(ctx, Snapshot{InitialBalance: 42}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wallets, err := sqlStore.LoadWallets(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(wallets) != 1 || !wallets[0].System || wallets[0].InitialBalance != 42 {
		t.Fatalf("expected a synthesized system wallet, got %+v", wallets)
	}
	balance, err := sqlStore.LoadInitialBalance(ctx)
	if err != nil || balance != 42 {
		t.Fatalf("expected initial balance 42, got %v/%v", balance, err)
	}
}

func TestSQLStoreMandatoryExpensesRenumberAfterDelete(t *testing.T) {
	ctx := context.Background()
	sqlStore := newTestSQLStore(t)
	wallet, _ := sqlStore.SaveWallet(ctx, models.Wallet{Name: "Main", Currency: "KZT", IsActive: true})

	for _, category := range []string{"Rent", "Internet", "Gym"} {
		template, _ := models.NewRecord(models.RecordInput{
			Type:           models.TypeMandatoryExpense,
			WalletID:       wallet.ID,
			AmountOriginal: 100,
			AmountKZT:      100,
			Category:       category,
			Period:         "monthly",
		})
		if _, err := sqlStore.SaveMandatoryExpense(ctx, template); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := sqlStore.DeleteMandatoryExpenseByIndex(ctx, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	templates, err := sqlStore.LoadMandatoryExpenses(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(templates) != 2 || templates[0].ID != 1 || templates[1].ID != 2 {
		t.Fatalf("expected renumbered templates, got %+v", templates)
	}
	if templates[0].Category != "Internet" {
		t.Fatalf("wrong template deleted: %+v", templates)
	}
}
