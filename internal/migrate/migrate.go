package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"sort"

	"github.com/jmoiron/sqlx"

	"kassa/internal/db"
	"kassa/internal/models"
	"kassa/internal/money"
	"kassa/internal/store"
)

var (
	ErrSourceMissing    = errors.New("source data file not found")
	ErrSourceInvalid    = errors.New("source data failed validation")
	ErrTargetDiffers    = errors.New("target database already holds different data")
	ErrVerifyMismatch   = errors.New("post-migration verification failed")
	ErrSchemaNotApplied = errors.New("schema is not applied")
)

type Options struct {
	JSONPath   string
	SQLitePath string
	SchemaPath string
	DryRun     bool
}

type Result struct {
	Wallets           int
	Transfers         int
	Records           int
	MandatoryExpenses int
	NoOp              bool
}

// Run migrates the JSON document into the SQLite database. The write
// happens in one transaction and is verified against source balances
// before commit; any mismatch rolls the whole thing back. Re-running
// against an equivalent target is a no-op, a diverged target is an
// error.
func Run(ctx context.Context, opts Options) (Result, error) {
	source, err := loadSource(ctx, opts.JSONPath)
	if err != nil {
		return Result{}, err
	}
	if err := validateSource(source); err != nil {
		return Result{}, err
	}

	database, err := db.Connect(opts.SQLitePath)
	if err != nil {
		return Result{}, err
	}
	defer database.Close()

	target := store.NewSQLStore(database)
	if opts.SchemaPath != "" {
		if err := target.InitSchema(ctx, opts.SchemaPath); err != nil {
			return Result{}, err
		}
	} else if err := probeSchema(ctx, database); err != nil {
		return Result{}, err
	}

	result := Result{
		Wallets:           len(source.Wallets),
		Transfers:         len(source.Transfers),
		Records:           len(source.Records),
		MandatoryExpenses: len(source.MandatoryExpenses),
	}

	if opts.DryRun {
		log.Printf("[migrate] dry run: %d wallets, %d transfers, %d records, %d mandatory expenses", result.Wallets, result.Transfers, result.Records, result.MandatoryExpenses)
		return result, nil
	}

	hasData, err := hasAnyData(ctx, database)
	if err != nil {
		return Result{}, err
	}
	if hasData {
		if err := validateEquivalence(ctx, target, source); err != nil {
			return Result{}, err
		}
		log.Printf("[migrate] target already holds equivalent data, nothing to do")
		result.NoOp = true
		return result, nil
	}

	plan := buildPlan(source)
	err = db.WithTx(ctx, database, func(tx *sqlx.Tx) error {
		if err := plan.insert(ctx, tx); err != nil {
			return err
		}
		return plan.verify(ctx, tx)
	})
	if err != nil {
		return Result{}, err
	}
	log.Printf("[migrate] migrated %d wallets, %d transfers, %d records, %d mandatory expenses", result.Wallets, result.Transfers, result.Records, result.MandatoryExpenses)
	return result, nil
}

func loadSource(ctx context.Context, path string) (store.Snapshot, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return store.Snapshot{}, fmt.Errorf("%w: %s", ErrSourceMissing, path)
		}
		return store.Snapshot{}, err
	}
	return store.NewJSONStore(path).Export(ctx)
}

func validateSource(source store.Snapshot) error {
	if len(source.Wallets) == 0 {
		return fmt.Errorf("%w: no wallets", ErrSourceInvalid)
	}
	wallets := make(map[int64]bool, len(source.Wallets))
	for _, wallet := range source.Wallets {
		wallets[wallet.ID] = true
	}
	for _, record := range source.Records {
		if !wallets[record.WalletID] {
			return fmt.Errorf("%w: record %d references unknown wallet %d", ErrSourceInvalid, record.ID, record.WalletID)
		}
	}
	for _, expense := range source.MandatoryExpenses {
		if !wallets[expense.WalletID] {
			return fmt.Errorf("%w: mandatory expense %d references unknown wallet %d", ErrSourceInvalid, expense.ID, expense.WalletID)
		}
	}
	for _, transfer := range source.Transfers {
		if !wallets[transfer.FromWalletID] || !wallets[transfer.ToWalletID] {
			return fmt.Errorf("%w: transfer %d references unknown wallets", ErrSourceInvalid, transfer.ID)
		}
	}
	return store.ValidateTransferIntegrity(source.Records, source.Transfers)
}

func probeSchema(ctx context.Context, database *sqlx.DB) error {
	var one int
	for _, table := range []string{"wallets", "transfers", "records", "mandatory_expenses"} {
		err := database.GetContext(ctx, &one, `SELECT 1 FROM `+table+` LIMIT 1`)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s: %v", ErrSchemaNotApplied, table, err)
		}
	}
	return nil
}

func hasAnyData(ctx context.Context, database *sqlx.DB) (bool, error) {
	for _, table := range []string{"wallets", "transfers", "records", "mandatory_expenses"} {
		var count int
		if err := database.GetContext(ctx, &count, `SELECT COUNT(*) FROM `+table); err != nil {
			return false, err
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}

// validateEquivalence decides whether an already-populated target holds
// the same data set: matching counts, matching per-wallet balances and
// matching net worth, all at the storage tolerance.
func validateEquivalence(ctx context.Context, target *store.SQLStore, source store.Snapshot) error {
	existing, err := target.Export(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTargetDiffers, err)
	}
	if len(existing.Wallets) != len(source.Wallets) ||
		len(existing.Transfers) != len(source.Transfers) ||
		len(existing.Records) != len(source.Records) ||
		len(existing.MandatoryExpenses) != len(source.MandatoryExpenses) {
		return fmt.Errorf("%w: row counts differ", ErrTargetDiffers)
	}
	sourceBalances := walletBalances(source)
	targetBalances := walletBalances(existing)
	if len(sourceBalances) != len(targetBalances) {
		return fmt.Errorf("%w: wallet sets differ", ErrTargetDiffers)
	}
	for id, balance := range sourceBalances {
		other, ok := targetBalances[id]
		if !ok || !money.ApproxEqual(balance, other) {
			return fmt.Errorf("%w: wallet %d balance %.5f vs %.5f", ErrTargetDiffers, id, balance, other)
		}
	}
	if !money.ApproxEqual(netWorth(sourceBalances), netWorth(targetBalances)) {
		return fmt.Errorf("%w: net worth differs", ErrTargetDiffers)
	}
	return nil
}

func walletBalances(snapshot store.Snapshot) map[int64]float64 {
	balances := make(map[int64]float64, len(snapshot.Wallets))
	for _, wallet := range snapshot.Wallets {
		balances[wallet.ID] = wallet.InitialBalance
	}
	for _, record := range snapshot.Records {
		if _, ok := balances[record.WalletID]; ok {
			balances[record.WalletID] += record.SignedAmountKZT()
		}
	}
	return balances
}

func netWorth(balances map[int64]float64) float64 {
	var total float64
	for _, balance := range balances {
		total += balance
	}
	return total
}

// plan carries the remapped rows plus the balances the target must
// reproduce.
type plan struct {
	wallets   []models.Wallet
	transfers []models.Transfer
	records   []models.Record
	mandatory []models.Record
	balances  map[int64]float64
}

// buildPlan remaps ids. Ids are preserved per entity type only when
// the whole collection carries strictly positive unique ids; otherwise
// that type is renumbered sequentially. Wallet and transfer ids are
// referenced by other rows and follow a translation map; record and
// mandatory-expense ids are referenced by nothing, so they renumber
// positionally, which also survives duplicate source ids.
func buildPlan(source store.Snapshot) plan {
	walletIDs := translationMap(walletIDList(source.Wallets))
	transferIDs := translationMap(transferIDList(source.Transfers))
	recordIDs := sequenceIDs(recordIDList(source.Records))
	mandatoryIDs := sequenceIDs(recordIDList(source.MandatoryExpenses))

	p := plan{balances: map[int64]float64{}}
	for _, wallet := range source.Wallets {
		remapped := wallet
		remapped.ID = walletIDs[wallet.ID]
		p.wallets = append(p.wallets, remapped)
		p.balances[remapped.ID] = remapped.InitialBalance
	}
	for _, transfer := range source.Transfers {
		remapped := transfer
		remapped.ID = transferIDs[transfer.ID]
		remapped.FromWalletID = walletIDs[transfer.FromWalletID]
		remapped.ToWalletID = walletIDs[transfer.ToWalletID]
		p.transfers = append(p.transfers, remapped)
	}
	for i, record := range source.Records {
		remapped := record
		remapped.ID = recordIDs[i]
		remapped.WalletID = walletIDs[record.WalletID]
		if record.TransferID != nil {
			id := transferIDs[*record.TransferID]
			remapped.TransferID = &id
		}
		if record.CommissionForTransferID != nil {
			id := transferIDs[*record.CommissionForTransferID]
			remapped.CommissionForTransferID = &id
		}
		p.records = append(p.records, remapped)
		p.balances[remapped.WalletID] += remapped.SignedAmountKZT()
	}
	for i, expense := range source.MandatoryExpenses {
		remapped := expense
		remapped.ID = mandatoryIDs[i]
		remapped.WalletID = walletIDs[expense.WalletID]
		p.mandatory = append(p.mandatory, remapped)
	}
	return p
}

func walletIDList(wallets []models.Wallet) []int64 {
	ids := make([]int64, len(wallets))
	for i, wallet := range wallets {
		ids[i] = wallet.ID
	}
	return ids
}

func transferIDList(transfers []models.Transfer) []int64 {
	ids := make([]int64, len(transfers))
	for i, transfer := range transfers {
		ids[i] = transfer.ID
	}
	return ids
}

func recordIDList(records []models.Record) []int64 {
	ids := make([]int64, len(records))
	for i, record := range records {
		ids[i] = record.ID
	}
	return ids
}

func translationMap(ids []int64) map[int64]int64 {
	out := make(map[int64]int64, len(ids))
	if allPositiveUnique(ids) {
		for _, id := range ids {
			out[id] = id
		}
		return out
	}
	ordered := append([]int64(nil), ids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })
	next := int64(1)
	for _, id := range ordered {
		if _, seen := out[id]; seen {
			continue
		}
		out[id] = next
		next++
	}
	return out
}

func sequenceIDs(ids []int64) []int64 {
	if allPositiveUnique(ids) {
		return ids
	}
	out := make([]int64, len(ids))
	for i := range ids {
		out[i] = int64(i + 1)
	}
	return out
}

func allPositiveUnique(ids []int64) bool {
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			return false
		}
		seen[id] = true
	}
	return true
}

func (p plan) insert(ctx context.Context, tx *sqlx.Tx) error {
	for _, wallet := range p.wallets {
		if err := store.InsertWallet(ctx, tx, wallet); err != nil {
			return err
		}
	}
	for _, transfer := range p.transfers {
		if err := store.InsertTransfer(ctx, tx, transfer); err != nil {
			return err
		}
	}
	for _, record := range p.records {
		if err := store.InsertRecord(ctx, tx, record); err != nil {
			return err
		}
	}
	for _, expense := range p.mandatory {
		if err := store.InsertMandatoryExpense(ctx, tx, expense); err != nil {
			return err
		}
	}
	return nil
}

// verify re-reads counts and per-wallet balances inside the same
// transaction; a mismatch aborts the commit.
func (p plan) verify(ctx context.Context, tx *sqlx.Tx) error {
	counts := map[string]int{
		"wallets":            len(p.wallets),
		"transfers":          len(p.transfers),
		"records":            len(p.records),
		"mandatory_expenses": len(p.mandatory),
	}
	for table, expected := range counts {
		var actual int
		if err := tx.GetContext(ctx, &actual, `SELECT COUNT(*) FROM `+table); err != nil {
			return err
		}
		if actual != expected {
			return fmt.Errorf("%w: %s has %d rows, expected %d", ErrVerifyMismatch, table, actual, expected)
		}
	}
	for walletID, expected := range p.balances {
		var initial float64
		if err := tx.GetContext(ctx, &initial, `SELECT initial_balance FROM wallets WHERE id = ?`, walletID); err != nil {
			return err
		}
		var delta float64
		err := tx.GetContext(ctx, &delta, `
			SELECT COALESCE(SUM(CASE WHEN type = 'income' THEN amount_kzt ELSE -ABS(amount_kzt) END), 0)
			FROM records WHERE wallet_id = ?
		`, walletID)
		if err != nil {
			return err
		}
		actual := initial + delta
		if math.Abs(actual-expected) >= money.Epsilon {
			return fmt.Errorf("%w: wallet %d balance %.5f, expected %.5f", ErrVerifyMismatch, walletID, actual, expected)
		}
	}
	return nil
}
