package store

import (
	"context"
	"errors"

	"kassa/internal/models"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrWalletNotFound  = errors.New("wallet not found")
	ErrNoWallets       = errors.New("data set has no wallets")
)

// Snapshot is a full copy of one backend's content, used for bulk
// replacement and cross-store validation.
type Snapshot struct {
	InitialBalance    float64           `json:"initial_balance"`
	Wallets           []models.Wallet   `json:"wallets"`
	Records           []models.Record   `json:"records"`
	MandatoryExpenses []models.Record   `json:"mandatory_expenses"`
	Transfers         []models.Transfer `json:"transfers"`
}

// Storage is the persistence surface shared by the JSON document store
// and the SQLite store. Load paths re-validate transfer integrity and
// fail loudly on corruption.
type Storage interface {
	LoadWallets(ctx context.Context) ([]models.Wallet, error)
	SaveWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error)

	LoadRecords(ctx context.Context) ([]models.Record, error)
	SaveRecord(ctx context.Context, record models.Record) (models.Record, error)
	ReplaceRecord(ctx context.Context, index int, record models.Record) error
	DeleteRecordByIndex(ctx context.Context, index int) (models.Record, error)
	DeleteAllRecords(ctx context.Context) error

	LoadTransfers(ctx context.Context) ([]models.Transfer, error)
	SaveTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error)

	LoadMandatoryExpenses(ctx context.Context) ([]models.Record, error)
	SaveMandatoryExpense(ctx context.Context, expense models.Record) (models.Record, error)
	DeleteMandatoryExpenseByIndex(ctx context.Context, index int) error
	DeleteAllMandatoryExpenses(ctx context.Context) error

	LoadInitialBalance(ctx context.Context) (float64, error)
	SaveInitialBalance(ctx context.Context, amount float64) error

	// ReplaceRecordsAndTransfers swaps both collections atomically so a
	// transfer and its legs can never be observed half-written.
	ReplaceRecordsAndTransfers(ctx context.Context, records []models.Record, transfers []models.Transfer) error

	// ReplaceAllData swaps the entire data set atomically. An empty
	// wallet list gets a synthesized system wallet so records always
	// have a home.
	ReplaceAllData(ctx context.Context, snapshot Snapshot) error

	Export(ctx context.Context) (Snapshot, error)

	Close() error
}

// NextID returns one past the highest id in use, starting at 1.
func nextID(used []int64) int64 {
	var max int64
	for _, id := range used {
		if id > max {
			max = id
		}
	}
	return max + 1
}
