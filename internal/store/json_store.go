package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"kassa/internal/models"
)

// JSONStore keeps the whole data set in one JSON document and rewrites
// it atomically on every mutation (temp file in the same directory,
// then rename). Safe for one process only; concurrent processes are
// last-writer-wins.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return document{}, nil
		}
		return document{}, fmt.Errorf("read %s: %w", s.path, err)
	}
	doc, err := decodeDocument(data)
	if err != nil {
		return document{}, err
	}
	if err := ValidateTransferIntegrity(doc.Records, doc.Transfers); err != nil {
		return document{}, fmt.Errorf("%s: %w", s.path, err)
	}
	return doc, nil
}

func (s *JSONStore) save(doc document) error {
	if err := ValidateTransferIntegrity(doc.Records, doc.Transfers); err != nil {
		return err
	}
	if doc.Wallets == nil {
		doc.Wallets = []models.Wallet{}
	}
	if doc.Records == nil {
		doc.Records = []models.Record{}
	}
	if doc.MandatoryExpenses == nil {
		doc.MandatoryExpenses = []models.Record{}
	}
	if doc.Transfers == nil {
		doc.Transfers = []models.Transfer{}
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".kassa-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// mutate runs fn against the loaded document and persists the result.
func (s *JSONStore) mutate(fn func(*document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return s.save(doc)
}

func (s *JSONStore) LoadWallets(ctx context.Context) ([]models.Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Wallets, nil
}

func (s *JSONStore) SaveWallet(ctx context.Context, wallet models.Wallet) (models.Wallet, error) {
	err := s.mutate(func(doc *document) error {
		if wallet.ID == 0 {
			ids := make([]int64, len(doc.Wallets))
			for i, w := range doc.Wallets {
				ids[i] = w.ID
			}
			wallet.ID = nextID(ids)
		}
		for i, existing := range doc.Wallets {
			if existing.ID == wallet.ID {
				doc.Wallets[i] = wallet
				return nil
			}
		}
		doc.Wallets = append(doc.Wallets, wallet)
		return nil
	})
	if err != nil {
		return models.Wallet{}, err
	}
	return wallet, nil
}

func (s *JSONStore) LoadRecords(ctx context.Context) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Records, nil
}

func (s *JSONStore) SaveRecord(ctx context.Context, record models.Record) (models.Record, error) {
	err := s.mutate(func(doc *document) error {
		if record.ID == 0 {
			ids := make([]int64, len(doc.Records))
			for i, r := range doc.Records {
				ids[i] = r.ID
			}
			record.ID = nextID(ids)
		}
		doc.Records = append(doc.Records, record)
		return nil
	})
	if err != nil {
		return models.Record{}, err
	}
	return record, nil
}

func (s *JSONStore) ReplaceRecord(ctx context.Context, index int, record models.Record) error {
	return s.mutate(func(doc *document) error {
		if index < 0 || index >= len(doc.Records) {
			return fmt.Errorf("%w: record %d", ErrIndexOutOfRange, index)
		}
		record.ID = doc.Records[index].ID
		doc.Records[index] = record
		return nil
	})
}

func (s *JSONStore) DeleteRecordByIndex(ctx context.Context, index int) (models.Record, error) {
	var removed models.Record
	err := s.mutate(func(doc *document) error {
		if index < 0 || index >= len(doc.Records) {
			return fmt.Errorf("%w: record %d", ErrIndexOutOfRange, index)
		}
		removed = doc.Records[index]
		doc.Records = append(doc.Records[:index], doc.Records[index+1:]...)
		return nil
	})
	if err != nil {
		return models.Record{}, err
	}
	return removed, nil
}

func (s *JSONStore) DeleteAllRecords(ctx context.Context) error {
	return s.mutate(func(doc *document) error {
		doc.Records = nil
		return nil
	})
}

func (s *JSONStore) LoadTransfers(ctx context.Context) ([]models.Transfer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.Transfers, nil
}

func (s *JSONStore) SaveTransfer(ctx context.Context, transfer models.Transfer) (models.Transfer, error) {
	err := s.mutate(func(doc *document) error {
		if transfer.ID == 0 {
			ids := make([]int64, len(doc.Transfers))
			for i, t := range doc.Transfers {
				ids[i] = t.ID
			}
			transfer.ID = nextID(ids)
		}
		doc.Transfers = append(doc.Transfers, transfer)
		return nil
	})
	if err != nil {
		return models.Transfer{}, err
	}
	return transfer, nil
}

func (s *JSONStore) LoadMandatoryExpenses(ctx context.Context) ([]models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	return doc.MandatoryExpenses, nil
}

func (s *JSONStore) SaveMandatoryExpense(ctx context.Context, expense models.Record) (models.Record, error) {
	err := s.mutate(func(doc *document) error {
		if expense.ID == 0 {
			ids := make([]int64, len(doc.MandatoryExpenses))
			for i, m := range doc.MandatoryExpenses {
				ids[i] = m.ID
			}
			expense.ID = nextID(ids)
		}
		doc.MandatoryExpenses = append(doc.MandatoryExpenses, expense)
		return nil
	})
	if err != nil {
		return models.Record{}, err
	}
	return expense, nil
}

func (s *JSONStore) DeleteMandatoryExpenseByIndex(ctx context.Context, index int) error {
	return s.mutate(func(doc *document) error {
		if index < 0 || index >= len(doc.MandatoryExpenses) {
			return fmt.Errorf("%w: mandatory expense %d", ErrIndexOutOfRange, index)
		}
		doc.MandatoryExpenses = append(doc.MandatoryExpenses[:index], doc.MandatoryExpenses[index+1:]...)
		// Templates keep compact sequential ids.
		for i := range doc.MandatoryExpenses {
			doc.MandatoryExpenses[i].ID = int64(i + 1)
		}
		return nil
	})
}

func (s *JSONStore) DeleteAllMandatoryExpenses(ctx context.Context) error {
	return s.mutate(func(doc *document) error {
		doc.MandatoryExpenses = nil
		return nil
	})
}

func (s *JSONStore) LoadInitialBalance(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	for _, wallet := range doc.Wallets {
		if wallet.System {
			return wallet.InitialBalance, nil
		}
	}
	return doc.InitialBalance, nil
}

func (s *JSONStore) SaveInitialBalance(ctx context.Context, amount float64) error {
	return s.mutate(func(doc *document) error {
		doc.InitialBalance = amount
		for i, wallet := range doc.Wallets {
			if wallet.System {
				doc.Wallets[i].InitialBalance = amount
				return nil
			}
		}
		return nil
	})
}

func (s *JSONStore) ReplaceRecordsAndTransfers(ctx context.Context, records []models.Record, transfers []models.Transfer) error {
	if err := ValidateTransferIntegrity(records, transfers); err != nil {
		return err
	}
	return s.mutate(func(doc *document) error {
		doc.Records = records
		doc.Transfers = transfers
		return nil
	})
}

func (s *JSONStore) ReplaceAllData(ctx context.Context, snapshot Snapshot) error {
	if err := ValidateTransferIntegrity(snapshot.Records, snapshot.Transfers); err != nil {
		return err
	}
	doc := documentFromSnapshot(snapshot)
	if len(doc.Wallets) == 0 {
		doc.Wallets = []models.Wallet{models.SystemWallet(doc.InitialBalance)}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(doc)
}

func (s *JSONStore) Export(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return Snapshot{}, err
	}
	return doc.snapshot(), nil
}

func (s *JSONStore) Close() error { return nil }
