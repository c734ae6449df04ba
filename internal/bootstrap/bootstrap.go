package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"kassa/internal/config"
	"kassa/internal/db"
	"kassa/internal/migrate"
	"kassa/internal/money"
	"kassa/internal/store"
)

var ErrStartupIntegrity = errors.New("startup integrity check failed")

// Run prepares the active storage backend. For the SQLite backend it
// backs up the JSON file, migrates it into an empty database, checks
// that both stores agree, and refreshes the JSON mirror so the data
// stays human-inspectable.
func Run(ctx context.Context, cfg config.Config) (store.Storage, error) {
	backupPath, err := CreateBackup(cfg.JSONPath, cfg.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", cfg.JSONPath, err)
	}
	if backupPath != "" {
		log.Printf("[backup] wrote %s", backupPath)
	}

	if cfg.Backend == "json" {
		jsonStore := store.NewJSONStore(cfg.JSONPath)
		// Loading validates transfer integrity up front.
		if _, err := jsonStore.Export(ctx); err != nil {
			return nil, err
		}
		log.Printf("[bootstrap] using JSON backend at %s", cfg.JSONPath)
		return jsonStore, nil
	}

	database, err := db.Connect(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	sqlStore := store.NewSQLStore(database)
	if err := sqlStore.InitSchema(ctx, cfg.SchemaPath); err != nil {
		database.Close()
		return nil, err
	}

	empty, err := isEmpty(ctx, sqlStore)
	if err != nil {
		database.Close()
		return nil, err
	}
	jsonExists := fileExists(cfg.JSONPath)

	if empty && jsonExists {
		log.Printf("[bootstrap] empty database, migrating %s into %s", cfg.JSONPath, cfg.SQLitePath)
		if _, err := migrate.Run(ctx, migrate.Options{
			JSONPath:   cfg.JSONPath,
			SQLitePath: cfg.SQLitePath,
			SchemaPath: cfg.SchemaPath,
		}); err != nil {
			database.Close()
			return nil, fmt.Errorf("one-time migration: %w", err)
		}
	}

	// Whenever the JSON document exists, both stores must agree before
	// anything runs against the database; a diverged document means
	// data lives in only one place and startup refuses to pick a side.
	if jsonExists {
		if err := validateAgainstJSON(ctx, sqlStore, cfg.JSONPath); err != nil {
			database.Close()
			return nil, err
		}
	}

	if err := refreshMirror(ctx, sqlStore, cfg.JSONPath); err != nil {
		log.Printf("[bootstrap] mirror refresh failed: %v", err)
	}
	log.Printf("[bootstrap] using SQLite backend at %s", cfg.SQLitePath)
	return sqlStore, nil
}

func isEmpty(ctx context.Context, sqlStore *store.SQLStore) (bool, error) {
	snapshot, err := sqlStore.Export(ctx)
	if err != nil {
		return false, err
	}
	return len(snapshot.Wallets) == 0 && len(snapshot.Records) == 0 &&
		len(snapshot.Transfers) == 0 && len(snapshot.MandatoryExpenses) == 0, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// validateAgainstJSON compares row counts and net worth between the
// freshly migrated database and its JSON source.
func validateAgainstJSON(ctx context.Context, sqlStore *store.SQLStore, jsonPath string) error {
	source, err := store.NewJSONStore(jsonPath).Export(ctx)
	if err != nil {
		return err
	}
	target, err := sqlStore.Export(ctx)
	if err != nil {
		return err
	}
	if len(source.Wallets) != len(target.Wallets) ||
		len(source.Records) != len(target.Records) ||
		len(source.Transfers) != len(target.Transfers) ||
		len(source.MandatoryExpenses) != len(target.MandatoryExpenses) {
		return fmt.Errorf("%w: row counts differ between stores", ErrStartupIntegrity)
	}
	if !money.ApproxEqual(snapshotNetWorth(source), snapshotNetWorth(target)) {
		return fmt.Errorf("%w: net worth differs between stores", ErrStartupIntegrity)
	}
	return nil
}

func snapshotNetWorth(snapshot store.Snapshot) float64 {
	var total float64
	for _, wallet := range snapshot.Wallets {
		total += wallet.InitialBalance
	}
	for _, record := range snapshot.Records {
		total += record.SignedAmountKZT()
	}
	return total
}

// refreshMirror exports the database content back into the JSON file.
func refreshMirror(ctx context.Context, sqlStore *store.SQLStore, jsonPath string) error {
	snapshot, err := sqlStore.Export(ctx)
	if err != nil {
		return err
	}
	if len(snapshot.Wallets) == 0 && len(snapshot.Records) == 0 {
		return nil
	}
	return store.NewJSONStore(jsonPath).ReplaceAllData(ctx, snapshot)
}
