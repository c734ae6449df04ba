package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Backend != "sqlite" {
		t.Errorf("expected sqlite backend, got %q", cfg.Backend)
	}
	if cfg.JSONPath != "data.json" || cfg.SQLitePath != "finance.db" {
		t.Errorf("unexpected paths: %+v", cfg)
	}
	if cfg.BaseCurrency != "KZT" {
		t.Errorf("expected KZT, got %q", cfg.BaseCurrency)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("KASSA_BACKEND", "json")
	t.Setenv("KASSA_JSON_PATH", "/tmp/ledger.json")
	t.Setenv("KASSA_BACKUP_DIR", "/tmp/ledger-backups")

	cfg := Load()
	if cfg.Backend != "json" {
		t.Errorf("expected json backend, got %q", cfg.Backend)
	}
	if cfg.JSONPath != "/tmp/ledger.json" {
		t.Errorf("unexpected json path %q", cfg.JSONPath)
	}
	if cfg.BackupDir != "/tmp/ledger-backups" {
		t.Errorf("unexpected backup dir %q", cfg.BackupDir)
	}
}
