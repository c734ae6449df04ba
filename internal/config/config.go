package config

import (
	"os"
)

type Config struct {
	Backend      string
	JSONPath     string
	SQLitePath   string
	SchemaPath   string
	BaseCurrency string
	BackupDir    string
}

func Load() Config {
	return Config{
		Backend:      getEnv("KASSA_BACKEND", "sqlite"),
		JSONPath:     getEnv("KASSA_JSON_PATH", "data.json"),
		SQLitePath:   getEnv("KASSA_SQLITE_PATH", "finance.db"),
		SchemaPath:   getEnv("KASSA_SCHEMA_PATH", "migrations/001_init.sql"),
		BaseCurrency: getEnv("KASSA_BASE_CURRENCY", "KZT"),
		BackupDir:    getEnv("KASSA_BACKUP_DIR", "backups"),
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}
