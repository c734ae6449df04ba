package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"kassa/internal/config"
	"kassa/internal/migrate"
)

func main() {
	cfg := config.Load()
	jsonPath := flag.String("json-path", cfg.JSONPath, "path to the JSON data file")
	sqlitePath := flag.String("sqlite-path", cfg.SQLitePath, "path to the SQLite database")
	schemaPath := flag.String("schema-path", cfg.SchemaPath, "path to the schema file")
	dryRun := flag.Bool("dry-run", false, "validate and report counts without writing")
	flag.Parse()

	result, err := migrate.Run(context.Background(), migrate.Options{
		JSONPath:   *jsonPath,
		SQLitePath: *sqlitePath,
		SchemaPath: *schemaPath,
		DryRun:     *dryRun,
	})
	if err != nil {
		log.Printf("[migrate] failed: %v", err)
		os.Exit(1)
	}
	switch {
	case *dryRun:
		fmt.Printf("dry run ok: %d wallets, %d transfers, %d records, %d mandatory expenses\n",
			result.Wallets, result.Transfers, result.Records, result.MandatoryExpenses)
	case result.NoOp:
		fmt.Println("target already up to date")
	default:
		fmt.Printf("migrated %d wallets, %d transfers, %d records, %d mandatory expenses\n",
			result.Wallets, result.Transfers, result.Records, result.MandatoryExpenses)
	}
}
