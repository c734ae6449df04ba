package main

import (
	"context"
	"log"

	"kassa/internal/bootstrap"
	"kassa/internal/config"
	"kassa/internal/money"
	"kassa/internal/services"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	storage, err := bootstrap.Run(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap failed: %v", err)
	}
	defer storage.Close()

	rates := money.DefaultRates()
	wallets := services.NewWalletService(storage, rates)

	walletList, err := storage.LoadWallets(ctx)
	if err != nil {
		log.Fatalf("failed to load wallets: %v", err)
	}
	records, err := storage.LoadRecords(ctx)
	if err != nil {
		log.Fatalf("failed to load records: %v", err)
	}
	netWorth, err := wallets.NetWorth(ctx)
	if err != nil {
		log.Fatalf("failed to compute net worth: %v", err)
	}
	log.Printf("ready: %d wallets, %d records, net worth %.2f %s",
		len(walletList), len(records), netWorth, rates.Base())
}
