package services

import (
	"context"
	"errors"
	"fmt"
	"math"

	"kassa/internal/models"
	"kassa/internal/money"
	"kassa/internal/store"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrSameWalletTransfer   = errors.New("cannot transfer to same wallet")
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrTransferNotFound     = errors.New("transfer not found")
	ErrRecordNotFound       = errors.New("record not found")
	ErrTransferLinkedRecord = errors.New("record belongs to a transfer")
	ErrSystemWalletDelete   = errors.New("system wallet cannot be deleted")
	ErrWalletNotEmpty       = errors.New("wallet balance is not zero")
)

type WalletService struct {
	storage store.Storage
	rates   money.Rates
}

func NewWalletService(storage store.Storage, rates money.Rates) *WalletService {
	return &WalletService{storage: storage, rates: rates}
}

func (s *WalletService) CreateWallet(ctx context.Context, name, currency string, initialBalance float64, allowNegative bool) (models.Wallet, error) {
	wallet, err := models.NewWallet(name, currency, initialBalance, allowNegative)
	if err != nil {
		return models.Wallet{}, err
	}
	return s.storage.SaveWallet(ctx, wallet)
}

func (s *WalletService) GetWallet(ctx context.Context, walletID int64) (models.Wallet, error) {
	wallets, err := s.storage.LoadWallets(ctx)
	if err != nil {
		return models.Wallet{}, err
	}
	for _, wallet := range wallets {
		if wallet.ID == walletID {
			return wallet, nil
		}
	}
	return models.Wallet{}, fmt.Errorf("%w: %d", ErrWalletNotFound, walletID)
}

// GetSystemWallet returns the wallet flagged as system, falling back to
// wallet id 1, and finally synthesizing a default one so older data
// sets always have a home for unassigned records.
func (s *WalletService) GetSystemWallet(ctx context.Context) (models.Wallet, error) {
	wallets, err := s.storage.LoadWallets(ctx)
	if err != nil {
		return models.Wallet{}, err
	}
	for _, wallet := range wallets {
		if wallet.System {
			return wallet, nil
		}
	}
	for _, wallet := range wallets {
		if wallet.ID == 1 {
			return wallet, nil
		}
	}
	return s.storage.SaveWallet(ctx, models.SystemWallet(0))
}

// Balance derives a wallet's balance from its initial balance plus the
// signed base-currency sum of every record that touches it, transfer
// legs and commissions included.
func (s *WalletService) Balance(ctx context.Context, walletID int64) (float64, error) {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return 0, err
	}
	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return 0, err
	}
	balance := wallet.InitialBalance
	for _, record := range records {
		if record.WalletID == walletID {
			balance += record.SignedAmountKZT()
		}
	}
	return balance, nil
}

// NetWorth sums the derived balances of all active wallets.
func (s *WalletService) NetWorth(ctx context.Context) (float64, error) {
	wallets, err := s.storage.LoadWallets(ctx)
	if err != nil {
		return 0, err
	}
	records, err := s.storage.LoadRecords(ctx)
	if err != nil {
		return 0, err
	}
	perWallet := make(map[int64]float64, len(wallets))
	active := make(map[int64]bool, len(wallets))
	var total float64
	for _, wallet := range wallets {
		if !wallet.IsActive {
			continue
		}
		active[wallet.ID] = true
		perWallet[wallet.ID] = wallet.InitialBalance
	}
	for _, record := range records {
		if active[record.WalletID] {
			perWallet[record.WalletID] += record.SignedAmountKZT()
		}
	}
	for id := range perWallet {
		total += perWallet[id]
	}
	return total, nil
}

// SoftDeleteWallet marks a wallet inactive, keeping its history. The
// system wallet and wallets holding funds are refused.
func (s *WalletService) SoftDeleteWallet(ctx context.Context, walletID int64) error {
	wallet, err := s.GetWallet(ctx, walletID)
	if err != nil {
		return err
	}
	if wallet.System {
		return ErrSystemWalletDelete
	}
	balance, err := s.Balance(ctx, walletID)
	if err != nil {
		return err
	}
	if math.Abs(balance) >= money.Epsilon {
		return fmt.Errorf("%w: wallet %d holds %.2f", ErrWalletNotEmpty, walletID, balance)
	}
	wallet.IsActive = false
	_, err = s.storage.SaveWallet(ctx, wallet)
	return err
}

func (s *WalletService) SetInitialBalance(ctx context.Context, amount float64) error {
	return s.storage.SaveInitialBalance(ctx, amount)
}
