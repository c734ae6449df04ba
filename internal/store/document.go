package store

import (
	"encoding/json"
	"fmt"

	"kassa/internal/models"
)

// document is the JSON wire form of a full data set. Older files are
// either a bare array of records or an object without a "wallets" key;
// decodeDocument upgrades both in memory by attaching a system wallet
// that carries the legacy initial balance. The upgraded shape is only
// written back on the next save.
type document struct {
	InitialBalance    float64           `json:"initial_balance"`
	Wallets           []models.Wallet   `json:"wallets"`
	Records           []models.Record   `json:"records"`
	MandatoryExpenses []models.Record   `json:"mandatory_expenses"`
	Transfers         []models.Transfer `json:"transfers"`
}

type documentProbe struct {
	InitialBalance    float64           `json:"initial_balance"`
	Wallets           *[]models.Wallet  `json:"wallets"`
	Records           []models.Record   `json:"records"`
	MandatoryExpenses []models.Record   `json:"mandatory_expenses"`
	Transfers         []models.Transfer `json:"transfers"`
}

func decodeDocument(data []byte) (document, error) {
	var legacyRecords []models.Record
	if err := json.Unmarshal(data, &legacyRecords); err == nil {
		return upgradeLegacy(0, legacyRecords, nil, nil), nil
	}

	var probe documentProbe
	if err := json.Unmarshal(data, &probe); err != nil {
		return document{}, fmt.Errorf("decode data file: %w", err)
	}
	if probe.Wallets == nil {
		return upgradeLegacy(probe.InitialBalance, probe.Records, probe.MandatoryExpenses, probe.Transfers), nil
	}
	return document{
		InitialBalance:    probe.InitialBalance,
		Wallets:           *probe.Wallets,
		Records:           probe.Records,
		MandatoryExpenses: probe.MandatoryExpenses,
		Transfers:         probe.Transfers,
	}, nil
}

func upgradeLegacy(initialBalance float64, records, mandatory []models.Record, transfers []models.Transfer) document {
	system := models.SystemWallet(initialBalance)
	upgraded := make([]models.Record, len(records))
	for i, record := range records {
		if record.WalletID == 0 {
			record.WalletID = system.ID
		}
		upgraded[i] = record
	}
	return document{
		InitialBalance:    initialBalance,
		Wallets:           []models.Wallet{system},
		Records:           upgraded,
		MandatoryExpenses: mandatory,
		Transfers:         transfers,
	}
}

func (d document) snapshot() Snapshot {
	return Snapshot{
		InitialBalance:    d.InitialBalance,
		Wallets:           d.Wallets,
		Records:           d.Records,
		MandatoryExpenses: d.MandatoryExpenses,
		Transfers:         d.Transfers,
	}
}

func documentFromSnapshot(s Snapshot) document {
	return document{
		InitialBalance:    s.InitialBalance,
		Wallets:           s.Wallets,
		Records:           s.Records,
		MandatoryExpenses: s.MandatoryExpenses,
		Transfers:         s.Transfers,
	}
}
