package store

import (
	"errors"
	"fmt"

	"kassa/internal/models"
)

var (
	ErrDanglingTransferLink = errors.New("record references a missing transfer")
	ErrBrokenTransferPair   = errors.New("transfer does not have exactly one expense and one income leg")
)

// ValidateTransferIntegrity enforces the double-entry invariant: every
// transfer owns exactly two legs, one expense and one income, and every
// transfer reference on a record resolves. Commission rows link through
// their own column and are not counted as legs.
func ValidateTransferIntegrity(records []models.Record, transfers []models.Transfer) error {
	known := make(map[int64]bool, len(transfers))
	for _, transfer := range transfers {
		known[transfer.ID] = true
	}

	legs := make(map[int64][]models.RecordType)
	for _, record := range records {
		if record.TransferID != nil {
			id := *record.TransferID
			if !known[id] {
				return fmt.Errorf("%w: transfer %d", ErrDanglingTransferLink, id)
			}
			legs[id] = append(legs[id], record.Type)
		}
		if record.CommissionForTransferID != nil && !known[*record.CommissionForTransferID] {
			return fmt.Errorf("%w: transfer %d", ErrDanglingTransferLink, *record.CommissionForTransferID)
		}
	}

	for _, transfer := range transfers {
		types := legs[transfer.ID]
		if len(types) != 2 {
			return fmt.Errorf("%w: transfer %d has %d legs", ErrBrokenTransferPair, transfer.ID, len(types))
		}
		if !(types[0] == models.TypeExpense && types[1] == models.TypeIncome) &&
			!(types[0] == models.TypeIncome && types[1] == models.TypeExpense) {
			return fmt.Errorf("%w: transfer %d legs are %s/%s", ErrBrokenTransferPair, transfer.ID, types[0], types[1])
		}
	}
	return nil
}
