package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"kassa/internal/validator"
)

type RecordType string

const (
	TypeIncome           RecordType = "income"
	TypeExpense          RecordType = "expense"
	TypeMandatoryExpense RecordType = "mandatory_expense"
)

const BaseCurrency = "KZT"

var (
	ErrInvalidWalletID    = errors.New("wallet id must be positive")
	ErrInvalidTransferID  = errors.New("transfer id must be positive")
	ErrInvalidRecordType  = errors.New("unknown record type")
	ErrMissingDate        = errors.New("date is required")
	ErrNegativeAmount     = errors.New("amount must not be negative")
	ErrNonPositiveAmount  = errors.New("amount must be positive")
	ErrSameWallet         = errors.New("transfer wallets must differ")
	ErrEmptyWalletName    = errors.New("wallet name is required")
	ErrTransferLinkUpdate = errors.New("transfer-linked record is immutable")
)

type Wallet struct {
	ID             int64   `db:"id" json:"id"`
	Name           string  `db:"name" json:"name"`
	Currency       string  `db:"currency" json:"currency"`
	InitialBalance float64 `db:"initial_balance" json:"initial_balance"`
	System         bool    `db:"system" json:"system"`
	AllowNegative  bool    `db:"allow_negative" json:"allow_negative"`
	IsActive       bool    `db:"is_active" json:"is_active"`
}

// NewWallet validates the name and currency and returns a wallet with
// no id; the store assigns ids on save.
func NewWallet(name, currency string, initialBalance float64, allowNegative bool) (Wallet, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Wallet{}, ErrEmptyWalletName
	}
	code, err := validator.NormalizeCurrency(currency)
	if err != nil {
		return Wallet{}, err
	}
	return Wallet{
		Name:           name,
		Currency:       code,
		InitialBalance: initialBalance,
		AllowNegative:  allowNegative,
		IsActive:       true,
	}, nil
}

// SystemWallet is the fallback wallet synthesized for legacy data sets
// that predate multi-wallet support.
func SystemWallet(initialBalance float64) Wallet {
	return Wallet{
		ID:             1,
		Name:           "Main wallet",
		Currency:       BaseCurrency,
		InitialBalance: initialBalance,
		System:         true,
		IsActive:       true,
	}
}

type Record struct {
	ID                      int64      `db:"id" json:"id"`
	Type                    RecordType `db:"type" json:"type"`
	Date                    string     `db:"date" json:"date"`
	WalletID                int64      `db:"wallet_id" json:"wallet_id"`
	TransferID              *int64     `db:"transfer_id" json:"transfer_id,omitempty"`
	CommissionForTransferID *int64     `db:"commission_for_transfer_id" json:"commission_for_transfer_id,omitempty"`
	AmountOriginal          float64    `db:"amount_original" json:"amount_original"`
	Currency                string     `db:"currency" json:"currency"`
	RateAtOperation         float64    `db:"rate_at_operation" json:"rate_at_operation"`
	AmountKZT               float64    `db:"amount_kzt" json:"amount_kzt"`
	Category                string     `db:"category" json:"category"`
	Description             string     `db:"description" json:"description"`
	Period                  string     `db:"period" json:"period,omitempty"`
}

// RecordInput carries the raw fields for NewRecord. Amounts are stored
// as absolute values; sign is derived from the type.
type RecordInput struct {
	Type                    RecordType
	Date                    string
	WalletID                int64
	TransferID              *int64
	CommissionForTransferID *int64
	AmountOriginal          float64
	Currency                string
	RateAtOperation         float64
	AmountKZT               float64
	Category                string
	Description             string
	Period                  string
}

// NewRecord validates and normalizes a record. Mandatory-expense
// templates may omit the date; every other type requires one. The
// conversion rate is re-derived from the two amounts so a stored rate
// can never disagree with them.
func NewRecord(in RecordInput) (Record, error) {
	switch in.Type {
	case TypeIncome, TypeExpense, TypeMandatoryExpense:
	default:
		return Record{}, fmt.Errorf("%w: %q", ErrInvalidRecordType, in.Type)
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		if in.Type != TypeMandatoryExpense {
			return Record{}, ErrMissingDate
		}
	} else {
		parsed, err := validator.ParseDate(date)
		if err != nil {
			return Record{}, err
		}
		date = parsed.Format(validator.DateLayout)
	}
	if in.WalletID <= 0 {
		return Record{}, ErrInvalidWalletID
	}
	if in.TransferID != nil && *in.TransferID <= 0 {
		return Record{}, ErrInvalidTransferID
	}
	if in.CommissionForTransferID != nil && *in.CommissionForTransferID <= 0 {
		return Record{}, ErrInvalidTransferID
	}
	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = BaseCurrency
	}
	code, err := validator.NormalizeCurrency(currency)
	if err != nil {
		return Record{}, err
	}
	if in.Period != "" {
		if err := validator.ValidatePeriod(in.Period); err != nil {
			return Record{}, err
		}
	}
	amountOriginal := math.Abs(in.AmountOriginal)
	amountKZT := math.Abs(in.AmountKZT)
	return Record{
		Type:                    in.Type,
		Date:                    date,
		WalletID:                in.WalletID,
		TransferID:              in.TransferID,
		CommissionForTransferID: in.CommissionForTransferID,
		AmountOriginal:          amountOriginal,
		Currency:                code,
		RateAtOperation:         deriveRate(amountKZT, amountOriginal, code),
		AmountKZT:               amountKZT,
		Category:                strings.TrimSpace(in.Category),
		Description:             strings.TrimSpace(in.Description),
		Period:                  in.Period,
	}, nil
}

func deriveRate(amountKZT, amountOriginal float64, currency string) float64 {
	if currency == BaseCurrency || amountOriginal == 0 {
		return 1.0
	}
	return amountKZT / amountOriginal
}

// SignedAmountKZT applies the type's sign: income counts positive,
// every expense variant negative.
func (r Record) SignedAmountKZT() float64 {
	if r.Type == TypeIncome {
		return r.AmountKZT
	}
	return -math.Abs(r.AmountKZT)
}

// IsTransferLeg reports whether the record is one side of a transfer.
func (r Record) IsTransferLeg() bool {
	return r.TransferID != nil
}

// WithAmountKZT returns a copy with a new base-currency amount and a
// rate re-derived from it. Transfer legs are immutable.
func (r Record) WithAmountKZT(amountKZT float64) (Record, error) {
	if r.IsTransferLeg() {
		return Record{}, ErrTransferLinkUpdate
	}
	out := r
	out.AmountKZT = math.Abs(amountKZT)
	out.RateAtOperation = deriveRate(out.AmountKZT, out.AmountOriginal, out.Currency)
	return out, nil
}

type Transfer struct {
	ID              int64   `db:"id" json:"id"`
	FromWalletID    int64   `db:"from_wallet_id" json:"from_wallet_id"`
	ToWalletID      int64   `db:"to_wallet_id" json:"to_wallet_id"`
	Date            string  `db:"date" json:"date"`
	AmountOriginal  float64 `db:"amount_original" json:"amount_original"`
	Currency        string  `db:"currency" json:"currency"`
	RateAtOperation float64 `db:"rate_at_operation" json:"rate_at_operation"`
	AmountKZT       float64 `db:"amount_kzt" json:"amount_kzt"`
	Description     string  `db:"description" json:"description"`
}

type TransferInput struct {
	ID             int64
	FromWalletID   int64
	ToWalletID     int64
	Date           string
	AmountOriginal float64
	Currency       string
	AmountKZT      float64
	Description    string
}

// NewTransfer validates a transfer aggregate. Both wallet ids must be
// positive and distinct, and both amounts positive.
func NewTransfer(in TransferInput) (Transfer, error) {
	if in.FromWalletID <= 0 || in.ToWalletID <= 0 {
		return Transfer{}, ErrInvalidWalletID
	}
	if in.FromWalletID == in.ToWalletID {
		return Transfer{}, ErrSameWallet
	}
	date := strings.TrimSpace(in.Date)
	if date == "" {
		return Transfer{}, ErrMissingDate
	}
	parsed, err := validator.ParseDate(date)
	if err != nil {
		return Transfer{}, err
	}
	if in.AmountOriginal <= 0 || in.AmountKZT <= 0 {
		return Transfer{}, ErrNonPositiveAmount
	}
	currency := in.Currency
	if strings.TrimSpace(currency) == "" {
		currency = BaseCurrency
	}
	code, err := validator.NormalizeCurrency(currency)
	if err != nil {
		return Transfer{}, err
	}
	return Transfer{
		ID:              in.ID,
		FromWalletID:    in.FromWalletID,
		ToWalletID:      in.ToWalletID,
		Date:            parsed.Format(validator.DateLayout),
		AmountOriginal:  in.AmountOriginal,
		Currency:        code,
		RateAtOperation: deriveRate(in.AmountKZT, in.AmountOriginal, code),
		AmountKZT:       in.AmountKZT,
		Description:     strings.TrimSpace(in.Description),
	}, nil
}
