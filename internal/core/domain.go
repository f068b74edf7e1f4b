package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Debit  TxnType = "debit"
	Credit TxnType = "credit"
)

const (
	SourceManual = "manual"
	SourceCSV    = "csv"
)

type (
	// TxnType is the direction of a ledger entry. The numeric amount is
	// always non-negative; debit vs credit carries the sign.
	TxnType string

	// Transaction is a single ledger fact. Rows are append-mostly: the
	// reporting engines never mutate them.
	Transaction struct {
		ID          int64
		UserID      int64
		AccountID   *int64
		Date        Date
		Amount      decimal.Decimal
		TxnType     TxnType
		CategoryID  *int64
		Vendor      *string
		Note        *string
		IsRecurring bool
		Source      string
		Fingerprint *string
		CreatedAt   time.Time
		UpdatedAt   time.Time
	}

	// Category is a per-user label with an optional parent. A parent must
	// belong to the same user and a category cannot be its own parent.
	Category struct {
		ID        int64
		UserID    int64
		Name      string
		ParentID  *int64
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// Budget is the planned spend for one (user, month, category) triple.
	// The triple is unique.
	Budget struct {
		ID         int64
		UserID     int64
		Month      string // "YYYY-MM"
		CategoryID int64
		Amount     decimal.Decimal
		CreatedAt  time.Time
		UpdatedAt  time.Time
	}

	Account struct {
		ID        int64
		UserID    int64
		Name      string
		AcctType  string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		ID           int64
		Email        string
		PasswordHash string
		CreatedAt    time.Time
		UpdatedAt    time.Time
	}
)

// ParseTxnType normalizes user input to a TxnType. Matching is
// case-insensitive; the stored value is always lowercase.
func ParseTxnType(s string) (TxnType, error) {
	switch TxnType(strings.ToLower(strings.TrimSpace(s))) {
	case Debit:
		return Debit, nil
	case Credit:
		return Credit, nil
	default:
		return "", Validationf("txn_type must be debit or credit, got %q", s)
	}
}

func (t TxnType) Valid() bool {
	return t == Debit || t == Credit
}

// ParseAmount parses a decimal amount string. Amounts are exact decimals
// and non-negative; sign is carried by the transaction type.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, Validationf("amount cannot be empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, Validationf("amount %q is not a decimal number", s)
	}
	if d.IsNegative() {
		return decimal.Zero, Validationf("amount %s cannot be negative", d)
	}
	return d, nil
}

func (t Transaction) Validate() error {
	if t.UserID == 0 {
		return Validationf("transaction requires a user")
	}
	if t.Date.IsZero() {
		return Validationf("transaction requires a date")
	}
	if !t.TxnType.Valid() {
		return Validationf("txn_type must be debit or credit, got %q", string(t.TxnType))
	}
	if t.Amount.IsNegative() {
		return Validationf("amount %s cannot be negative", t.Amount)
	}
	return nil
}

func (b Budget) Validate() error {
	if b.UserID == 0 {
		return Validationf("budget requires a user")
	}
	if _, err := ParseMonth(b.Month); err != nil {
		return err
	}
	if b.CategoryID == 0 {
		return Validationf("budget requires a category")
	}
	if b.Amount.IsNegative() {
		return Validationf("budget amount %s cannot be negative", b.Amount)
	}
	return nil
}

func (c Category) Validate() error {
	if c.UserID == 0 {
		return Validationf("category requires a user")
	}
	if strings.TrimSpace(c.Name) == "" {
		return Validationf("category name cannot be empty")
	}
	return nil
}
