package storage

import (
	"context"
	"fmt"

	"fintrack/internal/core"
)

// TxnFilter narrows transaction listings. A nil AccountID means
// account-agnostic: unassigned transactions are included.
type TxnFilter struct {
	AccountID *int64
	Limit     int
	Offset    int
}

// Store is the query contract the engines depend on. Implementations must
// enforce fingerprint uniqueness (nullable, unique when non-null) and the
// (user, month, category) budget triple as hard constraints, surfacing
// violations as core.ErrConflict.
type Store interface {
	// Transactions.
	CreateTransaction(ctx context.Context, tx *core.Transaction) error
	// CreateTransactions inserts a batch in one unit of work. Rows whose
	// fingerprint already exists, in the store or earlier in the batch,
	// are skipped. Returns the number of rows actually inserted.
	CreateTransactions(ctx context.Context, txs []*core.Transaction) (int, error)
	TransactionByID(ctx context.Context, userID, id int64) (*core.Transaction, error)
	ListTransactions(ctx context.Context, userID int64, f TxnFilter) ([]core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID, id int64) error
	// TransactionsInRange returns the user's transactions with
	// first <= date <= last, optionally filtered by account.
	TransactionsInRange(ctx context.Context, userID int64, first, last core.Date, accountID *int64) ([]core.Transaction, error)
	FingerprintExists(ctx context.Context, userID int64, fingerprint string) (bool, error)

	// Categories.
	CreateCategory(ctx context.Context, c *core.Category) error
	CategoryByID(ctx context.Context, userID, id int64) (*core.Category, error)
	ListCategories(ctx context.Context, userID int64, limit, offset int) ([]core.Category, error)
	UpdateCategory(ctx context.Context, c *core.Category) error
	DeleteCategory(ctx context.Context, userID, id int64) error
	HasChildCategories(ctx context.Context, userID, id int64) (bool, error)
	// CategoryNames resolves display names for the given ids, restricted
	// to the user's own categories. Unknown ids are absent from the map.
	CategoryNames(ctx context.Context, userID int64, ids []int64) (map[int64]string, error)

	// Budgets.
	CreateBudget(ctx context.Context, b *core.Budget) error
	BudgetByID(ctx context.Context, userID, id int64) (*core.Budget, error)
	ListBudgets(ctx context.Context, userID int64, month string, categoryID *int64, limit, offset int) ([]core.Budget, error)
	// UpdateBudget changes the amount only; month and category identify
	// the budget and never move.
	UpdateBudget(ctx context.Context, b *core.Budget) error
	DeleteBudget(ctx context.Context, userID, id int64) error

	// Accounts.
	CreateAccount(ctx context.Context, a *core.Account) error
	AccountByID(ctx context.Context, userID, id int64) (*core.Account, error)
	ListAccounts(ctx context.Context, userID int64) ([]core.Account, error)
	DeleteAccount(ctx context.Context, userID, id int64) error

	// Users.
	CreateUser(ctx context.Context, u *core.User) error
	UserByEmail(ctx context.Context, email string) (*core.User, error)
	UserByID(ctx context.Context, id int64) (*core.User, error)

	Close() error
}

// BackendType selects a Store implementation.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
	MemoryBackend   BackendType = "memory"
)

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Config holds backend selection plus per-backend settings.
type Config struct {
	Backend BackendType

	// SQLite.
	SQLitePath string

	// Postgres.
	PostgresURL string
}

// Open builds the Store named by cfg.Backend. SQLite and Postgres run
// their migrations before returning.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case SQLiteBackend:
		return OpenSQLite(ctx, cfg.SQLitePath)
	case PostgresBackend:
		return OpenPostgres(ctx, cfg.PostgresURL)
	case MemoryBackend:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
}
