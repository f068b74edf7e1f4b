package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"fintrack/internal/core"
)

const txnColumns = `id, user_id, account_id, date, amount, txn_type, category_id,
	vendor, note, is_recurring, source, fingerprint, created_at, updated_at`

// SQLite is the default Store backend, a single-file database opened via
// the modernc driver (no cgo).
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	slog.InfoContext(ctx, "Opened SQLite ledger store", "db_path", dbPath)
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func sqliteUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func (s *SQLite) CreateTransaction(ctx context.Context, tx *core.Transaction) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (user_id, account_id, date, amount, txn_type,
			category_id, vendor, note, is_recurring, source, fingerprint,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.UserID, tx.AccountID, tx.Date.ISO(), tx.Amount.String(), string(tx.TxnType),
		tx.CategoryID, tx.Vendor, tx.Note, tx.IsRecurring, tx.Source, tx.Fingerprint,
		now, now)
	if err != nil {
		if sqliteUniqueViolation(err) {
			return core.Conflictf("transaction with fingerprint %q already exists", deref(tx.Fingerprint))
		}
		return core.Storef(err, "insert transaction")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Storef(err, "transaction insert id")
	}
	tx.ID = id
	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

func (s *SQLite) CreateTransactions(ctx context.Context, txs []*core.Transaction) (int, error) {
	dbtx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, core.Storef(err, "begin bulk insert")
	}
	defer dbtx.Rollback()

	// ON CONFLICT on the partial fingerprint index makes a pre-existing
	// fingerprint a silent no-op, also for duplicates within the batch.
	stmt, err := dbtx.PrepareContext(ctx, `
		INSERT INTO transactions (user_id, account_id, date, amount, txn_type,
			category_id, vendor, note, is_recurring, source, fingerprint,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint) WHERE fingerprint IS NOT NULL DO NOTHING`)
	if err != nil {
		return 0, core.Storef(err, "prepare bulk insert")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, tx := range txs {
		res, err := stmt.ExecContext(ctx,
			tx.UserID, tx.AccountID, tx.Date.ISO(), tx.Amount.String(), string(tx.TxnType),
			tx.CategoryID, tx.Vendor, tx.Note, tx.IsRecurring, tx.Source, tx.Fingerprint,
			now, now)
		if err != nil {
			return 0, core.Storef(err, "bulk insert transaction")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, core.Storef(err, "bulk insert rows affected")
		}
		if n > 0 {
			inserted++
		}
	}

	if err := dbtx.Commit(); err != nil {
		return 0, core.Storef(err, "commit bulk insert")
	}
	return inserted, nil
}

func (s *SQLite) TransactionByID(ctx context.Context, userID, id int64) (*core.Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+txnColumns+`
		FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanSQLiteTxn(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("transaction %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get transaction")
	}
	return &tx, nil
}

func (s *SQLite) ListTransactions(ctx context.Context, userID int64, f TxnFilter) ([]core.Transaction, error) {
	query := `SELECT ` + txnColumns + ` FROM transactions WHERE user_id = ?`
	args := []any{userID}
	if f.AccountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *f.AccountID)
	}
	query += ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list transactions")
	}
	defer rows.Close()
	return collectSQLiteTxns(rows)
}

func (s *SQLite) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Storef(err, "delete transaction")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("transaction %d", id)
	}
	return nil
}

func (s *SQLite) TransactionsInRange(ctx context.Context, userID int64, first, last core.Date, accountID *int64) ([]core.Transaction, error) {
	query := `SELECT ` + txnColumns + `
		FROM transactions WHERE user_id = ? AND date >= ? AND date <= ?`
	args := []any{userID, first.ISO(), last.ISO()}
	if accountID != nil {
		query += ` AND account_id = ?`
		args = append(args, *accountID)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list transactions in range")
	}
	defer rows.Close()
	return collectSQLiteTxns(rows)
}

func (s *SQLite) FingerprintExists(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions WHERE user_id = ? AND fingerprint = ?
		)`, userID, fingerprint).Scan(&exists)
	if err != nil {
		return false, core.Storef(err, "check fingerprint")
	}
	return exists, nil
}

func (s *SQLite) CreateCategory(ctx context.Context, c *core.Category) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (user_id, name, parent_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.UserID, c.Name, c.ParentID, now, now)
	if err != nil {
		return core.Storef(err, "insert category")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Storef(err, "category insert id")
	}
	c.ID = id
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (s *SQLite) CategoryByID(ctx context.Context, userID, id int64) (*core.Category, error) {
	var c core.Category
	var parent sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, parent_id, created_at, updated_at
		FROM categories WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &parent, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("category %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get category")
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	return &c, nil
}

func (s *SQLite) ListCategories(ctx context.Context, userID int64, limit, offset int) ([]core.Category, error) {
	query := `SELECT id, user_id, name, parent_id, created_at, updated_at
		FROM categories WHERE user_id = ? ORDER BY name, id`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list categories")
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		var parent sql.NullInt64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &parent, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, core.Storef(err, "scan category")
		}
		if parent.Valid {
			c.ParentID = &parent.Int64
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "list categories")
	}
	return out, nil
}

func (s *SQLite) UpdateCategory(ctx context.Context, c *core.Category) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = ?, parent_id = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		c.Name, c.ParentID, now, c.ID, c.UserID)
	if err != nil {
		return core.Storef(err, "update category")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("category %d", c.ID)
	}
	c.UpdatedAt = now
	return nil
}

func (s *SQLite) DeleteCategory(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Storef(err, "delete category")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("category %d", id)
	}
	return nil
}

func (s *SQLite) HasChildCategories(ctx context.Context, userID, id int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM categories WHERE user_id = ? AND parent_id = ?
		)`, userID, id).Scan(&exists)
	if err != nil {
		return false, core.Storef(err, "check child categories")
	}
	return exists, nil
}

func (s *SQLite) CategoryNames(ctx context.Context, userID int64, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := []any{userID}
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name FROM categories
		WHERE user_id = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, core.Storef(err, "resolve category names")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, core.Storef(err, "scan category name")
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "resolve category names")
	}
	return names, nil
}

func (s *SQLite) CreateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (user_id, month, category_id, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.UserID, b.Month, b.CategoryID, b.Amount.String(), now, now)
	if err != nil {
		if sqliteUniqueViolation(err) {
			return core.Conflictf("budget already exists for month %s and category %d", b.Month, b.CategoryID)
		}
		return core.Storef(err, "insert budget")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Storef(err, "budget insert id")
	}
	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (s *SQLite) BudgetByID(ctx context.Context, userID, id int64) (*core.Budget, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, month, category_id, amount, created_at, updated_at
		FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	b, err := scanSQLiteBudget(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("budget %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get budget")
	}
	return &b, nil
}

func (s *SQLite) ListBudgets(ctx context.Context, userID int64, month string, categoryID *int64, limit, offset int) ([]core.Budget, error) {
	query := `SELECT id, user_id, month, category_id, amount, created_at, updated_at
		FROM budgets WHERE user_id = ?`
	args := []any{userID}
	if month != "" {
		query += ` AND month = ?`
		args = append(args, month)
	}
	if categoryID != nil {
		query += ` AND category_id = ?`
		args = append(args, *categoryID)
	}
	query += ` ORDER BY month DESC, id DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list budgets")
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanSQLiteBudget(rows)
		if err != nil {
			return nil, core.Storef(err, "scan budget")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "list budgets")
	}
	return out, nil
}

func (s *SQLite) UpdateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE budgets SET amount = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		b.Amount.String(), now, b.ID, b.UserID)
	if err != nil {
		return core.Storef(err, "update budget")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("budget %d", b.ID)
	}
	b.UpdatedAt = now
	return nil
}

func (s *SQLite) DeleteBudget(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM budgets WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Storef(err, "delete budget")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("budget %d", id)
	}
	return nil
}

func (s *SQLite) CreateAccount(ctx context.Context, a *core.Account) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, name, acct_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		a.UserID, a.Name, a.AcctType, now, now)
	if err != nil {
		return core.Storef(err, "insert account")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Storef(err, "account insert id")
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (s *SQLite) AccountByID(ctx context.Context, userID, id int64) (*core.Account, error) {
	var a core.Account
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, name, acct_type, created_at, updated_at
		FROM accounts WHERE id = ? AND user_id = ?`, id, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.AcctType, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("account %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get account")
	}
	return &a, nil
}

func (s *SQLite) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, name, acct_type, created_at, updated_at
		FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, core.Storef(err, "list accounts")
	}
	defer rows.Close()

	var out []core.Account
	for rows.Next() {
		var a core.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &a.AcctType, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, core.Storef(err, "scan account")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "list accounts")
	}
	return out, nil
}

func (s *SQLite) DeleteAccount(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM accounts WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return core.Storef(err, "delete account")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return core.NotFoundf("account %d", id)
	}
	return nil
}

func (s *SQLite) CreateUser(ctx context.Context, u *core.User) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		u.Email, u.PasswordHash, now, now)
	if err != nil {
		if sqliteUniqueViolation(err) {
			return core.Conflictf("email %s already registered", u.Email)
		}
		return core.Storef(err, "insert user")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Storef(err, "user insert id")
	}
	u.ID = id
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (s *SQLite) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = ?`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("user %s", email)
	}
	if err != nil {
		return nil, core.Storef(err, "get user by email")
	}
	return &u, nil
}

func (s *SQLite) UserByID(ctx context.Context, id int64) (*core.User, error) {
	var u core.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundf("user %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get user by id")
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteTxn(row rowScanner) (core.Transaction, error) {
	var (
		tx          core.Transaction
		accountID   sql.NullInt64
		dateStr     string
		amountStr   string
		txnType     string
		categoryID  sql.NullInt64
		vendor      sql.NullString
		note        sql.NullString
		fingerprint sql.NullString
	)
	err := row.Scan(&tx.ID, &tx.UserID, &accountID, &dateStr, &amountStr, &txnType,
		&categoryID, &vendor, &note, &tx.IsRecurring, &tx.Source, &fingerprint,
		&tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}

	date, err := core.ParseDate(dateStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored date %q: %w", dateStr, err)
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}

	tx.Date = date
	tx.Amount = amount
	tx.TxnType = core.TxnType(txnType)
	if accountID.Valid {
		tx.AccountID = &accountID.Int64
	}
	if categoryID.Valid {
		tx.CategoryID = &categoryID.Int64
	}
	if vendor.Valid {
		tx.Vendor = &vendor.String
	}
	if note.Valid {
		tx.Note = &note.String
	}
	if fingerprint.Valid {
		tx.Fingerprint = &fingerprint.String
	}
	return tx, nil
}

func collectSQLiteTxns(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanSQLiteTxn(rows)
		if err != nil {
			return nil, core.Storef(err, "scan transaction")
		}
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "iterate transactions")
	}
	return out, nil
}

func scanSQLiteBudget(row rowScanner) (core.Budget, error) {
	var b core.Budget
	var amountStr string
	err := row.Scan(&b.ID, &b.UserID, &b.Month, &b.CategoryID, &amountStr, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return core.Budget{}, err
	}
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return core.Budget{}, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	b.Amount = amount
	return b, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
