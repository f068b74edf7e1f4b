package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

const pgTxnColumns = `id, user_id, account_id, date, amount::text, txn_type, category_id,
	vendor, note, is_recurring, source, fingerprint, created_at, updated_at`

// Postgres is the shared-server Store backend, driven by a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse postgres url: %w", err)
	}

	// Migrations run over a throwaway database/sql connection; the pool
	// serves queries afterwards.
	migrateDB := stdlib.OpenDB(*cfg.ConnConfig)
	defer migrateDB.Close()
	if err := runPostgresMigrations(migrateDB); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	slog.InfoContext(ctx, "Opened Postgres ledger store")
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func pgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *Postgres) CreateTransaction(ctx context.Context, tx *core.Transaction) error {
	now := time.Now().UTC()
	err := p.pool.QueryRow(ctx, `
		INSERT INTO transactions (user_id, account_id, date, amount, txn_type,
			category_id, vendor, note, is_recurring, source, fingerprint,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING id`,
		tx.UserID, tx.AccountID, tx.Date.Time, tx.Amount.String(), string(tx.TxnType),
		tx.CategoryID, tx.Vendor, tx.Note, tx.IsRecurring, tx.Source, tx.Fingerprint,
		now, now).Scan(&tx.ID)
	if err != nil {
		if pgUniqueViolation(err) {
			return core.Conflictf("transaction with fingerprint %q already exists", deref(tx.Fingerprint))
		}
		return core.Storef(err, "insert transaction")
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now
	return nil
}

func (p *Postgres) CreateTransactions(ctx context.Context, txs []*core.Transaction) (int, error) {
	dbtx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, core.Storef(err, "begin bulk insert")
	}
	defer dbtx.Rollback(ctx)

	now := time.Now().UTC()
	inserted := 0
	for _, tx := range txs {
		tag, err := dbtx.Exec(ctx, `
			INSERT INTO transactions (user_id, account_id, date, amount, txn_type,
				category_id, vendor, note, is_recurring, source, fingerprint,
				created_at, updated_at)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (fingerprint) WHERE fingerprint IS NOT NULL DO NOTHING`,
			tx.UserID, tx.AccountID, tx.Date.Time, tx.Amount.String(), string(tx.TxnType),
			tx.CategoryID, tx.Vendor, tx.Note, tx.IsRecurring, tx.Source, tx.Fingerprint,
			now, now)
		if err != nil {
			return 0, core.Storef(err, "bulk insert transaction")
		}
		if tag.RowsAffected() > 0 {
			inserted++
		}
	}

	if err := dbtx.Commit(ctx); err != nil {
		return 0, core.Storef(err, "commit bulk insert")
	}
	return inserted, nil
}

func (p *Postgres) TransactionByID(ctx context.Context, userID, id int64) (*core.Transaction, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT `+pgTxnColumns+`
		FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	tx, err := scanPgTxn(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("transaction %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get transaction")
	}
	return &tx, nil
}

func (p *Postgres) ListTransactions(ctx context.Context, userID int64, f TxnFilter) ([]core.Transaction, error) {
	query := `SELECT ` + pgTxnColumns + ` FROM transactions WHERE user_id = $1`
	args := []any{userID}
	if f.AccountID != nil {
		args = append(args, *f.AccountID)
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY date DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit, f.Offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list transactions")
	}
	defer rows.Close()
	return collectPgTxns(rows)
}

func (p *Postgres) DeleteTransaction(ctx context.Context, userID, id int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Storef(err, "delete transaction")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("transaction %d", id)
	}
	return nil
}

func (p *Postgres) TransactionsInRange(ctx context.Context, userID int64, first, last core.Date, accountID *int64) ([]core.Transaction, error) {
	query := `SELECT ` + pgTxnColumns + `
		FROM transactions WHERE user_id = $1 AND date >= $2 AND date <= $3`
	args := []any{userID, first.Time, last.Time}
	if accountID != nil {
		args = append(args, *accountID)
		query += ` AND account_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY id`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list transactions in range")
	}
	defer rows.Close()
	return collectPgTxns(rows)
}

func (p *Postgres) FingerprintExists(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions WHERE user_id = $1 AND fingerprint = $2
		)`, userID, fingerprint).Scan(&exists)
	if err != nil {
		return false, core.Storef(err, "check fingerprint")
	}
	return exists, nil
}

func (p *Postgres) CreateCategory(ctx context.Context, c *core.Category) error {
	now := time.Now().UTC()
	err := p.pool.QueryRow(ctx, `
		INSERT INTO categories (user_id, name, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		c.UserID, c.Name, c.ParentID, now, now).Scan(&c.ID)
	if err != nil {
		return core.Storef(err, "insert category")
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (p *Postgres) CategoryByID(ctx context.Context, userID, id int64) (*core.Category, error) {
	var c core.Category
	err := p.pool.QueryRow(ctx, `
		SELECT id, user_id, name, parent_id, created_at, updated_at
		FROM categories WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&c.ID, &c.UserID, &c.Name, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("category %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get category")
	}
	return &c, nil
}

func (p *Postgres) ListCategories(ctx context.Context, userID int64, limit, offset int) ([]core.Category, error) {
	query := `SELECT id, user_id, name, parent_id, created_at, updated_at
		FROM categories WHERE user_id = $1 ORDER BY name, id`
	args := []any{userID}
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $2 OFFSET $3`
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list categories")
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.ParentID, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, core.Storef(err, "scan category")
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, core.Storef(err, "list categories")
	}
	return out, nil
}

func (p *Postgres) UpdateCategory(ctx context.Context, c *core.Category) error {
	now := time.Now().UTC()
	tag, err := p.pool.Exec(ctx, `
		UPDATE categories SET name = $1, parent_id = $2, updated_at = $3
		WHERE id = $4 AND user_id = $5`,
		c.Name, c.ParentID, now, c.ID, c.UserID)
	if err != nil {
		return core.Storef(err, "update category")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("category %d", c.ID)
	}
	c.UpdatedAt = now
	return nil
}

func (p *Postgres) DeleteCategory(ctx context.Context, userID, id int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM categories WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Storef(err, "delete category")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("category %d", id)
	}
	return nil
}

func (p *Postgres) HasChildCategories(ctx context.Context, userID, id int64) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM categories WHERE user_id = $1 AND parent_id = $2
		)`, userID, id).Scan(&exists)
	if err != nil {
		return false, core.Storef(err, "check child categories")
	}
	return exists, nil
}

func (p *Postgres) CategoryNames(ctx context.Context, userID int64, ids []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	rows, err := p.pool.Query(ctx, `
		SELECT id, name FROM categories
		WHERE user_id = $1 AND id = ANY($2)`, userID, ids)
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

func (p *Postgres) CreateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now().UTC()
	err := p.pool.QueryRow(ctx, `
		INSERT INTO budgets (user_id, month, category_id, amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id`,
		b.UserID, b.Month, b.CategoryID, b.Amount.String(), now, now).Scan(&b.ID)
	if err != nil {
		if pgUniqueViolation(err) {
			return core.Conflictf("budget already exists for month %s and category %d", b.Month, b.CategoryID)
		}
		return core.Storef(err, "insert budget")
	}
	b.CreatedAt = now
	b.UpdatedAt = now
	return nil
}

func (p *Postgres) BudgetByID(ctx context.Context, userID, id int64) (*core.Budget, error) {
	row := p.pool.QueryRow(ctx, `
		SELECT id, user_id, month, category_id, amount::text, created_at, updated_at
		FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	b, err := scanPgBudget(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("budget %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get budget")
	}
	return &b, nil
}

func (p *Postgres) ListBudgets(ctx context.Context, userID int64, month string, categoryID *int64, limit, offset int) ([]core.Budget, error) {
	query := `SELECT id, user_id, month, category_id, amount::text, created_at, updated_at
		FROM budgets WHERE user_id = $1`
	args := []any{userID}
	if month != "" {
		args = append(args, month)
		query += ` AND month = $` + strconv.Itoa(len(args))
	}
	if categoryID != nil {
		args = append(args, *categoryID)
		query += ` AND category_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY month DESC, id DESC`
	if limit > 0 {
		args = append(args, limit, offset)
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, core.Storef(err, "list budgets")
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		b, err := scanPgBudget(rows)
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

func (p *Postgres) UpdateBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now().UTC()
	tag, err := p.pool.Exec(ctx, `
		UPDATE budgets SET amount = $1::numeric, updated_at = $2
		WHERE id = $3 AND user_id = $4`,
		b.Amount.String(), now, b.ID, b.UserID)
	if err != nil {
		return core.Storef(err, "update budget")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("budget %d", b.ID)
	}
	b.UpdatedAt = now
	return nil
}

func (p *Postgres) DeleteBudget(ctx context.Context, userID, id int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM budgets WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Storef(err, "delete budget")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("budget %d", id)
	}
	return nil
}

func (p *Postgres) CreateAccount(ctx context.Context, a *core.Account) error {
	now := time.Now().UTC()
	err := p.pool.QueryRow(ctx, `
		INSERT INTO accounts (user_id, name, acct_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		a.UserID, a.Name, a.AcctType, now, now).Scan(&a.ID)
	if err != nil {
		return core.Storef(err, "insert account")
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

func (p *Postgres) AccountByID(ctx context.Context, userID, id int64) (*core.Account, error) {
	var a core.Account
	err := p.pool.QueryRow(ctx, `
		SELECT id, user_id, name, acct_type, created_at, updated_at
		FROM accounts WHERE id = $1 AND user_id = $2`, id, userID).
		Scan(&a.ID, &a.UserID, &a.Name, &a.AcctType, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("account %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get account")
	}
	return &a, nil
}

func (p *Postgres) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, user_id, name, acct_type, created_at, updated_at
		FROM accounts WHERE user_id = $1 ORDER BY id`, userID)
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

func (p *Postgres) DeleteAccount(ctx context.Context, userID, id int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM accounts WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return core.Storef(err, "delete account")
	}
	if tag.RowsAffected() == 0 {
		return core.NotFoundf("account %d", id)
	}
	return nil
}

func (p *Postgres) CreateUser(ctx context.Context, u *core.User) error {
	now := time.Now().UTC()
	err := p.pool.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		u.Email, u.PasswordHash, now, now).Scan(&u.ID)
	if err != nil {
		if pgUniqueViolation(err) {
			return core.Conflictf("email %s already registered", u.Email)
		}
		return core.Storef(err, "insert user")
	}
	u.CreatedAt = now
	u.UpdatedAt = now
	return nil
}

func (p *Postgres) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	var u core.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("user %s", email)
	}
	if err != nil {
		return nil, core.Storef(err, "get user by email")
	}
	return &u, nil
}

func (p *Postgres) UserByID(ctx context.Context, id int64) (*core.User, error) {
	var u core.User
	err := p.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, created_at, updated_at
		FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.NotFoundf("user %d", id)
	}
	if err != nil {
		return nil, core.Storef(err, "get user by id")
	}
	return &u, nil
}

func scanPgTxn(row pgx.Row) (core.Transaction, error) {
	var (
		tx        core.Transaction
		date      time.Time
		amountStr string
		txnType   string
	)
	err := row.Scan(&tx.ID, &tx.UserID, &tx.AccountID, &date, &amountStr, &txnType,
		&tx.CategoryID, &tx.Vendor, &tx.Note, &tx.IsRecurring, &tx.Source,
		&tx.Fingerprint, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
	if err != nil {
		return core.Transaction{}, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	tx.Date = core.Date{Time: date.UTC()}
	tx.Amount = amount
	tx.TxnType = core.TxnType(txnType)
	return tx, nil
}

func collectPgTxns(rows pgx.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		tx, err := scanPgTxn(rows)
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

func scanPgBudget(row pgx.Row) (core.Budget, error) {
	var b core.Budget
	var amountStr string
	err := row.Scan(&b.ID, &b.UserID, &b.Month, &b.CategoryID, &amountStr, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return core.Budget{}, err
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(amountStr))
	if err != nil {
		return core.Budget{}, fmt.Errorf("stored amount %q: %w", amountStr, err)
	}
	b.Amount = amount
	return b, nil
}
