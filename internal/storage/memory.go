package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fintrack/internal/core"
)

// Memory is an in-process Store used as the test double and as the
// zero-setup backend for local development. It mirrors the relational
// constraints: fingerprint uniqueness per user, the budget triple, unique
// user emails.
type Memory struct {
	mu sync.Mutex

	nextID       int64
	transactions map[int64]core.Transaction
	categories   map[int64]core.Category
	budgets      map[int64]core.Budget
	accounts     map[int64]core.Account
	users        map[int64]core.User
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[int64]core.Transaction),
		categories:   make(map[int64]core.Category),
		budgets:      make(map[int64]core.Budget),
		accounts:     make(map[int64]core.Account),
		users:        make(map[int64]core.User),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *Memory) fingerprintTaken(userID int64, fp string) bool {
	for _, tx := range m.transactions {
		if tx.UserID == userID && tx.Fingerprint != nil && *tx.Fingerprint == fp {
			return true
		}
	}
	return false
}

func (m *Memory) CreateTransaction(ctx context.Context, tx *core.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.Fingerprint != nil && m.fingerprintTaken(tx.UserID, *tx.Fingerprint) {
		return core.Conflictf("transaction with fingerprint %q already exists", *tx.Fingerprint)
	}
	now := time.Now().UTC()
	tx.ID = m.id()
	tx.CreatedAt = now
	tx.UpdatedAt = now
	m.transactions[tx.ID] = *tx
	return nil
}

func (m *Memory) CreateTransactions(ctx context.Context, txs []*core.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	now := time.Now().UTC()
	for _, tx := range txs {
		if tx.Fingerprint != nil && m.fingerprintTaken(tx.UserID, *tx.Fingerprint) {
			continue
		}
		tx.ID = m.id()
		tx.CreatedAt = now
		tx.UpdatedAt = now
		m.transactions[tx.ID] = *tx
		inserted++
	}
	return inserted, nil
}

func (m *Memory) TransactionByID(ctx context.Context, userID, id int64) (*core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok || tx.UserID != userID {
		return nil, core.NotFoundf("transaction %d", id)
	}
	out := tx
	return &out, nil
}

func (m *Memory) ListTransactions(ctx context.Context, userID int64, f TxnFilter) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID {
			continue
		}
		if f.AccountID != nil && (tx.AccountID == nil || *tx.AccountID != *f.AccountID) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, f.Limit, f.Offset), nil
}

func (m *Memory) DeleteTransaction(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.transactions[id]
	if !ok || tx.UserID != userID {
		return core.NotFoundf("transaction %d", id)
	}
	delete(m.transactions, id)
	return nil
}

func (m *Memory) TransactionsInRange(ctx context.Context, userID int64, first, last core.Date, accountID *int64) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Transaction
	for _, tx := range m.transactions {
		if tx.UserID != userID {
			continue
		}
		if tx.Date.Before(first.Time) || tx.Date.After(last.Time) {
			continue
		}
		if accountID != nil && (tx.AccountID == nil || *tx.AccountID != *accountID) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) FingerprintExists(ctx context.Context, userID int64, fingerprint string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fingerprintTaken(userID, fingerprint), nil
}

func (m *Memory) CreateCategory(ctx context.Context, c *core.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	c.ID = m.id()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.categories[c.ID] = *c
	return nil
}

func (m *Memory) CategoryByID(ctx context.Context, userID, id int64) (*core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return nil, core.NotFoundf("category %d", id)
	}
	out := c
	return &out, nil
}

func (m *Memory) ListCategories(ctx context.Context, userID int64, limit, offset int) ([]core.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Category
	for _, c := range m.categories {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return strings.Compare(out[i].Name, out[j].Name) < 0
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, limit, offset), nil
}

func (m *Memory) UpdateCategory(ctx context.Context, c *core.Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.categories[c.ID]
	if !ok || existing.UserID != c.UserID {
		return core.NotFoundf("category %d", c.ID)
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()
	m.categories[c.ID] = *c
	return nil
}

func (m *Memory) DeleteCategory(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.categories[id]
	if !ok || c.UserID != userID {
		return core.NotFoundf("category %d", id)
	}
	delete(m.categories, id)
	return nil
}

func (m *Memory) HasChildCategories(ctx context.Context, userID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range m.categories {
		if c.UserID == userID && c.ParentID != nil && *c.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CategoryNames(ctx context.Context, userID int64, ids []int64) (map[int64]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make(map[int64]string, len(ids))
	for _, id := range ids {
		if c, ok := m.categories[id]; ok && c.UserID == userID {
			names[id] = c.Name
		}
	}
	return names, nil
}

func (m *Memory) CreateBudget(ctx context.Context, b *core.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.budgets {
		if existing.UserID == b.UserID && existing.Month == b.Month && existing.CategoryID == b.CategoryID {
			return core.Conflictf("budget already exists for month %s and category %d", b.Month, b.CategoryID)
		}
	}
	now := time.Now().UTC()
	b.ID = m.id()
	b.CreatedAt = now
	b.UpdatedAt = now
	m.budgets[b.ID] = *b
	return nil
}

func (m *Memory) BudgetByID(ctx context.Context, userID, id int64) (*core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return nil, core.NotFoundf("budget %d", id)
	}
	out := b
	return &out, nil
}

func (m *Memory) ListBudgets(ctx context.Context, userID int64, month string, categoryID *int64, limit, offset int) ([]core.Budget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Budget
	for _, b := range m.budgets {
		if b.UserID != userID {
			continue
		}
		if month != "" && b.Month != month {
			continue
		}
		if categoryID != nil && b.CategoryID != *categoryID {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month > out[j].Month
		}
		return out[i].ID > out[j].ID
	})
	return paginate(out, limit, offset), nil
}

func (m *Memory) UpdateBudget(ctx context.Context, b *core.Budget) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.budgets[b.ID]
	if !ok || existing.UserID != b.UserID {
		return core.NotFoundf("budget %d", b.ID)
	}
	// Month and category identify the budget; only the amount moves.
	existing.Amount = b.Amount
	existing.UpdatedAt = time.Now().UTC()
	m.budgets[b.ID] = existing
	*b = existing
	return nil
}

func (m *Memory) DeleteBudget(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.budgets[id]
	if !ok || b.UserID != userID {
		return core.NotFoundf("budget %d", id)
	}
	delete(m.budgets, id)
	return nil
}

func (m *Memory) CreateAccount(ctx context.Context, a *core.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	a.ID = m.id()
	a.CreatedAt = now
	a.UpdatedAt = now
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) AccountByID(ctx context.Context, userID, id int64) (*core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return nil, core.NotFoundf("account %d", id)
	}
	out := a
	return &out, nil
}

func (m *Memory) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []core.Account
	for _, a := range m.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) DeleteAccount(ctx context.Context, userID, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok || a.UserID != userID {
		return core.NotFoundf("account %d", id)
	}
	delete(m.accounts, id)
	return nil
}

func (m *Memory) CreateUser(ctx context.Context, u *core.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return core.Conflictf("email %s already registered", u.Email)
		}
	}
	now := time.Now().UTC()
	u.ID = m.id()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			out := u
			return &out, nil
		}
	}
	return nil, core.NotFoundf("user %s", email)
}

func (m *Memory) UserByID(ctx context.Context, id int64) (*core.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, core.NotFoundf("user %d", id)
	}
	out := u
	return &out, nil
}

func (m *Memory) Close() error { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
