package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

func newMemoryStore(t *testing.T) *Memory {
	t.Helper()
	m := NewMemory()
	t.Cleanup(func() { m.Close() })
	return m
}

func mkTxn(t *testing.T, userID int64, date, amount string, fingerprint string) *core.Transaction {
	t.Helper()
	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate(%q): %v", date, err)
	}
	tx := &core.Transaction{
		UserID:  userID,
		Date:    d,
		Amount:  decimal.RequireFromString(amount),
		TxnType: core.Debit,
		Source:  core.SourceManual,
	}
	if fingerprint != "" {
		tx.Fingerprint = &fingerprint
	}
	return tx
}

func TestFingerprintUniquePerUser(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	if err := m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-01", "10", "fp-1")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	err := m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-01", "10", "fp-1"))
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("same fingerprint same user: error = %v, want ErrConflict", err)
	}
	if err := m.CreateTransaction(ctx, mkTxn(t, 2, "2025-03-01", "10", "fp-1")); err != nil {
		t.Errorf("same fingerprint other user: %v", err)
	}

	exists, err := m.FingerprintExists(ctx, 1, "fp-1")
	if err != nil || !exists {
		t.Errorf("FingerprintExists(1) = %v, %v", exists, err)
	}
	exists, err = m.FingerprintExists(ctx, 3, "fp-1")
	if err != nil || exists {
		t.Errorf("FingerprintExists(3) = %v, %v", exists, err)
	}
}

func TestCreateTransactionsSkipsExisting(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	if err := m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-01", "10", "fp-a")); err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	batch := []*core.Transaction{
		mkTxn(t, 1, "2025-03-01", "10", "fp-a"), // already stored
		mkTxn(t, 1, "2025-03-02", "20", "fp-b"),
		mkTxn(t, 1, "2025-03-02", "20", "fp-b"), // dup within batch
		mkTxn(t, 1, "2025-03-03", "30", "fp-c"),
	}
	n, err := m.CreateTransactions(ctx, batch)
	if err != nil {
		t.Fatalf("CreateTransactions: %v", err)
	}
	if n != 2 {
		t.Errorf("inserted %d, want 2", n)
	}

	all, err := m.ListTransactions(ctx, 1, TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("store holds %d transactions, want 3", len(all))
	}
}

func TestListTransactionsOrderAndPaging(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-01", "1", "a"))
	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-03", "2", "b"))
	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-02", "3", "c"))
	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-03", "4", "d"))

	all, err := m.ListTransactions(ctx, 1, TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	// Newest date first, then newest id.
	var dates []string
	for _, tx := range all {
		dates = append(dates, tx.Date.ISO())
	}
	want := []string{"2025-03-03", "2025-03-03", "2025-03-02", "2025-03-01"}
	for i := range want {
		if dates[i] != want[i] {
			t.Fatalf("order = %v, want %v", dates, want)
		}
	}
	if all[0].ID < all[1].ID {
		t.Errorf("same-date rows not ordered by descending id: %d before %d", all[0].ID, all[1].ID)
	}

	page, err := m.ListTransactions(ctx, 1, TxnFilter{Limit: 2, Offset: 1})
	if err != nil {
		t.Fatalf("ListTransactions paged: %v", err)
	}
	if len(page) != 2 || page[0].ID != all[1].ID {
		t.Errorf("page = %v", page)
	}
}

func TestTransactionsInRange(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	acct := &core.Account{UserID: 1, Name: "checking", AcctType: "checking"}
	if err := m.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	in := mkTxn(t, 1, "2025-03-15", "10", "in")
	in.AccountID = &acct.ID
	m.CreateTransaction(ctx, in)
	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-03-31", "20", "edge"))
	m.CreateTransaction(ctx, mkTxn(t, 1, "2025-04-01", "30", "out"))
	m.CreateTransaction(ctx, mkTxn(t, 2, "2025-03-15", "40", "other-user"))

	first, _ := core.ParseDate("2025-03-01")
	last, _ := core.ParseDate("2025-03-31")

	got, err := m.TransactionsInRange(ctx, 1, first, last, nil)
	if err != nil {
		t.Fatalf("TransactionsInRange: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("range returned %d rows, want 2 (inclusive bounds)", len(got))
	}

	got, err = m.TransactionsInRange(ctx, 1, first, last, &acct.ID)
	if err != nil {
		t.Fatalf("TransactionsInRange with account: %v", err)
	}
	if len(got) != 1 || got[0].Fingerprint == nil || *got[0].Fingerprint != "in" {
		t.Errorf("account-scoped range = %+v", got)
	}
}

func TestBudgetTripleUnique(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	b := &core.Budget{UserID: 1, Month: "2025-03", CategoryID: 7, Amount: decimal.RequireFromString("80")}
	if err := m.CreateBudget(ctx, b); err != nil {
		t.Fatalf("CreateBudget: %v", err)
	}

	dup := &core.Budget{UserID: 1, Month: "2025-03", CategoryID: 7, Amount: decimal.RequireFromString("90")}
	if err := m.CreateBudget(ctx, dup); !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate triple: error = %v, want ErrConflict", err)
	}

	// Different month or user is fine.
	if err := m.CreateBudget(ctx, &core.Budget{UserID: 1, Month: "2025-04", CategoryID: 7, Amount: decimal.Zero}); err != nil {
		t.Errorf("other month: %v", err)
	}
	if err := m.CreateBudget(ctx, &core.Budget{UserID: 2, Month: "2025-03", CategoryID: 7, Amount: decimal.Zero}); err != nil {
		t.Errorf("other user: %v", err)
	}
}

func TestCategoryNamesScopedToUser(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	mine := &core.Category{UserID: 1, Name: "Groceries"}
	theirs := &core.Category{UserID: 2, Name: "Secret"}
	m.CreateCategory(ctx, mine)
	m.CreateCategory(ctx, theirs)

	names, err := m.CategoryNames(ctx, 1, []int64{mine.ID, theirs.ID, 999})
	if err != nil {
		t.Fatalf("CategoryNames: %v", err)
	}
	if len(names) != 1 || names[mine.ID] != "Groceries" {
		t.Errorf("names = %v", names)
	}
}

func TestUserEmailUniqueCaseInsensitive(t *testing.T) {
	m := newMemoryStore(t)
	ctx := context.Background()

	if err := m.CreateUser(ctx, &core.User{Email: "ada@example.com", PasswordHash: "x"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	err := m.CreateUser(ctx, &core.User{Email: "Ada@Example.com", PasswordHash: "x"})
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("case-variant email: error = %v, want ErrConflict", err)
	}

	u, err := m.UserByEmail(ctx, "ADA@EXAMPLE.COM")
	if err != nil || u.Email != "ada@example.com" {
		t.Errorf("UserByEmail = %+v, %v", u, err)
	}
}

func TestOpenSelectsBackend(t *testing.T) {
	store, err := Open(context.Background(), Config{Backend: MemoryBackend})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*Memory); !ok {
		t.Errorf("Open(memory) returned %T", store)
	}

	if _, err := Open(context.Background(), Config{Backend: "sheets"}); err == nil {
		t.Error("unknown backend should fail")
	}
}
