package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"fintrack/internal/core"
	"fintrack/internal/storage"
	"fintrack/internal/tabular"
)

func newIngest(t *testing.T) (*IngestService, storage.Store) {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })
	return NewIngestService(store, nil), store
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

func TestCreateTransaction(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, 1, CreateTransactionInput{
		Date:    "2025-03-01",
		Amount:  "42.50",
		TxnType: "Debit",
		Vendor:  strPtr("Acme"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.ID == 0 {
		t.Error("created transaction has no id")
	}
	if tx.TxnType != core.Debit {
		t.Errorf("txn_type = %q, want normalized debit", tx.TxnType)
	}
	if tx.Source != core.SourceManual {
		t.Errorf("source = %q, want manual", tx.Source)
	}
	if tx.Fingerprint == nil || *tx.Fingerprint == "" {
		t.Fatal("created transaction has no fingerprint")
	}

	got, err := store.TransactionByID(ctx, 1, tx.ID)
	if err != nil {
		t.Fatalf("TransactionByID: %v", err)
	}
	if !got.Amount.Equal(tx.Amount) {
		t.Errorf("stored amount = %s, want %s", got.Amount, tx.Amount)
	}
}

func TestCreateTransactionSourceTag(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, 1, CreateTransactionInput{
		Date:    "2025-03-01",
		Amount:  "42.50",
		TxnType: "debit",
		Source:  "csv",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.Source != core.SourceCSV {
		t.Errorf("source = %q, want csv", tx.Source)
	}
}

func TestCreateTransactionExplicitFingerprint(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, 1, CreateTransactionInput{
		Date:        "2025-03-01",
		Amount:      "42.50",
		TxnType:     "debit",
		Fingerprint: strPtr("external-ref-001"),
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if tx.Fingerprint == nil || *tx.Fingerprint != "external-ref-001" {
		t.Errorf("fingerprint = %v, want the supplied key verbatim", tx.Fingerprint)
	}

	// A second entry with different fields but the same key is the same
	// logical event.
	_, err = svc.Create(ctx, 1, CreateTransactionInput{
		Date:        "2025-03-02",
		Amount:      "9.99",
		TxnType:     "credit",
		Fingerprint: strPtr("external-ref-001"),
	})
	if !errors.Is(err, core.ErrConflict) {
		t.Errorf("duplicate explicit fingerprint: error = %v, want ErrConflict", err)
	}
}

func TestCreateTransactionDuplicate(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	in := CreateTransactionInput{
		Date:    "2025-03-01",
		Amount:  "42.50",
		TxnType: "debit",
		Vendor:  strPtr("Acme"),
	}
	if _, err := svc.Create(ctx, 1, in); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(ctx, 1, in); !errors.Is(err, core.ErrConflict) {
		t.Errorf("second Create: error = %v, want ErrConflict", err)
	}

	// Same fields under another user are a different fingerprint.
	if _, err := svc.Create(ctx, 2, in); err != nil {
		t.Errorf("Create for other user: %v", err)
	}
}

func TestCreateTransactionEquivalentAmountsCollide(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	first := CreateTransactionInput{Date: "2025-03-01", Amount: "42.50", TxnType: "debit", Vendor: strPtr("Acme")}
	second := CreateTransactionInput{Date: "2025-03-01", Amount: "42.5", TxnType: "debit", Vendor: strPtr("Acme")}

	if _, err := svc.Create(ctx, 1, first); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := svc.Create(ctx, 1, second); !errors.Is(err, core.ErrConflict) {
		t.Errorf("42.5 after 42.50: error = %v, want ErrConflict", err)
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   CreateTransactionInput
	}{
		{"bad date", CreateTransactionInput{Date: "03/01/2025", Amount: "10", TxnType: "debit"}},
		{"bad amount", CreateTransactionInput{Date: "2025-03-01", Amount: "ten", TxnType: "debit"}},
		{"negative amount", CreateTransactionInput{Date: "2025-03-01", Amount: "-10", TxnType: "debit"}},
		{"bad type", CreateTransactionInput{Date: "2025-03-01", Amount: "10", TxnType: "transfer"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, 1, tt.in); !errors.Is(err, core.ErrValidation) {
				t.Errorf("error = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCreateTransactionUnknownReferences(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	in := CreateTransactionInput{Date: "2025-03-01", Amount: "10", TxnType: "debit", AccountID: int64Ptr(99)}
	if _, err := svc.Create(ctx, 1, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown account: error = %v, want ErrNotFound", err)
	}

	in = CreateTransactionInput{Date: "2025-03-01", Amount: "10", TxnType: "debit", CategoryID: int64Ptr(99)}
	if _, err := svc.Create(ctx, 1, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("unknown category: error = %v, want ErrNotFound", err)
	}

	// An account owned by someone else is equally invisible.
	acct := &core.Account{UserID: 2, Name: "checking", AcctType: "checking"}
	if err := store.CreateAccount(ctx, acct); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	in = CreateTransactionInput{Date: "2025-03-01", Amount: "10", TxnType: "debit", AccountID: &acct.ID}
	if _, err := svc.Create(ctx, 1, in); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("foreign account: error = %v, want ErrNotFound", err)
	}
}

func importRows(t *testing.T, csvData string) []tabular.Row {
	t.Helper()
	rows, err := tabular.ParseCSV(strings.NewReader(csvData))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	return rows
}

func TestImportIdempotent(t *testing.T) {
	svc, _ := newIngest(t)
	ctx := context.Background()

	csvData := strings.Join([]string{
		"date,amount,type,vendor",
		"2025-03-01,42.50,debit,Acme",
		"2025-03-02,100.00,credit,Globex",
		"2025-03-03,7.25,debit,Initech",
	}, "\n")
	rows := importRows(t, csvData)

	n, err := svc.Import(ctx, 1, rows)
	if err != nil {
		t.Fatalf("first Import: %v", err)
	}
	if n != 3 {
		t.Errorf("first Import inserted %d, want 3", n)
	}

	n, err = svc.Import(ctx, 1, rows)
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if n != 0 {
		t.Errorf("re-import inserted %d, want 0", n)
	}
}

func TestImportSkipsDuplicatesWithinBatch(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	rows := importRows(t, strings.Join([]string{
		"date,amount,type,vendor",
		"2025-03-01,42.50,debit,Acme",
		"2025-03-01,42.5,debit,Acme",
		"2025-03-02,9.99,debit,Acme",
	}, "\n"))

	n, err := svc.Import(ctx, 1, rows)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 2 {
		t.Errorf("Import inserted %d, want 2", n)
	}

	all, err := store.ListTransactions(ctx, 1, storage.TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("store holds %d transactions, want 2", len(all))
	}
}

func TestImportAbortsOnMalformedRow(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	rows := importRows(t, strings.Join([]string{
		"date,amount,type,vendor",
		"2025-03-01,42.50,debit,Acme",
		"2025-03-02,oops,debit,Globex",
	}, "\n"))

	_, err := svc.Import(ctx, 1, rows)
	if !errors.Is(err, core.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "row 2") {
		t.Errorf("error %q should name the offending row", err)
	}

	// Nothing from the batch may land.
	all, err := store.ListTransactions(ctx, 1, storage.TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("store holds %d transactions after aborted import, want 0", len(all))
	}
}

func TestImportEmptyIsNoOp(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	n, err := svc.Import(ctx, 1, nil)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if n != 0 {
		t.Errorf("empty Import inserted %d, want 0", n)
	}

	// A header-only file parses to zero rows and behaves the same.
	n, err = svc.Import(ctx, 1, importRows(t, "date,amount,type\n"))
	if err != nil {
		t.Fatalf("header-only Import: %v", err)
	}
	if n != 0 {
		t.Errorf("header-only Import inserted %d, want 0", n)
	}

	all, err := store.ListTransactions(ctx, 1, storage.TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("store holds %d transactions, want 0", len(all))
	}
}

func TestImportMarksSource(t *testing.T) {
	svc, store := newIngest(t)
	ctx := context.Background()

	rows := importRows(t, "date,amount,type\n2025-03-01,10,debit\n")
	if _, err := svc.Import(ctx, 1, rows); err != nil {
		t.Fatalf("Import: %v", err)
	}

	all, err := store.ListTransactions(ctx, 1, storage.TxnFilter{})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(all) != 1 || all[0].Source != core.SourceCSV {
		t.Errorf("imported row source = %+v, want csv", all)
	}
}
