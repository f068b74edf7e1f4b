package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fintrack/internal/auth"
	"fintrack/internal/services"
	"fintrack/internal/storage"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store := storage.NewMemory()
	t.Cleanup(func() { store.Close() })

	return NewServer(Options{
		Store:          store,
		Ingest:         services.NewIngestService(store, nil),
		Report:         services.NewReportService(store),
		Auth:           auth.NewManager("test-secret", time.Hour),
		MaxImportBytes: 1 << 20,
	})
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func registerUser(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    email,
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	return resp.Token
}

func TestHealthEndpoints(t *testing.T) {
	h := newTestServer(t).Router()

	if rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("healthz status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/readyz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("readyz status = %d", rec.Code)
	}
}

func TestAuthFlow(t *testing.T) {
	h := newTestServer(t).Router()

	token := registerUser(t, h, "ada@example.com")
	if token == "" {
		t.Fatal("register returned empty token")
	}

	// Duplicate email is a conflict.
	rec := doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "ada@example.com",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate register status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "hunter2hunter2",
	})
	if rec.Code != http.StatusOK {
		t.Errorf("login status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "ada@example.com",
		"password": "wrong-password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad login status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":    "short@example.com",
		"password": "short",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("short password status = %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	h := newTestServer(t).Router()

	if rec := doJSON(t, h, http.MethodGet, "/api/transactions", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token status = %d", rec.Code)
	}
	if rec := doJSON(t, h, http.MethodGet, "/api/transactions", "garbage", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token status = %d", rec.Code)
	}
}

func TestTransactionLifecycle(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date":     "2025-03-01",
		"amount":   "42.50",
		"txn_type": "debit",
		"vendor":   "Acme",
		"source":   "manual",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created transactionJSON
	decodeBody(t, rec, &created)
	if created.ID == 0 {
		t.Fatal("created transaction has no id")
	}
	if created.Source != "manual" {
		t.Errorf("source = %q, want manual", created.Source)
	}

	// Same payload again is a conflict.
	rec = doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date":     "2025-03-01",
		"amount":   "42.5",
		"txn_type": "debit",
		"vendor":   "Acme",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate create status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/transactions/%d", created.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/transactions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var listed []transactionJSON
	decodeBody(t, rec, &listed)
	if len(listed) != 1 {
		t.Errorf("list returned %d transactions, want 1", len(listed))
	}

	// Another user cannot see or delete it.
	other := registerUser(t, h, "bob@example.com")
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/transactions/%d", created.ID), other, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("cross-user get status = %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/transactions/%d", created.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/transactions/%d", created.ID), token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestCreateTransactionValidationStatus(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date":     "2025-03-01",
		"amount":   "10",
		"txn_type": "transfer",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad type status = %d: %s", rec.Code, rec.Body.String())
	}
}

func importCSV(t *testing.T, h http.Handler, token, csvData string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "transactions.csv")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := io.Copy(fw, strings.NewReader(csvData)); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/transactions/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestImportEndpoint(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	csvData := strings.Join([]string{
		"date,amount,type,vendor",
		"2025-03-01,42.50,debit,Acme",
		"2025-03-02,100.00,credit,Globex",
	}, "\n")

	rec := importCSV(t, h, token, csvData)
	if rec.Code != http.StatusOK {
		t.Fatalf("import status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp importResponse
	decodeBody(t, rec, &resp)
	if resp.Imported != 2 {
		t.Errorf("import response = %+v, want 2 imported", resp)
	}

	// Re-import skips everything.
	rec = importCSV(t, h, token, csvData)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-import status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Imported != 0 {
		t.Errorf("re-import response = %+v, want 0 imported", resp)
	}

	// Header-only files are an empty, successful import.
	rec = importCSV(t, h, token, "date,amount,type\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("header-only status = %d: %s", rec.Code, rec.Body.String())
	}
	decodeBody(t, rec, &resp)
	if resp.Imported != 0 {
		t.Errorf("header-only response = %+v, want 0 imported", resp)
	}

	rec = importCSV(t, h, token, "date,vendor\n2025-03-01,Acme\n")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing columns status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestMonthlySummaryEndpoint(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2025-03-01", "amount": "42.50", "txn_type": "debit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2025-03-15", "amount": "100.00", "txn_type": "credit",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/aggregations/monthly?month=2025-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("summary status = %d: %s", rec.Code, rec.Body.String())
	}
	var summary struct {
		Month       string `json:"month"`
		DebitTotal  string `json:"debit_total"`
		CreditTotal string `json:"credit_total"`
		NetTotal    string `json:"net_total"`
	}
	decodeBody(t, rec, &summary)
	if summary.DebitTotal != "42.5" || summary.CreditTotal != "100" || summary.NetTotal != "57.5" {
		t.Errorf("summary = %+v", summary)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/aggregations/monthly?month=2025-13", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad month status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/api/aggregations/monthly", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("missing month status = %d", rec.Code)
	}
}

func TestBudgetEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/categories", token, map[string]any{"name": "Groceries"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category status = %d: %s", rec.Code, rec.Body.String())
	}
	var cat categoryJSON
	decodeBody(t, rec, &cat)

	rec = doJSON(t, h, http.MethodPost, "/api/budgets", token, map[string]any{
		"month": "2025-03", "category_id": cat.ID, "amount": "80.00",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create budget status = %d: %s", rec.Code, rec.Body.String())
	}

	var budget budgetJSON
	decodeBody(t, rec, &budget)

	// Same triple again is a conflict.
	rec = doJSON(t, h, http.MethodPost, "/api/budgets", token, map[string]any{
		"month": "2025-03", "category_id": cat.ID, "amount": "90.00",
	})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate budget status = %d: %s", rec.Code, rec.Body.String())
	}

	// Replanning changes the amount in place.
	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/budgets/%d", budget.ID), token, map[string]any{
		"amount": "80.00",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update budget status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2025-03-05", "amount": "30.00", "txn_type": "debit", "category_id": cat.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("seed txn status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/api/budgets/compare?month=2025-03", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("compare status = %d: %s", rec.Code, rec.Body.String())
	}
	var cmp struct {
		Rows []struct {
			CategoryID int64  `json:"category_id"`
			Budgeted   string `json:"budgeted"`
			Actual     string `json:"actual"`
			Variance   string `json:"variance"`
		} `json:"rows"`
	}
	decodeBody(t, rec, &cmp)
	if len(cmp.Rows) != 1 {
		t.Fatalf("compare rows = %+v", cmp.Rows)
	}
	row := cmp.Rows[0]
	if row.Budgeted != "80" || row.Actual != "30" || row.Variance != "50" {
		t.Errorf("compare row = %+v", row)
	}
}

func TestCategoryHierarchyRules(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/categories", token, map[string]any{"name": "Food"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create parent status = %d", rec.Code)
	}
	var parent categoryJSON
	decodeBody(t, rec, &parent)

	rec = doJSON(t, h, http.MethodPost, "/api/categories", token, map[string]any{
		"name": "Groceries", "parent_id": parent.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create child status = %d: %s", rec.Code, rec.Body.String())
	}
	var child categoryJSON
	decodeBody(t, rec, &child)

	// A category cannot become its own parent.
	rec = doJSON(t, h, http.MethodPut, fmt.Sprintf("/api/categories/%d", child.ID), token, map[string]any{
		"name": "Groceries", "parent_id": child.ID,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("self-parent status = %d: %s", rec.Code, rec.Body.String())
	}

	// A parent with children cannot be deleted.
	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/categories/%d", parent.ID), token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("delete parent status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/categories/%d", child.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete child status = %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/categories/%d", parent.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete parent after child status = %d", rec.Code)
	}

	// A parent owned by another user is invisible.
	other := registerUser(t, h, "bob@example.com")
	rec = doJSON(t, h, http.MethodPost, "/api/categories", other, map[string]any{"name": "Travel"})
	var foreign categoryJSON
	decodeBody(t, rec, &foreign)
	rec = doJSON(t, h, http.MethodPost, "/api/categories", token, map[string]any{
		"name": "Flights", "parent_id": foreign.ID,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign parent status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAccountEndpoints(t *testing.T) {
	h := newTestServer(t).Router()
	token := registerUser(t, h, "ada@example.com")

	rec := doJSON(t, h, http.MethodPost, "/api/accounts", token, map[string]any{
		"name": "Checking", "type": "checking",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account status = %d: %s", rec.Code, rec.Body.String())
	}
	var acct accountJSON
	decodeBody(t, rec, &acct)

	rec = doJSON(t, h, http.MethodGet, "/api/accounts", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list accounts status = %d", rec.Code)
	}
	var accounts []accountJSON
	decodeBody(t, rec, &accounts)
	if len(accounts) != 1 || accounts[0].ID != acct.ID {
		t.Errorf("accounts = %+v", accounts)
	}

	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/accounts/%d", acct.ID), token, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("get account status = %d: %s", rec.Code, rec.Body.String())
	}
	other := registerUser(t, h, "grace@example.com")
	rec = doJSON(t, h, http.MethodGet, fmt.Sprintf("/api/accounts/%d", acct.ID), other, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("foreign account status = %d: %s", rec.Code, rec.Body.String())
	}

	// Transactions can reference the account; a bogus one is a 404.
	rec = doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2025-03-01", "amount": "10", "txn_type": "debit", "account_id": acct.ID,
	})
	if rec.Code != http.StatusCreated {
		t.Errorf("txn with account status = %d: %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/api/transactions", token, map[string]any{
		"date": "2025-03-02", "amount": "10", "txn_type": "debit", "account_id": 999,
	})
	if rec.Code != http.StatusNotFound {
		t.Errorf("txn with bogus account status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodDelete, fmt.Sprintf("/api/accounts/%d", acct.ID), token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete account status = %d", rec.Code)
	}
}
