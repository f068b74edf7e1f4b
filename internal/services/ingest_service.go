package services

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"fintrack/internal/core"
	"fintrack/internal/events"
	"fintrack/internal/storage"
	"fintrack/internal/tabular"
)

// IngestService writes ledger entries. Every entry gets a fingerprint and
// the store's uniqueness constraint makes re-submission safe: a manual
// duplicate is a conflict, an imported duplicate is silently skipped.
type IngestService struct {
	store  storage.Store
	events *events.Publisher
}

func NewIngestService(store storage.Store, pub *events.Publisher) *IngestService {
	return &IngestService{store: store, events: pub}
}

// CreateTransactionInput carries raw field values for a single entry.
// Date, Amount and TxnType arrive as strings so parse failures surface as
// validation errors rather than decode errors. Source is an informational
// provenance tag; empty means manual. A non-nil Fingerprint is stored
// verbatim instead of the computed one.
type CreateTransactionInput struct {
	Date        string
	Amount      string
	TxnType     string
	AccountID   *int64
	CategoryID  *int64
	Vendor      *string
	Note        *string
	IsRecurring bool
	Source      string
	Fingerprint *string
}

// Create validates, fingerprints and persists one transaction. A
// fingerprint collision with an existing entry is a conflict.
func (s *IngestService) Create(ctx context.Context, userID int64, in CreateTransactionInput) (*core.Transaction, error) {
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = core.SourceManual
	}
	tx, err := s.buildTransaction(userID, in, source)
	if err != nil {
		return nil, err
	}
	if err := s.checkReferences(ctx, userID, tx.AccountID, tx.CategoryID); err != nil {
		return nil, err
	}

	exists, err := s.store.FingerprintExists(ctx, userID, *tx.Fingerprint)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, core.Conflictf("duplicate transaction: an identical entry already exists")
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.events.PublishTransactionCreated(ctx, userID, tx.ID, tx.Source); err != nil {
		slog.WarnContext(ctx, "Failed to publish transaction created event",
			"transaction_id", tx.ID, "error", err)
	}
	return tx, nil
}

// Import ingests parsed tabular rows as one batch. Any malformed row
// aborts the whole import; rows duplicating an existing or earlier
// fingerprint are skipped. Returns the number of rows actually inserted.
// An empty batch is a valid no-op.
func (s *IngestService) Import(ctx context.Context, userID int64, rows []tabular.Row) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	txs := make([]*core.Transaction, 0, len(rows))
	for i, row := range rows {
		in, err := inputFromRow(row)
		if err == nil {
			var tx *core.Transaction
			tx, err = s.buildTransaction(userID, in, core.SourceCSV)
			if err == nil {
				txs = append(txs, tx)
				continue
			}
		}
		return 0, core.Validationf("row %d: %v", i+1, err)
	}

	if err := s.checkBatchReferences(ctx, userID, txs); err != nil {
		return 0, err
	}

	inserted, err := s.store.CreateTransactions(ctx, txs)
	if err != nil {
		return 0, err
	}

	slog.InfoContext(ctx, "Imported transactions",
		"user_id", userID,
		"rows", len(rows),
		"inserted", inserted,
		"skipped", len(rows)-inserted)

	if err := s.events.PublishImportCompleted(ctx, userID, inserted); err != nil {
		slog.WarnContext(ctx, "Failed to publish import completed event",
			"user_id", userID, "error", err)
	}
	return inserted, nil
}

func inputFromRow(row tabular.Row) (CreateTransactionInput, error) {
	in := CreateTransactionInput{
		Date:    row["date"],
		Amount:  row["amount"],
		TxnType: row["type"],
	}
	if v, ok := row.Cell("vendor"); ok {
		in.Vendor = &v
	}
	if v, ok := row.Cell("note"); ok {
		in.Note = &v
	}
	if v, ok := row.Cell("account_id"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, core.Validationf("account_id %q is not an integer", v)
		}
		in.AccountID = &id
	}
	if v, ok := row.Cell("category_id"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return in, core.Validationf("category_id %q is not an integer", v)
		}
		in.CategoryID = &id
	}
	return in, nil
}

func (s *IngestService) buildTransaction(userID int64, in CreateTransactionInput, source string) (*core.Transaction, error) {
	date, err := core.ParseDate(in.Date)
	if err != nil {
		return nil, err
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	txnType, err := core.ParseTxnType(in.TxnType)
	if err != nil {
		return nil, err
	}

	tx := &core.Transaction{
		UserID:      userID,
		AccountID:   in.AccountID,
		Date:        date,
		Amount:      amount,
		TxnType:     txnType,
		CategoryID:  in.CategoryID,
		Vendor:      in.Vendor,
		Note:        in.Note,
		IsRecurring: in.IsRecurring,
		Source:      source,
	}
	fp := core.Fingerprint(userID, date, amount, txnType, derefStr(in.Vendor))
	if in.Fingerprint != nil && strings.TrimSpace(*in.Fingerprint) != "" {
		fp = strings.TrimSpace(*in.Fingerprint)
	}
	tx.Fingerprint = &fp

	if err := tx.Validate(); err != nil {
		return nil, err
	}
	return tx, nil
}

// checkReferences verifies that foreign ids belong to the user before the
// insert, so the caller sees a not-found error instead of a constraint
// failure from the store.
func (s *IngestService) checkReferences(ctx context.Context, userID int64, accountID, categoryID *int64) error {
	if accountID != nil {
		if _, err := s.store.AccountByID(ctx, userID, *accountID); err != nil {
			return err
		}
	}
	if categoryID != nil {
		if _, err := s.store.CategoryByID(ctx, userID, *categoryID); err != nil {
			return err
		}
	}
	return nil
}

func (s *IngestService) checkBatchReferences(ctx context.Context, userID int64, txs []*core.Transaction) error {
	checkedAcct := make(map[int64]bool)
	checkedCat := make(map[int64]bool)
	for _, tx := range txs {
		var acct, cat *int64
		if tx.AccountID != nil && !checkedAcct[*tx.AccountID] {
			acct = tx.AccountID
			checkedAcct[*tx.AccountID] = true
		}
		if tx.CategoryID != nil && !checkedCat[*tx.CategoryID] {
			cat = tx.CategoryID
			checkedCat[*tx.CategoryID] = true
		}
		if err := s.checkReferences(ctx, userID, acct, cat); err != nil {
			return err
		}
	}
	return nil
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
