package services

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
	"fintrack/internal/storage"
)

// ReportService computes monthly aggregates. Sums are exact decimal
// arithmetic over the raw rows; nothing is rounded or floated.
type ReportService struct {
	store storage.Store
}

func NewReportService(store storage.Store) *ReportService {
	return &ReportService{store: store}
}

// CategoryTotal is one slice of a monthly summary. A nil CategoryID is
// the uncategorized bucket.
type CategoryTotal struct {
	CategoryID   *int64          `json:"category_id"`
	CategoryName *string         `json:"category_name"`
	Total        decimal.Decimal `json:"total"`
}

// MonthlySummary reports one month of activity. NetTotal is credits
// minus debits.
type MonthlySummary struct {
	Month       string          `json:"month"`
	UserID      int64           `json:"user_id"`
	AccountID   *int64          `json:"account_id,omitempty"`
	DebitTotal  decimal.Decimal `json:"debit_total"`
	CreditTotal decimal.Decimal `json:"credit_total"`
	NetTotal    decimal.Decimal `json:"net_total"`
	ByCategory  []CategoryTotal `json:"by_category"`
}

// BudgetComparisonRow pairs one category's plan with its spend.
// Variance is budgeted minus actual; negative means overspent.
type BudgetComparisonRow struct {
	CategoryID   int64           `json:"category_id"`
	CategoryName *string         `json:"category_name"`
	Budgeted     decimal.Decimal `json:"budgeted"`
	Actual       decimal.Decimal `json:"actual"`
	Variance     decimal.Decimal `json:"variance"`
}

type BudgetComparison struct {
	Month         string                `json:"month"`
	UserID        int64                 `json:"user_id"`
	AccountID     *int64                `json:"account_id,omitempty"`
	Rows          []BudgetComparisonRow `json:"rows"`
	BudgetTotal   decimal.Decimal       `json:"budget_total"`
	ActualTotal   decimal.Decimal       `json:"actual_total"`
	VarianceTotal decimal.Decimal       `json:"variance_total"`
}

// MonthlySummary totals one month of the user's ledger, optionally
// restricted to an account. A month with no transactions yields zero
// totals and an empty category list, not an error.
func (s *ReportService) MonthlySummary(ctx context.Context, userID int64, month string, accountID *int64) (*MonthlySummary, error) {
	mr, err := core.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	if accountID != nil {
		if _, err := s.store.AccountByID(ctx, userID, *accountID); err != nil {
			return nil, err
		}
	}

	txs, err := s.store.TransactionsInRange(ctx, userID, mr.First, mr.Last, accountID)
	if err != nil {
		return nil, err
	}

	summary := &MonthlySummary{
		Month:       mr.Month,
		UserID:      userID,
		AccountID:   accountID,
		DebitTotal:  decimal.Zero,
		CreditTotal: decimal.Zero,
		NetTotal:    decimal.Zero,
		ByCategory:  []CategoryTotal{},
	}

	// Category buckets mix debits and credits; the uncategorized bucket
	// keys on id 0, which real rows never carry.
	byCat := make(map[int64]decimal.Decimal)
	hasUncategorized := false
	for i := range txs {
		tx := &txs[i]
		switch tx.TxnType {
		case core.Debit:
			summary.DebitTotal = summary.DebitTotal.Add(tx.Amount)
		case core.Credit:
			summary.CreditTotal = summary.CreditTotal.Add(tx.Amount)
		}

		key := int64(0)
		if tx.CategoryID != nil {
			key = *tx.CategoryID
		} else {
			hasUncategorized = true
		}
		byCat[key] = byCat[key].Add(tx.Amount)
	}
	summary.NetTotal = summary.CreditTotal.Sub(summary.DebitTotal)

	ids := make([]int64, 0, len(byCat))
	for id := range byCat {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	names, err := s.store.CategoryNames(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	for id, total := range byCat {
		ct := CategoryTotal{Total: total}
		if id != 0 {
			cid := id
			ct.CategoryID = &cid
			if name, ok := names[id]; ok {
				ct.CategoryName = &name
			}
		} else if !hasUncategorized {
			continue
		}
		summary.ByCategory = append(summary.ByCategory, ct)
	}
	sortCategoryTotals(summary.ByCategory)
	return summary, nil
}

// CompareBudgets lines up the month's budgets against actual debit
// spend per category. Categories with a budget but no spend, or spend
// but no budget, both appear with the missing side at zero.
func (s *ReportService) CompareBudgets(ctx context.Context, userID int64, month string, accountID *int64) (*BudgetComparison, error) {
	mr, err := core.ParseMonth(month)
	if err != nil {
		return nil, err
	}
	if accountID != nil {
		if _, err := s.store.AccountByID(ctx, userID, *accountID); err != nil {
			return nil, err
		}
	}

	budgets, err := s.store.ListBudgets(ctx, userID, mr.Month, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	txs, err := s.store.TransactionsInRange(ctx, userID, mr.First, mr.Last, accountID)
	if err != nil {
		return nil, err
	}

	budgeted := make(map[int64]decimal.Decimal, len(budgets))
	for _, b := range budgets {
		budgeted[b.CategoryID] = budgeted[b.CategoryID].Add(b.Amount)
	}

	// Only categorized debits count as spend against a budget.
	actual := make(map[int64]decimal.Decimal)
	for i := range txs {
		tx := &txs[i]
		if tx.TxnType != core.Debit || tx.CategoryID == nil {
			continue
		}
		actual[*tx.CategoryID] = actual[*tx.CategoryID].Add(tx.Amount)
	}

	ids := unionIDs(budgeted, actual)
	names, err := s.store.CategoryNames(ctx, userID, ids)
	if err != nil {
		return nil, err
	}

	cmp := &BudgetComparison{
		Month:         mr.Month,
		UserID:        userID,
		AccountID:     accountID,
		Rows:          make([]BudgetComparisonRow, 0, len(ids)),
		BudgetTotal:   decimal.Zero,
		ActualTotal:   decimal.Zero,
		VarianceTotal: decimal.Zero,
	}
	for _, id := range ids {
		row := BudgetComparisonRow{
			CategoryID: id,
			Budgeted:   budgeted[id],
			Actual:     actual[id],
		}
		row.Variance = row.Budgeted.Sub(row.Actual)
		if name, ok := names[id]; ok {
			n := name
			row.CategoryName = &n
		}
		cmp.Rows = append(cmp.Rows, row)
		cmp.BudgetTotal = cmp.BudgetTotal.Add(row.Budgeted)
		cmp.ActualTotal = cmp.ActualTotal.Add(row.Actual)
	}
	cmp.VarianceTotal = cmp.BudgetTotal.Sub(cmp.ActualTotal)
	return cmp, nil
}

// sortCategoryTotals orders by descending total, then ascending category
// id, with the uncategorized bucket last among equals.
func sortCategoryTotals(totals []CategoryTotal) {
	sort.SliceStable(totals, func(i, j int) bool {
		if c := totals[i].Total.Cmp(totals[j].Total); c != 0 {
			return c > 0
		}
		a, b := totals[i].CategoryID, totals[j].CategoryID
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return *a < *b
		}
	})
}

func unionIDs(a, b map[int64]decimal.Decimal) []int64 {
	seen := make(map[int64]bool, len(a)+len(b))
	ids := make([]int64, 0, len(a)+len(b))
	for id := range a {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for id := range b {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
