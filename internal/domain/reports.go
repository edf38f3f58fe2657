package domain

import "time"

// ============================================================
// Derived reporting types (ephemeral, recomputed — never persisted)
// ============================================================

// ReportScope narrows a report query to a set of books and/or a date
// range. Nil fields mean "unbounded"; both bounds are inclusive.
type ReportScope struct {
	BookIDs  []string   `json:"book_ids,omitempty"`
	DateFrom *time.Time `json:"date_from,omitempty"`
	DateTo   *time.Time `json:"date_to,omitempty"`
}

// Filter converts the scope into a store-level transaction filter.
func (s ReportScope) Filter() TransactionFilter {
	return TransactionFilter{
		BookIDs:  s.BookIDs,
		DateFrom: s.DateFrom,
		DateTo:   s.DateTo,
	}
}

// CategoryAggregation is one category's bucket within a scope.
// Percentage is the bucket total as a share of the scope total,
// expressed 0-100 (0 when the scope total is 0).
type CategoryAggregation struct {
	CategoryID       string  `json:"category_id"`
	Name             string  `json:"name"`
	Type             string  `json:"type"`
	TotalAmount      float64 `json:"total_amount"`
	TransactionCount int     `json:"transaction_count"`
	AverageAmount    float64 `json:"average_amount"`
	MinAmount        float64 `json:"min_amount"`
	MaxAmount        float64 `json:"max_amount"`
	Percentage       float64 `json:"percentage"`
}

// DailySummary aggregates one calendar day. NetAmount is income minus
// expense; the per-type totals stay unsigned.
type DailySummary struct {
	Date             string                `json:"date"` // YYYY-MM-DD
	TotalIncome      float64               `json:"total_income"`
	TotalExpense     float64               `json:"total_expense"`
	NetAmount        float64               `json:"net_amount"`
	TransactionCount int                   `json:"transaction_count"`
	IncomeCount      int                   `json:"income_count"`
	ExpenseCount     int                   `json:"expense_count"`
	TopCategories    []CategoryAggregation `json:"top_categories,omitempty"`
}

// MonthlySummary aggregates a full calendar month. Per-day averages
// divide by the true number of calendar days in the month, not the
// number of days with activity. The biggest-income/expense days are
// empty strings for a month with no transactions.
type MonthlySummary struct {
	Year                 int                   `json:"year"`
	Month                int                   `json:"month"` // 1-12
	TotalIncome          float64               `json:"total_income"`
	TotalExpense         float64               `json:"total_expense"`
	NetAmount            float64               `json:"net_amount"`
	AvgDailyIncome       float64               `json:"avg_daily_income"`
	AvgDailyExpense      float64               `json:"avg_daily_expense"`
	TransactionCount     int                   `json:"transaction_count"`
	DaysWithTransactions int                   `json:"days_with_transactions"`
	BiggestIncomeDay     string                `json:"biggest_income_day"`
	BiggestExpenseDay    string                `json:"biggest_expense_day"`
	CategoryBreakdown    []CategoryAggregation `json:"category_breakdown"`
	DailySummaries       []DailySummary        `json:"daily_summaries"`
}
