// Package domain defines the core business entities for finbook.
// These models are independent of external services and represent the
// canonical data structures used throughout the tracker.
package domain

import "time"

// Transaction types. A transaction is exactly one of the two; there are
// no split transactions.
const (
	TypeIncome  = "income"
	TypeExpense = "expense"
	// TypeBoth is only valid on categories, which may match either
	// transaction type.
	TypeBoth = "both"
)

// UncategorizedID is the synthetic category bucket for transactions
// without a category (or whose category no longer exists).
const UncategorizedID = "uncategorized"

// ============================================================
// Transactions
// ============================================================

// Transaction is a single income or expense entry in a book.
// The id is immutable; everything else may be edited.
type Transaction struct {
	ID          string    `json:"id"`
	BookID      string    `json:"book_id"`
	Type        string    `json:"type"` // income | expense
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Notes       string    `json:"notes,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"` // weak reference, "" = uncategorized
	Date        time.Time `json:"date"`                  // economic date, not creation time
	Recurring   bool      `json:"recurring"`
	RecurringID string    `json:"recurring_id,omitempty"`
	Tags        []string  `json:"tags,omitempty"`

	// Provenance: set when this transaction was produced by duplicating
	// or reversing another one.
	OriginalTransactionID string `json:"original_transaction_id,omitempty"`
	Reversed              bool   `json:"reversed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SignedAmount returns the amount with income positive and expense
// negative. Per-type totals always use the unsigned Amount; signing
// happens only for net/balance figures.
func (t *Transaction) SignedAmount() float64 {
	if t.Type == TypeExpense {
		return -t.Amount
	}
	return t.Amount
}

// DayKey returns the calendar day of the economic date as YYYY-MM-DD.
func (t *Transaction) DayKey() string {
	return t.Date.Format("2006-01-02")
}

// TransactionFilter narrows ListTransactions calls. Zero values mean
// "no constraint". Both date bounds are inclusive.
type TransactionFilter struct {
	BookIDs    []string
	DateFrom   *time.Time
	DateTo     *time.Time
	CategoryID string // UncategorizedID matches transactions with no category
}

// TransactionRequest is the mutation payload for create/update.
type TransactionRequest struct {
	BookID      string    `json:"book_id"`
	Type        string    `json:"type"`
	Amount      float64   `json:"amount"`
	Description string    `json:"description"`
	Notes       string    `json:"notes,omitempty"`
	CategoryID  string    `json:"category_id,omitempty"`
	Date        time.Time `json:"date"`
	Recurring   bool      `json:"recurring"`
	RecurringID string    `json:"recurring_id,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
}

// ============================================================
// Books & Segments
// ============================================================

// Book is an account-like container of transactions. Balance is a
// derived field maintained by the balance service: the sum of signed
// transaction amounts for this book.
type Book struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SegmentID   string    `json:"segment_id,omitempty"` // weak reference
	Currency    string    `json:"currency"`
	Color       string    `json:"color,omitempty"`
	Icon        string    `json:"icon,omitempty"`
	Active      bool      `json:"active"`
	Balance     float64   `json:"balance"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Segment groups books. TotalBalance is a derived rollup of the
// balances of all books pointing at this segment; it is recomputed on
// demand, not on every transaction mutation.
type Segment struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Color        string    `json:"color,omitempty"`
	Icon         string    `json:"icon,omitempty"`
	Active       bool      `json:"active"`
	TotalBalance float64   `json:"total_balance"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BookRequest is the creation payload for books.
type BookRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	SegmentID   string `json:"segment_id,omitempty"`
	Currency    string `json:"currency"`
	Color       string `json:"color,omitempty"`
	Icon        string `json:"icon,omitempty"`
}

// ============================================================
// Categories
// ============================================================

// Category labels transactions. Referenced by id from transactions
// with no enforced integrity: aggregation degrades missing categories
// to the uncategorized bucket instead of failing.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // income | expense | both
	Color     string    `json:"color,omitempty"`
	Icon      string    `json:"icon,omitempty"`
	Default   bool      `json:"default"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CategoryRequest is the creation payload for categories.
type CategoryRequest struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Color string `json:"color,omitempty"`
	Icon  string `json:"icon,omitempty"`
}
