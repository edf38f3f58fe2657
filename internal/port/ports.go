// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/finbook-go/internal/domain"
)

// RecordStore is the persistent record store the core reads from and
// writes derived balances back to. Implemented by the in-memory store
// and the remote record API client.
type RecordStore interface {
	// Transactions
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *domain.Transaction) error
	DeleteTransaction(ctx context.Context, id string) error
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)

	// Books
	CreateBook(ctx context.Context, b *domain.Book) error
	GetBook(ctx context.Context, id string) (*domain.Book, error)
	ListBooks(ctx context.Context) ([]domain.Book, error)
	ListBooksBySegment(ctx context.Context, segmentID string) ([]domain.Book, error)
	UpdateBookBalance(ctx context.Context, bookID string, balance float64) error

	// Segments
	CreateSegment(ctx context.Context, s *domain.Segment) error
	GetSegment(ctx context.Context, id string) (*domain.Segment, error)
	ListSegments(ctx context.Context) ([]domain.Segment, error)
	UpdateSegmentBalance(ctx context.Context, segmentID string, balance float64) error

	// Categories
	CreateCategory(ctx context.Context, c *domain.Category) error
	GetCategory(ctx context.Context, id string) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error)
}

// Cache provides generic caching with TTL, bounded size and
// substring-based invalidation. Cache failures never propagate to
// callers; a failed lookup is just a miss.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
	InvalidatePattern(substring string)
	Clear()
}

// MutationListener is the mandatory post-mutation hook. The mutation
// services fire it after every transaction write (and after category
// deletion, with an empty bookID), so balance maintenance and report
// cache invalidation cannot be bypassed by a new code path.
type MutationListener interface {
	TransactionsChanged(ctx context.Context, bookID string) error
}
