// Package memstore is an in-memory implementation of the record store
// port. It keeps everything in process memory behind a mutex and hands
// out defensive copies. Data is lost on restart — it backs local dev
// and tests; the remote record API client is the persistent backend.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/boddenberg/finbook-go/internal/domain"
)

// Store holds all collections. Transactions keep insertion order,
// which is the "store-native" order callers must not rely on but tests
// may observe.
type Store struct {
	mu           sync.RWMutex
	transactions []domain.Transaction
	txIndex      map[string]int
	books        map[string]domain.Book
	segments     map[string]domain.Segment
	categories   map[string]domain.Category
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		txIndex:    make(map[string]int),
		books:      make(map[string]domain.Book),
		segments:   make(map[string]domain.Segment),
		categories: make(map[string]domain.Category),
	}
}

// ============================================================
// Transactions
// ============================================================

func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	if tx.ID == "" {
		return &domain.ErrValidation{Field: "id", Message: "required"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.txIndex[tx.ID]; exists {
		return &domain.ErrConflict{Message: "transaction already exists: " + tx.ID}
	}
	s.txIndex[tx.ID] = len(s.transactions)
	s.transactions = append(s.transactions, copyTransaction(*tx))
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.txIndex[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	tx := copyTransaction(s.transactions[i])
	return &tx, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.txIndex[tx.ID]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	s.transactions[i] = copyTransaction(*tx)
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.txIndex[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
	delete(s.txIndex, id)
	for j := i; j < len(s.transactions); j++ {
		s.txIndex[s.transactions[j].ID] = j
	}
	return nil
}

func (s *Store) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		if matches(tx, filter) {
			result = append(result, copyTransaction(tx))
		}
	}
	return result, nil
}

func matches(tx domain.Transaction, f domain.TransactionFilter) bool {
	if len(f.BookIDs) > 0 {
		found := false
		for _, id := range f.BookIDs {
			if tx.BookID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && tx.Date.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && tx.Date.After(*f.DateTo) {
		return false
	}
	if f.CategoryID != "" {
		want := f.CategoryID
		if want == domain.UncategorizedID {
			want = ""
		}
		if tx.CategoryID != want {
			return false
		}
	}
	return true
}

// ============================================================
// Books
// ============================================================

func (s *Store) CreateBook(ctx context.Context, b *domain.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.books[b.ID]; exists {
		return &domain.ErrConflict{Message: "book already exists: " + b.ID}
	}
	s.books[b.ID] = *b
	return nil
}

func (s *Store) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "book", ID: id}
	}
	return &b, nil
}

func (s *Store) ListBooks(ctx context.Context) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Book, 0, len(s.books))
	for _, b := range s.books {
		result = append(result, b)
	}
	sortBooks(result)
	return result, nil
}

func (s *Store) ListBooksBySegment(ctx context.Context, segmentID string) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Book, 0)
	for _, b := range s.books {
		if b.SegmentID == segmentID {
			result = append(result, b)
		}
	}
	sortBooks(result)
	return result, nil
}

func (s *Store) UpdateBookBalance(ctx context.Context, bookID string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.books[bookID]
	if !ok {
		return &domain.ErrNotFound{Resource: "book", ID: bookID}
	}
	b.Balance = balance
	s.books[bookID] = b
	return nil
}

// ============================================================
// Segments
// ============================================================

func (s *Store) CreateSegment(ctx context.Context, seg *domain.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.segments[seg.ID]; exists {
		return &domain.ErrConflict{Message: "segment already exists: " + seg.ID}
	}
	s.segments[seg.ID] = *seg
	return nil
}

func (s *Store) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seg, ok := s.segments[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "segment", ID: id}
	}
	return &seg, nil
}

func (s *Store) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Segment, 0, len(s.segments))
	for _, seg := range s.segments {
		result = append(result, seg)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) UpdateSegmentBalance(ctx context.Context, segmentID string, balance float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	seg, ok := s.segments[segmentID]
	if !ok {
		return &domain.ErrNotFound{Resource: "segment", ID: segmentID}
	}
	seg.TotalBalance = balance
	s.segments[segmentID] = seg
	return nil
}

// ============================================================
// Categories
// ============================================================

func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.ID]; exists {
		return &domain.ErrConflict{Message: "category already exists: " + c.ID}
	}
	s.categories[c.ID] = *c
	return nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "category", ID: id}
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Category, 0, len(s.categories))
	for _, c := range s.categories {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return &domain.ErrNotFound{Resource: "category", ID: id}
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, tx := range s.transactions {
		if tx.CategoryID == categoryID {
			count++
		}
	}
	return count, nil
}

func sortBooks(books []domain.Book) {
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
}

// copyTransaction clones the slice field so callers cannot mutate
// stored state through a returned value.
func copyTransaction(tx domain.Transaction) domain.Transaction {
	if tx.Tags != nil {
		tags := make([]string, len(tx.Tags))
		copy(tags, tx.Tags)
		tx.Tags = tags
	}
	return tx
}
