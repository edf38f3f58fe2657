package memstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/memstore"
)

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.Local)
}

func seed(t *testing.T, s *memstore.Store, id, bookID, categoryID string, d int) {
	t.Helper()
	err := s.CreateTransaction(context.Background(), &domain.Transaction{
		ID: id, BookID: bookID, Type: domain.TypeExpense, Amount: 10,
		Description: "seed", CategoryID: categoryID, Date: day(d),
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestListTransactions_FilterByBook(t *testing.T) {
	s := memstore.New()
	seed(t, s, "a", "wallet", "", 1)
	seed(t, s, "b", "savings", "", 2)
	seed(t, s, "c", "wallet", "", 3)

	txs, err := s.ListTransactions(context.Background(), domain.TransactionFilter{BookIDs: []string{"wallet"}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected 2 wallet transactions, got %d", len(txs))
	}
}

func TestListTransactions_DateBoundsInclusive(t *testing.T) {
	s := memstore.New()
	seed(t, s, "a", "wallet", "", 1)
	seed(t, s, "b", "wallet", "", 5)
	seed(t, s, "c", "wallet", "", 10)

	from := day(1)
	to := day(5)
	txs, err := s.ListTransactions(context.Background(), domain.TransactionFilter{DateFrom: &from, DateTo: &to})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 2 {
		t.Errorf("expected both boundary days included, got %d transactions", len(txs))
	}
}

func TestListTransactions_UncategorizedFilter(t *testing.T) {
	s := memstore.New()
	seed(t, s, "a", "wallet", "food", 1)
	seed(t, s, "b", "wallet", "", 2)

	txs, err := s.ListTransactions(context.Background(), domain.TransactionFilter{CategoryID: domain.UncategorizedID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(txs) != 1 || txs[0].ID != "b" {
		t.Errorf("expected only the uncategorized transaction, got %v", txs)
	}
}

func TestTransactions_CRUDRoundtrip(t *testing.T) {
	s := memstore.New()
	seed(t, s, "a", "wallet", "", 1)

	tx, err := s.GetTransaction(context.Background(), "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	tx.Amount = 99
	if err := s.UpdateTransaction(context.Background(), tx); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := s.GetTransaction(context.Background(), "a")
	if got.Amount != 99 {
		t.Errorf("expected updated amount 99, got %f", got.Amount)
	}

	if err := s.DeleteTransaction(context.Background(), "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	_, err = s.GetTransaction(context.Background(), "a")
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestGetTransaction_ReturnsCopy(t *testing.T) {
	s := memstore.New()
	err := s.CreateTransaction(context.Background(), &domain.Transaction{
		ID: "a", BookID: "wallet", Type: domain.TypeExpense, Amount: 10,
		Description: "seed", Date: day(1), Tags: []string{"one"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, _ := s.GetTransaction(context.Background(), "a")
	got.Tags[0] = "mutated"
	got.Amount = 0

	fresh, _ := s.GetTransaction(context.Background(), "a")
	if fresh.Tags[0] != "one" || fresh.Amount != 10 {
		t.Error("expected store contents to be isolated from caller mutations")
	}
}

func TestCountTransactionsByCategory(t *testing.T) {
	s := memstore.New()
	seed(t, s, "a", "wallet", "food", 1)
	seed(t, s, "b", "wallet", "food", 2)
	seed(t, s, "c", "wallet", "rent", 3)

	n, err := s.CountTransactionsByCategory(context.Background(), "food")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2, got %d", n)
	}
}

func TestUpdateBookBalance_MissingBook(t *testing.T) {
	s := memstore.New()
	err := s.UpdateBookBalance(context.Background(), "ghost", 10)
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListBooksBySegment(t *testing.T) {
	s := memstore.New()
	ctx := context.Background()
	_ = s.CreateBook(ctx, &domain.Book{ID: "a", Name: "a", SegmentID: "household", Currency: "EUR"})
	_ = s.CreateBook(ctx, &domain.Book{ID: "b", Name: "b", SegmentID: "work", Currency: "EUR"})
	_ = s.CreateBook(ctx, &domain.Book{ID: "c", Name: "c", SegmentID: "household", Currency: "EUR"})

	books, err := s.ListBooksBySegment(ctx, "household")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(books) != 2 {
		t.Errorf("expected 2 books, got %d", len(books))
	}
}
