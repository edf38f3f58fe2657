package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/memstore"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/service"

	"go.uber.org/zap"
)

func newBalanceService(store *memstore.Store) *service.BalanceService {
	return service.NewBalanceService(store, observability.NewMetrics(), zap.NewNop())
}

func TestRecomputeBookBalance_SignedSum(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	seedTx(t, store, "tx-1", "wallet", domain.TypeIncome, 100, "", march(1))
	seedTx(t, store, "tx-2", "wallet", domain.TypeExpense, 40, "", march(2))
	seedTx(t, store, "tx-3", "wallet", domain.TypeIncome, 15.5, "", march(3))

	svc := newBalanceService(store)
	balance, err := svc.RecomputeBookBalance(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if balance != 75.5 {
		t.Errorf("expected balance 75.5, got %f", balance)
	}

	// The balance must be persisted onto the book record as well.
	book, err := store.GetBook(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Balance != 75.5 {
		t.Errorf("expected persisted balance 75.5, got %f", book.Balance)
	}
}

func TestRecomputeBookBalance_AfterDelete(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	seedTx(t, store, "tx-1", "wallet", domain.TypeIncome, 100, "", march(1))

	svc := newBalanceService(store)
	if _, err := svc.RecomputeBookBalance(context.Background(), "wallet"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := store.DeleteTransaction(context.Background(), "tx-1"); err != nil {
		t.Fatalf("delete transaction: %v", err)
	}

	balance, err := svc.RecomputeBookBalance(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if balance != 0 {
		t.Errorf("expected balance 0 after deleting the only transaction, got %f", balance)
	}
}

func TestRecomputeBookBalance_MissingBook(t *testing.T) {
	store := memstore.New()
	svc := newBalanceService(store)

	_, err := svc.RecomputeBookBalance(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %T", err)
	}
}

func TestRecomputeSegmentBalance_RollsUpBooks(t *testing.T) {
	store := memstore.New()
	if err := store.CreateSegment(context.Background(), &domain.Segment{ID: "household", Name: "Household", Active: true}); err != nil {
		t.Fatalf("seed segment: %v", err)
	}
	for _, id := range []string{"wallet", "savings"} {
		err := store.CreateBook(context.Background(), &domain.Book{
			ID: id, Name: id, SegmentID: "household", Currency: "EUR", Active: true,
		})
		if err != nil {
			t.Fatalf("seed book: %v", err)
		}
	}
	seedBook(t, store, "unrelated")
	seedTx(t, store, "tx-1", "wallet", domain.TypeIncome, 100, "", march(1))
	seedTx(t, store, "tx-2", "savings", domain.TypeExpense, 30, "", march(2))
	seedTx(t, store, "tx-3", "unrelated", domain.TypeIncome, 999, "", march(3))

	svc := newBalanceService(store)
	total, err := svc.RecomputeSegmentBalance(context.Background(), "household")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if total != 70 {
		t.Errorf("expected segment total 70, got %f", total)
	}

	seg, err := store.GetSegment(context.Background(), "household")
	if err != nil {
		t.Fatalf("get segment: %v", err)
	}
	if seg.TotalBalance != 70 {
		t.Errorf("expected persisted total 70, got %f", seg.TotalBalance)
	}
}

func TestRecomputeSegmentBalance_MissingSegment(t *testing.T) {
	store := memstore.New()
	svc := newBalanceService(store)

	_, err := svc.RecomputeSegmentBalance(context.Background(), "ghost")
	if err == nil {
		t.Fatal("expected not-found error")
	}
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Errorf("expected ErrNotFound, got %T", err)
	}
}

func TestReconcileAll_RecomputesEveryBook(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	seedBook(t, store, "savings")
	seedTx(t, store, "tx-1", "wallet", domain.TypeIncome, 50, "", march(1))
	seedTx(t, store, "tx-2", "savings", domain.TypeIncome, 80, "", march(2))

	svc := newBalanceService(store)
	if err := svc.ReconcileAll(context.Background()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	wallet, _ := store.GetBook(context.Background(), "wallet")
	savings, _ := store.GetBook(context.Background(), "savings")
	if wallet.Balance != 50 {
		t.Errorf("expected wallet balance 50, got %f", wallet.Balance)
	}
	if savings.Balance != 80 {
		t.Errorf("expected savings balance 80, got %f", savings.Balance)
	}
}

func TestTransactionsChanged_EmptyBookIsNoop(t *testing.T) {
	store := memstore.New()
	svc := newBalanceService(store)

	if err := svc.TransactionsChanged(context.Background(), ""); err != nil {
		t.Fatalf("expected no-op for empty book id, got %v", err)
	}
}
