package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/memstore"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/port"
	"github.com/boddenberg/finbook-go/internal/service"

	"go.uber.org/zap"
)

// recordingListener captures every mutation notification.
type recordingListener struct {
	bookIDs []string
	err     error
}

func (l *recordingListener) TransactionsChanged(_ context.Context, bookID string) error {
	l.bookIDs = append(l.bookIDs, bookID)
	return l.err
}

func newTxService(store *memstore.Store, listeners ...port.MutationListener) *service.TransactionService {
	return service.NewTransactionService(store, observability.NewMetrics(), zap.NewNop(), listeners...)
}

func validRequest(bookID string) *domain.TransactionRequest {
	return &domain.TransactionRequest{
		BookID:      bookID,
		Type:        domain.TypeIncome,
		Amount:      100,
		Description: "salary",
		Date:        march(1),
	}
}

func TestCreate_FiresListener(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	tx, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if tx.ID == "" {
		t.Error("expected generated transaction id")
	}
	if len(listener.bookIDs) != 1 || listener.bookIDs[0] != "wallet" {
		t.Errorf("expected one notification for wallet, got %v", listener.bookIDs)
	}
}

func TestCreate_ValidationErrors(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	svc := newTxService(store)

	cases := []struct {
		name   string
		mutate func(*domain.TransactionRequest)
	}{
		{"missing book", func(r *domain.TransactionRequest) { r.BookID = "" }},
		{"bad type", func(r *domain.TransactionRequest) { r.Type = "transfer" }},
		{"negative amount", func(r *domain.TransactionRequest) { r.Amount = -1 }},
		{"missing description", func(r *domain.TransactionRequest) { r.Description = "" }},
		{"missing date", func(r *domain.TransactionRequest) { r.Date = time.Time{} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("wallet")
			tc.mutate(req)
			_, err := svc.Create(context.Background(), req)
			var validation *domain.ErrValidation
			if !errors.As(err, &validation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestCreate_MissingBook(t *testing.T) {
	store := memstore.New()
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	_, err := svc.Create(context.Background(), validRequest("ghost"))
	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(listener.bookIDs) != 0 {
		t.Errorf("expected no notification on failed create, got %v", listener.bookIDs)
	}
}

func TestUpdate_MoveBetweenBooksNotifiesBoth(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	seedBook(t, store, "savings")
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	tx, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	listener.bookIDs = nil

	req := validRequest("savings")
	if _, err := svc.Update(context.Background(), tx.ID, req); err != nil {
		t.Fatalf("update: %v", err)
	}

	if len(listener.bookIDs) != 2 {
		t.Fatalf("expected notifications for both books, got %v", listener.bookIDs)
	}
	if listener.bookIDs[0] != "savings" || listener.bookIDs[1] != "wallet" {
		t.Errorf("expected [savings wallet], got %v", listener.bookIDs)
	}
}

func TestDelete_FiresListener(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	tx, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	listener.bookIDs = nil

	if err := svc.Delete(context.Background(), tx.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(listener.bookIDs) != 1 || listener.bookIDs[0] != "wallet" {
		t.Errorf("expected one notification for wallet, got %v", listener.bookIDs)
	}

	if _, err := store.GetTransaction(context.Background(), tx.ID); err == nil {
		t.Error("expected transaction to be gone")
	}
}

func TestDuplicate_LinksProvenanceAndNotifiesDestination(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	seedBook(t, store, "savings")
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	original, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	listener.bookIDs = nil

	dup, err := svc.Duplicate(context.Background(), original.ID, "savings")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}

	if dup.ID == original.ID {
		t.Error("expected a fresh id for the duplicate")
	}
	if dup.BookID != "savings" {
		t.Errorf("expected duplicate in savings, got %s", dup.BookID)
	}
	if dup.OriginalTransactionID != original.ID {
		t.Errorf("expected provenance link to %s, got %s", original.ID, dup.OriginalTransactionID)
	}
	if dup.Type != original.Type || dup.Amount != original.Amount {
		t.Error("expected duplicate to copy type and amount")
	}
	if len(listener.bookIDs) != 1 || listener.bookIDs[0] != "savings" {
		t.Errorf("expected only the destination book notified, got %v", listener.bookIDs)
	}
}

func TestDuplicate_DefaultsToSameBook(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	svc := newTxService(store)

	original, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	dup, err := svc.Duplicate(context.Background(), original.ID, "")
	if err != nil {
		t.Fatalf("duplicate: %v", err)
	}
	if dup.BookID != "wallet" {
		t.Errorf("expected duplicate to stay in wallet, got %s", dup.BookID)
	}
}

func TestReverse_FlipsTypeAndMarks(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	listener := &recordingListener{}
	svc := newTxService(store, listener)

	original, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	listener.bookIDs = nil

	rev, err := svc.Reverse(context.Background(), original.ID, "")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}

	if rev.Type != domain.TypeExpense {
		t.Errorf("expected income to reverse into expense, got %s", rev.Type)
	}
	if !rev.Reversed {
		t.Error("expected reversed flag to be set")
	}
	if rev.OriginalTransactionID != original.ID {
		t.Errorf("expected provenance link to %s, got %s", original.ID, rev.OriginalTransactionID)
	}

	// The original stays untouched.
	got, err := store.GetTransaction(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("get original: %v", err)
	}
	if got.Type != domain.TypeIncome || got.Reversed {
		t.Error("expected original to keep its type and stay unreversed")
	}
	if len(listener.bookIDs) != 1 || listener.bookIDs[0] != "wallet" {
		t.Errorf("expected one notification, got %v", listener.bookIDs)
	}
}

func TestReverse_NetsToZeroWithBalance(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	balances := newBalanceService(store)
	svc := service.NewTransactionService(store, observability.NewMetrics(), zap.NewNop(), balances)

	tx, err := svc.Create(context.Background(), validRequest("wallet"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Reverse(context.Background(), tx.ID, ""); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	book, err := store.GetBook(context.Background(), "wallet")
	if err != nil {
		t.Fatalf("get book: %v", err)
	}
	if book.Balance != 0 {
		t.Errorf("expected income plus its reversal to net to 0, got %f", book.Balance)
	}
}

func TestCreate_DeduplicatesTags(t *testing.T) {
	store := memstore.New()
	seedBook(t, store, "wallet")
	svc := newTxService(store)

	req := validRequest("wallet")
	req.Tags = []string{"rent", "march", "rent"}
	tx, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(tx.Tags) != 2 {
		t.Errorf("expected duplicate tags dropped, got %v", tx.Tags)
	}
}
