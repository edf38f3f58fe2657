package service

import (
	"context"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// TransactionService owns all transaction mutations. Every write path
// ends in notify(), so balance maintenance and report cache
// invalidation (the registered listeners) cannot be skipped by a new
// mutation path.
type TransactionService struct {
	store     port.RecordStore
	listeners []port.MutationListener
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewTransactionService creates the mutation service with the
// listeners fired after every write.
func NewTransactionService(store port.RecordStore, metrics *observability.Metrics, logger *zap.Logger, listeners ...port.MutationListener) *TransactionService {
	return &TransactionService{
		store:     store,
		listeners: listeners,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *TransactionService) notify(ctx context.Context, bookID string) error {
	for _, l := range s.listeners {
		if err := l.TransactionsChanged(ctx, bookID); err != nil {
			return err
		}
	}
	return nil
}

// Create records a new transaction and fires the mutation hook.
func (s *TransactionService) Create(ctx context.Context, req *domain.TransactionRequest) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Create")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", req.BookID))

	if err := validateTransactionRequest(req); err != nil {
		return nil, err
	}
	if _, err := s.store.GetBook(ctx, req.BookID); err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &domain.Transaction{
		ID:          uuid.New().String(),
		BookID:      req.BookID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Notes:       req.Notes,
		CategoryID:  req.CategoryID,
		Date:        req.Date,
		Recurring:   req.Recurring,
		RecurringID: req.RecurringID,
		Tags:        dedupeTags(req.Tags),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateTransaction(ctx, tx); err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}
	s.metrics.IncrMutation("create")
	s.logger.Info("transaction created",
		zap.String("transaction_id", tx.ID),
		zap.String("book_id", tx.BookID),
	)

	if err := s.notify(ctx, tx.BookID); err != nil {
		return nil, err
	}
	return tx, nil
}

// Update edits a transaction's mutable fields. Moving a transaction
// between books notifies both the old and new book so both balances
// are recomputed.
func (s *TransactionService) Update(ctx context.Context, id string, req *domain.TransactionRequest) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Update")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	if err := validateTransactionRequest(req); err != nil {
		return nil, err
	}

	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.BookID != existing.BookID {
		if _, err := s.store.GetBook(ctx, req.BookID); err != nil {
			return nil, err
		}
	}

	previousBookID := existing.BookID

	existing.BookID = req.BookID
	existing.Type = req.Type
	existing.Amount = req.Amount
	existing.Description = req.Description
	existing.Notes = req.Notes
	existing.CategoryID = req.CategoryID
	existing.Date = req.Date
	existing.Recurring = req.Recurring
	existing.RecurringID = req.RecurringID
	existing.Tags = dedupeTags(req.Tags)
	existing.UpdatedAt = time.Now()

	if err := s.store.UpdateTransaction(ctx, existing); err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}
	s.metrics.IncrMutation("update")

	if err := s.notify(ctx, existing.BookID); err != nil {
		return nil, err
	}
	if previousBookID != existing.BookID {
		if err := s.notify(ctx, previousBookID); err != nil {
			return nil, err
		}
	}
	return existing, nil
}

// Delete removes a transaction and fires the mutation hook for its
// book.
func (s *TransactionService) Delete(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "TransactionService.Delete")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	existing, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		s.metrics.IncrStoreError("transactions")
		return err
	}
	s.metrics.IncrMutation("delete")
	s.logger.Info("transaction deleted",
		zap.String("transaction_id", id),
		zap.String("book_id", existing.BookID),
	)

	return s.notify(ctx, existing.BookID)
}

// Duplicate copies a transaction into targetBookID (or its own book
// when empty), linking the copy back via OriginalTransactionID. Only
// the destination book's balance changes; the source is untouched by
// duplication.
func (s *TransactionService) Duplicate(ctx context.Context, id, targetBookID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Duplicate")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	original, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if targetBookID == "" {
		targetBookID = original.BookID
	}
	if _, err := s.store.GetBook(ctx, targetBookID); err != nil {
		return nil, err
	}

	now := time.Now()
	dup := *original
	dup.ID = uuid.New().String()
	dup.BookID = targetBookID
	dup.Tags = append([]string(nil), original.Tags...)
	dup.OriginalTransactionID = original.ID
	dup.Reversed = false
	dup.CreatedAt = now
	dup.UpdatedAt = now

	if err := s.store.CreateTransaction(ctx, &dup); err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}
	s.metrics.IncrMutation("duplicate")

	if err := s.notify(ctx, dup.BookID); err != nil {
		return nil, err
	}
	return &dup, nil
}

// Reverse creates a compensating transaction with the opposite type
// in targetBookID (or the original's book when empty). The original
// is left untouched; the reversal links back to it and carries the
// reversed flag.
func (s *TransactionService) Reverse(ctx context.Context, id, targetBookID string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Reverse")
	defer span.End()
	span.SetAttributes(attribute.String("transaction.id", id))

	original, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return nil, err
	}
	if targetBookID == "" {
		targetBookID = original.BookID
	}
	if _, err := s.store.GetBook(ctx, targetBookID); err != nil {
		return nil, err
	}

	reversedType := domain.TypeIncome
	if original.Type == domain.TypeIncome {
		reversedType = domain.TypeExpense
	}

	now := time.Now()
	rev := *original
	rev.ID = uuid.New().String()
	rev.BookID = targetBookID
	rev.Type = reversedType
	rev.Tags = append([]string(nil), original.Tags...)
	rev.OriginalTransactionID = original.ID
	rev.Reversed = true
	rev.CreatedAt = now
	rev.UpdatedAt = now

	if err := s.store.CreateTransaction(ctx, &rev); err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}
	s.metrics.IncrMutation("reverse")

	if err := s.notify(ctx, rev.BookID); err != nil {
		return nil, err
	}
	return &rev, nil
}

// Get returns a single transaction.
func (s *TransactionService) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.Get")
	defer span.End()
	return s.store.GetTransaction(ctx, id)
}

// List returns transactions matching the filter.
func (s *TransactionService) List(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "TransactionService.List")
	defer span.End()
	return s.store.ListTransactions(ctx, filter)
}

func validateTransactionRequest(req *domain.TransactionRequest) error {
	if req.BookID == "" {
		return &domain.ErrValidation{Field: "book_id", Message: "book_id is required"}
	}
	if req.Type != domain.TypeIncome && req.Type != domain.TypeExpense {
		return &domain.ErrValidation{Field: "type", Message: "type must be income or expense"}
	}
	if req.Amount < 0 {
		return &domain.ErrValidation{Field: "amount", Message: "amount must be non-negative"}
	}
	if req.Description == "" {
		return &domain.ErrValidation{Field: "description", Message: "description is required"}
	}
	if req.Date.IsZero() {
		return &domain.ErrValidation{Field: "date", Message: "date is required"}
	}
	return nil
}

// dedupeTags keeps first occurrence order while dropping repeats.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
