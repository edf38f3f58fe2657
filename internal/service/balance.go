package service

import (
	"context"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// reconcileConcurrency bounds the parallel book recomputes during a
// full reconciliation pass.
const reconcileConcurrency = 4

// BalanceService keeps Book.Balance and Segment.TotalBalance
// consistent with the transaction set. Book balances follow every
// transaction mutation through the listener hook; segment totals are
// a coarser rollup recomputed only on demand.
type BalanceService struct {
	store   port.RecordStore
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewBalanceService creates the balance maintainer.
func NewBalanceService(store port.RecordStore, metrics *observability.Metrics, logger *zap.Logger) *BalanceService {
	return &BalanceService{
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// RecomputeBookBalance folds the book's transactions into a signed
// sum, persists it onto the book record and returns it. The book must
// exist; a missing book is a not-found error, never silently created.
func (s *BalanceService) RecomputeBookBalance(ctx context.Context, bookID string) (float64, error) {
	ctx, span := tracer.Start(ctx, "BalanceService.RecomputeBookBalance")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", bookID))

	if _, err := s.store.GetBook(ctx, bookID); err != nil {
		return 0, err
	}

	txs, err := s.store.ListTransactions(ctx, domain.TransactionFilter{BookIDs: []string{bookID}})
	if err != nil {
		s.metrics.IncrStoreError("transactions")
		return 0, err
	}

	balance := 0.0
	for i := range txs {
		balance += txs[i].SignedAmount()
	}

	if err := s.store.UpdateBookBalance(ctx, bookID, balance); err != nil {
		s.metrics.IncrStoreError("books")
		return 0, err
	}

	s.metrics.IncrBalanceRecompute("book")
	s.logger.Debug("book balance recomputed",
		zap.String("book_id", bookID),
		zap.Float64("balance", balance),
	)
	return balance, nil
}

// RecomputeSegmentBalance recomputes every book in the segment and
// persists the summed total onto the segment record. Not triggered by
// transaction mutations; callers needing a fresh segment total invoke
// this explicitly before display.
func (s *BalanceService) RecomputeSegmentBalance(ctx context.Context, segmentID string) (float64, error) {
	ctx, span := tracer.Start(ctx, "BalanceService.RecomputeSegmentBalance")
	defer span.End()
	span.SetAttributes(attribute.String("segment.id", segmentID))

	if _, err := s.store.GetSegment(ctx, segmentID); err != nil {
		return 0, err
	}

	books, err := s.store.ListBooksBySegment(ctx, segmentID)
	if err != nil {
		s.metrics.IncrStoreError("books")
		return 0, err
	}

	total := 0.0
	for _, b := range books {
		balance, err := s.RecomputeBookBalance(ctx, b.ID)
		if err != nil {
			return 0, err
		}
		total += balance
	}

	if err := s.store.UpdateSegmentBalance(ctx, segmentID, total); err != nil {
		s.metrics.IncrStoreError("segments")
		return 0, err
	}

	s.metrics.IncrBalanceRecompute("segment")
	s.logger.Debug("segment balance recomputed",
		zap.String("segment_id", segmentID),
		zap.Float64("total_balance", total),
	)
	return total, nil
}

// ReconcileAll recomputes every book's balance. Run at startup so a
// crash between a transaction write and its balance update cannot
// leave a stale balance past the next boot.
func (s *BalanceService) ReconcileAll(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "BalanceService.ReconcileAll")
	defer span.End()

	books, err := s.store.ListBooks(ctx)
	if err != nil {
		s.metrics.IncrStoreError("books")
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, b := range books {
		b := b
		g.Go(func() error {
			_, err := s.RecomputeBookBalance(ctx, b.ID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	s.logger.Info("balance reconciliation complete", zap.Int("books", len(books)))
	return nil
}

// TransactionsChanged recomputes the affected book's balance after a
// mutation. An empty bookID (category deletion) leaves balances
// untouched since bucket membership does not change signed sums.
func (s *BalanceService) TransactionsChanged(ctx context.Context, bookID string) error {
	if bookID == "" {
		return nil
	}
	_, err := s.RecomputeBookBalance(ctx, bookID)
	return err
}
