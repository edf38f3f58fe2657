package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// CatalogService manages books, segments and categories. Category
// deletion fires the mutation listeners (with an empty book id) since
// removing a category changes report bucket membership.
type CatalogService struct {
	store     port.RecordStore
	balances  *BalanceService
	listeners []port.MutationListener
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewCatalogService creates the catalog manager.
func NewCatalogService(store port.RecordStore, balances *BalanceService, metrics *observability.Metrics, logger *zap.Logger, listeners ...port.MutationListener) *CatalogService {
	return &CatalogService{
		store:     store,
		balances:  balances,
		listeners: listeners,
		metrics:   metrics,
		logger:    logger,
	}
}

// ============================================================
// Books
// ============================================================

// CreateBook registers a new book with a zero starting balance.
func (s *CatalogService) CreateBook(ctx context.Context, req *domain.BookRequest) (*domain.Book, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.CreateBook")
	defer span.End()

	if req.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if req.Currency == "" {
		return nil, &domain.ErrValidation{Field: "currency", Message: "currency is required"}
	}
	if req.SegmentID != "" {
		if _, err := s.store.GetSegment(ctx, req.SegmentID); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	book := &domain.Book{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		SegmentID:   req.SegmentID,
		Currency:    req.Currency,
		Color:       req.Color,
		Icon:        req.Icon,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateBook(ctx, book); err != nil {
		s.metrics.IncrStoreError("books")
		return nil, err
	}
	s.logger.Info("book created", zap.String("book_id", book.ID), zap.String("name", book.Name))
	return book, nil
}

// GetBook returns a book with a freshly recomputed balance.
func (s *CatalogService) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.GetBook")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", id))

	balance, err := s.balances.RecomputeBookBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	book.Balance = balance
	return book, nil
}

// ListBooks returns all books with their last persisted balances.
func (s *CatalogService) ListBooks(ctx context.Context) ([]domain.Book, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.ListBooks")
	defer span.End()
	return s.store.ListBooks(ctx)
}

// ============================================================
// Segments
// ============================================================

// CreateSegment registers a new segment.
func (s *CatalogService) CreateSegment(ctx context.Context, name, description, color, icon string) (*domain.Segment, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.CreateSegment")
	defer span.End()

	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}

	now := time.Now()
	seg := &domain.Segment{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Color:       color,
		Icon:        icon,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateSegment(ctx, seg); err != nil {
		s.metrics.IncrStoreError("segments")
		return nil, err
	}
	s.logger.Info("segment created", zap.String("segment_id", seg.ID), zap.String("name", seg.Name))
	return seg, nil
}

// GetSegment returns a segment with a freshly recomputed rollup of
// its books' balances. Segment totals are only this fresh on read;
// transaction mutations do not touch them.
func (s *CatalogService) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.GetSegment")
	defer span.End()
	span.SetAttributes(attribute.String("segment.id", id))

	total, err := s.balances.RecomputeSegmentBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	seg, err := s.store.GetSegment(ctx, id)
	if err != nil {
		return nil, err
	}
	seg.TotalBalance = total
	return seg, nil
}

// ListSegments returns all segments with their last persisted totals.
func (s *CatalogService) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.ListSegments")
	defer span.End()
	return s.store.ListSegments(ctx)
}

// ============================================================
// Categories
// ============================================================

// CreateCategory registers a new category.
func (s *CatalogService) CreateCategory(ctx context.Context, req *domain.CategoryRequest) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.CreateCategory")
	defer span.End()

	if req.Name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "name is required"}
	}
	if req.Type != domain.TypeIncome && req.Type != domain.TypeExpense && req.Type != domain.TypeBoth {
		return nil, &domain.ErrValidation{Field: "type", Message: "type must be income, expense or both"}
	}

	now := time.Now()
	cat := &domain.Category{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Type:      req.Type,
		Color:     req.Color,
		Icon:      req.Icon,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateCategory(ctx, cat); err != nil {
		s.metrics.IncrStoreError("categories")
		return nil, err
	}
	s.logger.Info("category created", zap.String("category_id", cat.ID), zap.String("name", cat.Name))
	return cat, nil
}

// ListCategories returns all categories.
func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "CatalogService.ListCategories")
	defer span.End()
	return s.store.ListCategories(ctx)
}

// DeleteCategory removes a category that no transaction references.
// A referenced category is a conflict: deleting it would silently
// move its transactions into the uncategorized bucket.
func (s *CatalogService) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "CatalogService.DeleteCategory")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", id))

	if _, err := s.store.GetCategory(ctx, id); err != nil {
		return err
	}
	count, err := s.store.CountTransactionsByCategory(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return &domain.ErrConflict{
			Message: fmt.Sprintf("category %s is referenced by %d transactions", id, count),
		}
	}

	if err := s.store.DeleteCategory(ctx, id); err != nil {
		s.metrics.IncrStoreError("categories")
		return err
	}
	s.logger.Info("category deleted", zap.String("category_id", id))

	// Bucket membership changed; empty book id means "no balance
	// impact" to the listeners.
	for _, l := range s.listeners {
		if err := l.TransactionsChanged(ctx, ""); err != nil {
			return err
		}
	}
	return nil
}
