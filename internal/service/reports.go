// Package service implements the business logic for finbook: report
// aggregation, balance maintenance, transaction mutation and catalog
// management. Services depend only on the port interfaces.
package service

import (
	"context"
	"sort"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/cache"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service")

// Report kinds. Embedded as the prefix of every cache key so a whole
// kind can be invalidated by substring.
const (
	kindCategoryBreakdown = "category-breakdown"
	kindDailySummary      = "daily-summary"
	kindMonthlySummary    = "monthly-summary"
	kindCategoryTrend     = "category-trend"
)

// topCategoriesPerDay bounds the per-day category list in daily
// summaries.
const topCategoriesPerDay = 3

// ReportCaches bundles the typed caches the report service memoizes
// into. Constructed once at startup and injected, so tests can supply
// isolated instances.
type ReportCaches struct {
	Categories port.Cache[[]domain.CategoryAggregation]
	Daily      port.Cache[[]domain.DailySummary]
	Monthly    port.Cache[domain.MonthlySummary]
}

// ReportService is the aggregation engine. Every query is cache-first:
// look up by deterministic key, compute on miss, store, return. Cache
// failures are indistinguishable from misses, so a broken cache only
// costs recomputation, never correctness.
type ReportService struct {
	store   port.RecordStore
	caches  ReportCaches
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewReportService creates the aggregation engine.
func NewReportService(store port.RecordStore, caches ReportCaches, metrics *observability.Metrics, logger *zap.Logger) *ReportService {
	return &ReportService{
		store:   store,
		caches:  caches,
		metrics: metrics,
		logger:  logger,
	}
}

// CategoryBreakdown partitions the scope's transactions into category
// buckets and computes per-bucket statistics. Transactions without a
// category, or whose category no longer exists, fall into the
// synthetic uncategorized bucket. Sorted descending by total amount;
// ties keep discovery order.
func (s *ReportService) CategoryBreakdown(ctx context.Context, scope domain.ReportScope) ([]domain.CategoryAggregation, error) {
	ctx, span := tracer.Start(ctx, "ReportService.CategoryBreakdown")
	defer span.End()

	if invalidRange(scope) {
		return []domain.CategoryAggregation{}, nil
	}

	key := cache.Key(kindCategoryBreakdown, scopeParams(scope))
	if cached, ok := s.caches.Categories.Get(key); ok {
		s.metrics.IncrCacheHit(kindCategoryBreakdown)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(kindCategoryBreakdown)

	start := time.Now()
	result, err := s.computeCategoryBreakdown(ctx, scope)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordReportDuration(kindCategoryBreakdown, time.Since(start))

	s.caches.Categories.Set(key, result)
	return result, nil
}

func (s *ReportService) computeCategoryBreakdown(ctx context.Context, scope domain.ReportScope) ([]domain.CategoryAggregation, error) {
	txs, err := s.store.ListTransactions(ctx, scope.Filter())
	if err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		s.metrics.IncrStoreError("categories")
		return nil, err
	}

	catIndex := make(map[string]domain.Category, len(categories))
	for _, c := range categories {
		catIndex[c.ID] = c
	}

	// Buckets keep discovery order so equal totals sort stably.
	buckets := make(map[string]*domain.CategoryAggregation)
	order := make([]string, 0)
	scopeTotal := 0.0

	for _, tx := range txs {
		id := tx.CategoryID
		if _, known := catIndex[id]; id == "" || !known {
			id = domain.UncategorizedID
		}

		b, ok := buckets[id]
		if !ok {
			b = &domain.CategoryAggregation{
				CategoryID: id,
				Name:       "Uncategorized",
				Type:       domain.TypeBoth,
				MinAmount:  tx.Amount,
				MaxAmount:  tx.Amount,
			}
			if c, known := catIndex[id]; known {
				b.Name = c.Name
				b.Type = c.Type
			}
			buckets[id] = b
			order = append(order, id)
		}

		b.TotalAmount += tx.Amount
		b.TransactionCount++
		if tx.Amount < b.MinAmount {
			b.MinAmount = tx.Amount
		}
		if tx.Amount > b.MaxAmount {
			b.MaxAmount = tx.Amount
		}
		scopeTotal += tx.Amount
	}

	result := make([]domain.CategoryAggregation, 0, len(order))
	for _, id := range order {
		b := buckets[id]
		b.AverageAmount = b.TotalAmount / float64(b.TransactionCount)
		if scopeTotal > 0 {
			b.Percentage = b.TotalAmount / scopeTotal * 100
		}
		result = append(result, *b)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].TotalAmount > result[j].TotalAmount
	})
	return result, nil
}

// DailySummaries groups the scope's transactions by the calendar day
// of their economic date. Each day carries its top category buckets,
// computed by re-aggregating that single day so the per-day breakdown
// always matches what CategoryBreakdown would report for the same day.
// Sorted descending by date, most recent first.
func (s *ReportService) DailySummaries(ctx context.Context, scope domain.ReportScope) ([]domain.DailySummary, error) {
	ctx, span := tracer.Start(ctx, "ReportService.DailySummaries")
	defer span.End()

	if invalidRange(scope) {
		return []domain.DailySummary{}, nil
	}

	key := cache.Key(kindDailySummary, scopeParams(scope))
	if cached, ok := s.caches.Daily.Get(key); ok {
		s.metrics.IncrCacheHit(kindDailySummary)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(kindDailySummary)

	start := time.Now()

	txs, err := s.store.ListTransactions(ctx, scope.Filter())
	if err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}

	result, err := s.summarizeByDay(ctx, txs, scope.BookIDs, true)
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date > result[j].Date
	})

	s.metrics.RecordReportDuration(kindDailySummary, time.Since(start))
	s.caches.Daily.Set(key, result)
	return result, nil
}

// MonthlySummary aggregates a full calendar month, intersected with
// the caller's scope. Per-day averages divide by the true number of
// calendar days in the month. Among days tied for the biggest income
// or expense, the most recent one wins.
func (s *ReportService) MonthlySummary(ctx context.Context, year, month int, scope domain.ReportScope) (domain.MonthlySummary, error) {
	ctx, span := tracer.Start(ctx, "ReportService.MonthlySummary")
	defer span.End()
	span.SetAttributes(attribute.Int("report.year", year), attribute.Int("report.month", month))

	summary := domain.MonthlySummary{
		Year:              year,
		Month:             month,
		CategoryBreakdown: []domain.CategoryAggregation{},
		DailySummaries:    []domain.DailySummary{},
	}
	if invalidRange(scope) {
		return summary, nil
	}

	params := scopeParams(scope)
	params["year"] = year
	params["month"] = month
	key := cache.Key(kindMonthlySummary, params)
	if cached, ok := s.caches.Monthly.Get(key); ok {
		s.metrics.IncrCacheHit(kindMonthlySummary)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(kindMonthlySummary)

	start := time.Now()

	monthScope := intersectMonth(scope, year, month)
	dailies, err := s.DailySummaries(ctx, monthScope)
	if err != nil {
		return summary, err
	}
	breakdown, err := s.CategoryBreakdown(ctx, monthScope)
	if err != nil {
		return summary, err
	}

	bestIncome, bestExpense := 0.0, 0.0
	for _, day := range dailies {
		summary.TotalIncome += day.TotalIncome
		summary.TotalExpense += day.TotalExpense
		summary.TransactionCount += day.TransactionCount
		// dailies are descending, so a strictly-greater comparison
		// keeps the most recent day among equal maxima.
		if day.TotalIncome > bestIncome {
			bestIncome = day.TotalIncome
			summary.BiggestIncomeDay = day.Date
		}
		if day.TotalExpense > bestExpense {
			bestExpense = day.TotalExpense
			summary.BiggestExpenseDay = day.Date
		}
	}
	summary.NetAmount = summary.TotalIncome - summary.TotalExpense
	summary.DaysWithTransactions = len(dailies)

	days := float64(daysInMonth(year, month))
	summary.AvgDailyIncome = summary.TotalIncome / days
	summary.AvgDailyExpense = summary.TotalExpense / days

	summary.CategoryBreakdown = breakdown
	summary.DailySummaries = dailies

	s.metrics.RecordReportDuration(kindMonthlySummary, time.Since(start))
	s.caches.Monthly.Set(key, summary)
	return summary, nil
}

// CategoryTrends returns per-day summaries for a single category,
// sorted ascending by date for chronological plotting. The per-day
// top-categories list is always empty in a single-category view.
func (s *ReportService) CategoryTrends(ctx context.Context, categoryID string, scope domain.ReportScope) ([]domain.DailySummary, error) {
	ctx, span := tracer.Start(ctx, "ReportService.CategoryTrends")
	defer span.End()
	span.SetAttributes(attribute.String("category.id", categoryID))

	if invalidRange(scope) {
		return []domain.DailySummary{}, nil
	}

	params := scopeParams(scope)
	params["category_id"] = categoryID
	key := cache.Key(kindCategoryTrend, params)
	if cached, ok := s.caches.Daily.Get(key); ok {
		s.metrics.IncrCacheHit(kindCategoryTrend)
		return cached, nil
	}
	s.metrics.IncrCacheMiss(kindCategoryTrend)

	start := time.Now()

	filter := scope.Filter()
	filter.CategoryID = categoryID
	txs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		s.metrics.IncrStoreError("transactions")
		return nil, err
	}

	result, err := s.summarizeByDay(ctx, txs, scope.BookIDs, false)
	if err != nil {
		return nil, err
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Date < result[j].Date
	})

	s.metrics.RecordReportDuration(kindCategoryTrend, time.Since(start))
	s.caches.Daily.Set(key, result)
	return result, nil
}

// ClearCache invalidates all four report kinds.
func (s *ReportService) ClearCache() {
	s.caches.Categories.InvalidatePattern(kindCategoryBreakdown)
	s.caches.Daily.InvalidatePattern(kindDailySummary)
	s.caches.Daily.InvalidatePattern(kindCategoryTrend)
	s.caches.Monthly.InvalidatePattern(kindMonthlySummary)
}

// TransactionsChanged drops all cached reports. Fine-grained
// invalidation by book or date range is not attempted; recomputation
// is cheap enough and blanket invalidation cannot go stale.
func (s *ReportService) TransactionsChanged(ctx context.Context, bookID string) error {
	s.ClearCache()
	s.logger.Debug("report caches invalidated", zap.String("book_id", bookID))
	return nil
}

// summarizeByDay buckets transactions by calendar day. When
// withTopCategories is set, each day's top buckets are filled by
// re-aggregating that day through CategoryBreakdown.
func (s *ReportService) summarizeByDay(ctx context.Context, txs []domain.Transaction, bookIDs []string, withTopCategories bool) ([]domain.DailySummary, error) {
	byDay := make(map[string]*domain.DailySummary)
	for i := range txs {
		tx := &txs[i]
		day := tx.DayKey()
		summary, ok := byDay[day]
		if !ok {
			summary = &domain.DailySummary{Date: day}
			byDay[day] = summary
		}
		switch tx.Type {
		case domain.TypeIncome:
			summary.TotalIncome += tx.Amount
			summary.IncomeCount++
		case domain.TypeExpense:
			summary.TotalExpense += tx.Amount
			summary.ExpenseCount++
		}
		summary.TransactionCount++
	}

	result := make([]domain.DailySummary, 0, len(byDay))
	for day, summary := range byDay {
		summary.NetAmount = summary.TotalIncome - summary.TotalExpense
		if withTopCategories {
			top, err := s.topCategoriesForDay(ctx, day, bookIDs)
			if err != nil {
				return nil, err
			}
			summary.TopCategories = top
		}
		result = append(result, *summary)
	}
	return result, nil
}

func (s *ReportService) topCategoriesForDay(ctx context.Context, day string, bookIDs []string) ([]domain.CategoryAggregation, error) {
	dayStart, err := time.ParseInLocation("2006-01-02", day, time.Local)
	if err != nil {
		return nil, err
	}
	dayEnd := endOfDay(dayStart)

	breakdown, err := s.CategoryBreakdown(ctx, domain.ReportScope{
		BookIDs:  bookIDs,
		DateFrom: &dayStart,
		DateTo:   &dayEnd,
	})
	if err != nil {
		return nil, err
	}
	if len(breakdown) > topCategoriesPerDay {
		breakdown = breakdown[:topCategoriesPerDay]
	}
	return breakdown, nil
}

// ============================================================
// Scope helpers
// ============================================================

// invalidRange reports whether the scope's bounds are inverted. An
// inverted range reads as "empty result", not as an error.
func invalidRange(scope domain.ReportScope) bool {
	return scope.DateFrom != nil && scope.DateTo != nil && scope.DateFrom.After(*scope.DateTo)
}

// scopeParams renders a scope as the parameter map for cache keys.
// Book ids are sorted so structurally equal sets key identically.
func scopeParams(scope domain.ReportScope) map[string]any {
	bookIDs := append([]string(nil), scope.BookIDs...)
	sort.Strings(bookIDs)

	from, to := "", ""
	if scope.DateFrom != nil {
		from = scope.DateFrom.Format(time.RFC3339Nano)
	}
	if scope.DateTo != nil {
		to = scope.DateTo.Format(time.RFC3339Nano)
	}
	return map[string]any{
		"book_ids":  bookIDs,
		"date_from": from,
		"date_to":   to,
	}
}

// intersectMonth narrows a scope to the calendar month, keeping any
// tighter caller-supplied bounds.
func intersectMonth(scope domain.ReportScope, year, month int) domain.ReportScope {
	monthStart := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.Local)
	monthEnd := monthStart.AddDate(0, 1, 0).Add(-time.Nanosecond)

	from, to := monthStart, monthEnd
	if scope.DateFrom != nil && scope.DateFrom.After(from) {
		from = *scope.DateFrom
	}
	if scope.DateTo != nil && scope.DateTo.Before(to) {
		to = *scope.DateTo
	}
	return domain.ReportScope{BookIDs: scope.BookIDs, DateFrom: &from, DateTo: &to}
}

func endOfDay(dayStart time.Time) time.Time {
	return dayStart.AddDate(0, 0, 1).Add(-time.Nanosecond)
}

func daysInMonth(year, month int) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
