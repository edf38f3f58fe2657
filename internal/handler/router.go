package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/observability"
	"github.com/boddenberg/finbook-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// Services groups everything the router dispatches to.
type Services struct {
	Reports      *service.ReportService
	Balances     *service.BalanceService
	Transactions *service.TransactionService
	Catalog      *service.CatalogService
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(svcs Services, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.RequestLogger(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(svcs.Catalog))
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// Books
		r.Get("/books", listBooksHandler(svcs.Catalog, logger))
		r.Post("/books", createBookHandler(svcs.Catalog, logger))
		r.Get("/books/{bookId}", getBookHandler(svcs.Catalog, logger))
		r.Post("/books/{bookId}/recompute", recomputeBookHandler(svcs.Balances, logger))

		// Segments
		r.Get("/segments", listSegmentsHandler(svcs.Catalog, logger))
		r.Post("/segments", createSegmentHandler(svcs.Catalog, logger))
		r.Get("/segments/{segmentId}", getSegmentHandler(svcs.Catalog, logger))
		r.Post("/segments/{segmentId}/recompute", recomputeSegmentHandler(svcs.Balances, logger))

		// Categories
		r.Get("/categories", listCategoriesHandler(svcs.Catalog, logger))
		r.Post("/categories", createCategoryHandler(svcs.Catalog, logger))
		r.Delete("/categories/{categoryId}", deleteCategoryHandler(svcs.Catalog, logger))

		// Transactions
		r.Get("/transactions", listTransactionsHandler(svcs.Transactions, logger))
		r.Post("/transactions", createTransactionHandler(svcs.Transactions, logger))
		r.Get("/transactions/{transactionId}", getTransactionHandler(svcs.Transactions, logger))
		r.Put("/transactions/{transactionId}", updateTransactionHandler(svcs.Transactions, logger))
		r.Delete("/transactions/{transactionId}", deleteTransactionHandler(svcs.Transactions, logger))
		r.Post("/transactions/{transactionId}/duplicate", duplicateTransactionHandler(svcs.Transactions, logger))
		r.Post("/transactions/{transactionId}/reverse", reverseTransactionHandler(svcs.Transactions, logger))

		// Reports
		r.Get("/reports/categories", categoryBreakdownHandler(svcs.Reports, logger))
		r.Get("/reports/daily", dailySummariesHandler(svcs.Reports, logger))
		r.Get("/reports/monthly/{year}/{month}", monthlySummaryHandler(svcs.Reports, logger))
		r.Get("/reports/trends/{categoryId}", categoryTrendsHandler(svcs.Reports, logger))
		r.Post("/reports/cache/clear", clearCacheHandler(svcs.Reports, logger))
	})

	return r
}

// ============================================================
// Operational
// ============================================================

func healthzHandler(catalog *service.CatalogService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		status := "healthy"
		if _, err := catalog.ListBooks(r.Context()); err != nil {
			status = "degraded"
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     status,
			"latency_ms": time.Since(start).Milliseconds(),
			"checked_at": time.Now().Format(time.RFC3339),
		})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// ============================================================
// Books
// ============================================================

func listBooksHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/books")
		defer span.End()

		books, err := catalog.ListBooks(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, books)
	}
}

func createBookHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/books")
		defer span.End()

		var req domain.BookRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		book, err := catalog.CreateBook(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, book)
	}
}

func getBookHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/books/{bookId}")
		defer span.End()

		book, err := catalog.GetBook(ctx, chi.URLParam(r, "bookId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, book)
	}
}

func recomputeBookHandler(balances *service.BalanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/books/{bookId}/recompute")
		defer span.End()

		balance, err := balances.RecomputeBookBalance(ctx, chi.URLParam(r, "bookId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"balance": balance})
	}
}

// ============================================================
// Segments
// ============================================================

func listSegmentsHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments")
		defer span.End()

		segments, err := catalog.ListSegments(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, segments)
	}
}

func createSegmentHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/segments")
		defer span.End()

		var req struct {
			Name        string `json:"name"`
			Description string `json:"description"`
			Color       string `json:"color"`
			Icon        string `json:"icon"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		seg, err := catalog.CreateSegment(ctx, req.Name, req.Description, req.Color, req.Icon)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, seg)
	}
}

func getSegmentHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/segments/{segmentId}")
		defer span.End()

		seg, err := catalog.GetSegment(ctx, chi.URLParam(r, "segmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, seg)
	}
}

func recomputeSegmentHandler(balances *service.BalanceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/segments/{segmentId}/recompute")
		defer span.End()

		total, err := balances.RecomputeSegmentBalance(ctx, chi.URLParam(r, "segmentId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]float64{"total_balance": total})
	}
}

// ============================================================
// Categories
// ============================================================

func listCategoriesHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/categories")
		defer span.End()

		categories, err := catalog.ListCategories(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, categories)
	}
}

func createCategoryHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/categories")
		defer span.End()

		var req domain.CategoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		cat, err := catalog.CreateCategory(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, cat)
	}
}

func deleteCategoryHandler(catalog *service.CatalogService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/categories/{categoryId}")
		defer span.End()

		if err := catalog.DeleteCategory(ctx, chi.URLParam(r, "categoryId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ============================================================
// Transactions
// ============================================================

func listTransactionsHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		scope, err := parseScope(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		filter := scope.Filter()
		filter.CategoryID = r.URL.Query().Get("category")

		list, err := txs.List(ctx, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, list)
	}
}

func createTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var req domain.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		tx, err := txs.Create(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func getTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{transactionId}")
		defer span.End()

		tx, err := txs.Get(ctx, chi.URLParam(r, "transactionId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func updateTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{transactionId}")
		defer span.End()

		var req domain.TransactionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		tx, err := txs.Update(ctx, chi.URLParam(r, "transactionId"), &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func deleteTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{transactionId}")
		defer span.End()

		if err := txs.Delete(ctx, chi.URLParam(r, "transactionId")); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func duplicateTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/duplicate")
		defer span.End()

		tx, err := txs.Duplicate(ctx, chi.URLParam(r, "transactionId"), targetBook(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

func reverseTransactionHandler(txs *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions/{transactionId}/reverse")
		defer span.End()

		tx, err := txs.Reverse(ctx, chi.URLParam(r, "transactionId"), targetBook(r))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, tx)
	}
}

// targetBook reads the optional destination book from the request
// body. An empty or absent body means "same book as the original".
func targetBook(r *http.Request) string {
	var req struct {
		BookID string `json:"book_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.BookID
}

// ============================================================
// Reports
// ============================================================

func categoryBreakdownHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/categories")
		defer span.End()

		scope, err := parseScope(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		breakdown, err := reports.CategoryBreakdown(ctx, scope)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, breakdown)
	}
}

func dailySummariesHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/daily")
		defer span.End()

		scope, err := parseScope(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		summaries, err := reports.DailySummaries(ctx, scope)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summaries)
	}
}

func monthlySummaryHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/monthly/{year}/{month}")
		defer span.End()

		year, err := strconv.Atoi(chi.URLParam(r, "year"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid year")
			return
		}
		month, err := strconv.Atoi(chi.URLParam(r, "month"))
		if err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "invalid month")
			return
		}

		scope, err := parseScope(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		summary, err := reports.MonthlySummary(ctx, year, month, scope)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

func categoryTrendsHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/reports/trends/{categoryId}")
		defer span.End()

		scope, err := parseScope(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		trends, err := reports.CategoryTrends(ctx, chi.URLParam(r, "categoryId"), scope)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, trends)
	}
}

func clearCacheHandler(reports *service.ReportService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/reports/cache/clear")
		defer span.End()

		reports.ClearCache()
		logger.Info("report caches cleared")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}
