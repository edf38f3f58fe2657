// Package recordapi is a client for a PostgREST-style record store API
// holding the books, segments, transactions and categories collections.
// All calls go through the circuit breaker and retry policy; a breaker
// that is open surfaces as domain.ErrCircuitOpen so callers can shed
// load instead of queueing.
package recordapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"
	"github.com/boddenberg/finbook-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("recordapi")

// Client wraps HTTP calls to the record store API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	bulkhead   *resilience.Bulkhead
	logger     *zap.Logger
}

// NewClient creates a record store API client.
func NewClient(httpClient *http.Client, baseURL, apiKey string, cb *gobreaker.CircuitBreaker, cfg resilience.Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		cb:         cb,
		cfg:        cfg,
		bulkhead:   resilience.NewBulkhead(cfg.MaxConcurrency),
		logger:     logger,
	}
}

// doRequest executes an authenticated request against the API.
func (c *Client) doRequest(ctx context.Context, method, path string, payload any) ([]byte, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(raw)
	}

	endpoint := fmt.Sprintf("%s/v1/%s", c.baseURL, path)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("recordapi: request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusNoContent {
		return nil, nil // no data
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("recordapi: non-2xx response",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, fmt.Errorf("record store returned status %d: %s", resp.StatusCode, string(raw))
	}

	return raw, nil
}

// execute runs fn through the breaker + retry policy and normalizes
// the failure modes. Not-found conditions raised inside fn pass
// through untouched; everything else wraps as an external service
// error so the handler layer maps it consistently.
func (c *Client) execute(ctx context.Context, op string, fn func() error) error {
	err := resilience.Execute(ctx, c.cb, c.cfg, fn)
	if err == nil {
		return nil
	}

	var notFound *domain.ErrNotFound
	if errors.As(err, &notFound) {
		return notFound
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: "recordapi/" + op}
	}
	return &domain.ErrExternalService{Service: "recordapi/" + op, Err: err}
}

// ============================================================
// Wire rows
// ============================================================

type transactionRow struct {
	ID                    string   `json:"id"`
	BookID                string   `json:"book_id"`
	Type                  string   `json:"type"`
	Amount                float64  `json:"amount"`
	Description           string   `json:"description"`
	Notes                 string   `json:"notes,omitempty"`
	CategoryID            string   `json:"category_id,omitempty"`
	Date                  string   `json:"date"`
	Recurring             bool     `json:"recurring"`
	RecurringID           string   `json:"recurring_id,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
	OriginalTransactionID string   `json:"original_transaction_id,omitempty"`
	Reversed              bool     `json:"reversed"`
	CreatedAt             string   `json:"created_at"`
	UpdatedAt             string   `json:"updated_at"`
}

func toTransactionRow(tx *domain.Transaction) transactionRow {
	return transactionRow{
		ID:                    tx.ID,
		BookID:                tx.BookID,
		Type:                  tx.Type,
		Amount:                tx.Amount,
		Description:           tx.Description,
		Notes:                 tx.Notes,
		CategoryID:            tx.CategoryID,
		Date:                  tx.Date.Format(time.RFC3339),
		Recurring:             tx.Recurring,
		RecurringID:           tx.RecurringID,
		Tags:                  tx.Tags,
		OriginalTransactionID: tx.OriginalTransactionID,
		Reversed:              tx.Reversed,
		CreatedAt:             tx.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             tx.UpdatedAt.Format(time.RFC3339),
	}
}

func (r transactionRow) toDomain() domain.Transaction {
	return domain.Transaction{
		ID:                    r.ID,
		BookID:                r.BookID,
		Type:                  r.Type,
		Amount:                r.Amount,
		Description:           r.Description,
		Notes:                 r.Notes,
		CategoryID:            r.CategoryID,
		Date:                  parseTime(r.Date),
		Recurring:             r.Recurring,
		RecurringID:           r.RecurringID,
		Tags:                  r.Tags,
		OriginalTransactionID: r.OriginalTransactionID,
		Reversed:              r.Reversed,
		CreatedAt:             parseTime(r.CreatedAt),
		UpdatedAt:             parseTime(r.UpdatedAt),
	}
}

// parseTime accepts RFC3339 or a bare calendar date.
func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, _ = time.Parse("2006-01-02", s)
	}
	return t
}

// ============================================================
// Transactions
// ============================================================

func (c *Client) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.CreateTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", tx.BookID))

	return c.execute(ctx, "transactions", func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "transactions", toTransactionRow(tx))
		return err
	})
}

func (c *Client) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.GetTransaction")
	defer span.End()

	var result *domain.Transaction
	err := c.execute(ctx, "transactions", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "transactions?id=eq."+url.QueryEscape(id)+"&limit=1", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[transactionRow](body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "transaction", ID: id}
		}
		tx := rows[0].toDomain()
		result = &tx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) UpdateTransaction(ctx context.Context, tx *domain.Transaction) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.UpdateTransaction")
	defer span.End()

	return c.execute(ctx, "transactions", func() error {
		_, err := c.doRequest(ctx, http.MethodPatch, "transactions?id=eq."+url.QueryEscape(tx.ID), toTransactionRow(tx))
		return err
	})
}

func (c *Client) DeleteTransaction(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.DeleteTransaction")
	defer span.End()

	return c.execute(ctx, "transactions", func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, "transactions?id=eq."+url.QueryEscape(id), nil)
		return err
	})
}

func (c *Client) ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.ListTransactions")
	defer span.End()

	path := "transactions" + filterQuery(filter)

	var result []domain.Transaction
	err := c.execute(ctx, "transactions", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[transactionRow](body)
		if err != nil {
			return err
		}
		result = make([]domain.Transaction, 0, len(rows))
		for _, r := range rows {
			result = append(result, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// filterQuery renders a transaction filter as PostgREST query params.
func filterQuery(f domain.TransactionFilter) string {
	params := make([]string, 0, 4)
	if len(f.BookIDs) > 0 {
		params = append(params, "book_id=in.("+url.QueryEscape(strings.Join(f.BookIDs, ","))+")")
	}
	if f.DateFrom != nil {
		params = append(params, "date=gte."+url.QueryEscape(f.DateFrom.Format(time.RFC3339)))
	}
	if f.DateTo != nil {
		params = append(params, "date=lte."+url.QueryEscape(f.DateTo.Format(time.RFC3339)))
	}
	if f.CategoryID != "" {
		if f.CategoryID == domain.UncategorizedID {
			params = append(params, "category_id=is.null")
		} else {
			params = append(params, "category_id=eq."+url.QueryEscape(f.CategoryID))
		}
	}
	if len(params) == 0 {
		return ""
	}
	return "?" + strings.Join(params, "&")
}

// ============================================================
// Books
// ============================================================

type bookRow struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	SegmentID   string  `json:"segment_id,omitempty"`
	Currency    string  `json:"currency"`
	Color       string  `json:"color,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Active      bool    `json:"active"`
	Balance     float64 `json:"balance"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

func (r bookRow) toDomain() domain.Book {
	return domain.Book{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		SegmentID:   r.SegmentID,
		Currency:    r.Currency,
		Color:       r.Color,
		Icon:        r.Icon,
		Active:      r.Active,
		Balance:     r.Balance,
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}

func (c *Client) CreateBook(ctx context.Context, b *domain.Book) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.CreateBook")
	defer span.End()

	row := bookRow{
		ID: b.ID, Name: b.Name, Description: b.Description,
		SegmentID: b.SegmentID, Currency: b.Currency,
		Color: b.Color, Icon: b.Icon, Active: b.Active,
		Balance:   b.Balance,
		CreatedAt: b.CreatedAt.Format(time.RFC3339),
		UpdatedAt: b.UpdatedAt.Format(time.RFC3339),
	}
	return c.execute(ctx, "books", func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "books", row)
		return err
	})
}

func (c *Client) GetBook(ctx context.Context, id string) (*domain.Book, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.GetBook")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", id))

	var result *domain.Book
	err := c.execute(ctx, "books", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "books?id=eq."+url.QueryEscape(id)+"&limit=1", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[bookRow](body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "book", ID: id}
		}
		b := rows[0].toDomain()
		result = &b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListBooks(ctx context.Context) ([]domain.Book, error) {
	return c.listBooks(ctx, "books?order=id.asc")
}

func (c *Client) ListBooksBySegment(ctx context.Context, segmentID string) ([]domain.Book, error) {
	return c.listBooks(ctx, "books?segment_id=eq."+url.QueryEscape(segmentID)+"&order=id.asc")
}

func (c *Client) listBooks(ctx context.Context, path string) ([]domain.Book, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.ListBooks")
	defer span.End()

	var result []domain.Book
	err := c.execute(ctx, "books", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, path, nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[bookRow](body)
		if err != nil {
			return err
		}
		result = make([]domain.Book, 0, len(rows))
		for _, r := range rows {
			result = append(result, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) UpdateBookBalance(ctx context.Context, bookID string, balance float64) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.UpdateBookBalance")
	defer span.End()
	span.SetAttributes(attribute.String("book.id", bookID))

	return c.execute(ctx, "books", func() error {
		_, err := c.doRequest(ctx, http.MethodPatch,
			"books?id=eq."+url.QueryEscape(bookID),
			map[string]any{"balance": balance, "updated_at": time.Now().Format(time.RFC3339)},
		)
		return err
	})
}

// ============================================================
// Segments
// ============================================================

type segmentRow struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description,omitempty"`
	Color        string  `json:"color,omitempty"`
	Icon         string  `json:"icon,omitempty"`
	Active       bool    `json:"active"`
	TotalBalance float64 `json:"total_balance"`
	CreatedAt    string  `json:"created_at"`
	UpdatedAt    string  `json:"updated_at"`
}

func (r segmentRow) toDomain() domain.Segment {
	return domain.Segment{
		ID: r.ID, Name: r.Name, Description: r.Description,
		Color: r.Color, Icon: r.Icon, Active: r.Active,
		TotalBalance: r.TotalBalance,
		CreatedAt:    parseTime(r.CreatedAt),
		UpdatedAt:    parseTime(r.UpdatedAt),
	}
}

func (c *Client) CreateSegment(ctx context.Context, seg *domain.Segment) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.CreateSegment")
	defer span.End()

	row := segmentRow{
		ID: seg.ID, Name: seg.Name, Description: seg.Description,
		Color: seg.Color, Icon: seg.Icon, Active: seg.Active,
		TotalBalance: seg.TotalBalance,
		CreatedAt:    seg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    seg.UpdatedAt.Format(time.RFC3339),
	}
	return c.execute(ctx, "segments", func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "segments", row)
		return err
	})
}

func (c *Client) GetSegment(ctx context.Context, id string) (*domain.Segment, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.GetSegment")
	defer span.End()

	var result *domain.Segment
	err := c.execute(ctx, "segments", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "segments?id=eq."+url.QueryEscape(id)+"&limit=1", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[segmentRow](body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "segment", ID: id}
		}
		seg := rows[0].toDomain()
		result = &seg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListSegments(ctx context.Context) ([]domain.Segment, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.ListSegments")
	defer span.End()

	var result []domain.Segment
	err := c.execute(ctx, "segments", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "segments?order=id.asc", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[segmentRow](body)
		if err != nil {
			return err
		}
		result = make([]domain.Segment, 0, len(rows))
		for _, r := range rows {
			result = append(result, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) UpdateSegmentBalance(ctx context.Context, segmentID string, balance float64) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.UpdateSegmentBalance")
	defer span.End()

	return c.execute(ctx, "segments", func() error {
		_, err := c.doRequest(ctx, http.MethodPatch,
			"segments?id=eq."+url.QueryEscape(segmentID),
			map[string]any{"total_balance": balance, "updated_at": time.Now().Format(time.RFC3339)},
		)
		return err
	})
}

// ============================================================
// Categories
// ============================================================

type categoryRow struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Color     string `json:"color,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Default   bool   `json:"default"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func (r categoryRow) toDomain() domain.Category {
	return domain.Category{
		ID: r.ID, Name: r.Name, Type: r.Type,
		Color: r.Color, Icon: r.Icon,
		Default: r.Default, Active: r.Active,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

func (c *Client) CreateCategory(ctx context.Context, cat *domain.Category) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.CreateCategory")
	defer span.End()

	row := categoryRow{
		ID: cat.ID, Name: cat.Name, Type: cat.Type,
		Color: cat.Color, Icon: cat.Icon,
		Default: cat.Default, Active: cat.Active,
		CreatedAt: cat.CreatedAt.Format(time.RFC3339),
		UpdatedAt: cat.UpdatedAt.Format(time.RFC3339),
	}
	return c.execute(ctx, "categories", func() error {
		_, err := c.doRequest(ctx, http.MethodPost, "categories", row)
		return err
	})
}

func (c *Client) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.GetCategory")
	defer span.End()

	var result *domain.Category
	err := c.execute(ctx, "categories", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "categories?id=eq."+url.QueryEscape(id)+"&limit=1", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[categoryRow](body)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return &domain.ErrNotFound{Resource: "category", ID: id}
		}
		cat := rows[0].toDomain()
		result = &cat
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]domain.Category, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.ListCategories")
	defer span.End()

	var result []domain.Category
	err := c.execute(ctx, "categories", func() error {
		body, err := c.doRequest(ctx, http.MethodGet, "categories?order=id.asc", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[categoryRow](body)
		if err != nil {
			return err
		}
		result = make([]domain.Category, 0, len(rows))
		for _, r := range rows {
			result = append(result, r.toDomain())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id string) error {
	ctx, span := tracer.Start(ctx, "RecordAPI.DeleteCategory")
	defer span.End()

	return c.execute(ctx, "categories", func() error {
		_, err := c.doRequest(ctx, http.MethodDelete, "categories?id=eq."+url.QueryEscape(id), nil)
		return err
	})
}

func (c *Client) CountTransactionsByCategory(ctx context.Context, categoryID string) (int, error) {
	ctx, span := tracer.Start(ctx, "RecordAPI.CountTransactionsByCategory")
	defer span.End()

	count := 0
	err := c.execute(ctx, "transactions", func() error {
		body, err := c.doRequest(ctx, http.MethodGet,
			"transactions?category_id=eq."+url.QueryEscape(categoryID)+"&select=id", nil)
		if err != nil {
			return err
		}
		rows, err := decodeRows[struct {
			ID string `json:"id"`
		}](body)
		if err != nil {
			return err
		}
		count = len(rows)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// decodeRows parses a JSON array response; a nil body decodes to an
// empty slice (204/404 already normalized by doRequest).
func decodeRows[T any](body []byte) ([]T, error) {
	if len(body) == 0 {
		return nil, nil
	}
	var rows []T
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return rows, nil
}
