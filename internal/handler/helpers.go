package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/boddenberg/finbook-go/internal/domain"

	"go.uber.org/zap"
)

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// parseScope reads the report scope query parameters shared by all
// report endpoints: ?books=a,b&from=2024-03-01&to=2024-03-31. Dates
// accept either a bare day or full RFC 3339; a bare "to" day extends
// to its last instant so the bound stays inclusive.
func parseScope(r *http.Request) (domain.ReportScope, error) {
	var scope domain.ReportScope

	if books := r.URL.Query().Get("books"); books != "" {
		for _, id := range strings.Split(books, ",") {
			if id = strings.TrimSpace(id); id != "" {
				scope.BookIDs = append(scope.BookIDs, id)
			}
		}
	}

	if from := r.URL.Query().Get("from"); from != "" {
		t, _, err := parseDateParam(from)
		if err != nil {
			return scope, &domain.ErrValidation{Field: "from", Message: "invalid date"}
		}
		scope.DateFrom = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, bareDay, err := parseDateParam(to)
		if err != nil {
			return scope, &domain.ErrValidation{Field: "to", Message: "invalid date"}
		}
		if bareDay {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		scope.DateTo = &t
	}
	return scope, nil
}

func parseDateParam(s string) (t time.Time, bareDay bool, err error) {
	if t, err = time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, true, nil
	}
	t, err = time.Parse(time.RFC3339, s)
	return t, false, err
}

// handleServiceError maps domain errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var notFound *domain.ErrNotFound
	var validation *domain.ErrValidation
	var conflict *domain.ErrConflict
	var circuitOpen *domain.ErrCircuitOpen
	var timeout *domain.ErrTimeout
	var external *domain.ErrExternalService

	switch {
	case errors.As(err, &notFound):
		logger.Debug("not found", zap.String("error", err.Error()))
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &validation):
		logger.Debug("validation error", zap.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		logger.Debug("conflict", zap.String("error", err.Error()))
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &circuitOpen):
		logger.Error("circuit breaker open", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &timeout):
		logger.Error("request timeout", zap.Error(err))
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &external):
		logger.Error("record store error", zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("unhandled error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
