package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/normalize"
	"github.com/matthewbaird/compliance/internal/priority"
	"github.com/matthewbaird/compliance/internal/store"
)

// writeJSON marshals v as JSON and writes it with the given status code.
// Encode errors happen after the status line is sent, so they are only
// logged.
func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, v any) {
	if err := encodeJSON(w, status, v); err != nil {
		log.Warn("writeJSON encode error", zap.Int("status", status), zap.Error(err))
	}
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	_ = encodeJSON(w, status, map[string]string{
		"error": message,
		"code":  code,
	})
}

func encodeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Pagination holds parsed pagination parameters.
type Pagination struct {
	Limit  int
	Offset int
}

// parsePagination extracts page_size and offset from query params.
func parsePagination(r *http.Request) Pagination {
	p := Pagination{Limit: 20, Offset: 0}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			p.Limit = n
		}
	}
	if p.Limit > 100 {
		p.Limit = 100
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			p.Offset = n
		}
	}
	return p
}

// errorToHTTP maps domain errors to HTTP responses.
func errorToHTTP(w http.ResponseWriter, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, corrective.ErrGateNotSatisfied):
		writeError(w, http.StatusUnprocessableEntity, "GATE_NOT_SATISFIED", err.Error())
	case errors.Is(err, corrective.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "INVALID_TRANSITION", err.Error())
	case errors.Is(err, corrective.ErrConcurrentTransition):
		writeError(w, http.StatusConflict, "CONCURRENT_TRANSITION", err.Error())
	case errors.Is(err, corrective.ErrAlreadyTracked):
		writeError(w, http.StatusConflict, "ALREADY_TRACKED", err.Error())
	case errors.Is(err, corrective.ErrNotFound), errors.Is(err, store.ErrIssueNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", err.Error())
	case errors.Is(err, normalize.ErrMalformedIssue), errors.Is(err, priority.ErrUnclassifiable):
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, corrective.ErrWorkOrderService):
		log.Warn("work order service failure", zap.Error(err))
		writeError(w, http.StatusBadGateway, "WORK_ORDER_SERVICE", err.Error())
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// parseAuditContext extracts audit metadata from request headers. Commands
// require X-Actor.
func parseAuditContext(w http.ResponseWriter, r *http.Request) (corrective.Audit, bool) {
	actor := r.Header.Get("X-Actor")
	if actor == "" {
		writeError(w, http.StatusBadRequest, "MISSING_ACTOR", "X-Actor header is required")
		return corrective.Audit{}, false
	}
	source := r.Header.Get("X-Source")
	if source == "" {
		source = "user"
	}
	return corrective.Audit{
		Actor:         actor,
		Source:        source,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	}, true
}

// commandContext runs parseAuditContext and attaches the result to the
// request context for the event trail.
func commandContext(w http.ResponseWriter, r *http.Request) (*http.Request, bool) {
	audit, ok := parseAuditContext(w, r)
	if !ok {
		return r, false
	}
	return r.WithContext(corrective.WithAudit(r.Context(), audit)), true
}
