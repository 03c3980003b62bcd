package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/compliance"
	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/types"
)

// CorrectiveHandler serves the corrective action loop.
type CorrectiveHandler struct {
	machine *corrective.Machine
	repo    corrective.Repository
	svc     *compliance.Service
	log     *zap.Logger
}

// NewCorrectiveHandler creates a new CorrectiveHandler.
func NewCorrectiveHandler(machine *corrective.Machine, repo corrective.Repository, svc *compliance.Service, log *zap.Logger) *CorrectiveHandler {
	return &CorrectiveHandler{machine: machine, repo: repo, svc: svc, log: log}
}

// Track starts remediation of a stored issue.
// POST /v1/corrective-issues
func (h *CorrectiveHandler) Track(w http.ResponseWriter, r *http.Request) {
	r, ok := commandContext(w, r)
	if !ok {
		return
	}
	var req struct {
		IssueID string `json:"issue_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	if strings.TrimSpace(req.IssueID) == "" {
		writeError(w, http.StatusBadRequest, "MISSING_PARAMS", "issue_id is required")
		return
	}
	issue, err := h.svc.Issue(r.Context(), req.IssueID)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	ci, err := h.machine.Track(r.Context(), issue)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, ci)
}

// List returns corrective issues.
// GET /v1/corrective-issues?property_id=&status=&page_size=&offset=
func (h *CorrectiveHandler) List(w http.ResponseWriter, r *http.Request) {
	p := parsePagination(r)
	f := corrective.Filter{
		PropertyID: r.URL.Query().Get("property_id"),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if s := r.URL.Query().Get("status"); s != "" {
		st, err := types.ParseStatus(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_STATUS", err.Error())
			return
		}
		f.Status = st
	}
	items, err := h.repo.List(r.Context(), f)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	if items == nil {
		items = []types.CorrectiveIssue{}
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"corrective_issues": items})
}

// Get returns one corrective issue.
// GET /v1/corrective-issues/{id}
func (h *CorrectiveHandler) Get(w http.ResponseWriter, r *http.Request) {
	ci, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ci)
}

// CreateWorkOrder opens and links a work order.
// POST /v1/corrective-issues/{id}/work-order
func (h *CorrectiveHandler) CreateWorkOrder(w http.ResponseWriter, r *http.Request) {
	r, ok := commandContext(w, r)
	if !ok {
		return
	}
	var spec corrective.WorkOrderSpec
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &spec); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
			return
		}
	}
	ci, err := h.machine.CreateWorkOrder(r.Context(), chi.URLParam(r, "id"), spec)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ci)
}

// Verify records the post-repair inspection.
// POST /v1/corrective-issues/{id}/verify
func (h *CorrectiveHandler) Verify(w http.ResponseWriter, r *http.Request) {
	r, ok := commandContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes     string          `json:"notes"`
		Checklist types.Checklist `json:"checklist"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	ci, err := h.machine.Verify(r.Context(), chi.URLParam(r, "id"), req.Notes, req.Checklist)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ci)
}

// Close closes a verified issue.
// POST /v1/corrective-issues/{id}/close
func (h *CorrectiveHandler) Close(w http.ResponseWriter, r *http.Request) {
	r, ok := commandContext(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	ci, err := h.machine.Close(r.Context(), chi.URLParam(r, "id"), req.Notes)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ci)
}

// WorkOrderCompleted is the completion webhook of the work order service.
// POST /v1/work-orders/{workOrderID}/completed
func (h *CorrectiveHandler) WorkOrderCompleted(w http.ResponseWriter, r *http.Request) {
	ctx := corrective.WithAudit(r.Context(), corrective.Audit{
		Actor:         "work-order-service",
		Source:        "webhook",
		CorrelationID: r.Header.Get("X-Correlation-ID"),
	})
	ci, err := h.machine.MarkWorkCompleted(ctx, chi.URLParam(r, "workOrderID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ci)
}
