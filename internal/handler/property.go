package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/compliance"
	"github.com/matthewbaird/compliance/internal/corrective"
	"github.com/matthewbaird/compliance/internal/normalize"
	"github.com/matthewbaird/compliance/internal/types"
)

// PropertyHandler serves the read side of one property: ingest, scores,
// priorities, and stats.
type PropertyHandler struct {
	svc     *compliance.Service
	machine *corrective.Machine
	log     *zap.Logger
}

// NewPropertyHandler creates a new PropertyHandler.
func NewPropertyHandler(svc *compliance.Service, machine *corrective.Machine, log *zap.Logger) *PropertyHandler {
	return &PropertyHandler{svc: svc, machine: machine, log: log}
}

// IngestIssues normalizes and stores source records for the property.
// POST /v1/properties/{propertyID}/issues
func (h *PropertyHandler) IngestIssues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Records []normalize.SourceRecord `json:"records"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return
	}
	res, err := h.svc.Ingest(r.Context(), chi.URLParam(r, "propertyID"), req.Records)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	status := http.StatusOK
	if res.Inserted > 0 {
		status = http.StatusCreated
	}
	writeJSON(w, h.log, status, res)
}

// GetScore returns the property deduction score.
// GET /v1/properties/{propertyID}/score
func (h *PropertyHandler) GetScore(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.PropertyScore(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, b)
}

// GetUnitScore returns the unit performance score of one unit.
// GET /v1/properties/{propertyID}/units/{unitID}/score
func (h *PropertyHandler) GetUnitScore(w http.ResponseWriter, r *http.Request) {
	ups, err := h.svc.UnitScore(r.Context(), chi.URLParam(r, "propertyID"), chi.URLParam(r, "unitID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, ups)
}

// ListUnitScores scores every unit with an open issue.
// GET /v1/properties/{propertyID}/units/scores
func (h *PropertyHandler) ListUnitScores(w http.ResponseWriter, r *http.Request) {
	scores, err := h.svc.UnitScores(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"units": scores})
}

// GetPriorities returns the twelve tier counts.
// GET /v1/properties/{propertyID}/priorities
func (h *PropertyHandler) GetPriorities(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.svc.Priorities(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"tiers": tiers})
}

// GetRanked returns open issues ordered by tier.
// GET /v1/properties/{propertyID}/ranked
func (h *PropertyHandler) GetRanked(w http.ResponseWriter, r *http.Request) {
	ranked, err := h.svc.Ranked(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	p := parsePagination(r)
	total := len(ranked)
	if p.Offset > total {
		p.Offset = total
	}
	end := min(p.Offset+p.Limit, total)
	writeJSON(w, h.log, http.StatusOK, map[string]any{
		"issues":      ranked[p.Offset:end],
		"total_count": total,
	})
}

// GetStats returns the property rollup.
// GET /v1/properties/{propertyID}/stats
func (h *PropertyHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Stats(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, s)
}

// AutoTrack starts remediation of every severe or moderate open issue.
// POST /v1/properties/{propertyID}/corrective/auto
func (h *PropertyHandler) AutoTrack(w http.ResponseWriter, r *http.Request) {
	r, ok := commandContext(w, r)
	if !ok {
		return
	}
	candidates, err := h.svc.TrackCandidates(r.Context(), chi.URLParam(r, "propertyID"))
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	tracked, err := h.machine.AutoTrack(r.Context(), candidates)
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	if tracked == nil {
		tracked = []types.CorrectiveIssue{}
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"tracked": tracked})
}

// GetPortfolio scores every property.
// GET /v1/portfolio/scores
func (h *PropertyHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	scores, err := h.svc.Portfolio(r.Context())
	if err != nil {
		errorToHTTP(w, h.log, err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, map[string]any{"properties": scores})
}
