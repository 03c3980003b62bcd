package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/matthewbaird/compliance/internal/activity"
	"github.com/matthewbaird/compliance/internal/compliance"
	"github.com/matthewbaird/compliance/internal/corrective"
)

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Service  *compliance.Service
	Machine  *corrective.Machine
	Repo     corrective.Repository
	Activity activity.Store
	Stream   *StreamHub
	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer
	Log      *zap.Logger
}

// Routes builds the router with every route and middleware registered.
func Routes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Recovery(d.Log))
	r.Use(Logging(d.Log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, d.Log, http.StatusOK, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	ph := NewPropertyHandler(d.Service, d.Machine, d.Log)
	ch := NewCorrectiveHandler(d.Machine, d.Repo, d.Service, d.Log)
	ah := NewActivityHandler(d.Activity, d.Log)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/properties/{propertyID}", func(r chi.Router) {
			r.Post("/issues", ph.IngestIssues)
			r.Get("/score", ph.GetScore)
			r.Get("/units/scores", ph.ListUnitScores)
			r.Get("/units/{unitID}/score", ph.GetUnitScore)
			r.Get("/priorities", ph.GetPriorities)
			r.Get("/ranked", ph.GetRanked)
			r.Get("/stats", ph.GetStats)
			r.Post("/corrective/auto", ph.AutoTrack)
		})
		r.Get("/portfolio/scores", ph.GetPortfolio)

		r.Route("/corrective-issues", func(r chi.Router) {
			r.Post("/", ch.Track)
			r.Get("/", ch.List)
			r.Get("/{id}", ch.Get)
			r.Get("/{id}/activity", ah.HandleGetIssueActivity)
			r.Post("/{id}/work-order", ch.CreateWorkOrder)
			r.Post("/{id}/verify", ch.Verify)
			r.Post("/{id}/close", ch.Close)
		})
		r.Post("/work-orders/{workOrderID}/completed", ch.WorkOrderCompleted)

		r.Get("/activity/entity/{entity_type}/{entity_id}", ah.HandleGetEntityActivity)
		r.Post("/activity/search", ah.HandleSearchActivity)

		if d.Stream != nil {
			r.Get("/stream", d.Stream.ServeHTTP)
		}
	})
	return r
}
