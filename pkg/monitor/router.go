package monitor

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router serving the read-only monitoring dashboard
// API. alerts listing works against the store; the monitor handle only
// contributes the dropped-event counter.
func NewRouter(store *TelemetryStore, monitor *AccessMonitor, cfg Config) chi.Router {
	r := chi.NewRouter()

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/elements", listElementsHandler(store, cfg))
		r.Get("/elements/{name}/stats", elementStatsHandler(store, cfg))
		r.Get("/elements/{name}/trend", elementTrendHandler(store))
		r.Get("/removal-candidates", removalCandidatesHandler(store, cfg))
		r.Get("/events", eventsHandler(store))
		r.Get("/alerts", alertsHandler(store))
		r.Get("/health", healthHandler(monitor))
	})

	return r
}
