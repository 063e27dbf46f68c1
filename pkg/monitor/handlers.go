package monitor

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// listElementsHandler returns a handler that lists all monitored elements
// with their rolling stats.
func listElementsHandler(store *TelemetryStore, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.ListStats(cfg.SoakWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list elements: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"elements": stats})
	}
}

// elementStatsHandler returns a handler that retrieves stats for one
// element, including its deduplicated access sources.
func elementStatsHandler(store *TelemetryStore, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		stats, err := store.StatsFor(name, cfg.SoakWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load stats: %v", err))
			return
		}
		if stats == nil {
			writeError(w, http.StatusNotFound, fmt.Sprintf("element %s is not monitored", name))
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// elementTrendHandler returns a handler serving per-day access counts.
// ?days=N controls the window, default 14.
func elementTrendHandler(store *TelemetryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		days := 0
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "days must be a positive integer")
				return
			}
			days = n
		}
		trend, err := store.TrendDaily(name, days)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to load trend: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"element": name, "trend": trend})
	}
}

// removalCandidatesHandler returns a handler listing elements quiet for the
// full soak window.
func removalCandidatesHandler(store *TelemetryStore, cfg Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		candidates, err := store.RemovalCandidates(cfg.SoakWindow)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list removal candidates: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"soakWindow": cfg.SoakWindow.String(),
			"candidates": candidates,
		})
	}
}

// eventsHandler returns a handler serving raw access events.
// ?element= filters, ?limit= caps, ?format=csv|json selects the encoding.
func eventsHandler(store *TelemetryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		element := r.URL.Query().Get("element")
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		switch format := r.URL.Query().Get("format"); format {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			w.Header().Set("Content-Disposition", `attachment; filename="access_events.csv"`)
			if err := store.ExportCSV(w, element, limit); err != nil {
				// Header already sent; nothing sane left to do but log-free abort.
				return
			}
		case "", "json":
			w.Header().Set("Content-Type", "application/json")
			if err := store.ExportJSON(w, element, limit); err != nil {
				return
			}
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
		}
	}
}

// alertsHandler returns a handler listing raised alerts, newest first.
func alertsHandler(store *TelemetryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}
		alerts, err := store.Alerts(limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, fmt.Sprintf("failed to list alerts: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
	}
}

// healthHandler reports liveness plus the dropped-event counter.
func healthHandler(monitor *AccessMonitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var dropped int64
		if monitor != nil {
			dropped = monitor.Dropped()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":        "ok",
			"droppedEvents": dropped,
		})
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
