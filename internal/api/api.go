// Package api implements the operator-facing HTTP surface: a thin go-chi
// router over the composition root's collaborators. Every handler is a
// direct caller into manager/risk/logger/notify methods and carries no
// business logic of its own.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cherryquant/orchestrator/internal/logger"
	"github.com/cherryquant/orchestrator/internal/models"
	"github.com/cherryquant/orchestrator/internal/notify"
	"github.com/cherryquant/orchestrator/internal/resilience"
)

// AgentManager is the narrow manager surface the router needs.
type AgentManager interface {
	Snapshot() []models.AgentSnapshot
}

// RiskManager is the narrow risk surface the router needs.
type RiskManager interface {
	View() models.PortfolioView
}

// Deps collects every collaborator the HTTP surface calls into. All fields
// except Breakers are required; a nil Breakers is served as an empty
// circuit-breaker list.
type Deps struct {
	Manager  AgentManager
	Risk     RiskManager
	Logger   *logger.DecisionLogger
	Alerts   *notify.AlertHub
	Health   *resilience.HealthMonitor
	Breakers *resilience.CircuitBreakerRegistry
	Registry *prometheus.Registry
}

// NewRouter builds the HTTP surface: health checks, Prometheus metrics,
// agent/portfolio/circuit-breaker status, and live decision/alert feeds.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	r.Get("/healthz", d.Health.HealthHTTPHandler())
	r.Get("/healthz/live", d.Health.LivenessHTTPHandler())
	r.Get("/healthz/ready", d.Health.ReadinessHTTPHandler())

	r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	r.Get("/agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Manager.Snapshot())
	})

	r.Get("/portfolio", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, d.Risk.View())
	})

	r.Get("/circuitbreakers", func(w http.ResponseWriter, r *http.Request) {
		if d.Breakers == nil {
			writeJSON(w, []resilience.CircuitBreakerStats{})
			return
		}
		writeJSON(w, d.Breakers.AllStats())
	})

	r.Get("/decisions/stream", d.streamDecisions)
	r.Get("/alerts/stream", d.streamAlerts)

	return r
}

// streamDecisions subscribes the caller to every agent's decision feed and
// relays each record as a newline-delimited JSON stream until the client
// disconnects.
func (d Deps) streamDecisions(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	agentID := r.URL.Query().Get("agent_id")
	ch := d.Logger.Hub().Subscribe(agentID)
	defer d.Logger.Hub().Unsubscribe(agentID, ch)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case record, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(record); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			_, _ = w.Write([]byte("\n"))
			flusher.Flush()
		}
	}
}

// streamAlerts relays every notification routed through the app's notifier
// as a newline-delimited JSON stream until the client disconnects.
func (d Deps) streamAlerts(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := d.Alerts.Subscribe()
	defer d.Alerts.Unsubscribe(ch)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	for {
		select {
		case <-r.Context().Done():
			return
		case n, open := <-ch:
			if !open {
				return
			}
			if err := enc.Encode(n); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
