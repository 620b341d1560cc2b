package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/rickgao/langlink/internal/connection"
	"github.com/rickgao/langlink/internal/metrics"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status             string                  `json:"status"`
	State              string                  `json:"state"`
	RetryCount         int                     `json:"retry_count"`
	Errors             []string                `json:"errors"`
	NetworkMissing     bool                    `json:"network_missing"`
	DisconnectedByUser bool                    `json:"disconnected_by_user"`
	Stats              connection.ManagerStats `json:"stats"`
}

// createHandler creates the HTTP handler for health, metrics and control endpoints.
func createHandler(mgr connection.Manager, gatherer prometheus.Gatherer, metricsPath string, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		state := mgr.State()

		health := healthResponse{
			Status:             "healthy",
			State:              state.ConnPath(),
			RetryCount:         state.Ctx.RetryCount,
			Errors:             state.Errors(),
			NetworkMissing:     state.NetworkMissing(),
			DisconnectedByUser: state.DisconnectedByUser(),
			Stats:              mgr.Stats(),
		}

		w.Header().Set("Content-Type", "application/json")
		if !state.Opened() {
			health.Status = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			logger.Debug("write health response failed", "error", err)
		}
	})

	mux.Handle(metricsPath, metrics.Handler(gatherer))

	mux.HandleFunc("/connect", postOnly(func(w http.ResponseWriter, r *http.Request) {
		mgr.Connect()
		w.WriteHeader(http.StatusAccepted)
	}))

	mux.HandleFunc("/disconnect", postOnly(func(w http.ResponseWriter, r *http.Request) {
		mgr.Disconnect()
		w.WriteHeader(http.StatusAccepted)
	}))

	mux.HandleFunc("/reconnect", postOnly(func(w http.ResponseWriter, r *http.Request) {
		mgr.ForceReconnect()
		w.WriteHeader(http.StatusAccepted)
	}))

	mux.HandleFunc("/visibility", postOnly(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("state") {
		case "visible":
			mgr.SetTabVisible(true)
		case "hidden":
			mgr.SetTabVisible(false)
		default:
			http.Error(w, "state must be visible or hidden", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))

	mux.HandleFunc("/keepalive", postOnly(func(w http.ResponseWriter, r *http.Request) {
		on, err := strconv.ParseBool(r.URL.Query().Get("on"))
		if err != nil {
			http.Error(w, "on must be true or false", http.StatusBadRequest)
			return
		}
		mgr.SetKeepAlive(on)
		w.WriteHeader(http.StatusAccepted)
	}))

	return mux
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
