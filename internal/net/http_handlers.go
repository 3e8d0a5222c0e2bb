// Package net assembles the HTTP surface: sensor intake, consumer feed,
// target region management, and diagnostics.
package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"strconv"

	"sensorbridge/server"
	"sensorbridge/server/internal/journal"
	"sensorbridge/server/internal/net/ws"
	"sensorbridge/server/internal/targets"
)

type HTTPHandlerConfig struct {
	Logger *log.Logger
	Intake ws.HandlerConfig
}

// NewHTTPHandler builds the full route table around one session.
func NewHTTPHandler(session *server.Session, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Intake.Logger == nil {
		cfg.Intake.Logger = logger
	}

	intake := ws.NewHandler(session, cfg.Intake)
	feed := ws.NewFeedHandler(session, logger)

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/healthz", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, session.Diagnostics())
	})

	mux.HandleFunc("/journal", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if r.Method != nethttp.MethodGet {
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
			return
		}
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			value, err := strconv.Atoi(raw)
			if err != nil || value <= 0 {
				httpError(w, "invalid limit", nethttp.StatusBadRequest)
				return
			}
			limit = value
		}
		entries, err := session.RecentEvents(limit)
		if err != nil {
			logger.Printf("journal query failed: %v", err)
			httpError(w, "journal query failed", nethttp.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []journal.Entry{}
		}
		writeJSON(w, struct {
			Events []journal.Entry `json:"events"`
		}{Events: entries})
	})

	mux.HandleFunc("/targets", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		registry := session.Targets()
		switch r.Method {
		case nethttp.MethodGet:
			writeJSON(w, struct {
				Targets []targets.Region `json:"targets"`
			}{Targets: registry.List()})
		case nethttp.MethodPost:
			defer r.Body.Close()
			var region targets.Region
			if err := json.NewDecoder(r.Body).Decode(&region); err != nil {
				httpError(w, "invalid payload", nethttp.StatusBadRequest)
				return
			}
			if region.Name == "" || region.Width <= 0 || region.Height <= 0 {
				httpError(w, "region needs a name and positive dimensions", nethttp.StatusBadRequest)
				return
			}
			registry.Add(region)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(nethttp.StatusCreated)
			json.NewEncoder(w).Encode(region)
		case nethttp.MethodDelete:
			name := r.URL.Query().Get("name")
			if name == "" {
				httpError(w, "missing name", nethttp.StatusBadRequest)
				return
			}
			if !registry.Remove(name) {
				httpError(w, "unknown target", nethttp.StatusNotFound)
				return
			}
			w.WriteHeader(nethttp.StatusNoContent)
		default:
			httpError(w, "method not allowed", nethttp.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/ws", intake.Handle)
	mux.HandleFunc("/feed", feed.Handle)

	return mux
}

func writeJSON(w nethttp.ResponseWriter, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		httpError(w, "failed to encode", nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
