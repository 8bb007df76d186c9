// Package api provides the read-only HTTP API for observing a run.
// Every endpoint is GET; nothing here can change simulation state.
package api

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/wastesim/internal/agents"
	"github.com/talgya/wastesim/internal/engine"
	"github.com/talgya/wastesim/internal/persistence"
)

// SnapshotSchema is the JSON Schema of /api/v1/snapshot responses and
// stream frames.
//
//go:embed snapshot.schema.json
var SnapshotSchema string

// Server serves run state over HTTP.
type Server struct {
	Model *engine.Model
	Eng   *engine.Engine
	DB    *persistence.DB // Optional; history falls back to the model
	Hub   *Hub            // Optional; streaming disabled when nil
	Port  int

	http *http.Server
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	historyLimiter := NewRateLimiter(120, time.Minute)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", getOnly(s.handleStatus))
	mux.HandleFunc("/api/v1/snapshot", getOnly(s.handleSnapshot))
	mux.HandleFunc("/api/v1/log", getOnly(s.handleLog))
	mux.HandleFunc("/api/v1/history", getOnly(RateLimitMiddleware(historyLimiter, s.handleHistory)))
	mux.HandleFunc("/api/v1/schema/snapshot", getOnly(s.handleSchema))
	if s.Hub != nil {
		mux.HandleFunc("/api/v1/stream", getOnly(s.Hub.ServeWS(s.Model.Snapshot)))
	}
	return corsMiddleware(mux)
}

// Start begins serving the HTTP API in a goroutine.
func (s *Server) Start() {
	addr := fmt.Sprintf(":%d", s.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "stream", s.Hub != nil)

	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.Hub != nil {
		s.Hub.Close()
	}
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// corsMiddleware allows GET from any origin listed in CORS_ORIGINS
// (comma-separated) plus local dev servers.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
		"http://localhost:8521": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "read-only API", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Model.Snapshot()
	status := map[string]any{
		"name":      "E-Waste Recycling Simulation",
		"run_id":    snap.RunID,
		"seed":      s.Model.Seed,
		"step":      snap.Step,
		"max_steps": snap.MaxSteps,
		"running":   snap.Running,
		"state":     engine.StateName(s.Model.State()),
		"metrics":   snap.Metrics,
		"series":    engine.SeriesLabels,
		"agents": map[string]int{
			agents.RoleName(agents.RoleCollector): s.Model.Params.Collectors,
			agents.RoleName(agents.RoleSorter):    s.Model.Params.Sorters,
			agents.RoleName(agents.RoleRecycler):  s.Model.Params.Recyclers,
		},
	}
	if s.Eng != nil {
		status["engine_running"] = s.Eng.Running()
		status["tick_interval"] = s.Eng.Interval.String()
	}
	if s.Hub != nil {
		status["observers"] = s.Hub.Clients()
	}
	writeJSON(w, status)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Model.Snapshot())
}

// handleLog returns journal records. ?summary=1 keeps only summaries and
// stop notices; ?limit=N keeps the last N.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var events []engine.Event
	if r.URL.Query().Get("summary") == "1" {
		events = s.Model.Journal().Summaries()
	} else {
		events = s.Model.Journal().Events()
	}
	if events == nil {
		events = []engine.Event{}
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	writeJSON(w, events)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var rows []engine.Metrics
	if s.DB != nil {
		rows, err = s.DB.StatsHistory(limit)
		if err != nil {
			slog.Error("history query failed", "error", err)
			http.Error(w, "history unavailable", http.StatusInternalServerError)
			return
		}
	} else {
		rows = s.Model.History()
		if limit > 0 && len(rows) > limit {
			rows = rows[len(rows)-limit:]
		}
	}
	if rows == nil {
		rows = []engine.Metrics{}
	}
	writeJSON(w, rows)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	_, _ = w.Write([]byte(SnapshotSchema))
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
