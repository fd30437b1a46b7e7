// Package dashboard serves the read-only team health view: a JSON API, a
// websocket feed pushed at a fixed cadence, and a bundled HTML page.
package dashboard

import (
	"context"
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/goswarm/internal/heartbeat"
)

// PushInterval is the websocket update cadence.
const PushInterval = 5 * time.Second

//go:embed dashboard.html
var dashboardHTML []byte

// Record is one timestamped feed entry.
type Record struct {
	Team      heartbeat.TeamHealth     `json:"team"`
	Bots      map[string]heartbeat.Bot `json:"bots"`
	Alerts    []string                 `json:"alerts"`
	Timestamp time.Time                `json:"timestamp"`
}

// Server exposes the dashboard over HTTP.
type Server struct {
	health   *heartbeat.Manager
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer builds a dashboard server over the heartbeat manager.
func NewServer(health *heartbeat.Manager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		health: health,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard binds to localhost; origin checks stay open.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// RegisterRoutes mounts the dashboard endpoints.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /", s.handleIndex)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWS)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(dashboardHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshot())
}

// handleWS streams snapshots until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	ticker := time.NewTicker(PushInterval)
	defer ticker.Stop()

	// First frame immediately, then on cadence.
	if err := conn.WriteJSON(s.snapshot()); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}

func (s *Server) snapshot() Record {
	team := s.health.GetTeamHealth()
	return Record{
		Team:      team,
		Bots:      team.Bots,
		Alerts:    team.Alerts,
		Timestamp: team.Timestamp,
	}
}

// Serve runs the dashboard on addr until the context ends.
func (s *Server) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("dashboard listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
