package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

// ============================================================================
// HTTP Server
// ============================================================================
// Serves the action websocket (at "/" for the mirror UI, and "/ws"), the
// Prometheus registry, and a small health document.
// ============================================================================

// healthSource reports listener status for /healthz.
type healthSource interface {
	Status() string
}

type Server struct {
	logger  *slog.Logger
	hub     *Hub
	metrics *Metrics
	health  healthSource

	metricsPath string
}

// NewServer wires the HTTP surface around an already constructed hub.
func NewServer(logger *slog.Logger, hub *Hub, metrics *Metrics, health healthSource, metricsPath string) *Server {
	if metricsPath == "" {
		metricsPath = defaultMetricsPath
	}
	return &Server{
		logger:      logger,
		hub:         hub,
		metrics:     metrics,
		health:      health,
		metricsPath: metricsPath,
	}
}

// Router builds the chi router for the server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/", s.handleWS)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Handle(s.metricsPath, s.metrics.Handler())
	}
	return r
}

var upgrader = websocket.Upgrader{
	// The mirror UI is served from a different origin (vite dev server, kiosk file://).
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleWS upgrades and registers a client. The hub sends "connected" on registration.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "websocket upgrade required", http.StatusUpgradeRequired)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)
	if !s.hub.Register(client) {
		_ = conn.Close()
		return
	}

	// Do not tie the pumps to r.Context(): net/http cancels it when the handler
	// returns. Connection lifetime is owned by the hub and by read/write errors.
	go client.writePump(context.Background())
	go client.readPump(context.Background())
}

type healthResponse struct {
	Status   string `json:"status"`
	Clients  int    `json:"clients"`
	Listener string `json:"listener"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Clients: s.hub.ClientCount()}
	if s.health != nil {
		resp.Listener = s.health.Status()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

// runHTTPServer serves handler on addr and shuts it down gracefully when ctx
// is canceled.
func runHTTPServer(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	logger.Info("websocket server listening", "addr", ln.Addr().String())

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		// Serve returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown: %w", err)
		}
		// Wait for the Serve goroutine to return.
		_ = <-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
