package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/adapters/web/websocket"
	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

const shutdownTimeout = 5 * time.Second

// StatusSource exposes the live pipeline state.
type StatusSource interface {
	Session() string
	Workers() int
	Backlog() int
	Radios() []domain.RadioRecord
	Radio(role domain.Role) (domain.RadioRecord, bool)
}

// PersistenceControl exposes the frame writer's counters and switch.
type PersistenceControl interface {
	IsEnabled() bool
	SetEnabled(enabled bool)
	Written() uint64
	Dropped() uint64
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Session     string    `json:"session"`
	Uptime      string    `json:"uptime"`
	Workers     int       `json:"workers"`
	Backlog     int       `json:"backlog"`
	Radios      int       `json:"radios"`
	Persistence bool      `json:"persistence"`
	Written     uint64    `json:"frames_written"`
	Dropped     uint64    `json:"frames_dropped"`
	WSClients   int       `json:"ws_clients"`
	Time        time.Time `json:"time"`
}

// Server serves the status API, metrics and the live event feed.
type Server struct {
	Addr        string
	Status      StatusSource
	Persistence PersistenceControl
	WSManager   *websocket.WSManager
	// TokenHash is the bcrypt hash of the bearer token; empty disables auth.
	TokenHash []byte
	// RateLimit is the per-client request budget per minute, 0 for none.
	RateLimit int

	started time.Time
	logger  *slog.Logger
	srv     *http.Server
}

// NewServer creates a new web server. persistence may be nil.
func NewServer(addr string, status StatusSource, persistence PersistenceControl, ws *websocket.WSManager, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if ws == nil {
		ws = websocket.NewWSManager(logger)
	}
	s := &Server{
		Addr:        addr,
		Status:      status,
		Persistence: persistence,
		WSManager:   ws,
		started:     time.Now(),
		logger:      logger.With("component", "web"),
	}
	if ws.Snapshot == nil {
		ws.Snapshot = func() any { return s.snapshot() }
	}
	return s
}

// Handler returns the instrumented router.
func (s *Server) Handler() http.Handler {
	return SetupRoutes(s)
}

// Run starts the event broadcaster and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.WSManager.Start(ctx)

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("Web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("Web server shutdown error", "error", err)
		}
	}()

	s.logger.Info("Web server listening", "addr", s.Addr)
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) snapshot() StatusResponse {
	resp := StatusResponse{
		Session:   s.Status.Session(),
		Uptime:    time.Since(s.started).Truncate(time.Second).String(),
		Workers:   s.Status.Workers(),
		Backlog:   s.Status.Backlog(),
		Radios:    len(s.Status.Radios()),
		WSClients: s.WSManager.Clients(),
		Time:      time.Now(),
	}
	if s.Persistence != nil {
		resp.Persistence = s.Persistence.IsEnabled()
		resp.Written = s.Persistence.Written()
		resp.Dropped = s.Persistence.Dropped()
	}
	return resp
}
