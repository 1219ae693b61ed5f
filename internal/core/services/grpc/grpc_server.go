package grpc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// DefaultPoll is how often radio liveness is sampled.
const DefaultPoll = time.Second

// RadioLookup reports the radios the pipeline currently has up.
type RadioLookup interface {
	Radio(role domain.Role) (domain.RadioRecord, bool)
}

// ServiceName is the health service name of a radio role.
func ServiceName(role domain.Role) string {
	return "radio." + string(role)
}

// HealthServer publishes sensor liveness over the standard gRPC health
// protocol. The overall service ("") is SERVING while the primary radio is
// up; each radio has its own service name.
type HealthServer struct {
	health *health.Server
	server *grpc.Server
	logger *slog.Logger

	mu    sync.Mutex
	state map[domain.Role]bool
}

// NewHealthServer registers the health service on a fresh grpc.Server. All
// services start NOT_SERVING.
func NewHealthServer(logger *slog.Logger) *HealthServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HealthServer{
		health: health.NewServer(),
		server: grpc.NewServer(),
		logger: logger.With("component", "grpc"),
		state:  make(map[domain.Role]bool),
	}
	healthpb.RegisterHealthServer(s.server, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	for _, role := range []domain.Role{domain.RolePrimary, domain.RoleSecondary} {
		s.health.SetServingStatus(ServiceName(role), healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return s
}

// Server returns the underlying grpc.Server.
func (s *HealthServer) Server() *grpc.Server { return s.server }

// SetRadio records whether the radio with role is up.
func (s *HealthServer) SetRadio(role domain.Role, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.state[role]; ok && prev == up {
		return
	}
	s.state[role] = up

	status := healthpb.HealthCheckResponse_NOT_SERVING
	if up {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(ServiceName(role), status)
	if role == domain.RolePrimary {
		s.health.SetServingStatus("", status)
	}
	s.logger.Info("Radio health changed", "radio", string(role), "status", status.String())
}

// Track samples radios every interval until ctx is cancelled.
func (s *HealthServer) Track(ctx context.Context, radios RadioLookup, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPoll
	}
	sample := func() {
		for _, role := range []domain.Role{domain.RolePrimary, domain.RoleSecondary} {
			_, up := radios.Radio(role)
			s.SetRadio(role, up)
		}
	}
	sample()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample()
		}
	}
}

// Serve listens on addr until ctx is cancelled. Shutdown marks every
// service NOT_SERVING before stopping.
func (s *HealthServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener until ctx is cancelled.
func (s *HealthServer) ServeListener(ctx context.Context, lis net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		s.health.Shutdown()
		s.server.GracefulStop()
	})
	defer stop()

	s.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}
