package grpc

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeRadios struct {
	mu sync.Mutex
	up map[domain.Role]bool
}

func (f *fakeRadios) set(role domain.Role, up bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.up[role] = up
}

func (f *fakeRadios) Radio(role domain.Role) (domain.RadioRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.RadioRecord{Role: role}, f.up[role]
}

func startHealth(t *testing.T) (*HealthServer, healthpb.HealthClient, context.CancelFunc) {
	t.Helper()
	s := NewHealthServer(nil)
	lis := bufconn.Listen(1 << 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		conn.Close()
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("health server did not stop")
		}
	})
	return s, healthpb.NewHealthClient(conn), cancel
}

func check(t *testing.T, c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

// serving is safe to call from Eventually conditions.
func serving(c healthpb.HealthClient, service string) healthpb.HealthCheckResponse_ServingStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	resp, err := c.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN
	}
	return resp.Status
}

func TestHealthServer_StartsNotServing(t *testing.T) {
	_, c, _ := startHealth(t)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, "radio.pri"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, "radio.sec"))
}

func TestHealthServer_SetRadio(t *testing.T) {
	s, c, _ := startHealth(t)

	s.SetRadio(domain.RoleSecondary, true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, "radio.sec"))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""), "overall follows the primary only")

	s.SetRadio(domain.RolePrimary, true)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, "radio.pri"))

	s.SetRadio(domain.RolePrimary, false)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, c, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, c, "radio.sec"))
}

func TestHealthServer_Track(t *testing.T) {
	s, c, _ := startHealth(t)
	radios := &fakeRadios{up: map[domain.Role]bool{domain.RolePrimary: true}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Track(ctx, radios, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return serving(c, "") == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 10*time.Millisecond)

	radios.set(domain.RolePrimary, false)
	require.Eventually(t, func() bool {
		return serving(c, "radio.pri") == healthpb.HealthCheckResponse_NOT_SERVING
	}, time.Second, 10*time.Millisecond)
}

func TestServiceName(t *testing.T) {
	assert.Equal(t, "radio.pri", ServiceName(domain.RolePrimary))
	assert.Equal(t, "radio.sec", ServiceName(domain.RoleSecondary))
}
