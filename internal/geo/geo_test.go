package geo

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// mockSink implements only Location; other sink calls panic.
type mockSink struct {
	ports.Sink
	mock.Mock
}

func (m *mockSink) Location(ctx context.Context, session string, fix domain.Location) error {
	return m.Called(session, fix).Error(0)
}

type fatalErr struct{}

func (fatalErr) Error() string { return "database gone" }
func (fatalErr) IsFatal() bool { return true }

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(40.4168, -3.7038, 650)
	fix, err := p.GetLocation()
	require.NoError(t, err)
	assert.Equal(t, 40.4168, fix.Latitude)
	assert.Equal(t, -3.7038, fix.Longitude)
	assert.Equal(t, 650.0, fix.Altitude)
	assert.Equal(t, "static", fix.Source)
	assert.WithinDuration(t, time.Now(), fix.TS, time.Second)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		ok       bool
	}{
		{"origin", 0, 0, true},
		{"corners", -90, 180, true},
		{"lat too high", 90.5, 0, false},
		{"lon too low", 0, -181, false},
		{"nan", math.NaN(), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(domain.Location{Latitude: tt.lat, Longitude: tt.lon})
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidFix)
			}
		})
	}
}

func TestReporter_Report(t *testing.T) {
	sink := new(mockSink)
	sink.On("Location", "sess-1", mock.MatchedBy(func(fix domain.Location) bool {
		return fix.Latitude == 1.5 && fix.Longitude == 2.5
	})).Return(nil).Once()

	r := NewReporter(NewStaticProvider(1.5, 2.5, 0), sink, "sess-1", 0, nil)
	require.NoError(t, r.Run(context.Background()))
	sink.AssertExpectations(t)
}

func TestReporter_InvalidFixSkipped(t *testing.T) {
	sink := new(mockSink)
	r := NewReporter(NewStaticProvider(100, 0, 0), sink, "sess-1", 0, nil)
	require.NoError(t, r.Report(context.Background()))
	sink.AssertNotCalled(t, "Location", mock.Anything, mock.Anything)
}

func TestReporter_SinkErrors(t *testing.T) {
	sink := new(mockSink)
	sink.On("Location", mock.Anything, mock.Anything).Return(errors.New("busy")).Once()
	r := NewReporter(NewStaticProvider(1, 1, 0), sink, "s", 0, nil)
	assert.NoError(t, r.Report(context.Background()), "recoverable errors are logged")

	sink.On("Location", mock.Anything, mock.Anything).Return(fatalErr{}).Once()
	assert.ErrorIs(t, r.Report(context.Background()), fatalErr{})
}

func TestReporter_Periodic(t *testing.T) {
	var reports atomic.Int32
	sink := new(mockSink)
	sink.On("Location", "s", mock.Anything).Return(nil).Run(func(mock.Arguments) { reports.Add(1) })
	r := NewReporter(NewStaticProvider(1, 1, 0), sink, "s", 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		return reports.Load() >= 3
	}, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
