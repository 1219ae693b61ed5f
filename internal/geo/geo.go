package geo

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
)

// DefaultInterval is how often a fix is reported.
const DefaultInterval = time.Minute

// ErrInvalidFix is returned for coordinates outside the WGS84 ranges.
var ErrInvalidFix = errors.New("invalid location fix")

// Provider defines the interface for obtaining the current location.
type Provider interface {
	GetLocation() (domain.Location, error)
}

// StaticProvider implements Provider with a fixed location.
type StaticProvider struct {
	Lat float64
	Lng float64
	Alt float64
}

// NewStaticProvider creates a provider that always returns the same location.
func NewStaticProvider(lat, lng, alt float64) *StaticProvider {
	return &StaticProvider{Lat: lat, Lng: lng, Alt: alt}
}

// GetLocation returns the fixed location stamped with the current time.
func (s *StaticProvider) GetLocation() (domain.Location, error) {
	fix := domain.Location{
		Latitude:  s.Lat,
		Longitude: s.Lng,
		Altitude:  s.Alt,
		Source:    "static",
		TS:        time.Now(),
	}
	return fix, Validate(fix)
}

// Validate rejects coordinates outside [-90,90] x [-180,180].
func Validate(fix domain.Location) error {
	if math.IsNaN(fix.Latitude) || math.IsNaN(fix.Longitude) ||
		math.Abs(fix.Latitude) > 90 || math.Abs(fix.Longitude) > 180 {
		return ErrInvalidFix
	}
	return nil
}

// Reporter submits location fixes for a session to the sink.
type Reporter struct {
	provider Provider
	sink     ports.Sink
	session  string
	interval time.Duration
	logger   *slog.Logger
}

// NewReporter builds a reporter. interval <= 0 reports once only.
func NewReporter(provider Provider, sink ports.Sink, session string, interval time.Duration, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		provider: provider,
		sink:     sink,
		session:  session,
		interval: interval,
		logger:   logger.With("component", "geo"),
	}
}

// Report submits one fix. A fatal sink error is returned; anything else is
// logged.
func (r *Reporter) Report(ctx context.Context) error {
	fix, err := r.provider.GetLocation()
	if err != nil {
		r.logger.Warn("No usable location fix", "error", err)
		return nil
	}
	if err := r.sink.Location(ctx, r.session, fix); err != nil {
		if ports.IsFatal(err) {
			return err
		}
		r.logger.Warn("Failed to store location", "error", err)
	}
	return nil
}

// Run reports immediately and then every interval until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	if err := r.Report(ctx); err != nil {
		return err
	}
	if r.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := r.Report(ctx); err != nil {
				return err
			}
		}
	}
}
