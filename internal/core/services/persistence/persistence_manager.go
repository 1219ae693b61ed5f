package persistence

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
	"github.com/lcalzada-xor/wsensor/internal/core/ports"
	"github.com/lcalzada-xor/wsensor/internal/telemetry"
)

const (
	DefaultBatchSize = 100
	DefaultInterval  = 2 * time.Second
	flushTimeout     = 10 * time.Second
)

// PersistenceManager batches decoded frames in front of the sink.
type PersistenceManager struct {
	sink      ports.Sink
	frames    chan domain.FrameRecord
	batchSize int
	interval  time.Duration
	enabled   atomic.Bool
	logger    *slog.Logger

	dropped atomic.Uint64
	written atomic.Uint64

	mu    sync.Mutex
	fatal error
	done  chan struct{}
}

// NewPersistenceManager creates a new manager.
func NewPersistenceManager(sink ports.Sink, bufferSize int, logger *slog.Logger) *PersistenceManager {
	if logger == nil {
		logger = slog.Default()
	}
	p := &PersistenceManager{
		sink:      sink,
		frames:    make(chan domain.FrameRecord, bufferSize),
		batchSize: DefaultBatchSize,
		interval:  DefaultInterval,
		logger:    logger.With("component", "persistence"),
		done:      make(chan struct{}),
	}
	p.enabled.Store(true)
	return p
}

// WithBatch overrides the batch size and flush interval.
func (p *PersistenceManager) WithBatch(size int, interval time.Duration) *PersistenceManager {
	if size > 0 {
		p.batchSize = size
	}
	if interval > 0 {
		p.interval = interval
	}
	return p
}

// Submit queues a frame without blocking. It reports false when the frame
// was dropped.
func (p *PersistenceManager) Submit(rec domain.FrameRecord) bool {
	if !p.enabled.Load() {
		return true
	}
	select {
	case p.frames <- rec:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// IsEnabled returns the current persistence status.
func (p *PersistenceManager) IsEnabled() bool { return p.enabled.Load() }

// SetEnabled toggles persistence. Disabled managers accept and discard
// frames.
func (p *PersistenceManager) SetEnabled(enabled bool) { p.enabled.Store(enabled) }

// Dropped returns how many frames were rejected on a full queue.
func (p *PersistenceManager) Dropped() uint64 { return p.dropped.Load() }

// Written returns how many frames the sink accepted.
func (p *PersistenceManager) Written() uint64 { return p.written.Load() }

// Err returns the fatal sink error that stopped the manager, if any.
func (p *PersistenceManager) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fatal
}

// Done is closed once the loop started by Start has flushed and exited.
func (p *PersistenceManager) Done() <-chan struct{} { return p.done }

// Start begins the persistence loop. Cancelling ctx flushes what is
// buffered; a fatal sink error stops the loop early and is reported by Err.
func (p *PersistenceManager) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	buffer := make([]domain.FrameRecord, 0, p.batchSize)

	go func() {
		defer close(p.done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				buffer = p.drainQueue(buffer)
				p.flushBuffer(buffer)
				return
			case rec := <-p.frames:
				buffer = append(buffer, rec)
				if len(buffer) >= p.batchSize {
					if !p.flushBuffer(buffer) {
						return
					}
					buffer = buffer[:0]
				}
			case <-ticker.C:
				if len(buffer) > 0 {
					if !p.flushBuffer(buffer) {
						return
					}
					buffer = buffer[:0]
				}
			}
		}
	}()
}

func (p *PersistenceManager) drainQueue(buffer []domain.FrameRecord) []domain.FrameRecord {
	for {
		select {
		case rec := <-p.frames:
			buffer = append(buffer, rec)
		default:
			return buffer
		}
	}
}

// flushBuffer writes one batch and reports whether the loop may continue.
func (p *PersistenceManager) flushBuffer(buffer []domain.FrameRecord) bool {
	if len(buffer) == 0 || p.sink == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	ctx, span := telemetry.Tracer().Start(ctx, "persistence.flush")
	span.SetAttributes(attribute.Int("frames", len(buffer)))
	defer span.End()

	err := p.sink.Frames(ctx, buffer)
	if err == nil {
		p.written.Add(uint64(len(buffer)))
		return true
	}

	span.RecordError(err)
	telemetry.SinkErrors.WithLabelValues("frames").Inc()
	if ports.IsFatal(err) {
		p.logger.Error("Sink failed, stopping persistence", "error", err)
		p.mu.Lock()
		p.fatal = err
		p.mu.Unlock()
		return false
	}
	p.logger.Warn("Failed to batch save frames", "frames", len(buffer), "error", err)
	return true
}
