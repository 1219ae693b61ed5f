// Package pcapfile writes raw radiotap frames to size-rolled pcap files.
package pcapfile

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

const (
	// DefaultMaxBytes is the roll size used when none is configured.
	DefaultMaxBytes = 64 << 20

	snaplen       = 65536
	fileHeaderLen = 24
	recordHdrLen  = 16
)

// ErrClosed is returned by WriteFrame once the writer has been closed.
var ErrClosed = errors.New("pcap writer closed")

// RollingWriter appends frames to a pcap file and starts a new one once
// the current file would grow past maxBytes. It is safe for concurrent
// use by several decode workers.
type RollingWriter struct {
	dir      string
	prefix   string
	maxBytes int64
	logger   *slog.Logger

	mu     sync.Mutex
	file   *os.File
	w      *pcapgo.Writer
	size   int64
	index  int
	paths  []string
	closed bool
}

// NewRollingWriter creates dir if needed. No file is opened until the
// first frame.
func NewRollingWriter(dir, prefix string, maxBytes int64, logger *slog.Logger) (*RollingWriter, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("pcap dir: %w", err)
	}
	if maxBytes <= fileHeaderLen+recordHdrLen {
		maxBytes = DefaultMaxBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RollingWriter{
		dir:      dir,
		prefix:   prefix,
		maxBytes: maxBytes,
		logger:   logger.With("component", "pcapfile"),
	}, nil
}

// WriteFrame appends one frame captured at ts.
func (r *RollingWriter) WriteFrame(ts time.Time, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}

	need := int64(recordHdrLen + len(data))
	if r.w == nil || (r.size+need > r.maxBytes && r.size > fileHeaderLen) {
		if err := r.roll(ts); err != nil {
			return err
		}
	}
	ci := gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
	if err := r.w.WritePacket(ci, data); err != nil {
		return fmt.Errorf("write pcap record: %w", err)
	}
	r.size += need
	return nil
}

// Files returns the paths written so far, oldest first.
func (r *RollingWriter) Files() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

// Close closes the current file. Later writes fail with ErrClosed.
func (r *RollingWriter) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return r.closeFile()
}

func (r *RollingWriter) roll(ts time.Time) error {
	if err := r.closeFile(); err != nil {
		r.logger.Warn("Failed to close pcap file", "error", err)
	}
	r.index++
	name := fmt.Sprintf("%s-%s-%04d.pcap", r.prefix, ts.UTC().Format("20060102-150405"), r.index)
	path := filepath.Join(r.dir, name)

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create pcap file: %w", err)
	}
	w := pcapgo.NewWriter(f)
	if err := w.WriteFileHeader(snaplen, layers.LinkTypeIEEE80211Radio); err != nil {
		f.Close()
		return fmt.Errorf("write pcap header: %w", err)
	}

	r.file, r.w, r.size = f, w, fileHeaderLen
	r.paths = append(r.paths, path)
	r.logger.Info("Opened capture file", "path", path)
	return nil
}

func (r *RollingWriter) closeFile() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file, r.w = nil, nil
	return err
}
