// Package ring implements the per-radio frame arena shared between a radio
// capture (single writer) and the decode workers (many readers).
package ring

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

const (
	// MaxFrameSize fits the largest VHT MPDU plus a generous radiotap header.
	MaxFrameSize = 12288
	// DefaultSlots is the slot count used when none is configured.
	DefaultSlots = 512
)

var (
	// ErrStale is returned when a slot was overwritten before or while it
	// was copied out.
	ErrStale = errors.New("ring slot overwritten")
	// ErrBadSlot is returned for descriptors that do not address this ring.
	ErrBadSlot = errors.New("invalid ring slot")
)

// Ring is a fixed arena of slots reused round-robin. Slots are not locked:
// each carries a sequence number that is cleared while the writer fills it,
// so readers detect an overwrite by comparing it before and after copying.
type Ring struct {
	owner    string
	slotSize int
	buf      []byte
	seqs     []atomic.Uint64

	// next is touched only by the owning capture; the counters are read
	// from other goroutines
	next    int
	seq     atomic.Uint64
	clipped atomic.Uint64
}

// New allocates a ring of slots*slotSize bytes for the radio identified by
// owner.
func New(owner string, slots, slotSize int) (*Ring, error) {
	if slots <= 0 || slotSize <= 0 {
		return nil, fmt.Errorf("ring: invalid geometry %dx%d", slots, slotSize)
	}
	return &Ring{
		owner:    owner,
		slotSize: slotSize,
		buf:      make([]byte, slots*slotSize),
		seqs:     make([]atomic.Uint64, slots),
	}, nil
}

func (r *Ring) Owner() string { return r.owner }
func (r *Ring) Slots() int    { return len(r.seqs) }
func (r *Ring) SlotSize() int { return r.slotSize }

// Written returns how many frames were written since the ring was created.
func (r *Ring) Written() uint64 { return r.seq.Load() }

// Clipped returns how many frames were longer than a slot and cut short.
func (r *Ring) Clipped() uint64 { return r.clipped.Load() }

// Write copies frame into the next slot and returns its descriptor. It must
// only be called by the ring's single writer.
func (r *Ring) Write(frame []byte, ts time.Time) domain.FrameSlot {
	idx := r.next
	r.next = (r.next + 1) % len(r.seqs)

	n := len(frame)
	if n > r.slotSize {
		n = r.slotSize
		r.clipped.Add(1)
	}

	r.seqs[idx].Store(0)
	off := idx * r.slotSize
	copy(r.buf[off:off+n], frame[:n])
	seq := r.seq.Add(1)
	r.seqs[idx].Store(seq)

	return domain.FrameSlot{
		Owner: r.owner,
		Index: idx,
		Len:   n,
		Seq:   seq,
		TS:    ts,
	}
}

// ReadSlot appends the bytes addressed by slot to dst[:0]. The copy is only
// valid when ErrStale is not returned.
func (r *Ring) ReadSlot(slot domain.FrameSlot, dst []byte) ([]byte, error) {
	if slot.Index < 0 || slot.Index >= len(r.seqs) || slot.Len < 0 || slot.Len > r.slotSize || slot.Seq == 0 {
		return dst[:0], fmt.Errorf("%w: index %d len %d", ErrBadSlot, slot.Index, slot.Len)
	}
	if r.seqs[slot.Index].Load() != slot.Seq {
		return dst[:0], ErrStale
	}
	off := slot.Index * r.slotSize
	dst = append(dst[:0], r.buf[off:off+slot.Len]...)
	if r.seqs[slot.Index].Load() != slot.Seq {
		return dst[:0], ErrStale
	}
	return dst, nil
}
