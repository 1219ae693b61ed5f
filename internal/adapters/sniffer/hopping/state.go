package hopping

import (
	"sync/atomic"

	"github.com/lcalzada-xor/wsensor/internal/core/domain"
)

// AtomicState publishes the scanner state to readers outside its goroutine.
type AtomicState struct {
	v atomic.Int32
}

func (a *AtomicState) Set(s domain.ScanState) {
	a.v.Store(int32(s))
}

func (a *AtomicState) Get() domain.ScanState {
	return domain.ScanState(a.v.Load())
}
