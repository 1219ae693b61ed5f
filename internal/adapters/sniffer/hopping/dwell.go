package hopping

import "time"

// DwellParams bounds and drives the per-entry dwell recompute.
type DwellParams struct {
	Min  time.Duration
	Step time.Duration
	High float64 // share of epoch traffic above which dwell grows
	Low  float64 // share below which it shrinks
}

// RecomputeDwell returns the next dwell schedule from this epoch's
// per-entry frame counts. Results stay within [p.Min, original[i]]. With no
// traffic at all the schedule is returned unchanged.
func RecomputeDwell(dwell, original []time.Duration, hist []uint64, p DwellParams) []time.Duration {
	next := make([]time.Duration, len(dwell))
	copy(next, dwell)

	var total uint64
	for _, n := range hist {
		total += n
	}
	if total == 0 {
		return next
	}

	for i := range next {
		if i >= len(hist) || i >= len(original) {
			break
		}
		share := float64(hist[i]) / float64(total)
		switch {
		case share > p.High && next[i] < original[i]:
			next[i] = min(next[i]+p.Step, original[i])
		case share < p.Low && next[i] > p.Min:
			next[i] = max(next[i]-p.Step, p.Min)
		}
	}
	return next
}
