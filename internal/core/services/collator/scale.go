package collator

// Decision is the output of one scaling evaluation.
type Decision int

const (
	Hold Decision = iota
	Grow
	Shrink
)

func (d Decision) String() string {
	switch d {
	case Grow:
		return "grow"
	case Shrink:
		return "shrink"
	}
	return "hold"
}

// Scale decides whether the decode pool should change size. The pool grows
// when backlog per worker exceeds threshold and shrinks when it falls below
// half of it, never leaving [minWorkers, maxWorkers].
func Scale(backlog, workers, minWorkers, maxWorkers int, threshold float64) Decision {
	if workers < minWorkers {
		return Grow
	}
	if workers > maxWorkers {
		return Shrink
	}
	if workers == 0 {
		if backlog > 0 && workers < maxWorkers {
			return Grow
		}
		return Hold
	}

	ratio := float64(backlog) / float64(workers)
	switch {
	case ratio > threshold && workers < maxWorkers:
		return Grow
	case ratio < threshold/2 && workers > minWorkers:
		return Shrink
	}
	return Hold
}
