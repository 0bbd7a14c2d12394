package influence

import (
	"errors"
	"fmt"
	"slices"

	"github.com/gilchrisn/influence-seeding/pkg/partition"
)

// ErrScheduleMismatch means the spans handed to a worker do not fit the
// schedule or graph being propagated.
var ErrScheduleMismatch = errors.New("schedule mismatch")

// LevelPlan lists one level's nodes grouped by component: component ids
// ascending, node ids ascending within a component. Component c of the
// level occupies Nodes[Bounds[c]:Bounds[c+1]].
type LevelPlan struct {
	Level  int
	Nodes  []int
	Bounds []int
}

// Schedule is the propagation order derived from a partition.
type Schedule struct {
	N      int
	Levels []LevelPlan
}

// Span is the half-open range of a LevelPlan's Nodes owned by one worker.
type Span struct {
	Lo int
	Hi int
}

// Len returns the number of nodes in the span.
func (s Span) Len() int { return s.Hi - s.Lo }

// NewSchedule groups the partition's components by level.
func NewSchedule(part *partition.Result) *Schedule {
	s := &Schedule{
		N:      len(part.Component),
		Levels: make([]LevelPlan, part.NumLevels()),
	}
	for l := range s.Levels {
		s.Levels[l] = LevelPlan{Level: l, Bounds: []int{0}}
	}
	for c := 0; c < part.NumComponents; c++ {
		lp := &s.Levels[part.ComponentLevel[c]]
		lp.Nodes = append(lp.Nodes, part.Members[c]...)
		lp.Bounds = append(lp.Bounds, len(lp.Nodes))
	}
	return s
}

// Assign splits every level among size workers. Worker r receives
// result[r][l], a span of level l that starts and ends on component
// boundaries, so a component is never shared between workers. Cuts are
// placed at the first component boundary at or after r*len/size, which
// balances node counts as far as component sizes allow. Spans may be empty.
func (s *Schedule) Assign(size int) ([][]Span, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: %d workers", ErrScheduleMismatch, size)
	}
	spans := make([][]Span, size)
	for r := range spans {
		spans[r] = make([]Span, len(s.Levels))
	}

	for l, lp := range s.Levels {
		total := len(lp.Nodes)
		b := 0
		lo := 0
		for r := 0; r < size; r++ {
			hi := total
			if r < size-1 {
				target := (r + 1) * total / size
				for b < len(lp.Bounds)-1 && lp.Bounds[b] < target {
					b++
				}
				hi = max(lo, lp.Bounds[b])
			}
			spans[r][l] = Span{Lo: lo, Hi: hi}
			lo = hi
		}
	}
	return spans, nil
}

// checkSpans verifies that spans covers every level of s and that each span
// lies on component boundaries.
func (s *Schedule) checkSpans(spans []Span) error {
	if len(spans) != len(s.Levels) {
		return fmt.Errorf("%w: %d spans for %d levels", ErrScheduleMismatch, len(spans), len(s.Levels))
	}
	for l, sp := range spans {
		lp := s.Levels[l]
		if sp.Lo < 0 || sp.Hi < sp.Lo || sp.Hi > len(lp.Nodes) {
			return fmt.Errorf("%w: level %d span [%d,%d) of %d nodes", ErrScheduleMismatch, l, sp.Lo, sp.Hi, len(lp.Nodes))
		}
		_, loOK := slices.BinarySearch(lp.Bounds, sp.Lo)
		_, hiOK := slices.BinarySearch(lp.Bounds, sp.Hi)
		if !loOK || !hiOK {
			return fmt.Errorf("%w: level %d span [%d,%d) splits a component", ErrScheduleMismatch, l, sp.Lo, sp.Hi)
		}
	}
	return nil
}
