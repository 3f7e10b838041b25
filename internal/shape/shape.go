// Package shape accumulates the access offsets of every registered kernel
// and derives the bounds the planner and executors rely on: the per-axis
// slope, the number of live time layers (toggle) and the time shift.
//
// A Registry is not safe for concurrent use; the engine serializes access.
package shape

import (
	"errors"
	"fmt"

	"github.com/roach88/stencil/internal/ir"
)

// ErrInvalidShape reports a malformed batch of shift entries.
var ErrInvalidShape = errors.New("invalid shape")

// Registry is the accumulated shape of one stencil.
type Registry struct {
	rank       int
	entries    []ir.Shift
	slope      []int
	toggle     int
	timeShift  int
	registered bool
}

// NewRegistry returns an empty registry for rank spatial axes.
func NewRegistry(rank int) *Registry {
	return &Registry{
		rank:  rank,
		slope: make([]int, rank),
	}
}

// Register appends entries to the accumulated shape and updates the derived
// bounds. On error the registry is left untouched.
//
// Time shift and toggle are derived from the new entries, with the home
// layer t=0 always counted. Slope is recomputed over the whole accumulated
// shape: each entry contributes ceil(|dx| / depth), where depth is the
// entry's temporal distance to the farthest layer of the shape.
func (r *Registry) Register(entries []ir.Shift) error {
	if len(entries) == 0 {
		return fmt.Errorf("%w: empty batch", ErrInvalidShape)
	}
	for i, e := range entries {
		if len(e) != r.rank+1 {
			return fmt.Errorf("%w: entry %d has %d components, want %d", ErrInvalidShape, i, len(e), r.rank+1)
		}
	}

	localMin, localMax := 0, 0
	for _, e := range entries {
		localMin = min(localMin, e.T())
		localMax = max(localMax, e.T())
	}

	all := make([]ir.Shift, 0, len(r.entries)+len(entries))
	all = append(all, r.entries...)
	for _, e := range entries {
		all = append(all, append(ir.Shift(nil), e...))
	}

	gMin, gMax := 0, 0
	for _, e := range all {
		gMin = min(gMin, e.T())
		gMax = max(gMax, e.T())
	}

	slope := append([]int(nil), r.slope...)
	for i, e := range all {
		depth := max(gMax-e.T(), e.T()-gMin)
		for axis := 0; axis < r.rank; axis++ {
			dx := abs(e.X(axis))
			if depth == 0 {
				if dx != 0 {
					return fmt.Errorf("%w: entry %d has spatial offset %d on a single time layer", ErrInvalidShape, i, e.X(axis))
				}
				continue
			}
			slope[axis] = max(slope[axis], (dx+depth-1)/depth)
		}
	}

	r.entries = all
	r.slope = slope
	r.timeShift = max(r.timeShift, -localMin)
	r.toggle = max(r.toggle, localMax-localMin+1)
	r.registered = true
	return nil
}

// Clone returns an independent copy of the registry.
func (r *Registry) Clone() *Registry {
	c := *r
	c.entries = r.Entries()
	c.slope = r.Slope()
	return &c
}

// Rank returns the number of spatial axes.
func (r *Registry) Rank() int { return r.rank }

// Registered reports whether at least one batch was accepted.
func (r *Registry) Registered() bool { return r.registered }

// Slope returns a copy of the per-axis slope.
func (r *Registry) Slope() []int { return append([]int(nil), r.slope...) }

// Toggle returns the number of time layers kept live.
func (r *Registry) Toggle() int { return r.toggle }

// TimeShift returns the magnitude of the most negative temporal offset.
func (r *Registry) TimeShift() int { return r.timeShift }

// Len returns the number of accumulated entries.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns a copy of the accumulated shape.
func (r *Registry) Entries() []ir.Shift {
	out := make([]ir.Shift, len(r.entries))
	for i, e := range r.entries {
		out[i] = append(ir.Shift(nil), e...)
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
