// Package walk provides the loop primitives that visit the points of a grid
// block. Visit callbacks receive an index slice that is reused between
// calls and must not be retained.
package walk

import "github.com/roach88/stencil/internal/ir"

// ForEach visits every point of g's current bounds in row-major order.
func ForEach(g ir.Grid, visit func(idx []int)) {
	rank := g.Rank()
	if g.Volume() == 0 {
		return
	}
	idx := make([]int, rank)
	copy(idx, g.X0)
	for {
		visit(idx)
		axis := rank - 1
		for axis >= 0 {
			idx[axis]++
			if idx[axis] < g.X1[axis] {
				break
			}
			idx[axis] = g.X0[axis]
			axis--
		}
		if axis < 0 {
			return
		}
	}
}

// SingleStep visits every point of block for time step t, wrapping each
// coordinate into the physical domain phys.
func SingleStep(t int, block, phys ir.Grid, visit func(t int, idx []int)) {
	wrapped := make([]int, block.Rank())
	ForEach(block, func(idx []int) {
		Wrap(wrapped, idx, phys)
		visit(t, wrapped)
	})
}

// Sweep visits block for every step in [t0, t1), advancing a copy of block
// between steps.
func Sweep(t0, t1 int, block ir.Grid, visit func(t int, idx []int)) {
	g := block.Clone()
	for t := t0; t < t1; t++ {
		ForEach(g, func(idx []int) { visit(t, idx) })
		g.Advance(1)
	}
}

// SweepWrapped is Sweep with coordinates wrapped into phys.
func SweepWrapped(t0, t1 int, block, phys ir.Grid, visit func(t int, idx []int)) {
	g := block.Clone()
	for t := t0; t < t1; t++ {
		SingleStep(t, g, phys, visit)
		g.Advance(1)
	}
}

// Wrap writes idx reduced into [phys.X0, phys.X1) per axis into dst.
func Wrap(dst, idx []int, phys ir.Grid) {
	for i, x := range idx {
		lo, n := phys.X0[i], phys.Width(i)
		if n <= 0 {
			dst[i] = x
			continue
		}
		m := (x - lo) % n
		if m < 0 {
			m += n
		}
		dst[i] = lo + m
	}
}
