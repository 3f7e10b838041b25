// Package kernel defines the callable units a stencil catalog holds: guards,
// per-cell kernels arranged in tiles, and coarse region kernels.
package kernel

import (
	"fmt"

	"github.com/roach88/stencil/internal/ir"
)

// MaxTileDims is the largest supported tile dimensionality.
const MaxTileDims = 3

// Guard is a spatial predicate evaluated at one point of one time step.
type Guard func(t int, idx []int) bool

// CellFunc updates a single point. idx is reused between calls and must not
// be retained.
type CellFunc func(t int, idx []int)

// Kernel is a named per-cell update with the access offsets it uses.
type Kernel struct {
	Name  string
	Shape []ir.Shift
	Fn    CellFunc
}

// Tile is a row-major arrangement of kernels sharing one guard. Dimension k
// of a d-dimensional tile indexes coordinate len(coords)-d+k of
// (t, x0, x1, ...), so a 1-D tile alternates along the last spatial axis.
type Tile struct {
	Dims    []int
	Kernels []Kernel
	Strides []int
}

// Single wraps one kernel into a trivial tile.
func Single(k Kernel) Tile {
	return Tile{Dims: []int{1}, Kernels: []Kernel{k}, Strides: []int{1}}
}

// NewTile lays out kernels over dims in row-major order.
func NewTile(dims []int, kernels []Kernel) (Tile, error) {
	t := Tile{Dims: append([]int(nil), dims...), Kernels: kernels}
	if err := t.Layout(); err != nil {
		return Tile{}, err
	}
	return t, nil
}

// Layout validates the tile and (re)computes its strides.
func (t *Tile) Layout() error {
	if len(t.Dims) == 0 || len(t.Dims) > MaxTileDims {
		return fmt.Errorf("tile has %d dims, want 1..%d", len(t.Dims), MaxTileDims)
	}
	n := 1
	for i, d := range t.Dims {
		if d <= 0 {
			return fmt.Errorf("tile dim %d is %d, want > 0", i, d)
		}
		n *= d
	}
	if n != len(t.Kernels) {
		return fmt.Errorf("tile dims %v need %d kernels, got %d", t.Dims, n, len(t.Kernels))
	}
	for i, k := range t.Kernels {
		if k.Fn == nil {
			return fmt.Errorf("tile kernel %d (%s) has no function", i, k.Name)
		}
	}
	t.Strides = Strides(t.Dims)
	return nil
}

// Select returns the kernel positioned at (t, idx).
func (t Tile) Select(tt int, idx []int) Kernel {
	return t.Kernels[TilePos(t.Dims, t.Strides, tt, idx)]
}

// Shapes returns the shapes of every kernel in the tile.
func (t Tile) Shapes() [][]ir.Shift {
	out := make([][]ir.Shift, 0, len(t.Kernels))
	for _, k := range t.Kernels {
		if len(k.Shape) > 0 {
			out = append(out, k.Shape)
		}
	}
	return out
}

// Strides returns row-major strides for dims.
func Strides(dims []int) []int {
	s := make([]int, len(dims))
	acc := 1
	for i := len(dims) - 1; i >= 0; i-- {
		s[i] = acc
		acc *= dims[i]
	}
	return s
}

// TilePos maps (t, idx) to a flat tile position using positive modulo on
// the trailing coordinates.
func TilePos(dims, strides []int, t int, idx []int) int {
	d := len(dims)
	n := len(idx) + 1
	pos := 0
	for k := 0; k < d; k++ {
		c := n - d + k
		var v int
		if c == 0 {
			v = t
		} else {
			v = idx[c-1]
		}
		m := v % dims[k]
		if m < 0 {
			m += dims[k]
		}
		pos += m * strides[k]
	}
	return pos
}

// RegionFunc executes a whole region: every point of g for each step in
// [t0, t1), advancing g between steps.
type RegionFunc func(t0, t1 int, g ir.Grid)

// BaseKernel is a named region kernel with the access offsets it uses.
type BaseKernel struct {
	Name  string
	Shape []ir.Shift
	Fn    RegionFunc
}

// RegionSet bundles the variants of one exclusive region kernel. Boundary
// variants are used where reads may leave the physical domain; Cond
// variants where the step count is not a multiple of the unroll factor.
type RegionSet struct {
	Kernel       BaseKernel
	Boundary     BaseKernel
	Cond         BaseKernel
	CondBoundary BaseKernel
}

// HasCond reports whether the conditional pair is present.
func (s RegionSet) HasCond() bool { return s.Cond.Fn != nil }

// Validate requires the primary pair and a complete or absent cond pair.
func (s RegionSet) Validate() error {
	if s.Kernel.Fn == nil || s.Boundary.Fn == nil {
		return fmt.Errorf("region kernel %q requires both kernel and boundary functions", s.Kernel.Name)
	}
	if (s.Cond.Fn == nil) != (s.CondBoundary.Fn == nil) {
		return fmt.Errorf("region kernel %q has an incomplete cond pair", s.Kernel.Name)
	}
	return nil
}

// Shapes returns every non-empty shape in the set.
func (s RegionSet) Shapes() [][]ir.Shift {
	var out [][]ir.Shift
	for _, k := range []BaseKernel{s.Kernel, s.Boundary, s.Cond, s.CondBoundary} {
		if len(k.Shape) > 0 {
			out = append(out, k.Shape)
		}
	}
	return out
}

// Pick chooses the variant for a region of steps time steps.
func (s RegionSet) Pick(steps, unroll int, boundary bool) BaseKernel {
	cond := s.HasCond() && unroll > 1 && steps%unroll != 0
	switch {
	case cond && boundary:
		return s.CondBoundary
	case cond:
		return s.Cond
	case boundary:
		return s.Boundary
	default:
		return s.Kernel
	}
}

// TileEntry is one row of the inclusive tile catalog.
type TileEntry struct {
	Guard Guard
	Tile  Tile
}

// RegionEntry is one row of the exclusive region catalog.
type RegionEntry struct {
	Guard  Guard
	Unroll int
	Set    RegionSet
}

// LCM returns the least common multiple of two positive integers.
func LCM(a, b int) int {
	return a / gcd(a, b) * b
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}
