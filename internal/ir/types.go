package ir

import (
	"fmt"
	"math/bits"
)

// MaxRank is the largest number of spatial axes a stencil may have.
const MaxRank = 8

// Shift is one relative access offset: [t, x0, x1, ...].
type Shift []int

// T returns the temporal component.
func (s Shift) T() int { return s[0] }

// X returns the spatial component for axis.
func (s Shift) X(axis int) int { return s[axis+1] }

// Rank returns the number of spatial components.
func (s Shift) Rank() int { return len(s) - 1 }

// Grid is a space block: per-axis half-open bounds valid at the first time
// step of a region, plus the per-step growth of each bound.
type Grid struct {
	X0  []int `json:"x0" yaml:"x0"`
	X1  []int `json:"x1" yaml:"x1"`
	DX0 []int `json:"dx0" yaml:"dx0"`
	DX1 []int `json:"dx1" yaml:"dx1"`
}

// NewGrid returns a zeroed grid of the given rank.
func NewGrid(rank int) Grid {
	return Grid{
		X0:  make([]int, rank),
		X1:  make([]int, rank),
		DX0: make([]int, rank),
		DX1: make([]int, rank),
	}
}

// Rank returns the number of axes.
func (g Grid) Rank() int { return len(g.X0) }

// Clone returns a deep copy so advancing the copy leaves g untouched.
func (g Grid) Clone() Grid {
	c := NewGrid(g.Rank())
	copy(c.X0, g.X0)
	copy(c.X1, g.X1)
	copy(c.DX0, g.DX0)
	copy(c.DX1, g.DX1)
	return c
}

// Advance moves every bound by steps times its delta.
func (g *Grid) Advance(steps int) {
	for i := range g.X0 {
		g.X0[i] += g.DX0[i] * steps
		g.X1[i] += g.DX1[i] * steps
	}
}

// Width returns X1-X0 on axis.
func (g Grid) Width(axis int) int { return g.X1[axis] - g.X0[axis] }

// Volume returns the number of points in the block (0 if any axis is empty).
func (g Grid) Volume() int {
	v := 1
	for i := range g.X0 {
		w := g.Width(i)
		if w <= 0 {
			return 0
		}
		v *= w
	}
	return v
}

// Equal reports whether two grids have identical bounds and deltas.
func (g Grid) Equal(o Grid) bool {
	return intsEqual(g.X0, o.X0) && intsEqual(g.X1, o.X1) &&
		intsEqual(g.DX0, o.DX0) && intsEqual(g.DX1, o.DX1)
}

// Validate checks that all four slices share one rank.
func (g Grid) Validate() error {
	r := len(g.X0)
	if r == 0 || r > MaxRank {
		return fmt.Errorf("grid rank %d out of range [1, %d]", r, MaxRank)
	}
	if len(g.X1) != r || len(g.DX0) != r || len(g.DX1) != r {
		return fmt.Errorf("grid has inconsistent rank: x0=%d x1=%d dx0=%d dx1=%d",
			len(g.X0), len(g.X1), len(g.DX0), len(g.DX1))
	}
	return nil
}

// Contains reports whether idx lies inside the block's current bounds.
func (g Grid) Contains(idx []int) bool {
	for i, x := range idx {
		if x < g.X0[i] || x >= g.X1[i] {
			return false
		}
	}
	return true
}

func intsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Domain is one axis of a logical domain descriptor: indices
// [First, First+Size).
type Domain struct {
	First int `json:"first" yaml:"first"`
	Size  int `json:"size" yaml:"size"`
}

// Region is one scheduled unit of work: kernel/color index, time interval
// [T0, T1) and the grid valid at T0.
type Region struct {
	Index int  `json:"index"`
	T0    int  `json:"t0"`
	T1    int  `json:"t1"`
	Grid  Grid `json:"grid"`
}

// Steps returns T1-T0.
func (r Region) Steps() int { return r.T1 - r.T0 }

// Homogeneity summarizes tile guards over a region. Bit g of O is set when
// guard g holds on every point; bit g of A when it holds on at least one.
type Homogeneity struct {
	O uint64 `json:"o" yaml:"o"`
	A uint64 `json:"a" yaml:"a"`
}

// Heterogeneous reports whether some guard holds on only part of the region.
func (h Homogeneity) Heterogeneous() bool { return h.O != h.A }

// Active returns the number of guards holding somewhere in the region.
func (h Homogeneity) Active() int { return bits.OnesCount64(h.A) }

// ColorVector is the table of distinct homogeneity values of a tiled plan.
// Region.Index of a tiled plan indexes Colors.
type ColorVector struct {
	Color  int           `yaml:"color"`
	Mode   string        `yaml:"mode"`
	Guards int           `yaml:"guards"`
	Colors []Homogeneity `yaml:"colors"`
}

// AddUnique appends h unless already present and returns its index.
func (cv *ColorVector) AddUnique(h Homogeneity) int {
	for i, c := range cv.Colors {
		if c == h {
			return i
		}
	}
	cv.Colors = append(cv.Colors, h)
	return len(cv.Colors) - 1
}
