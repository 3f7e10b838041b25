// Package testutil holds fixtures shared by package tests: a
// one-dimensional heat stencil with a naive reference sweep, and
// deterministic stand-ins for run ids and event ordering.
package testutil

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/array"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/walk"
)

// HeatShape is the three-point heat stencil: one step forward reading the
// left, center and right neighbors.
func HeatShape() []ir.Shift {
	return []ir.Shift{{1, 0}, {0, -1}, {0, 0}, {0, 1}}
}

// HeatSpec declares the heat stencil on n points with two guards splitting
// the domain at n/2. The right half runs a two-kernel tile.
func HeatSpec(n int) *ir.StencilSpec {
	return &ir.StencilSpec{
		Name:   "heat",
		Rank:   1,
		Arrays: []ir.ArraySpec{{Name: "u", Dims: []int{n}, Init: "float64(i % 7)"}},
		Shape:  HeatShape(),
		Guards: []ir.GuardSpec{
			{Name: "left", Expr: "i < " + strconv.Itoa(n/2)},
			{Name: "right", Expr: "i >= " + strconv.Itoa(n/2)},
		},
		Tiles: []ir.TileSpec{
			{Guard: "left", Kernels: []ir.KernelSpec{
				{Array: "u", At: "t+1", Expr: "0.25*u(t, i-1) + 0.5*u(t, i) + 0.25*u(t, i+1)"},
			}},
			{Guard: "right", Dims: []int{2}, Kernels: []ir.KernelSpec{
				{Name: "even", Array: "u", At: "t+1", Expr: "u(t, i)"},
				{Name: "odd", Array: "u", At: "t+1", Expr: "0.5*(u(t, i-1) + u(t, i+1))"},
			}},
		},
	}
}

// HeatArray returns an n-point array with the heat shape registered and
// layer 0 set to i%7.
func HeatArray(t testing.TB, n int) *array.Array[float64] {
	t.Helper()
	u, err := array.New[float64]("u", []int{n})
	require.NoError(t, err)
	u.RegisterShape(HeatShape())
	u.Fill(0, func(idx []int) float64 { return float64(idx[0] % 7) })
	return u
}

// HeatCell is the uniform heat update of one point.
func HeatCell(u *array.Array[float64]) kernel.CellFunc {
	return func(t int, idx []int) {
		i := idx[0]
		u.Set(t+1, 0.25*u.At(t, i-1)+0.5*u.At(t, i)+0.25*u.At(t, i+1), i)
	}
}

// HeatTile is the uniform heat update as a single-kernel tile.
func HeatTile(u *array.Array[float64]) kernel.Tile {
	return kernel.Single(kernel.Kernel{Name: "heat", Shape: HeatShape(), Fn: HeatCell(u)})
}

// HeatSet is the uniform heat update as a region kernel set. The boundary
// variant wraps coordinates into phys.
func HeatSet(u *array.Array[float64], phys ir.Grid) kernel.RegionSet {
	cell := HeatCell(u)
	return kernel.RegionSet{
		Kernel: kernel.BaseKernel{Name: "heat", Shape: HeatShape(), Fn: func(t0, t1 int, g ir.Grid) {
			walk.Sweep(t0, t1, g, cell)
		}},
		Boundary: kernel.BaseKernel{Name: "heat_boundary", Shape: HeatShape(), Fn: func(t0, t1 int, g ir.Grid) {
			walk.SweepWrapped(t0, t1, g, phys, cell)
		}},
	}
}

// NaiveSweep applies HeatCell to every point for each step in [t0, t1).
func NaiveSweep(u *array.Array[float64], t0, t1 int) {
	cell := HeatCell(u)
	n := u.Size(0)
	for t := t0; t < t1; t++ {
		for i := range n {
			cell(t, []int{i})
		}
	}
}

// SplitSweep is the reference for HeatSpec: the left half runs the heat
// update, the right half alternates copy (even i) and neighbor average
// (odd i).
func SplitSweep(u *array.Array[float64], t0, t1 int) {
	n := u.Size(0)
	for t := t0; t < t1; t++ {
		for i := range n {
			switch {
			case i < n/2:
				u.Set(t+1, 0.25*u.At(t, i-1)+0.5*u.At(t, i)+0.25*u.At(t, i+1), i)
			case i%2 == 0:
				u.Set(t+1, u.At(t, i), i)
			default:
				u.Set(t+1, 0.5*(u.At(t, i-1)+u.At(t, i+1)), i)
			}
		}
	}
}
