package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/ir"
)

func TestHeatSpecGuardsSplitDomain(t *testing.T) {
	spec := HeatSpec(100)
	assert.Equal(t, "i < 50", spec.Guards[0].Expr)
	assert.Equal(t, "i >= 50", spec.Guards[1].Expr)
	assert.Equal(t, "i < 0", HeatSpec(1).Guards[0].Expr)
}

func TestNaiveSweepOneStep(t *testing.T) {
	u := HeatArray(t, 8)
	NaiveSweep(u, 0, 1)
	// layer 0 is 0 1 2 3 4 5 6 0; reads outside the array are zero.
	assert.Equal(t, []float64{0.25, 1, 2, 3, 4, 5, 4.25, 1.5}, u.Snapshot(1))
}

func TestHeatSetMatchesNaive(t *testing.T) {
	const n = 16
	phys := ir.Grid{X0: []int{0}, X1: []int{n}, DX0: []int{0}, DX1: []int{0}}

	got := HeatArray(t, n)
	set := HeatSet(got, phys)
	require.NoError(t, set.Validate())
	set.Kernel.Fn(0, 3, phys)

	want := HeatArray(t, n)
	NaiveSweep(want, 0, 3)
	assert.Equal(t, want.Snapshot(3), got.Snapshot(3))
}

func TestSplitSweepOneStep(t *testing.T) {
	u := HeatArray(t, 8)
	SplitSweep(u, 0, 1)
	// left half: heat update; right half: i=4 copy, i=5 avg(4, 6), i=6 copy, i=7 avg(6, 0).
	assert.Equal(t, []float64{0.25, 1, 2, 3, 4, 5, 6, 3}, u.Snapshot(1))
}
