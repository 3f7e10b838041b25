package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/ir"
)

func named(name string) Kernel {
	return Kernel{Name: name, Fn: func(int, []int) {}}
}

func TestNewTileStrides(t *testing.T) {
	tile, err := NewTile([]int{2, 3}, []Kernel{named("a"), named("b"), named("c"), named("d"), named("e"), named("f")})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1}, tile.Strides)
}

func TestNewTileRejects(t *testing.T) {
	_, err := NewTile([]int{2}, []Kernel{named("a")})
	assert.Error(t, err, "count mismatch")

	_, err = NewTile([]int{1, 1, 1, 1}, []Kernel{named("a")})
	assert.Error(t, err, "too many dims")

	_, err = NewTile([]int{1}, []Kernel{{Name: "nil"}})
	assert.Error(t, err, "nil function")
}

func TestTileSelect1D(t *testing.T) {
	tile, err := NewTile([]int{2}, []Kernel{named("even"), named("odd")})
	require.NoError(t, err)

	// 1-D tile indexes the last spatial axis.
	assert.Equal(t, "even", tile.Select(5, []int{0, 4}).Name)
	assert.Equal(t, "odd", tile.Select(5, []int{0, 3}).Name)
	assert.Equal(t, "odd", tile.Select(0, []int{0, -1}).Name, "negative coordinates wrap")
}

func TestTileSelectIncludesTime(t *testing.T) {
	// A 2-D tile on a rank-1 stencil spans (t, x0).
	tile, err := NewTile([]int{2, 2}, []Kernel{named("t0x0"), named("t0x1"), named("t1x0"), named("t1x1")})
	require.NoError(t, err)

	assert.Equal(t, "t1x0", tile.Select(3, []int{10}).Name)
	assert.Equal(t, "t0x1", tile.Select(4, []int{7}).Name)
}

func TestSingle(t *testing.T) {
	tile := Single(named("only"))
	assert.Equal(t, "only", tile.Select(-3, []int{-7, 9}).Name)
}

func TestRegionSetValidateAndPick(t *testing.T) {
	fn := func(int, int, ir.Grid) {}
	set := RegionSet{
		Kernel:   BaseKernel{Name: "k", Fn: fn},
		Boundary: BaseKernel{Name: "b", Fn: fn},
	}
	require.NoError(t, set.Validate())
	assert.Equal(t, "k", set.Pick(3, 2, false).Name, "no cond pair falls back")

	set.Cond = BaseKernel{Name: "c", Fn: fn}
	assert.Error(t, set.Validate())

	set.CondBoundary = BaseKernel{Name: "cb", Fn: fn}
	require.NoError(t, set.Validate())
	assert.Equal(t, "c", set.Pick(3, 2, false).Name)
	assert.Equal(t, "cb", set.Pick(3, 2, true).Name)
	assert.Equal(t, "b", set.Pick(4, 2, true).Name)
	assert.Equal(t, "k", set.Pick(4, 2, false).Name)

	assert.Error(t, RegionSet{Kernel: BaseKernel{Fn: fn}}.Validate())
}

func TestLCM(t *testing.T) {
	assert.Equal(t, 1, LCM(1, 1))
	assert.Equal(t, 6, LCM(2, 3))
	assert.Equal(t, 12, LCM(4, 6))
}
