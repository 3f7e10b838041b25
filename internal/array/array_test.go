package array

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/ir"
)

func TestNewRejects(t *testing.T) {
	_, err := New[float64]("u", nil)
	assert.Error(t, err)

	_, err = New[float64]("u", []int{4, 0})
	assert.Error(t, err)
}

func TestExtentsAndElemSize(t *testing.T) {
	a, err := New[float64]("u", []int{3, 5})
	require.NoError(t, err)

	assert.Equal(t, 2, a.Rank())
	assert.Equal(t, 3, a.Size(0))
	assert.Equal(t, 5, a.Size(1))
	assert.Equal(t, 8, a.ElemSize())
	assert.Equal(t, 1, a.Toggle())
}

func TestRegisterShapeGrowsLayers(t *testing.T) {
	a, err := New[int]("u", []int{4})
	require.NoError(t, err)
	a.Set(0, 7, 2)

	a.RegisterShape([]ir.Shift{{1, 0}, {0, -1}, {0, 1}})
	assert.Equal(t, 2, a.Toggle())
	assert.Equal(t, 7, a.At(0, 2), "layer 0 survives growth")

	a.RegisterShape([]ir.Shift{{0, 0}})
	assert.Equal(t, 2, a.Toggle(), "never shrinks")
}

func TestTimeLayersToggle(t *testing.T) {
	a, err := New[int]("u", []int{2})
	require.NoError(t, err)
	a.RegisterShape([]ir.Shift{{1, 0}, {0, 0}})

	a.Set(0, 1, 0)
	a.Set(1, 2, 0)
	assert.Equal(t, 1, a.At(0, 0))
	assert.Equal(t, 2, a.At(1, 0))
	assert.Equal(t, 1, a.At(2, 0), "t=2 shares layer with t=0")
	assert.Equal(t, 2, a.At(-1, 0), "negative time wraps")
}

func TestBoundary(t *testing.T) {
	a, err := New[float64]("u", []int{3})
	require.NoError(t, err)
	a.Fill(0, func(idx []int) float64 { return float64(idx[0] + 1) })

	assert.Equal(t, 0.0, a.At(0, -1), "zero value without boundary")

	a.SetBoundary(Constant(-1.0))
	assert.Equal(t, -1.0, a.At(0, 3))

	a.SetBoundary(Clamp[float64]())
	assert.Equal(t, 1.0, a.At(0, -4))
	assert.Equal(t, 3.0, a.At(0, 9))
}

func TestSetOutOfRangePanics(t *testing.T) {
	a, err := New[int]("u", []int{2})
	require.NoError(t, err)
	assert.Panics(t, func() { a.Set(0, 1, 2) })
}

func TestFillSnapshotClone(t *testing.T) {
	a, err := New[int]("u", []int{2, 2})
	require.NoError(t, err)
	a.Fill(0, func(idx []int) int { return idx[0]*10 + idx[1] })
	assert.Equal(t, []int{0, 1, 10, 11}, a.Snapshot(0))

	c := a.Clone()
	c.Set(0, 99, 0, 0)
	assert.Equal(t, 0, a.At(0, 0, 0))
	assert.Equal(t, 99, c.At(0, 0, 0))
}

func TestClear(t *testing.T) {
	a, err := New[float64]("u", []int{3})
	require.NoError(t, err)
	a.Fill(0, func(idx []int) float64 { return float64(idx[0] + 1) })
	a.Clear()
	assert.Equal(t, []float64{0, 0, 0}, a.Snapshot(0))
}
