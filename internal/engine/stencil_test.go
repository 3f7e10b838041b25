package engine

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/array"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/testutil"
)

func quiet() Option { return WithLogger(slog.New(slog.DiscardHandler)) }

func TestNewRejectsRank(t *testing.T) {
	_, err := New(0)
	assert.True(t, HasConfigCode(err, ErrCodeRankMismatch))

	_, err = New(ir.MaxRank + 1)
	assert.True(t, HasConfigCode(err, ErrCodeRankMismatch))
}

func TestRegistrationStates(t *testing.T) {
	s, err := New(1, quiet())
	require.NoError(t, err)
	assert.Equal(t, Unregistered, s.State())

	require.NoError(t, s.RegisterShape(testutil.HeatShape()))
	assert.Equal(t, ShapeReady, s.State())

	require.NoError(t, s.RegisterArrays([]Array{testutil.HeatArray(t, 100)}))
	assert.Equal(t, Configured, s.State())
	assert.Equal(t, "configured", s.State().String())
}

func TestThreePointShape(t *testing.T) {
	s, _ := newHeat(t, 100)

	assert.Equal(t, []int{1}, s.Slope())
	assert.Equal(t, 2, s.Toggle())
	assert.Equal(t, 0, s.TimeShift())
	assert.Equal(t, 1, s.Unroll())
	assert.Equal(t, rect(0, 100), s.PhysicalGrid())
	assert.Equal(t, rect(0, 100), s.LogicalGrid())
}

func TestRegisterArraysErrors(t *testing.T) {
	s, err := New(1, quiet())
	require.NoError(t, err)

	err = s.RegisterArrays([]Array{testutil.HeatArray(t, 10)})
	assert.True(t, HasConfigCode(err, ErrCodeShapeNotRegistered))

	require.NoError(t, s.RegisterShape(testutil.HeatShape()))

	err = s.RegisterArrays(nil)
	assert.True(t, HasConfigCode(err, ErrCodeNotRegistered))

	flat, err := array.New[float64]("v", []int{10, 10})
	require.NoError(t, err)
	err = s.RegisterArrays([]Array{flat})
	assert.True(t, HasConfigCode(err, ErrCodeRankMismatch))

	err = s.RegisterArrays([]Array{testutil.HeatArray(t, 10), testutil.HeatArray(t, 12)})
	var ce *ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, ErrCodeSizeMismatch, ce.Code)
	assert.Equal(t, "1", ce.Details["array"])

	require.NoError(t, s.RegisterArrays([]Array{testutil.HeatArray(t, 10)}))
	err = s.RegisterArrays([]Array{testutil.HeatArray(t, 11)})
	assert.True(t, HasConfigCode(err, ErrCodeSizeMismatch))
}

func TestShapeAfterArraysIsOutOfOrder(t *testing.T) {
	s, _ := newHeat(t, 10)
	err := s.RegisterShape([]ir.Shift{{1, 0}, {0, 2}})
	assert.True(t, HasConfigCode(err, ErrCodeOutOfOrder))
	assert.Equal(t, []int{1}, s.Slope())
}

func TestKernelShapeMayNotWidenAfterArrays(t *testing.T) {
	s, u := newHeat(t, 10)

	wide := kernel.Single(kernel.Kernel{Name: "wide", Shape: []ir.Shift{{1, 0}, {0, -2}}, Fn: testutil.HeatCell(u)})
	err := s.RegisterTileKernels(always, wide)
	assert.True(t, HasConfigCode(err, ErrCodeOutOfOrder))
	assert.Equal(t, 0, s.TileCount())

	require.NoError(t, s.RegisterTileKernels(always, testutil.HeatTile(u)))
	assert.Equal(t, 1, s.TileCount())
}

func TestKernelShapesBeforeArraysWiden(t *testing.T) {
	s, err := New(1, quiet())
	require.NoError(t, err)
	require.NoError(t, s.RegisterShape(testutil.HeatShape()))

	u := testutil.HeatArray(t, 10)
	wide := kernel.Single(kernel.Kernel{Name: "wide", Shape: []ir.Shift{{1, 0}, {0, -2}}, Fn: testutil.HeatCell(u)})
	require.NoError(t, s.RegisterTileKernels(always, wide))
	assert.Equal(t, []int{2}, s.Slope())
}

func TestRegisterKernelErrors(t *testing.T) {
	s, u := newHeat(t, 10)

	assert.True(t, HasConfigCode(s.RegisterTileKernels(nil, testutil.HeatTile(u)), ErrCodeInvalidKernel))
	assert.True(t, HasConfigCode(s.RegisterRegionKernels(always, 0, testutil.HeatSet(u, rect(0, 10))), ErrCodeInvalidKernel))
	assert.True(t, HasConfigCode(s.RegisterRegionKernels(always, 1, kernel.RegionSet{}), ErrCodeInvalidKernel))

	deep := kernel.Tile{Dims: []int{2, 2, 2}, Kernels: make([]kernel.Kernel, 8)}
	for i := range deep.Kernels {
		deep.Kernels[i].Fn = testutil.HeatCell(u)
	}
	assert.True(t, HasConfigCode(s.RegisterTileKernels(always, deep), ErrCodeInvalidKernel))
}

func TestUnrollIsLCM(t *testing.T) {
	s, u := newHeat(t, 10)
	set := testutil.HeatSet(u, rect(0, 10))
	require.NoError(t, s.RegisterRegionKernels(always, 2, set))
	require.NoError(t, s.RegisterRegionKernels(always, 3, set))
	assert.Equal(t, 6, s.Unroll())
	assert.Equal(t, 2, s.RegionCount())

	s.truncateRegions(1)
	assert.Equal(t, 2, s.Unroll())
	assert.Equal(t, 1, s.RegionCount())
}

func TestRegisterDomains(t *testing.T) {
	s, _ := newHeat(t, 100)

	err := s.RegisterDomains([]ir.Domain{{First: 0, Size: 10}, {First: 0, Size: 10}})
	assert.True(t, HasConfigCode(err, ErrCodeRankMismatch))

	err = s.RegisterDomains([]ir.Domain{{First: 0, Size: -1}})
	assert.True(t, HasConfigCode(err, ErrCodeInvalidDomain))

	require.NoError(t, s.RegisterDomains([]ir.Domain{{First: 10, Size: 20}}))
	assert.Equal(t, rect(10, 30), s.LogicalGrid())
	assert.Equal(t, rect(0, 100), s.PhysicalGrid())
}

func TestSetPhysicalDomain(t *testing.T) {
	s, err := New(1, quiet())
	require.NoError(t, err)

	assert.True(t, HasConfigCode(s.SetPhysicalDomain(ir.NewGrid(2)), ErrCodeRankMismatch))
	assert.True(t, HasConfigCode(s.SetPhysicalDomain(rect(5, 5)), ErrCodeInvalidDomain))

	require.NoError(t, s.SetPhysicalDomain(rect(0, 64)))
	require.NoError(t, s.RegisterShape(testutil.HeatShape()))
	require.NoError(t, s.RegisterArrays([]Array{testutil.HeatArray(t, 100)}))
	assert.Equal(t, rect(0, 64), s.PhysicalGrid())
	assert.Equal(t, rect(0, 64), s.LogicalGrid())
}
