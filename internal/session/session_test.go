package session

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/testutil"
)

const steps = 10

func open(t *testing.T, spec *ir.StencilSpec) *Session {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := engine.DefaultConfig()
	cfg.ThresholdBytes = 16 * 8
	s, err := Open(spec, logger,
		engine.WithConfig(cfg),
		engine.WithRunIDs(testutil.FixedRunID("session-test")))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, s.Close()) })
	return s
}

func reference(t *testing.T, spec *ir.StencilSpec) *Session {
	t.Helper()
	ref := open(t, spec)
	ref.Sweep(ref.Stencil.TimeShift(), steps)
	return ref
}

func TestOpenRegistersSpec(t *testing.T) {
	s := open(t, testutil.HeatSpec(64))

	assert.Equal(t, engine.Configured, s.Stencil.State())
	assert.Equal(t, []int{1}, s.Stencil.Slope())
	assert.Equal(t, 2, s.Stencil.Toggle())
	assert.Equal(t, 2, s.Stencil.TileCount())
	require.Len(t, s.Arrays, 1)
	assert.Equal(t, 3.0, s.Arrays[0].At(0, 10))
	assert.Len(t, s.Fields(), 1)
}

func TestModesMatchSweep(t *testing.T) {
	spec := testutil.HeatSpec(64)
	ref := reference(t, spec)

	for _, tc := range []struct {
		mode  string
		tiled bool
	}{
		{ModeInterp, false},
		{ModeObase, false},
		{ModeInterp, true},
		{ModeObase, true},
		{ModeMerge, true},
	} {
		name := tc.mode
		if tc.tiled {
			name += "_tiled"
		}
		t.Run(name, func(t *testing.T) {
			s := open(t, spec)
			base := filepath.Join(t.TempDir(), "heat")
			plan, err := s.Plan(context.Background(), steps, tc.tiled, base)
			require.NoError(t, err)
			require.NoError(t, s.Execute(context.Background(), plan, tc.mode, base))

			assert.Zero(t, s.MaxDiff(ref, steps))
			assert.Equal(t, ref.Checksum(steps), s.Checksum(steps))
		})
	}
}

func TestResetRepeatsExecution(t *testing.T) {
	spec := testutil.HeatSpec(64)
	ref := reference(t, spec)
	s := open(t, spec)
	base := filepath.Join(t.TempDir(), "heat")
	plan, err := s.Plan(context.Background(), steps, true, base)
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, s.Reset())
		require.NoError(t, s.Execute(context.Background(), plan, ModeMerge, base))
		assert.Equal(t, ref.Checksum(steps), s.Checksum(steps))
	}
}

func TestClampBoundary(t *testing.T) {
	spec := testutil.HeatSpec(32)
	spec.Arrays[0].Boundary = "clamp"
	spec.Tiles = spec.Tiles[:1]
	spec.Guards[0].Expr = "true"

	s := open(t, spec)
	s.Sweep(0, 1)
	// u(0, -1) clamps to u(0, 0) = 0, u(0, 1) = 1.
	assert.Equal(t, 0.25, s.Arrays[0].At(1, 0))
	// u(0, 32) clamps to u(0, 31) = 3.
	assert.Equal(t, 0.25*2+0.5*3+0.25*3, s.Arrays[0].At(1, 31))
}

func TestTwoDimensionalDomain(t *testing.T) {
	spec := &ir.StencilSpec{
		Name:   "blur",
		Rank:   2,
		Arrays: []ir.ArraySpec{{Name: "v", Dims: []int{24, 20}, Init: "float64((i*3 + j) % 5)"}},
		Shape:  []ir.Shift{{1, 0, 0}, {0, -1, 0}, {0, 1, 0}, {0, 0, -1}, {0, 0, 1}, {0, 0, 0}},
		Guards: []ir.GuardSpec{{Name: "all", Expr: "true"}},
		Tiles: []ir.TileSpec{{Guard: "all", Kernels: []ir.KernelSpec{{
			Array: "v", At: "t+1",
			Expr: "0.2*(v(t, i-1, j) + v(t, i+1, j) + v(t, i, j-1) + v(t, i, j+1) + v(t, i, j))",
		}}}},
		Domain: []ir.Domain{{First: 2, Size: 20}, {First: 1, Size: 18}},
	}
	ref := reference(t, spec)

	s := open(t, spec)
	plan, err := s.Plan(context.Background(), steps, false, "")
	require.NoError(t, err)
	require.NoError(t, s.Execute(context.Background(), plan, ModeObase, ""))
	assert.Zero(t, s.MaxDiff(ref, steps))

	// Points outside the logical domain keep their initial value.
	assert.Equal(t, 3.0, s.Arrays[0].At(steps, 0, 3))
}

func TestExecuteUnknownMode(t *testing.T) {
	s := open(t, testutil.HeatSpec(16))
	plan, err := s.Plan(context.Background(), 1, false, "")
	require.NoError(t, err)
	assert.ErrorContains(t, s.Execute(context.Background(), plan, "jit", ""), "unknown mode")
}

func TestOpenErrors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bad := testutil.HeatSpec(16)
	bad.Shape = nil
	_, err := Open(bad, logger)
	assert.True(t, engine.HasConfigCode(err, engine.ErrCodeInvalidKernel), "got %v", err)

	mismatch := testutil.HeatSpec(16)
	mismatch.Arrays = append(mismatch.Arrays, ir.ArraySpec{Name: "w", Dims: []int{8}})
	_, err = Open(mismatch, logger)
	assert.True(t, engine.HasConfigCode(err, engine.ErrCodeSizeMismatch), "got %v", err)

	broken := testutil.HeatSpec(16)
	broken.Tiles[0].Kernels[0].Expr = "u(t, i"
	_, err = Open(broken, logger)
	assert.True(t, engine.IsExternalError(err), "got %v", err)
}
