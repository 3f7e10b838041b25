package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/store"
)

func sampleResult() *Result {
	r := NewResult()
	r.Sweep = 10
	r.AddRun(RunResult{Mode: "interp", Regions: 4, Epochs: 2, Checksum: 10})
	r.AddRun(RunResult{Mode: "merge", Tiled: true, Regions: 9, Epochs: 3, Checksum: 10.5, MaxDiff: 0.5})
	return r
}

func TestAssertMatchesSweep(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertMatchesSweep(r, Assertion{Type: AssertMatchesSweep, Mode: "interp"}, 0))
	assert.NoError(t, assertMatchesSweep(r, Assertion{Type: AssertMatchesSweep}, 0.5))

	err := assertMatchesSweep(r, Assertion{Type: AssertMatchesSweep}, 0.1)
	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, AssertMatchesSweep, ae.Type)
	assert.Contains(t, ae.Actual, "run 2 (merge) differs by 0.5")
}

func TestAssertChecksum(t *testing.T) {
	r := sampleResult()

	assert.NoError(t, assertChecksum(r, Assertion{Type: AssertChecksum, Mode: "interp", Value: 10}, 0))
	assert.NoError(t, assertChecksum(r, Assertion{Type: AssertChecksum, Value: 10.25}, 0.25))
	assert.Error(t, assertChecksum(r, Assertion{Type: AssertChecksum, Value: 10}, 0))
}

func TestAssertMinimum(t *testing.T) {
	r := sampleResult()
	epochs := func(run RunResult) int { return run.Epochs }

	assert.NoError(t, assertMinimum(r, Assertion{Type: AssertMinEpochs, Count: 2}, "epochs", epochs))
	assert.NoError(t, assertMinimum(r, Assertion{Type: AssertMinEpochs, Mode: "merge", Count: 3}, "epochs", epochs))

	err := assertMinimum(r, Assertion{Type: AssertMinEpochs, Count: 3}, "epochs", epochs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run 1 (interp) has 2")
}

func TestAssertions_NoMatchingRuns(t *testing.T) {
	r := sampleResult()
	err := assertChecksum(r, Assertion{Type: AssertChecksum, Mode: "obase"}, 0)

	var ae *AssertionError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, "no matching runs", ae.Actual)
}

func TestAssertionError_ErrorFormat(t *testing.T) {
	err := &AssertionError{
		Type:     AssertChecksum,
		Expected: "checksum 3",
		Actual:   "run 1 (interp) checksum 4",
		Runs:     []RunResult{{Mode: "interp", Regions: 2, Epochs: 1, Checksum: 4}},
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: checksum")
	assert.Contains(t, msg, "Expected: checksum 3")
	assert.Contains(t, msg, "Actual: run 1 (interp) checksum 4")
	assert.Contains(t, msg, "[1] interp tiled=false regions=2 epochs=1 checksum=4 max_diff=0")
}

func TestCatalogWhereRejected(t *testing.T) {
	actx := &AssertionContext{Store: catalogStore(t), Ctx: context.Background()}
	for name, where := range map[string]map[string]interface{}{
		"injection":     {"mode; DROP TABLE plans": "x"},
		"unknown":       {"owner": "me"},
		"kind mismatch": {"color": "red"},
	} {
		t.Run(name, func(t *testing.T) {
			errs := EvaluateAssertions(NewResult(), []Assertion{{Type: AssertCatalog, Where: where}}, actx)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], "assertion[0]")
		})
	}
}

func catalogStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	plan := &ir.Plan{
		Regions: []ir.Region{{Index: 0, T0: 0, T1: 4, Grid: ir.Grid{X0: []int{0}, X1: []int{8}, DX0: []int{0}, DX1: []int{0}}}},
		Sync:    []int{1, ir.SyncEnd},
	}
	ctx := context.Background()
	for _, mode := range []string{"direct", "tiled", "tiled"} {
		_, err := st.WritePlan(ctx, store.PlanRecord{Stencil: "heat", SpecHash: "h", Mode: mode, Timesteps: 4, Base: "b"}, plan)
		require.NoError(t, err)
	}
	return st
}

func TestAssertCatalog(t *testing.T) {
	st := catalogStore(t)
	ctx := context.Background()

	assert.NoError(t, assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Count: 3}))
	assert.NoError(t, assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Where: map[string]interface{}{"mode": "tiled"}, Count: 2}))
	assert.NoError(t, assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Where: map[string]interface{}{"stencil": "wave"}, Count: 0}))
	assert.NoError(t, assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Where: map[string]interface{}{"timesteps": 4.0, "mode": "direct"}, Count: 1}))

	err := assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Where: map[string]interface{}{"mode": "tiled"}, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 2 plans")

	err = assertCatalog(ctx, st, Assertion{Type: AssertCatalog, Where: map[string]interface{}{"no_such_column": 1}, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown catalog column "no_such_column"`)
}

func TestEvaluateAssertions(t *testing.T) {
	st := catalogStore(t)
	actx := &AssertionContext{Store: st, Ctx: context.Background()}

	errs := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertMatchesSweep, Mode: "interp"},
		{Type: AssertMinRegions, Count: 4},
		{Type: AssertCatalog, Count: 3},
	}, actx)
	assert.Empty(t, errs)

	errs = EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertMinRegions, Count: 5},
		{Type: "trace_order"},
	}, actx)
	require.Len(t, errs, 2)
	assert.Contains(t, errs[1], `unknown assertion type "trace_order"`)
}

func TestEvaluateAssertions_CatalogWithoutContext_Fail(t *testing.T) {
	errs := EvaluateAssertions(sampleResult(), []Assertion{{Type: AssertCatalog}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "catalog requires database context")
}
