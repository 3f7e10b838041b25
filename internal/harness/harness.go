package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/stencil/internal/compiler"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/session"
	"github.com/roach88/stencil/internal/store"
	"github.com/roach88/stencil/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a fixed run id, a fresh plan catalog and fresh
// arrays for every execution.
type Harness struct {
	store    *store.Store
	spec     *ir.StencilSpec
	specHash string
	opts     []engine.Option
	workDir  string
	logger   *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs against a fresh in-memory plan catalog.
//
// Execution flow:
// 1. Load and compile the specs, pick the stencil
// 2. Sweep a reference session sequentially
// 3. For every run: plan on fresh arrays, record the plan, execute it
// 4. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario)
}

// RunContext is Run with a caller-supplied context.
func RunContext(ctx context.Context, scenario *Scenario) (*Result, error) {
	loaded, errs := compiler.LoadDir(scenario.Specs, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to load specs: %w", errs[0])
	}
	spec, ok := loaded.Find(scenario.Stencil)
	if !ok {
		return nil, fmt.Errorf("stencil %q not found in %s (have %v)", scenario.Stencil, scenario.Specs, loaded.Names())
	}
	specHash, err := ir.SpecHash(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to hash spec: %w", err)
	}

	timesteps := scenario.Timesteps
	if timesteps == 0 {
		timesteps = spec.Timesteps
	}
	if timesteps < 1 {
		return nil, fmt.Errorf("scenario %s: no timesteps given and stencil %s has none", scenario.Name, spec.Name)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	st, err := store.Open(":memory:", store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	workDir, err := os.MkdirTemp("", "stencil-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	cfg := engine.DefaultConfig()
	if scenario.ThresholdBytes > 0 {
		cfg.ThresholdBytes = scenario.ThresholdBytes
	}
	h := &Harness{
		store:    st,
		spec:     spec,
		specHash: specHash,
		opts: []engine.Option{
			engine.WithConfig(cfg),
			engine.WithRunIDs(testutil.FixedRunID(scenario.RunID)),
		},
		workDir: workDir,
		logger:  logger,
	}

	ref, err := h.open()
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	t0 := ref.Stencil.TimeShift()
	ref.Sweep(t0, timesteps)
	final := t0 + timesteps

	result := NewResult()
	result.Stencil = spec.Name
	result.Slope = ref.Stencil.Slope()
	result.Toggle = ref.Stencil.Toggle()
	result.TimeShift = t0
	result.Timesteps = timesteps
	result.Sweep = ref.Checksum(final)

	for i, step := range scenario.Runs {
		run, err := h.execute(ctx, i, step, timesteps, ref, final)
		if err != nil {
			return nil, fmt.Errorf("run %d (%s): %w", i, step.Mode, err)
		}
		result.AddRun(run)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx, Tolerance: scenario.Tolerance}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) open() (*session.Session, error) {
	s, err := session.Open(h.spec, h.logger, h.opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return s, nil
}

// execute plans and runs one step on a fresh session and records the plan
// in the catalog.
func (h *Harness) execute(ctx context.Context, i int, step RunStep, timesteps int, ref *session.Session, final int) (RunResult, error) {
	s, err := h.open()
	if err != nil {
		return RunResult{}, err
	}
	defer s.Close()

	base := filepath.Join(h.workDir, fmt.Sprintf("%s_%d", h.spec.Name, i))
	plan, err := s.Plan(ctx, timesteps, step.Tiled, base)
	if err != nil {
		return RunResult{}, fmt.Errorf("plan: %w", err)
	}

	planMode := engine.ModeDirect
	if step.Tiled {
		planMode = engine.ModeTiled
	}
	rec, err := h.store.WritePlan(ctx, store.PlanRecord{
		Stencil:   h.spec.Name,
		SpecHash:  h.specHash,
		Mode:      planMode,
		Timesteps: timesteps,
		Base:      base,
	}, plan)
	if err != nil {
		return RunResult{}, fmt.Errorf("record plan: %w", err)
	}
	// Execute the catalog copy so a lossy catalog shows up as a mismatch.
	_, stored, err := h.store.ReadPlan(ctx, rec.ID)
	if err != nil {
		return RunResult{}, fmt.Errorf("read back plan: %w", err)
	}

	if err := s.Execute(ctx, stored, step.Mode, base); err != nil {
		return RunResult{}, fmt.Errorf("execute: %w", err)
	}

	indices := make(map[int]bool)
	for _, r := range stored.Regions {
		indices[r.Index] = true
	}
	run := RunResult{
		Mode:     step.Mode,
		Tiled:    step.Tiled,
		PlanID:   rec.ID,
		Color:    rec.Color,
		Regions:  rec.Regions,
		Epochs:   rec.Epochs,
		Colors:   len(indices),
		Checksum: s.Checksum(final),
		MaxDiff:  s.MaxDiff(ref, final),
	}
	h.logger.Info("scenario run completed",
		"run", i,
		"mode", run.Mode,
		"tiled", run.Tiled,
		"regions", run.Regions,
		"epochs", run.Epochs,
		"max_diff", run.MaxDiff,
	)
	return run, nil
}
