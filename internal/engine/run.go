package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/decomp"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/walk"
)

// Run executes plan by stepping every region through the tile catalog: for
// each step, each tile entry's guard is evaluated at every point and the
// tile kernel positioned there runs where it holds. Regions run in plan
// order.
func (s *Stencil) Run(ctx context.Context, plan *ir.Plan) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	epochs, err := s.checkPlan(plan)
	if err != nil {
		return err
	}
	run := s.runIDs.Generate()
	start := time.Now()

	for _, e := range epochs {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i := e.Begin; i < e.End; i++ {
			r := plan.Regions[i]
			if err := recovered(i, func() error {
				stepRegion(r, snap.physical, snap.tiles)
				return nil
			}); err != nil {
				return err
			}
		}
		epochsExecuted.WithLabelValues(ModeInterp).Inc()
		regionsExecuted.WithLabelValues(ModeInterp).Add(float64(e.Len()))
	}

	elapsed := time.Since(start)
	runDuration.WithLabelValues(ModeInterp).Observe(elapsed.Seconds())
	s.logger.Info("plan executed",
		"run", run,
		"mode", ModeInterp,
		"color", plan.Color,
		"epochs", len(epochs),
		"regions", len(plan.Regions),
		"elapsed", elapsed)
	return nil
}

func stepRegion(r ir.Region, phys ir.Grid, tiles []kernel.TileEntry) {
	g := r.Grid.Clone()
	for t := r.T0; t < r.T1; t++ {
		for _, e := range tiles {
			walk.SingleStep(t, g, phys, func(t int, idx []int) {
				if e.Guard(t, idx) {
					e.Tile.Select(t, idx).Fn(t, idx)
				}
			})
		}
		g.Advance(1)
	}
}

// RunObase executes plan epoch by epoch. Within an epoch every region but
// the last is spawned, the last runs on the calling goroutine, and all of
// them finish before the next epoch starts. Each region is re-decomposed by
// the oracle and run with the region catalog entry its index names.
func (s *Stencil) RunObase(ctx context.Context, plan *ir.Plan) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	if len(snap.regions) == 0 {
		return configErr(ErrCodeEmptyCatalog, "obase run needs region kernels")
	}
	_, err = s.execute(ctx, plan, snap, 0, ModeObase)
	return err
}

// RunObaseMerge loads the kernel module generated for plan's color,
// registers its kernels, runs plan as RunObase does with region index n
// mapped to the n-th kernel set the module registered, then unloads the
// module. The fastest wall time across calls is kept (see BestTime).
func (s *Stencil) RunObaseMerge(ctx context.Context, plan *ir.Plan, base string, arrays []Field) (err error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	if _, err := s.snapshot(); err != nil {
		return err
	}
	if s.loader == nil {
		return configErr(ErrCodeNotRegistered, "no module loader configured")
	}

	path := codegen.KernelFile(base, plan.Color)
	mod, err := s.loader.Open(path)
	if err != nil {
		return &ExternalError{Command: "load " + path, Err: err}
	}
	first := s.RegionCount()
	defer func() {
		destroyErr := mod.DestroyKernels()
		closeErr := mod.Close()
		s.truncateRegions(first)
		if err == nil {
			if cleanup := errors.Join(destroyErr, closeErr); cleanup != nil {
				err = &ExternalError{Command: "unload " + path, Err: cleanup}
			}
		}
	}()

	if err := mod.CreateKernels(s, arrays); err != nil {
		return moduleErr(path, "create kernels", err)
	}
	if err := mod.RegisterKernels(s); err != nil {
		return moduleErr(path, "register kernels", err)
	}

	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	if len(snap.regions) == first {
		return configErr(ErrCodeEmptyCatalog, "module %s registered no region kernels", path)
	}
	elapsed, err := s.execute(ctx, plan, snap, first, ModeMerge)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.bestTime == 0 || elapsed < s.bestTime {
		s.bestTime = elapsed
	}
	s.mu.Unlock()
	return nil
}

// moduleErr keeps configuration errors raised through the Host as they are.
func moduleErr(path, step string, err error) error {
	if IsConfigError(err) || IsInternalError(err) {
		return err
	}
	return &ExternalError{Command: fmt.Sprintf("%s %s", step, path), Err: err}
}

// execute runs plan's epochs against snap.regions starting at entry base.
func (s *Stencil) execute(ctx context.Context, plan *ir.Plan, snap snapshot, base int, mode string) (time.Duration, error) {
	epochs, err := s.checkPlan(plan)
	if err != nil {
		return 0, err
	}
	d, err := s.decomposer(decomp.Config{
		Slope:     snap.slope,
		Phys:      snap.physical,
		Threshold: snap.threshold,
		Unroll:    snap.unroll,
	})
	if err != nil {
		return 0, configErr(ErrCodeInvalidDomain, "decomposer: %v", err)
	}
	run := s.runIDs.Generate()
	start := time.Now()

	for _, e := range epochs {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := s.runEpoch(ctx, d, plan, e, snap.regions, base); err != nil {
			return 0, err
		}
		epochsExecuted.WithLabelValues(mode).Inc()
		regionsExecuted.WithLabelValues(mode).Add(float64(e.Len()))
	}

	elapsed := time.Since(start)
	runDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	s.logger.Info("plan executed",
		"run", run,
		"mode", mode,
		"color", plan.Color,
		"epochs", len(epochs),
		"regions", len(plan.Regions),
		"elapsed", elapsed)
	return elapsed, nil
}

// runEpoch forks every region of e but the last, runs the last inline and
// joins.
func (s *Stencil) runEpoch(ctx context.Context, d Decomposer, plan *ir.Plan, e ir.Epoch, catalog []kernel.RegionEntry, base int) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, gctx := errgroup.WithContext(ctx)
	for i := e.Begin; i < e.End-1; i++ {
		eg.Go(func() error {
			return s.runRegion(gctx, d, plan, i, catalog, base)
		})
	}
	// The last region runs inline; its failure cancels the siblings too.
	lastErr := s.runRegion(gctx, d, plan, e.End-1, catalog, base)
	if lastErr != nil {
		cancel()
		_ = eg.Wait()
		return lastErr
	}
	return eg.Wait()
}

func (s *Stencil) runRegion(ctx context.Context, d Decomposer, plan *ir.Plan, i int, catalog []kernel.RegionEntry, base int) error {
	r := plan.Regions[i]
	idx := base + r.Index
	if r.Index < 0 || idx >= len(catalog) {
		return internalErr("region %d has index %d, catalog holds %d entries from %d", i, r.Index, len(catalog)-base, base)
	}
	return recovered(i, func() error {
		err := d.Execute(ctx, r.T0, r.T1, r.Grid, catalog[idx].Set)
		if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return &InternalError{Message: fmt.Sprintf("region %d", i), Err: err}
	})
}

// recovered runs fn and turns a panic into an InternalError.
func recovered(region int, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InternalError{
				Message: fmt.Sprintf("region %d", region),
				Err:     &decomp.PanicError{Value: r, Stack: debug.Stack()},
			}
		}
	}()
	return fn()
}

// checkPlan resolves plan's epochs and checks it fits this stencil.
func (s *Stencil) checkPlan(plan *ir.Plan) ([]ir.Epoch, error) {
	if plan == nil {
		return nil, configErr(ErrCodeInvalidPlan, "nil plan")
	}
	if err := plan.Validate(); err != nil {
		return nil, configErr(ErrCodeInvalidPlan, "%v", err)
	}
	if r := plan.Rank(); r != 0 && r != s.rank {
		return nil, configErr(ErrCodeRankMismatch, "plan rank %d, stencil rank %d", r, s.rank)
	}
	epochs, err := plan.Epochs()
	if err != nil {
		return nil, configErr(ErrCodeInvalidPlan, "%v", err)
	}
	return epochs, nil
}
