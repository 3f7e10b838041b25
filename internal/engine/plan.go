package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/decomp"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/planfile"
)

// GenPlan decomposes [timeShift, timeShift+timesteps) over the logical
// domain and linearizes the result. Every region has index 0; regions
// without points are kept.
func (s *Stencil) GenPlan(ctx context.Context, timesteps int) (*ir.Plan, error) {
	snap, err := s.planSnapshot(timesteps)
	if err != nil {
		return nil, err
	}
	run := s.runIDs.Generate()
	start := time.Now()

	d, err := s.decomposer(decomp.Config{
		Slope:     snap.slope,
		Phys:      snap.physical,
		Threshold: snap.threshold,
		Unroll:    snap.unroll,
		KeepEmpty: true,
	})
	if err != nil {
		return nil, configErr(ErrCodeInvalidDomain, "decomposer: %v", err)
	}
	plan, _, err := s.decompose(ctx, d, snap, timesteps)
	if err != nil {
		return nil, err
	}
	plan.Color = s.colors.Next()

	plansGenerated.WithLabelValues(ModeDirect).Inc()
	s.logger.Info("plan generated",
		"run", run,
		"mode", ModeDirect,
		"color", plan.Color,
		"regions", len(plan.Regions),
		"epochs", len(plan.Sync)-1,
		"elapsed", time.Since(start))
	return plan, nil
}

// GenTiledPlan decomposes like GenPlan but colors each region by the
// homogeneity of the tile guards over it, drops regions without points,
// writes the color vector next to base and launches the code generator to
// produce the kernel module the plan pairs with.
func (s *Stencil) GenTiledPlan(ctx context.Context, timesteps int, mode, base string) (*ir.Plan, error) {
	snap, err := s.planSnapshot(timesteps)
	if err != nil {
		return nil, err
	}
	if len(snap.tiles) == 0 {
		return nil, configErr(ErrCodeEmptyCatalog, "tiled plan needs tile kernels")
	}
	run := s.runIDs.Generate()
	start := time.Now()

	guards := make([]kernel.Guard, len(snap.tiles))
	for i, e := range snap.tiles {
		guards[i] = e.Guard
	}
	d, err := s.decomposer(decomp.Config{
		Slope:     snap.slope,
		Phys:      snap.physical,
		Threshold: snap.threshold,
		Unroll:    snap.unroll,
		Guards:    guards,
	})
	if err != nil {
		return nil, configErr(ErrCodeInvalidDomain, "decomposer: %v", err)
	}

	plan, colors, err := s.decompose(ctx, d, snap, timesteps)
	if err != nil {
		return nil, err
	}
	plan.Color = s.colors.Next()

	cv := ir.ColorVector{Color: plan.Color, Mode: mode, Guards: len(guards), Colors: colors}
	cv.AddUnique(White(len(guards)))
	colorFile := codegen.ColorFile(base, plan.Color)
	if err := codegen.WriteColorVector(colorFile, &cv); err != nil {
		return nil, &ExternalError{Command: "write " + colorFile, Err: err}
	}
	outFile := codegen.KernelFile(base, plan.Color)
	if err := s.generator.Generate(ctx, plan.Color, mode, colorFile, outFile); err != nil {
		return nil, &ExternalError{Command: fmt.Sprintf("generate %s", outFile), Err: err}
	}

	plansGenerated.WithLabelValues(ModeTiled).Inc()
	s.logger.Info("plan generated",
		"run", run,
		"mode", ModeTiled,
		"color", plan.Color,
		"colors", len(cv.Colors),
		"regions", len(plan.Regions),
		"epochs", len(plan.Sync)-1,
		"kernel_file", outFile,
		"elapsed", time.Since(start))
	return plan, nil
}

// White is the color with every guard checked per point; it is valid for
// any region.
func White(guards int) ir.Homogeneity {
	if guards >= decomp.MaxGuards {
		return ir.Homogeneity{A: ^uint64(0)}
	}
	return ir.Homogeneity{A: uint64(1)<<guards - 1}
}

func (s *Stencil) planSnapshot(timesteps int) (snapshot, error) {
	if timesteps < 1 {
		return snapshot{}, configErr(ErrCodeInvalidDomain, "timesteps %d, want >= 1", timesteps)
	}
	return s.snapshot()
}

func (s *Stencil) decompose(ctx context.Context, d Decomposer, snap snapshot, timesteps int) (*ir.Plan, []ir.Homogeneity, error) {
	t0 := snap.timeShift
	tree, colors, err := d.Bisect(t0, t0+timesteps, snap.logical)
	if err != nil {
		return nil, nil, configErr(ErrCodeInvalidDomain, "bisect: %v", err)
	}
	regions, sync, err := linearize(ctx, tree)
	if err != nil {
		return nil, nil, err
	}
	return &ir.Plan{Regions: regions, Sync: sync}, colors, nil
}

// linearize drains tree one epoch at a time: every region reachable without
// crossing a sync forms the next epoch.
func linearize(ctx context.Context, tree SpawnTree) ([]ir.Region, []int, error) {
	var regions []ir.Region
	var counts []int
	begin := tree.Size()
	for begin > 1 {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		before := len(regions)
		regions = tree.CollectUntilSync(regions)
		collected := begin - tree.Size()
		if collected != len(regions)-before {
			return nil, nil, internalErr("tree shrank by %d but yielded %d regions", collected, len(regions)-before)
		}
		if collected > 0 {
			counts = append(counts, collected)
		}
		pruned := tree.PruneSync()
		if collected == 0 && pruned == 0 {
			return nil, nil, internalErr("linearization stalled with %d nodes left", tree.Size())
		}
		begin = tree.Size()
	}
	return regions, ir.SyncFromCounts(counts), nil
}

// StorePlan writes plan to the two side files derived from path.
func (s *Stencil) StorePlan(path string, plan *ir.Plan) error {
	if err := planfile.Store(path, plan); err != nil {
		return fmt.Errorf("store plan: %w", err)
	}
	s.logger.Debug("plan stored", "path", path, "regions", len(plan.Regions))
	return nil
}

// LoadPlan reads a plan stored by StorePlan and checks it fits this stencil.
func (s *Stencil) LoadPlan(path string) (*ir.Plan, error) {
	plan, err := planfile.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	if r := plan.Rank(); r != 0 && r != s.rank {
		return nil, configErr(ErrCodeRankMismatch, "plan rank %d, stencil rank %d", r, s.rank)
	}
	return plan, nil
}
