// Package session assembles a ready-to-plan Stencil from a compiled spec:
// shape, arrays and domains are registered, and the spec's catalog module is
// generated, interpreted, and bound to the arrays.
package session

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/roach88/stencil/internal/array"
	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/modload"
)

// Execution modes.
const (
	ModeInterp = engine.ModeInterp
	ModeObase  = engine.ModeObase
	ModeMerge  = engine.ModeMerge
)

// Modes lists the accepted execution modes.
var Modes = []string{ModeInterp, ModeObase, ModeMerge}

var always kernel.Guard = func(int, []int) bool { return true }

// Session is one Stencil bound to the arrays and catalog kernels of a spec.
type Session struct {
	Spec    *ir.StencilSpec
	Stencil *engine.Stencil
	Arrays  []*array.Array[float64]

	fields  []engine.Field
	catalog *modload.Module
	logger  *slog.Logger
}

// Open builds a session for spec. opts are applied to the Stencil after the
// session's defaults (a yaegi module loader and an in-process generator).
func Open(spec *ir.StencilSpec, logger *slog.Logger, opts ...engine.Option) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	loader := modload.Loader{Logger: logger}
	base := []engine.Option{
		engine.WithLogger(logger),
		engine.WithModuleLoader(loader),
		engine.WithGenerator(codegen.Local{Spec: spec}),
	}
	st, err := engine.New(spec.Rank, append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := st.RegisterShape(spec.Shape); err != nil {
		return nil, err
	}

	s := &Session{Spec: spec, Stencil: st, logger: logger}
	regs := make([]engine.Array, 0, len(spec.Arrays))
	for _, as := range spec.Arrays {
		a, err := array.New[float64](as.Name, as.Dims)
		if err != nil {
			return nil, fmt.Errorf("array %s: %w", as.Name, err)
		}
		if as.Boundary == "clamp" {
			a.SetBoundary(array.Clamp[float64]())
		}
		s.Arrays = append(s.Arrays, a)
		s.fields = append(s.fields, a)
		regs = append(regs, a)
	}
	if err := st.RegisterArrays(regs); err != nil {
		return nil, err
	}
	if len(spec.Domain) > 0 {
		if err := st.RegisterDomains(spec.Domain); err != nil {
			return nil, err
		}
	}

	var src bytes.Buffer
	if err := codegen.Generate(&src, spec, nil, codegen.Options{Kind: codegen.KindCatalog}); err != nil {
		return nil, &engine.ExternalError{Command: "generate catalog " + spec.Name, Err: err}
	}
	mod, err := loader.OpenSource(spec.Name+"_catalog.go", src.Bytes())
	if err != nil {
		return nil, &engine.ExternalError{Command: "load catalog " + spec.Name, Err: err}
	}
	s.catalog = mod
	if err := mod.CreateKernels(st, s.fields); err != nil {
		s.Close()
		return nil, &engine.ExternalError{Command: "create kernels " + spec.Name, Err: err}
	}
	if mod.HasInit() {
		if err := mod.InitArrays(s.fields); err != nil {
			s.Close()
			return nil, &engine.ExternalError{Command: "init arrays " + spec.Name, Err: err}
		}
	}
	if err := mod.RegisterKernels(st); err != nil {
		s.Close()
		return nil, err
	}
	logger.Debug("session opened",
		"stencil", spec.Name,
		"rank", spec.Rank,
		"arrays", len(s.Arrays),
		"tiles", st.TileCount(),
		"slope", st.Slope(),
		"toggle", st.Toggle(),
		"time_shift", st.TimeShift())
	return s, nil
}

// Fields returns the arrays as the engine sees them.
func (s *Session) Fields() []engine.Field { return s.fields }

// Plan generates a direct plan, or a tiled plan whose color vector and
// merged module are written next to base.
func (s *Session) Plan(ctx context.Context, timesteps int, tiled bool, base string) (*ir.Plan, error) {
	if tiled {
		return s.Stencil.GenTiledPlan(ctx, timesteps, codegen.KindMerged.String(), base)
	}
	return s.Stencil.GenPlan(ctx, timesteps)
}

// Execute runs plan in mode. Obase mode steps every region through the
// tile catalog; merge mode loads the module generated for a tiled plan
// at base.
func (s *Session) Execute(ctx context.Context, plan *ir.Plan, mode, base string) error {
	switch mode {
	case ModeInterp:
		return s.Stencil.Run(ctx, plan)
	case ModeObase:
		if err := s.ensureRegionSets(plan); err != nil {
			return err
		}
		return s.Stencil.RunObase(ctx, plan)
	case ModeMerge:
		return s.Stencil.RunObaseMerge(ctx, plan, base, s.fields)
	default:
		return fmt.Errorf("unknown mode %q (want one of %v)", mode, Modes)
	}
}

// ensureRegionSets registers tile-stepping region sets until every index
// plan uses has one.
func (s *Session) ensureRegionSets(plan *ir.Plan) error {
	need := 1
	for _, r := range plan.Regions {
		need = max(need, r.Index+1)
	}
	for n := s.Stencil.RegionCount(); n < need; n++ {
		set := s.Stencil.TileRegionSet(fmt.Sprintf("%s_tiles_%d", s.Spec.Name, n))
		if err := s.Stencil.RegisterRegionKernels(always, 1, set); err != nil {
			return err
		}
	}
	return nil
}

// Reset clears every array and reapplies the spec's initial values.
func (s *Session) Reset() error {
	for _, a := range s.Arrays {
		a.Clear()
	}
	if s.catalog.HasInit() {
		if err := s.catalog.InitArrays(s.fields); err != nil {
			return &engine.ExternalError{Command: "init arrays " + s.Spec.Name, Err: err}
		}
	}
	return nil
}

// Sweep advances the arrays through [t0, t0+timesteps) one step at a time
// over the whole logical domain, with no decomposition.
func (s *Session) Sweep(t0, timesteps int) {
	g := s.Stencil.LogicalGrid()
	for axis := range g.DX0 {
		g.DX0[axis], g.DX1[axis] = 0, 0
	}
	set := s.Stencil.TileRegionSet(s.Spec.Name + "_sweep")
	set.Kernel.Fn(t0, t0+timesteps, g)
}

// Checksum sums the first array's layer at t.
func (s *Session) Checksum(t int) float64 {
	var sum float64
	for _, v := range s.Arrays[0].Snapshot(t) {
		sum += v
	}
	return sum
}

// MaxDiff returns the largest absolute difference between the layers at t
// of s and o, array by array.
func (s *Session) MaxDiff(o *Session, t int) float64 {
	var d float64
	for n, a := range s.Arrays {
		want := o.Arrays[n].Snapshot(t)
		for i, v := range a.Snapshot(t) {
			d = math.Max(d, math.Abs(v-want[i]))
		}
	}
	return d
}

// Close releases the catalog module.
func (s *Session) Close() error {
	if s.catalog == nil {
		return nil
	}
	err := s.catalog.DestroyKernels()
	if cerr := s.catalog.Close(); err == nil {
		err = cerr
	}
	s.catalog = nil
	return err
}
