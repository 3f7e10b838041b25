// Package decomp is the reference decomposition oracle: it cuts a
// space-time region into trapezoids whose dependencies are captured by
// sync markers, either building a spawn tree for planning or executing the
// pieces directly with fork/join parallelism.
//
// Cuts assume the region's reads outside itself were satisfied by earlier
// work and that boundary values never depend on points computed in the
// same run of parallel siblings.
package decomp

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/walk"
)

// MaxGuards is the number of tile guards a homogeneity mask can describe.
const MaxGuards = 64

// Config parameterizes an Oracle.
type Config struct {
	// Slope is the per-axis spatial growth per time step.
	Slope []int
	// Phys is the physical domain; reads beyond it select boundary kernels.
	Phys ir.Grid
	// Threshold is the largest number of point updates in a base region.
	Threshold int
	// Unroll aligns time cuts and selects cond kernels.
	Unroll int
	// Guards colors each base region when non-empty.
	Guards []kernel.Guard
	// KeepEmpty retains regions without points in the spawn tree.
	KeepEmpty bool
}

// Oracle cuts regions according to its Config.
type Oracle struct {
	cfg Config
}

// New validates cfg and returns an Oracle.
func New(cfg Config) (*Oracle, error) {
	if err := cfg.Phys.Validate(); err != nil {
		return nil, fmt.Errorf("physical domain: %w", err)
	}
	if len(cfg.Slope) != cfg.Phys.Rank() {
		return nil, fmt.Errorf("slope rank %d, physical domain rank %d", len(cfg.Slope), cfg.Phys.Rank())
	}
	for axis, s := range cfg.Slope {
		if s < 0 {
			return nil, fmt.Errorf("negative slope %d on axis %d", s, axis)
		}
	}
	if cfg.Threshold < 1 {
		return nil, fmt.Errorf("threshold %d, want >= 1", cfg.Threshold)
	}
	if cfg.Unroll < 1 {
		cfg.Unroll = 1
	}
	if len(cfg.Guards) > MaxGuards {
		return nil, fmt.Errorf("%d guards exceed homogeneity mask of %d", len(cfg.Guards), MaxGuards)
	}
	cfg.Slope = append([]int(nil), cfg.Slope...)
	cfg.Phys = cfg.Phys.Clone()
	return &Oracle{cfg: cfg}, nil
}

// Config returns a copy of the oracle's configuration.
func (o *Oracle) Config() Config { return o.cfg }

type zoid struct {
	t0, t1 int
	g      ir.Grid
}

func (z zoid) steps() int { return z.t1 - z.t0 }

// width on axis at step s of the zoid.
func (z zoid) width(axis, s int) int {
	return z.g.X1[axis] + z.g.DX1[axis]*s - z.g.X0[axis] - z.g.DX0[axis]*s
}

// empty reports whether no step of the zoid holds a point.
func (z zoid) empty() bool {
	last := z.steps() - 1
	for axis := range z.g.X0 {
		if z.width(axis, 0) <= 0 && z.width(axis, last) <= 0 {
			return true
		}
	}
	return false
}

// work bounds the number of point updates in the zoid.
func (z zoid) work() int {
	last := z.steps() - 1
	v := z.steps()
	for axis := range z.g.X0 {
		w := max(z.width(axis, 0), z.width(axis, last))
		if w <= 0 {
			return 0
		}
		v *= w
	}
	return v
}

func (o *Oracle) checkRegion(t0, t1 int, g ir.Grid) error {
	if t0 >= t1 {
		return fmt.Errorf("empty time interval [%d, %d)", t0, t1)
	}
	if err := g.Validate(); err != nil {
		return err
	}
	if g.Rank() != len(o.cfg.Slope) {
		return fmt.Errorf("grid rank %d, oracle rank %d", g.Rank(), len(o.cfg.Slope))
	}
	return nil
}

// split cuts z into groups that run in order; zoids within a group are
// independent. A nil result means z is a base region.
func (o *Oracle) split(z zoid) [][]zoid {
	if z.work() <= o.cfg.Threshold {
		return nil
	}
	if groups := o.spaceCut(z); groups != nil {
		return groups
	}
	if z.steps() > 1 {
		return o.timeCut(z)
	}
	return nil
}

// spaceCut cuts the widest axis that admits a trapezoid cut.
func (o *Oracle) spaceCut(z zoid) [][]zoid {
	var best [][]zoid
	bestWidth := 0
	for axis := range z.g.X0 {
		w := max(z.width(axis, 0), z.width(axis, z.steps()-1))
		if w <= bestWidth {
			continue
		}
		var groups [][]zoid
		if z.width(axis, z.steps()-1) > z.width(axis, 0) {
			groups = o.invertedCut(z, axis)
		} else {
			groups = o.uprightCut(z, axis)
		}
		if groups != nil {
			best, bestWidth = groups, w
		}
	}
	return best
}

// uprightCut splits at the middle of the bottom into two shrinking halves
// that run in parallel, then the inverted triangle between them.
func (o *Oracle) uprightCut(z zoid, axis int) [][]zoid {
	x0, x1 := z.g.X0[axis], z.g.X1[axis]
	xm := x0 + (x1-x0)/2
	if xm <= x0 || xm >= x1 {
		return nil
	}
	s := o.cfg.Slope[axis]
	last := z.steps() - 1

	left := z.sub(axis, x0, xm, z.g.DX0[axis], -s)
	right := z.sub(axis, xm, x1, s, z.g.DX1[axis])
	if left.width(axis, last) < 0 || right.width(axis, last) < 0 {
		return nil
	}
	middle := z.sub(axis, xm, xm, -s, s)
	return [][]zoid{{left, right}, {middle}}
}

// invertedCut runs the shrinking triangle at the middle first, then the two
// growing sides in parallel.
func (o *Oracle) invertedCut(z zoid, axis int) [][]zoid {
	x0, x1 := z.g.X0[axis], z.g.X1[axis]
	xm := x0 + (x1-x0)/2
	if xm <= x0 || xm >= x1 {
		return nil
	}
	s := o.cfg.Slope[axis]
	a, b := xm-s*z.steps(), xm+s*z.steps()
	if a < x0 || b > x1 {
		return nil
	}
	last := z.steps() - 1

	middle := z.sub(axis, a, b, s, -s)
	left := z.sub(axis, x0, a, z.g.DX0[axis], s)
	right := z.sub(axis, b, x1, -s, z.g.DX1[axis])
	if left.width(axis, last) < 0 || right.width(axis, last) < 0 {
		return nil
	}
	return [][]zoid{{middle}, {left, right}}
}

// timeCut splits at half the steps, aligned to the unroll factor when the
// zoid is tall enough.
func (o *Oracle) timeCut(z zoid) [][]zoid {
	dt := z.steps()
	h := dt / 2
	if u := o.cfg.Unroll; u > 1 && dt >= 2*u {
		h = h / u * u
	}
	bottom := zoid{t0: z.t0, t1: z.t0 + h, g: z.g.Clone()}
	top := zoid{t0: z.t0 + h, t1: z.t1, g: z.g.Clone()}
	top.g.Advance(h)
	return [][]zoid{{bottom}, {top}}
}

// sub returns z narrowed on axis to [x0, x1) with deltas dx0, dx1.
func (z zoid) sub(axis, x0, x1, dx0, dx1 int) zoid {
	g := z.g.Clone()
	g.X0[axis], g.X1[axis] = x0, x1
	g.DX0[axis], g.DX1[axis] = dx0, dx1
	return zoid{t0: z.t0, t1: z.t1, g: g}
}

// boundary reports whether the zoid's reads can leave the physical domain.
func (o *Oracle) boundary(z zoid) bool {
	last := z.steps() - 1
	for axis, s := range o.cfg.Slope {
		lo := min(z.g.X0[axis], z.g.X0[axis]+z.g.DX0[axis]*last) - s
		hi := max(z.g.X1[axis], z.g.X1[axis]+z.g.DX1[axis]*last) + s
		if lo < o.cfg.Phys.X0[axis] || hi > o.cfg.Phys.X1[axis] {
			return true
		}
	}
	return false
}

// homogeneity evaluates every configured guard over the zoid's points.
func (o *Oracle) homogeneity(z zoid) ir.Homogeneity {
	if len(o.cfg.Guards) == 0 {
		return ir.Homogeneity{}
	}
	all := uint64(1)<<len(o.cfg.Guards) - 1
	if len(o.cfg.Guards) == MaxGuards {
		all = ^uint64(0)
	}
	h := ir.Homogeneity{O: all}
	seen := false
	walk.SweepWrapped(z.t0, z.t1, z.g, o.cfg.Phys, func(t int, idx []int) {
		seen = true
		for gi, guard := range o.cfg.Guards {
			bit := uint64(1) << gi
			if guard(t, idx) {
				h.A |= bit
			} else {
				h.O &^= bit
			}
		}
	})
	if !seen {
		return ir.Homogeneity{}
	}
	return h
}

// Bisect decomposes [t0, t1) x g into a spawn tree. With guards configured
// each leaf's Index points into the returned color table; otherwise every
// index is 0 and the table is empty.
func (o *Oracle) Bisect(t0, t1 int, g ir.Grid) (*Tree, []ir.Homogeneity, error) {
	if err := o.checkRegion(t0, t1, g); err != nil {
		return nil, nil, err
	}
	var colors ir.ColorVector
	root := o.build(zoid{t0: t0, t1: t1, g: g.Clone()}, &colors)
	return newTree(root), colors.Colors, nil
}

func (o *Oracle) build(z zoid, colors *ir.ColorVector) *node {
	if z.empty() && !o.cfg.KeepEmpty {
		return nil
	}
	groups := o.split(z)
	if groups == nil {
		r := ir.Region{T0: z.t0, T1: z.t1, Grid: z.g}
		if len(o.cfg.Guards) > 0 {
			r.Index = colors.AddUnique(o.homogeneity(z))
		}
		return &node{region: &r}
	}
	n := &node{}
	for _, group := range groups {
		var members []*node
		for _, child := range group {
			if c := o.build(child, colors); c != nil {
				members = append(members, c)
			}
		}
		if len(members) == 0 {
			continue
		}
		if len(n.children) > 0 {
			n.children = append(n.children, &node{sync: true})
		}
		n.children = append(n.children, members...)
	}
	if len(n.children) == 0 {
		return nil
	}
	return n
}

// Execute decomposes [t0, t1) x g and runs every base region with the
// variant of set it needs. Independent pieces run concurrently; a panic in
// a kernel is returned as an error.
func (o *Oracle) Execute(ctx context.Context, t0, t1 int, g ir.Grid, set kernel.RegionSet) error {
	if err := o.checkRegion(t0, t1, g); err != nil {
		return err
	}
	if err := set.Validate(); err != nil {
		return err
	}
	return o.exec(ctx, zoid{t0: t0, t1: t1, g: g.Clone()}, set)
}

func (o *Oracle) exec(ctx context.Context, z zoid, set kernel.RegionSet) error {
	if z.empty() {
		return nil
	}
	groups := o.split(z)
	if groups == nil {
		k := set.Pick(z.steps(), o.cfg.Unroll, o.boundary(z))
		return guarded(func() error {
			k.Fn(z.t0, z.t1, z.g.Clone())
			return nil
		})
	}
	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(group) == 1 {
			if err := o.exec(ctx, group[0], set); err != nil {
				return err
			}
			continue
		}
		eg, gctx := errgroup.WithContext(ctx)
		for _, child := range group {
			eg.Go(func() error {
				return guarded(func() error { return o.exec(gctx, child, set) })
			})
		}
		if err := eg.Wait(); err != nil {
			return err
		}
	}
	return nil
}

// PanicError carries a panic recovered from kernel code.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic: %v", e.Value)
}

func guarded(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if pe, ok := r.(*PanicError); ok {
				err = pe
				return
			}
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return fn()
}
