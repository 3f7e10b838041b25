package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/array"
	"github.com/roach88/stencil/internal/decomp"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/testutil"
)

func always(int, []int) bool { return true }

func rect(x0, x1 int) ir.Grid {
	return ir.Grid{X0: []int{x0}, X1: []int{x1}, DX0: []int{0}, DX1: []int{0}}
}

// newHeat returns a configured rank-1 stencil with one n-point heat array.
// The threshold is 16 points so plans have several epochs.
func newHeat(t *testing.T, n int, opts ...Option) (*Stencil, *array.Array[float64]) {
	t.Helper()
	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithRunIDs(testutil.FixedRunID("run")),
		WithConfig(Config{ThresholdBytes: 16 * 8}),
	}
	s, err := New(1, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, s.RegisterShape(testutil.HeatShape()))
	u := testutil.HeatArray(t, n)
	require.NoError(t, s.RegisterArrays([]Array{u}))
	return s, u
}

// epochTree yields one epoch per call to CollectUntilSync.
type epochTree struct {
	epochs [][]ir.Region
}

func (f *epochTree) Size() int {
	n := 1
	for _, e := range f.epochs {
		n += len(e)
	}
	return n
}

func (f *epochTree) CollectUntilSync(dst []ir.Region) []ir.Region {
	if len(f.epochs) == 0 {
		return dst
	}
	dst = append(dst, f.epochs[0]...)
	f.epochs = f.epochs[1:]
	return dst
}

func (f *epochTree) PruneSync() int { return 0 }

// stuckTree never shrinks.
type stuckTree struct{}

func (stuckTree) Size() int                                     { return 4 }
func (stuckTree) CollectUntilSync(dst []ir.Region) []ir.Region { return dst }
func (stuckTree) PruneSync() int                                { return 0 }

// leakyTree shrinks without yielding the regions it dropped.
type leakyTree struct{ size int }

func (l *leakyTree) Size() int { return l.size }
func (l *leakyTree) CollectUntilSync(dst []ir.Region) []ir.Region {
	l.size--
	return dst
}
func (l *leakyTree) PruneSync() int { return 0 }

// recordingDecomposer returns a fixed tree and logs the start and end of
// every executed region, keyed by the region's first x coordinate.
type recordingDecomposer struct {
	tree SpawnTree
	log  *testutil.EventLog
}

func (d *recordingDecomposer) Bisect(int, int, ir.Grid) (SpawnTree, []ir.Homogeneity, error) {
	return d.tree, nil, nil
}

func (d *recordingDecomposer) Execute(ctx context.Context, t0, t1 int, g ir.Grid, set kernel.RegionSet) error {
	d.log.Record(fmt.Sprintf("begin %d", g.X0[0]))
	time.Sleep(time.Millisecond)
	set.Kernel.Fn(t0, t1, g)
	d.log.Record(fmt.Sprintf("end %d", g.X0[0]))
	return nil
}

func withDecomposer(d Decomposer) Option {
	return WithDecomposer(func(decomp.Config) (Decomposer, error) { return d, nil })
}

type generatorCall struct {
	color     int
	mode      string
	colorFile string
	outFile   string
}

type fakeGenerator struct {
	calls []generatorCall
	err   error
}

func (g *fakeGenerator) Generate(_ context.Context, color int, mode, colorFile, outFile string) error {
	g.calls = append(g.calls, generatorCall{color, mode, colorFile, outFile})
	return g.err
}

// fakeModule registers set once per RegisterKernels call.
type fakeModule struct {
	set       func(host Host, arrays []Field) kernel.RegionSet
	arrays    []Field
	created   bool
	destroyed bool
	closed    bool
	failOn    string
}

func (m *fakeModule) CreateKernels(host Host, arrays []Field) error {
	if m.failOn == "create" {
		return errors.New("create failed")
	}
	m.arrays = arrays
	m.created = true
	return nil
}

func (m *fakeModule) RegisterKernels(host Host) error {
	if m.failOn == "register" {
		return errors.New("register failed")
	}
	if m.set == nil {
		return nil
	}
	return host.RegisterRegionKernels(always, 1, m.set(host, m.arrays))
}

func (m *fakeModule) DestroyKernels() error {
	m.destroyed = true
	return nil
}

func (m *fakeModule) Close() error {
	m.closed = true
	return nil
}

type fakeLoader struct {
	mod   *fakeModule
	paths []string
	err   error
}

func (l *fakeLoader) Open(path string) (Module, error) {
	l.paths = append(l.paths, path)
	if l.err != nil {
		return nil, l.err
	}
	return l.mod, nil
}
