package engine

import (
	"context"

	"github.com/roach88/stencil/internal/decomp"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
)

// Array is a storage container bound to a Stencil.
type Array interface {
	Rank() int
	Size(axis int) int
	ElemSize() int
	RegisterShape(shape []ir.Shift)
}

// Field is an Array of float64 values that generated kernel modules read
// and write.
type Field interface {
	Array
	At(t int, idx ...int) float64
	Set(t int, v float64, idx ...int)
}

// SpawnTree is a decomposition tree drained level by level into epochs.
type SpawnTree interface {
	// Size returns the number of nodes left, root included.
	Size() int
	// CollectUntilSync appends and removes every region not behind a sync.
	CollectUntilSync(dst []ir.Region) []ir.Region
	// PruneSync removes resolved structure and returns how much it removed.
	PruneSync() int
}

// Decomposer is the decomposition oracle.
type Decomposer interface {
	// Bisect builds a spawn tree over [t0, t1) x g. When guards are
	// configured, region indices point into the returned color table.
	Bisect(t0, t1 int, g ir.Grid) (SpawnTree, []ir.Homogeneity, error)
	// Execute re-decomposes [t0, t1) x g and runs it with set.
	Execute(ctx context.Context, t0, t1 int, g ir.Grid, set kernel.RegionSet) error
}

// DecomposerFactory builds a Decomposer for one plan generation or run.
type DecomposerFactory func(cfg decomp.Config) (Decomposer, error)

// DefaultDecomposer wraps the reference oracle.
func DefaultDecomposer(cfg decomp.Config) (Decomposer, error) {
	o, err := decomp.New(cfg)
	if err != nil {
		return nil, err
	}
	return oracle{o}, nil
}

type oracle struct{ *decomp.Oracle }

func (o oracle) Bisect(t0, t1 int, g ir.Grid) (SpawnTree, []ir.Homogeneity, error) {
	tree, colors, err := o.Oracle.Bisect(t0, t1, g)
	if err != nil {
		return nil, nil, err
	}
	return tree, colors, nil
}

// Host is the view of a Stencil that a kernel module gets.
type Host interface {
	Rank() int
	PhysicalGrid() ir.Grid
	RegisterTileKernels(g kernel.Guard, tile kernel.Tile) error
	RegisterRegionKernels(g kernel.Guard, unroll int, set kernel.RegionSet) error
}

// Module is a loaded kernel module. Its lifetime is one RunObaseMerge call.
type Module interface {
	// CreateKernels builds kernel closures bound to host and arrays.
	CreateKernels(host Host, arrays []Field) error
	// RegisterKernels installs the kernels into host's catalogs.
	RegisterKernels(host Host) error
	// DestroyKernels releases what CreateKernels built.
	DestroyKernels() error
	Close() error
}

// ModuleLoader opens generated kernel modules.
type ModuleLoader interface {
	Open(path string) (Module, error)
}

// Generator produces a kernel module source file for a tiled plan.
type Generator interface {
	Generate(ctx context.Context, color int, mode, colorFile, outFile string) error
}
