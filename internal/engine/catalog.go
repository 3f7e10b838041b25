package engine

import (
	"slices"

	"github.com/roach88/stencil/internal/decomp"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
)

// RegisterTileKernels appends an inclusive catalog entry: wherever g holds,
// the tile kernel positioned at the point runs. The tile's kernel shapes are
// registered first.
func (s *Stencil) RegisterTileKernels(g kernel.Guard, tile kernel.Tile) error {
	if g == nil {
		return configErr(ErrCodeInvalidKernel, "tile kernels need a guard")
	}
	if err := tile.Layout(); err != nil {
		return configErr(ErrCodeInvalidKernel, "tile: %v", err)
	}
	if len(tile.Dims) > s.rank+1 {
		return configErr(ErrCodeInvalidKernel, "tile has %d dims, stencil has %d coordinates", len(tile.Dims), s.rank+1)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tiles) >= decomp.MaxGuards {
		return configErr(ErrCodeInvalidKernel, "more than %d tile guards", decomp.MaxGuards)
	}
	if err := s.addShapesLocked(tile.Shapes()); err != nil {
		return err
	}
	if !s.shape.Registered() {
		return configErr(ErrCodeShapeNotRegistered, "tile kernels registered before shape")
	}
	s.tiles = append(s.tiles, kernel.TileEntry{Guard: g, Tile: tile})
	s.tileCount++
	if s.tileCount != len(s.tiles) {
		return internalErr("tile counter %d diverged from catalog size %d", s.tileCount, len(s.tiles))
	}
	s.logger.Debug("tile kernels registered", "entry", len(s.tiles)-1, "dims", tile.Dims)
	return nil
}

// RegisterRegionKernels appends an exclusive catalog entry. The stencil's
// unroll factor becomes the least common multiple of every entry's.
func (s *Stencil) RegisterRegionKernels(g kernel.Guard, unroll int, set kernel.RegionSet) error {
	if g == nil {
		return configErr(ErrCodeInvalidKernel, "region kernels need a guard")
	}
	if unroll < 1 {
		return configErr(ErrCodeInvalidKernel, "unroll %d, want >= 1", unroll)
	}
	if err := set.Validate(); err != nil {
		return configErr(ErrCodeInvalidKernel, "%v", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.addShapesLocked(set.Shapes()); err != nil {
		return err
	}
	if !s.shape.Registered() {
		return configErr(ErrCodeShapeNotRegistered, "region kernels registered before shape")
	}
	s.regions = append(s.regions, kernel.RegionEntry{Guard: g, Unroll: unroll, Set: set})
	s.unroll = kernel.LCM(s.unroll, unroll)
	s.regionCount++
	if s.regionCount != len(s.regions) {
		return internalErr("region counter %d diverged from catalog size %d", s.regionCount, len(s.regions))
	}
	s.logger.Debug("region kernels registered", "entry", len(s.regions)-1, "name", set.Kernel.Name, "unroll", s.unroll)
	return nil
}

// TileCount returns the number of tile catalog entries.
func (s *Stencil) TileCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tiles)
}

// RegionCount returns the number of region catalog entries.
func (s *Stencil) RegionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.regions)
}

// truncateRegions drops region entries from n on and recomputes unroll.
func (s *Stencil) truncateRegions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n >= len(s.regions) {
		return
	}
	s.regions = s.regions[:n:n]
	s.regionCount = n
	s.unroll = 1
	for _, e := range s.regions {
		s.unroll = kernel.LCM(s.unroll, e.Unroll)
	}
}

// TileRegionSet returns a region kernel set that steps regions through the
// current tile catalog, so plans can run in obase mode without generated
// kernels.
func (s *Stencil) TileRegionSet(name string) kernel.RegionSet {
	s.mu.RLock()
	tiles := slices.Clone(s.tiles)
	phys := s.physical.Clone()
	s.mu.RUnlock()

	fn := func(t0, t1 int, g ir.Grid) {
		stepRegion(ir.Region{T0: t0, T1: t1, Grid: g}, phys, tiles)
	}
	return kernel.RegionSet{
		Kernel:   kernel.BaseKernel{Name: name, Fn: fn},
		Boundary: kernel.BaseKernel{Name: name + "_boundary", Fn: fn},
	}
}
