package engine

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/shape"
)

// State is the registration phase of a Stencil.
type State int

const (
	// Unregistered means no shape has been registered.
	Unregistered State = iota
	// ShapeReady means the shape is known but arrays or domains are missing.
	ShapeReady
	// Configured means plans can be generated and run.
	Configured
)

func (s State) String() string {
	switch s {
	case Unregistered:
		return "unregistered"
	case ShapeReady:
		return "shape-ready"
	case Configured:
		return "configured"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type flag uint8

const (
	flagArray flag = 1 << iota
	flagLogical
	flagPhysical
)

// Stencil is the orchestration object: it owns the shape, the bound arrays
// and domains, both kernel catalogs and the color clock.
//
// Thread-safety model:
//   - registration and accessors are safe from any goroutine
//   - plans are read-only and may be run concurrently
//   - RunObaseMerge calls are serialized, since each one loads a module
//     into the region catalog for its duration
type Stencil struct {
	mu sync.RWMutex

	rank     int
	shape    *shape.Registry
	flags    flag
	elemSize int
	extents  []int
	logical  ir.Grid
	physical ir.Grid
	arrays   []Array

	tiles       []kernel.TileEntry
	tileCount   int
	regions     []kernel.RegionEntry
	regionCount int
	unroll      int

	bestTime time.Duration
	mergeMu  sync.Mutex

	cfg        Config
	logger     *slog.Logger
	colors     *ColorClock
	runIDs     RunIDGenerator
	decomposer DecomposerFactory
	loader     ModuleLoader
	generator  Generator
}

// Option configures a Stencil.
type Option func(*Stencil)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Stencil) { s.logger = l }
}

// WithConfig replaces the default Config.
func WithConfig(cfg Config) Option {
	return func(s *Stencil) { s.cfg = cfg }
}

// WithColorClock shares or seeds the color clock.
func WithColorClock(c *ColorClock) Option {
	return func(s *Stencil) { s.colors = c }
}

// WithRunIDs sets the generator labelling plans and runs in logs.
func WithRunIDs(g RunIDGenerator) Option {
	return func(s *Stencil) { s.runIDs = g }
}

// WithDecomposer replaces the reference decomposition oracle.
func WithDecomposer(f DecomposerFactory) Option {
	return func(s *Stencil) { s.decomposer = f }
}

// WithModuleLoader sets the loader used by RunObaseMerge.
func WithModuleLoader(l ModuleLoader) Option {
	return func(s *Stencil) { s.loader = l }
}

// WithGenerator replaces the code generator launched by GenTiledPlan.
// Default: codegen.Runner over Config.Codegen.
func WithGenerator(g Generator) Option {
	return func(s *Stencil) { s.generator = g }
}

// New creates an unregistered Stencil with rank spatial axes.
func New(rank int, opts ...Option) (*Stencil, error) {
	if rank < 1 || rank > ir.MaxRank {
		return nil, configErr(ErrCodeRankMismatch, "rank %d out of range [1, %d]", rank, ir.MaxRank)
	}
	s := &Stencil{
		rank:       rank,
		shape:      shape.NewRegistry(rank),
		logical:    ir.NewGrid(rank),
		physical:   ir.NewGrid(rank),
		unroll:     1,
		cfg:        DefaultConfig(),
		logger:     slog.Default(),
		colors:     NewColorClock(),
		runIDs:     UUIDv7Generator{},
		decomposer: DefaultDecomposer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.generator == nil {
		s.generator = codegen.Runner{Argv: s.cfg.Codegen}
	}
	return s, nil
}

// Rank returns the number of spatial axes.
func (s *Stencil) Rank() int { return s.rank }

// State reports the registration phase.
func (s *Stencil) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Stencil) stateLocked() State {
	if !s.shape.Registered() {
		return Unregistered
	}
	if s.flags == flagArray|flagLogical|flagPhysical {
		return Configured
	}
	return ShapeReady
}

// RegisterShape adds entries to the stencil shape. It must precede array
// registration.
func (s *Stencil) RegisterShape(entries []ir.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.flags&flagArray != 0 {
		return configErr(ErrCodeOutOfOrder, "shape registered after arrays")
	}
	if err := s.shape.Register(entries); err != nil {
		return &ConfigError{Code: ErrCodeInvalidKernel, Message: err.Error()}
	}
	s.logger.Debug("shape registered",
		"entries", s.shape.Len(),
		"slope", s.shape.Slope(),
		"toggle", s.shape.Toggle(),
		"time_shift", s.shape.TimeShift())
	return nil
}

// addShapesLocked registers kernel shapes. Once arrays are bound, a kernel
// may not widen slope, toggle or time shift.
func (s *Stencil) addShapesLocked(shapes [][]ir.Shift) error {
	if len(shapes) == 0 {
		return nil
	}
	next := s.shape.Clone()
	for _, sh := range shapes {
		if err := next.Register(sh); err != nil {
			return &ConfigError{Code: ErrCodeInvalidKernel, Message: err.Error()}
		}
	}
	if s.flags&flagArray != 0 {
		if !slices.Equal(next.Slope(), s.shape.Slope()) ||
			next.Toggle() != s.shape.Toggle() ||
			next.TimeShift() != s.shape.TimeShift() {
			return configErr(ErrCodeOutOfOrder, "kernel shape widens slope %v toggle %d after arrays were registered",
				s.shape.Slope(), s.shape.Toggle())
		}
	}
	s.shape = next
	s.logger.Debug("kernel shapes registered",
		"entries", s.shape.Len(),
		"slope", s.shape.Slope(),
		"toggle", s.shape.Toggle())
	return nil
}

// RegisterArrays binds storage containers. The first array fixes the
// element size and, unless set explicitly, the physical and logical
// domains; later arrays must have identical extents.
func (s *Stencil) RegisterArrays(arrays []Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.shape.Registered() {
		return configErr(ErrCodeShapeNotRegistered, "arrays registered before shape")
	}
	if len(arrays) == 0 {
		return configErr(ErrCodeNotRegistered, "no arrays given")
	}

	extents := s.extents
	for n, a := range arrays {
		if a.Rank() != s.rank {
			return configErr(ErrCodeRankMismatch, "array %d has rank %d, stencil rank %d", n, a.Rank(), s.rank)
		}
		ext := make([]int, s.rank)
		for axis := range ext {
			ext[axis] = a.Size(axis)
		}
		if extents == nil {
			extents = ext
			continue
		}
		if !slices.Equal(ext, extents) {
			return &ConfigError{
				Code:    ErrCodeSizeMismatch,
				Message: fmt.Sprintf("array %d has extents %v, want %v", n, ext, extents),
				Details: map[string]string{"array": fmt.Sprint(n)},
			}
		}
	}

	if s.extents == nil {
		s.extents = extents
		s.elemSize = arrays[0].ElemSize()
		if s.flags&flagPhysical == 0 {
			s.physical = gridFromExtents(extents)
			s.flags |= flagPhysical
		}
		if s.flags&flagLogical == 0 {
			s.logical = s.physical.Clone()
			s.flags |= flagLogical
		}
	}
	entries := s.shape.Entries()
	for _, a := range arrays {
		a.RegisterShape(entries)
		s.arrays = append(s.arrays, a)
	}
	s.flags |= flagArray
	s.logger.Debug("arrays registered", "count", len(s.arrays), "extents", s.extents, "elem_size", s.elemSize)
	return nil
}

func gridFromExtents(extents []int) ir.Grid {
	g := ir.NewGrid(len(extents))
	copy(g.X1, extents)
	return g
}

// RegisterDomains sets the logical domain from exactly one descriptor per
// axis: axis i spans [First, First+Size).
func (s *Stencil) RegisterDomains(domains []ir.Domain) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(domains) != s.rank {
		return configErr(ErrCodeRankMismatch, "%d domains for rank %d", len(domains), s.rank)
	}
	g := ir.NewGrid(s.rank)
	for axis, d := range domains {
		if d.Size < 0 {
			return configErr(ErrCodeInvalidDomain, "axis %d has negative size %d", axis, d.Size)
		}
		g.X0[axis] = d.First
		g.X1[axis] = d.First + d.Size
	}
	s.logical = g
	s.flags |= flagLogical
	return nil
}

// SetPhysicalDomain sets the physical domain explicitly.
func (s *Stencil) SetPhysicalDomain(g ir.Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := g.Validate(); err != nil {
		return configErr(ErrCodeInvalidDomain, "physical domain: %v", err)
	}
	if g.Rank() != s.rank {
		return configErr(ErrCodeRankMismatch, "physical domain rank %d, stencil rank %d", g.Rank(), s.rank)
	}
	if g.Volume() == 0 {
		return configErr(ErrCodeInvalidDomain, "physical domain %v..%v is empty", g.X0, g.X1)
	}
	s.physical = g.Clone()
	s.flags |= flagPhysical
	return nil
}

// checkFlagsLocked reports the first missing registration.
func (s *Stencil) checkFlagsLocked() error {
	switch {
	case s.flags&flagArray == 0:
		return configErr(ErrCodeNotRegistered, "no array registered")
	case s.flags&flagLogical == 0:
		return configErr(ErrCodeNotRegistered, "no logical domain registered")
	case s.flags&flagPhysical == 0:
		return configErr(ErrCodeNotRegistered, "no physical domain registered")
	case !s.shape.Registered():
		return configErr(ErrCodeShapeNotRegistered, "no shape registered")
	}
	return nil
}

// Slope returns the per-axis slope of the accumulated shape.
func (s *Stencil) Slope() []int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shape.Slope()
}

// Toggle returns the number of live time layers.
func (s *Stencil) Toggle() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shape.Toggle()
}

// TimeShift returns the offset applied to the plan's time range.
func (s *Stencil) TimeShift() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shape.TimeShift()
}

// Unroll returns the least common multiple of registered unroll factors.
func (s *Stencil) Unroll() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unroll
}

// LogicalGrid returns a copy of the logical domain.
func (s *Stencil) LogicalGrid() ir.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logical.Clone()
}

// PhysicalGrid returns a copy of the physical domain.
func (s *Stencil) PhysicalGrid() ir.Grid {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.physical.Clone()
}

// Color returns the color id the next plan will receive.
func (s *Stencil) Color() int { return s.colors.Current() }

// BestTime returns the fastest RunObaseMerge wall time, or 0 before any.
func (s *Stencil) BestTime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bestTime
}

// snapshot is an immutable copy of what plan generation and runs read.
type snapshot struct {
	slope     []int
	timeShift int
	unroll    int
	threshold int
	logical   ir.Grid
	physical  ir.Grid
	tiles     []kernel.TileEntry
	regions   []kernel.RegionEntry
}

func (s *Stencil) snapshot() (snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.checkFlagsLocked(); err != nil {
		return snapshot{}, err
	}
	return snapshot{
		slope:     s.shape.Slope(),
		timeShift: s.shape.TimeShift(),
		unroll:    s.unroll,
		threshold: s.cfg.threshold(s.elemSize),
		logical:   s.logical.Clone(),
		physical:  s.physical.Clone(),
		tiles:     slices.Clone(s.tiles),
		regions:   slices.Clone(s.regions),
	}, nil
}
