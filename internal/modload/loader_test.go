package modload

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/array"
	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/testutil"
)

type recordingHost struct {
	phys   ir.Grid
	guards []kernel.Guard
	tiles  []kernel.Tile
	sets   []kernel.RegionSet
}

func (h *recordingHost) Rank() int             { return 1 }
func (h *recordingHost) PhysicalGrid() ir.Grid { return h.phys.Clone() }

func (h *recordingHost) RegisterTileKernels(g kernel.Guard, tile kernel.Tile) error {
	h.guards = append(h.guards, g)
	h.tiles = append(h.tiles, tile)
	return nil
}

func (h *recordingHost) RegisterRegionKernels(g kernel.Guard, unroll int, set kernel.RegionSet) error {
	h.guards = append(h.guards, g)
	h.sets = append(h.sets, set)
	return nil
}

func newHost() *recordingHost {
	return &recordingHost{phys: ir.Grid{X0: []int{0}, X1: []int{100}, DX0: []int{0}, DX1: []int{0}}}
}

func heatSpec() *ir.StencilSpec { return testutil.HeatSpec(100) }

func load(t *testing.T, kind codegen.Kind, cv *ir.ColorVector) *Module {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, codegen.Generate(&buf, heatSpec(), cv, codegen.Options{Kind: kind}))
	m, err := Loader{}.OpenSource("heat.go", buf.Bytes())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func newField(t *testing.T) *array.Array[float64] {
	t.Helper()
	u, err := array.New[float64]("u", []int{100})
	require.NoError(t, err)
	u.RegisterShape(heatSpec().Shape)
	return u
}

func TestCatalogModule(t *testing.T) {
	m := load(t, codegen.KindCatalog, nil)
	require.True(t, m.HasInit())

	u := newField(t)
	fields := []engine.Field{u}
	require.NoError(t, m.InitArrays(fields))
	assert.Equal(t, 3.0, u.At(0, 10))
	assert.Equal(t, 3.0, u.At(1, 10))

	host := newHost()
	require.NoError(t, m.CreateKernels(host, fields))
	require.NoError(t, m.RegisterKernels(host))
	require.Len(t, host.tiles, 2)
	assert.Empty(t, host.sets)

	assert.True(t, host.guards[0](0, []int{10}))
	assert.False(t, host.guards[1](0, []int{10}))

	left := host.tiles[0].Select(0, []int{10})
	left.Fn(0, []int{10})
	assert.Equal(t, 3.0, u.At(1, 10))

	right := host.tiles[1]
	assert.Equal(t, "even", right.Select(0, []int{60}).Name)
	assert.Equal(t, "odd", right.Select(0, []int{61}).Name)
	right.Select(0, []int{61}).Fn(0, []int{61})
	assert.Equal(t, 5.0, u.At(1, 61))
	assert.Equal(t, []ir.Shift{{1, 0}, {0, -1}, {0, 0}, {0, 1}}, right.Kernels[1].Shape)

	require.NoError(t, m.DestroyKernels())
}

func TestMergedModule(t *testing.T) {
	cv := &ir.ColorVector{Color: 1, Mode: "merged", Guards: 2, Colors: []ir.Homogeneity{{O: 1, A: 1}, {O: 0, A: 3}}}
	m := load(t, codegen.KindMerged, cv)
	assert.False(t, m.HasInit())
	assert.Error(t, m.InitArrays(nil))

	u := newField(t)
	u.Fill(0, func(idx []int) float64 { return float64(idx[0] % 7) })
	host := newHost()
	require.NoError(t, m.CreateKernels(host, []engine.Field{u}))
	require.NoError(t, m.RegisterKernels(host))
	require.Len(t, host.sets, 2)

	g := ir.Grid{X0: []int{48}, X1: []int{52}, DX0: []int{0}, DX1: []int{0}}
	host.sets[1].Kernel.Fn(0, 1, g)

	assert.Equal(t, 0.25*5+0.5*6+0.25*0, u.At(1, 48))
	assert.Equal(t, 0.25*6+0.5*0+0.25*1, u.At(1, 49))
	assert.Equal(t, 1.0, u.At(1, 50))
	assert.Equal(t, 0.5*(1+3), u.At(1, 51))

	// The boundary variant wraps reads and writes into the physical grid.
	edge := ir.Grid{X0: []int{-1}, X1: []int{0}, DX0: []int{0}, DX1: []int{0}}
	host.sets[0].Boundary.Fn(0, 1, edge)
	assert.Equal(t, 0.25*0+0.5*1, u.At(1, 99))
}

func TestOpenFromFile(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, codegen.Generate(&buf, heatSpec(), nil, codegen.Options{}))
	path := filepath.Join(t.TempDir(), "heat_0_gen_kernel.go")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	m, err := Loader{}.Open(path)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = Loader{}.Open(filepath.Join(t.TempDir(), "missing.go"))
	assert.Error(t, err)
}

func TestOpenRejects(t *testing.T) {
	cases := map[string]string{
		"forbidden import": "package main\nimport \"os\"\nvar _ = os.Args\n",
		"wrong package":    "package kernels\n",
		"syntax":           "package main\nfunc (",
		"missing symbols":  "package main\nfunc helper() {}\n",
		"wrong signature":  "package main\nfunc CreateKernels() error { return nil }\n",
	}
	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Loader{}.OpenSource(name, []byte(src))
			assert.Error(t, err)
		})
	}
}

func TestExtent(t *testing.T) {
	u, err := array.New[float64]("u", []int{3, 4})
	require.NoError(t, err)
	g := Extent(u)
	assert.Equal(t, []int{0, 0}, g.X0)
	assert.Equal(t, []int{3, 4}, g.X1)
	assert.Equal(t, []int{0, 0}, g.DX0)
}
