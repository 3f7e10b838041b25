package modload

import (
	"reflect"

	"github.com/traefik/yaegi/interp"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/walk"
)

// Extent returns the grid covering every index of f.
func Extent(f engine.Field) ir.Grid {
	g := ir.NewGrid(f.Rank())
	for a := range g.X1 {
		g.X1[a] = f.Size(a)
	}
	return g
}

// Symbols is the host package generated modules import as codegen.ABIPath.
var Symbols = interp.Exports{
	codegen.ABIPath + "/abi": {
		"Host":       reflect.ValueOf((*engine.Host)(nil)),
		"Field":      reflect.ValueOf((*engine.Field)(nil)),
		"Grid":       reflect.ValueOf((*ir.Grid)(nil)),
		"Shift":      reflect.ValueOf((*ir.Shift)(nil)),
		"Guard":      reflect.ValueOf((*kernel.Guard)(nil)),
		"Kernel":     reflect.ValueOf((*kernel.Kernel)(nil)),
		"Tile":       reflect.ValueOf((*kernel.Tile)(nil)),
		"RegionSet":  reflect.ValueOf((*kernel.RegionSet)(nil)),
		"BaseKernel": reflect.ValueOf((*kernel.BaseKernel)(nil)),

		"NewTile":      reflect.ValueOf(kernel.NewTile),
		"Strides":      reflect.ValueOf(kernel.Strides),
		"TilePos":      reflect.ValueOf(kernel.TilePos),
		"Sweep":        reflect.ValueOf(walk.Sweep),
		"SweepWrapped": reflect.ValueOf(walk.SweepWrapped),
		"ForEach":      reflect.ValueOf(walk.ForEach),
		"Extent":       reflect.ValueOf(Extent),
	},
}
