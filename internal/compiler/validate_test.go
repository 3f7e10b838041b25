package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/stencil/internal/ir"
)

func validSpec() *ir.StencilSpec {
	return &ir.StencilSpec{
		Name:   "heat",
		Rank:   1,
		Arrays: []ir.ArraySpec{{Name: "u", Dims: []int{100}}},
		Shape:  []ir.Shift{{1, 0}, {0, -1}, {0, 0}, {0, 1}},
		Guards: []ir.GuardSpec{{Name: "all", Expr: "true"}},
		Tiles: []ir.TileSpec{{
			Guard:   "all",
			Kernels: []ir.KernelSpec{{Array: "u", At: "t+1", Expr: "u(t, i)"}},
		}},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateStencilValid(t *testing.T) {
	assert.Empty(t, Validate(validSpec()))
	assert.Empty(t, Validate(*validSpec()))
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope")
	assert.Equal(t, []string{ErrUnsupportedIRType}, codes(errs))
}

func TestValidateStencilRules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*ir.StencilSpec)
		code   string
		field  string
	}{
		{"rank zero", func(s *ir.StencilSpec) { s.Rank = 0 }, ErrInvalidRank, "rank"},
		{"rank four", func(s *ir.StencilSpec) { s.Rank = 4 }, ErrInvalidRank, "rank"},
		{"no matching array", func(s *ir.StencilSpec) { s.Arrays[0].Dims = []int{10, 10} }, ErrNoArrays, "arrays"},
		{"zero extent", func(s *ir.StencilSpec) { s.Arrays[0].Dims = []int{0} }, ErrInvalidDims, "arrays[0].dims[0]"},
		{"keyword array", func(s *ir.StencilSpec) { s.Arrays[0].Name = "func" }, ErrInvalidIdent, "arrays[0].name"},
		{"predeclared array", func(s *ir.StencilSpec) { s.Arrays[0].Name = "len" }, ErrInvalidIdent, "arrays[0].name"},
		{"reserved array", func(s *ir.StencilSpec) { s.Arrays[0].Name = "idx" }, ErrInvalidIdent, "arrays[0].name"},
		{"generated local", func(s *ir.StencilSpec) { s.Arrays[0].Name = "cell0_1" }, ErrInvalidIdent, "arrays[0].name"},
		{"bad boundary", func(s *ir.StencilSpec) { s.Arrays[0].Boundary = "mirror" }, ErrInvalidBoundary, "arrays[0].boundary"},
		{"bad init", func(s *ir.StencilSpec) { s.Arrays[0].Init = "i +" }, ErrInvalidExpr, "arrays[0].init"},
		{"empty shape", func(s *ir.StencilSpec) { s.Shape = nil }, ErrInvalidShape, "shape"},
		{"short shift", func(s *ir.StencilSpec) { s.Shape[1] = ir.Shift{0} }, ErrInvalidShape, "shape[1]"},
		{"bad guard name", func(s *ir.StencilSpec) { s.Guards[0].Name = "a-b"; s.Tiles[0].Guard = "a-b" }, ErrInvalidIdent, "guards[0].name"},
		{"bad guard expr", func(s *ir.StencilSpec) { s.Guards[0].Expr = "i <" }, ErrInvalidExpr, "guards[0].expr"},
		{"undefined guard", func(s *ir.StencilSpec) { s.Tiles[0].Guard = "none" }, ErrUndefinedGuard, "tiles[0].guard"},
		{"no tiles", func(s *ir.StencilSpec) { s.Tiles = nil }, ErrNoTiles, "tiles"},
		{"tile dims mismatch", func(s *ir.StencilSpec) { s.Tiles[0].Dims = []int{2} }, ErrInvalidTile, "tiles[0].dims"},
		{"tile too many dims", func(s *ir.StencilSpec) { s.Tiles[0].Dims = []int{1, 1, 1} }, ErrInvalidTile, "tiles[0].dims"},
		{"undefined array", func(s *ir.StencilSpec) { s.Tiles[0].Kernels[0].Array = "v" }, ErrUndefinedArray, "tiles[0].kernels[0].array"},
		{"empty at", func(s *ir.StencilSpec) { s.Tiles[0].Kernels[0].At = "" }, ErrInvalidExpr, "tiles[0].kernels[0].at"},
		{"bad expr", func(s *ir.StencilSpec) { s.Tiles[0].Kernels[0].Expr = "u(t, i" }, ErrInvalidExpr, "tiles[0].kernels[0].expr"},
		{"kernel shape", func(s *ir.StencilSpec) { s.Tiles[0].Kernels[0].Shape = []ir.Shift{{1}} }, ErrInvalidShape, "tiles[0].kernels[0].shape[0]"},
		{"domain axes", func(s *ir.StencilSpec) { s.Domain = []ir.Domain{{First: 0, Size: 10}, {First: 0, Size: 10}} }, ErrInvalidDomain, "domain"},
		{"domain size", func(s *ir.StencilSpec) { s.Domain = []ir.Domain{{First: 0, Size: 0}} }, ErrInvalidDomain, "domain[0].size"},
		{"negative timesteps", func(s *ir.StencilSpec) { s.Timesteps = -1 }, ErrInvalidSteps, "timesteps"},
		{"bad stencil name", func(s *ir.StencilSpec) { s.Name = "two words" }, ErrInvalidIdent, "name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validSpec()
			tt.mutate(spec)

			errs := Validate(spec)
			var found bool
			for _, e := range errs {
				if e.Code == tt.code && e.Field == tt.field {
					found = true
				}
			}
			assert.True(t, found, "want %s at %s, got %v", tt.code, tt.field, errs)
		})
	}
}

func TestValidateDuplicates(t *testing.T) {
	spec := validSpec()
	spec.Arrays = append(spec.Arrays, ir.ArraySpec{Name: "u", Dims: []int{100}})
	spec.Guards = append(spec.Guards, ir.GuardSpec{Name: "all", Expr: "false"})
	spec.Tiles[0].Kernels = []ir.KernelSpec{
		{Name: "k", Array: "u", At: "t+1", Expr: "1"},
		{Name: "k", Array: "u", At: "t+1", Expr: "2"},
	}
	spec.Tiles[0].Dims = []int{2}

	errs := Validate(spec)
	assert.Equal(t, []string{ErrDuplicateName, ErrDuplicateName, ErrDuplicateName}, codes(errs))
}

func TestValidateCollectsAll(t *testing.T) {
	spec := validSpec()
	spec.Rank = 0
	spec.Tiles[0].Guard = "none"
	spec.Tiles[0].Kernels[0].Expr = ")"

	errs := Validate(spec)
	assert.Contains(t, codes(errs), ErrInvalidRank)
	assert.Contains(t, codes(errs), ErrUndefinedGuard)
	assert.Contains(t, codes(errs), ErrInvalidExpr)
}

func TestValidationErrorFormat(t *testing.T) {
	err := ValidationError{Field: "rank", Message: "rank 0 outside [1, 3]", Code: ErrInvalidRank}
	assert.Equal(t, "[E101] rank: rank 0 outside [1, 3]", err.Error())

	err.Line = 7
	assert.Equal(t, "[E101] line 7: rank: rank 0 outside [1, 3]", err.Error())
}
