package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/stencil/internal/ir"
)

// CompileStencil parses a CUE value into a StencilSpec.
//
// The CUE value should be the stencil struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`stencil: heat: { rank: 1, ... }`)
//	spec, err := CompileStencil(v.LookupPath(cue.ParsePath("stencil.heat")))
//
// CompileStencil checks structure only; Validate checks the semantic rules.
func CompileStencil(v cue.Value) (*ir.StencilSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.StencilSpec{}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = normalizeName(labels[len(labels)-1].Unquoted())
	}

	rankVal := v.LookupPath(cue.ParsePath("rank"))
	if !rankVal.Exists() {
		return nil, &CompileError{Field: "rank", Message: "rank is required", Pos: v.Pos()}
	}
	rank, err := rankVal.Int64()
	if err != nil {
		return nil, formatCUEError(err)
	}
	spec.Rank = int(rank)

	if spec.Arrays, err = parseArrays(v); err != nil {
		return nil, err
	}

	shapeVal := v.LookupPath(cue.ParsePath("shape"))
	if !shapeVal.Exists() {
		return nil, &CompileError{Field: "shape", Message: "shape is required", Pos: v.Pos()}
	}
	if spec.Shape, err = parseShifts(shapeVal); err != nil {
		return nil, err
	}

	if spec.Guards, err = parseGuards(v); err != nil {
		return nil, err
	}

	if spec.Tiles, err = parseTiles(v); err != nil {
		return nil, err
	}
	if len(spec.Tiles) == 0 {
		return nil, &CompileError{Field: "tiles", Message: "at least one tile is required", Pos: v.Pos()}
	}

	if domVal := v.LookupPath(cue.ParsePath("domain")); domVal.Exists() {
		if spec.Domain, err = parseDomain(domVal); err != nil {
			return nil, err
		}
	}

	if tsVal := v.LookupPath(cue.ParsePath("timesteps")); tsVal.Exists() {
		ts, err := tsVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		spec.Timesteps = int(ts)
	}

	return spec, nil
}

// parseArrays reads arrays in declaration order; the order is the array
// index the generated module sees.
func parseArrays(v cue.Value) ([]ir.ArraySpec, error) {
	arraysVal := v.LookupPath(cue.ParsePath("arrays"))
	if !arraysVal.Exists() {
		return nil, &CompileError{Field: "arrays", Message: "at least one array is required", Pos: v.Pos()}
	}

	iter, err := arraysVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var arrays []ir.ArraySpec
	for iter.Next() {
		name := normalizeName(iter.Selector().Unquoted())
		av := iter.Value()

		dimsVal := av.LookupPath(cue.ParsePath("dims"))
		if !dimsVal.Exists() {
			return nil, &CompileError{
				Field:   fmt.Sprintf("arrays.%s.dims", name),
				Message: "array dims are required",
				Pos:     av.Pos(),
			}
		}
		dims, err := intList(dimsVal)
		if err != nil {
			return nil, err
		}

		a := ir.ArraySpec{Name: name, Dims: dims}
		if a.Init, err = optionalString(av, "init"); err != nil {
			return nil, err
		}
		if a.Boundary, err = optionalString(av, "boundary"); err != nil {
			return nil, err
		}
		arrays = append(arrays, a)
	}
	return arrays, nil
}

func parseGuards(v cue.Value) ([]ir.GuardSpec, error) {
	guardsVal := v.LookupPath(cue.ParsePath("guards"))
	if !guardsVal.Exists() {
		return nil, nil
	}

	iter, err := guardsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var guards []ir.GuardSpec
	for iter.Next() {
		expr, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		guards = append(guards, ir.GuardSpec{
			Name: normalizeName(iter.Selector().Unquoted()),
			Expr: expr,
		})
	}
	return guards, nil
}

func parseTiles(v cue.Value) ([]ir.TileSpec, error) {
	tilesVal := v.LookupPath(cue.ParsePath("tiles"))
	if !tilesVal.Exists() {
		return nil, &CompileError{Field: "tiles", Message: "at least one tile is required", Pos: v.Pos()}
	}

	iter, err := tilesVal.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var tiles []ir.TileSpec
	for iter.Next() {
		tv := iter.Value()
		field := fmt.Sprintf("tiles[%d]", len(tiles))

		guardVal := tv.LookupPath(cue.ParsePath("guard"))
		if !guardVal.Exists() {
			return nil, &CompileError{Field: field + ".guard", Message: "tile guard is required", Pos: tv.Pos()}
		}
		guard, err := guardVal.String()
		if err != nil {
			return nil, formatCUEError(err)
		}

		tile := ir.TileSpec{Guard: normalizeName(guard)}
		if dimsVal := tv.LookupPath(cue.ParsePath("dims")); dimsVal.Exists() {
			if tile.Dims, err = intList(dimsVal); err != nil {
				return nil, err
			}
		}

		kernelsVal := tv.LookupPath(cue.ParsePath("kernels"))
		if !kernelsVal.Exists() {
			return nil, &CompileError{Field: field + ".kernels", Message: "tile kernels are required", Pos: tv.Pos()}
		}
		kiter, err := kernelsVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for kiter.Next() {
			k, err := parseKernel(kiter.Value(), fmt.Sprintf("%s.kernels[%d]", field, len(tile.Kernels)))
			if err != nil {
				return nil, err
			}
			tile.Kernels = append(tile.Kernels, k)
		}
		tiles = append(tiles, tile)
	}
	return tiles, nil
}

func parseKernel(v cue.Value, field string) (ir.KernelSpec, error) {
	var k ir.KernelSpec
	var err error

	for _, req := range []struct {
		name string
		dst  *string
	}{
		{"array", &k.Array},
		{"at", &k.At},
		{"expr", &k.Expr},
	} {
		fv := v.LookupPath(cue.ParsePath(req.name))
		if !fv.Exists() {
			return k, &CompileError{
				Field:   field + "." + req.name,
				Message: fmt.Sprintf("kernel %s is required", req.name),
				Pos:     v.Pos(),
			}
		}
		if *req.dst, err = fv.String(); err != nil {
			return k, formatCUEError(err)
		}
	}
	k.Array = normalizeName(k.Array)

	if k.Name, err = optionalString(v, "name"); err != nil {
		return k, err
	}
	k.Name = normalizeName(k.Name)

	if shapeVal := v.LookupPath(cue.ParsePath("shape")); shapeVal.Exists() {
		if k.Shape, err = parseShifts(shapeVal); err != nil {
			return k, err
		}
	}
	return k, nil
}

func parseShifts(v cue.Value) ([]ir.Shift, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var shifts []ir.Shift
	for iter.Next() {
		s, err := intList(iter.Value())
		if err != nil {
			return nil, err
		}
		shifts = append(shifts, ir.Shift(s))
	}
	return shifts, nil
}

func parseDomain(v cue.Value) ([]ir.Domain, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var domain []ir.Domain
	for iter.Next() {
		var d ir.Domain
		if err := iter.Value().Decode(&d); err != nil {
			return nil, formatCUEError(err)
		}
		domain = append(domain, d)
	}
	return domain, nil
}

func intList(v cue.Value) ([]int, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []int
	for iter.Next() {
		n, err := iter.Value().Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		out = append(out, int(n))
	}
	return out, nil
}

func optionalString(v cue.Value, path string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return "", nil
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// normalizeName puts identifiers in NFC so visually equal names compare equal.
func normalizeName(s string) string {
	return norm.NFC.String(s)
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
