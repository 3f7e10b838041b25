package compiler

import (
	"fmt"
	"go/parser"
	"go/token"
	"go/types"
	"regexp"

	"github.com/roach88/stencil/internal/ir"
)

// Validation error codes (E100-E199)
const (
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// Stencil structure (E101-E109)
	ErrInvalidRank     = "E101" // rank outside 1..3
	ErrNoArrays        = "E102" // no array matches rank
	ErrInvalidDims     = "E103" // dims length or extent
	ErrInvalidShape    = "E104" // empty shape or shift of wrong length
	ErrDuplicateName   = "E105" // duplicate array/guard/kernel name
	ErrInvalidIdent    = "E106" // not a usable identifier
	ErrInvalidBoundary = "E107" // unknown boundary kind
	ErrInvalidDomain   = "E108" // domain axis count or size
	ErrInvalidSteps    = "E109" // negative timesteps

	// Guards, tiles and kernels (E110-E119)
	ErrUndefinedGuard = "E110" // tile references unknown guard
	ErrUndefinedArray = "E111" // kernel writes unknown array
	ErrInvalidTile    = "E112" // tile dims do not match kernel count
	ErrInvalidExpr    = "E113" // expression does not parse
	ErrNoTiles        = "E114" // no tiles
)

// maxSpecRank bounds rank to the axis variables i, j, k.
const maxSpecRank = 3

// Array names become locals of the generated module; the reserved set
// covers the module's own locals.
var (
	identPattern    = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reservedPattern = regexp.MustCompile(`^(f|guard|cell|dims|strides|apply|point|tile)[0-9]+(_[0-9]+)?$`)
	reservedNames   = map[string]bool{
		"t": true, "i": true, "j": true, "k": true, "n": true,
		"idx": true, "host": true, "arrays": true, "phys": true, "err": true,
		"abi": true, "fmt": true, "math": true, "always": true,
		"tileGuards": true, "tiles": true, "sets": true,
	}
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled stencil against the schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.StencilSpec:
		return validateStencil(spec)
	case ir.StencilSpec:
		return validateStencil(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateStencil(spec *ir.StencilSpec) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if spec.Rank < 1 || spec.Rank > maxSpecRank {
		add("rank", ErrInvalidRank, "rank %d outside [1, %d]", spec.Rank, maxSpecRank)
	}
	if !identPattern.MatchString(spec.Name) {
		add("name", ErrInvalidIdent, "stencil name %q is not an identifier", spec.Name)
	}

	arrayNames := make(map[string]bool)
	matching := 0
	for n, a := range spec.Arrays {
		field := fmt.Sprintf("arrays[%d]", n)
		if msg := checkIdent(a.Name); msg != "" {
			add(field+".name", ErrInvalidIdent, "array %q %s", a.Name, msg)
		}
		if arrayNames[a.Name] {
			add(field+".name", ErrDuplicateName, "duplicate array name: %q", a.Name)
		}
		arrayNames[a.Name] = true

		if len(a.Dims) == spec.Rank {
			matching++
		} else {
			add(field+".dims", ErrInvalidDims, "array %q has %d dims, rank is %d", a.Name, len(a.Dims), spec.Rank)
		}
		for axis, d := range a.Dims {
			if d <= 0 {
				add(fmt.Sprintf("%s.dims[%d]", field, axis), ErrInvalidDims, "array %q extent %d must be positive", a.Name, d)
			}
		}
		switch a.Boundary {
		case "", "zero", "clamp":
		default:
			add(field+".boundary", ErrInvalidBoundary, "boundary %q, must be \"zero\" or \"clamp\"", a.Boundary)
		}
		if a.Init != "" {
			if msg := checkExpr(a.Init); msg != "" {
				add(field+".init", ErrInvalidExpr, "%s", msg)
			}
		}
	}
	if matching == 0 {
		add("arrays", ErrNoArrays, "at least one array with %d dims is required", spec.Rank)
	}

	errs = append(errs, validateShifts("shape", spec.Shape, spec.Rank)...)

	guardNames := make(map[string]bool)
	for n, g := range spec.Guards {
		field := fmt.Sprintf("guards[%d]", n)
		if !identPattern.MatchString(g.Name) {
			add(field+".name", ErrInvalidIdent, "guard %q is not an identifier", g.Name)
		}
		if guardNames[g.Name] {
			add(field+".name", ErrDuplicateName, "duplicate guard name: %q", g.Name)
		}
		guardNames[g.Name] = true
		if msg := checkExpr(g.Expr); msg != "" {
			add(field+".expr", ErrInvalidExpr, "guard %q: %s", g.Name, msg)
		}
	}

	if len(spec.Tiles) == 0 {
		add("tiles", ErrNoTiles, "at least one tile is required")
	}
	kernelNames := make(map[string]bool)
	for n, tile := range spec.Tiles {
		field := fmt.Sprintf("tiles[%d]", n)
		if !guardNames[tile.Guard] {
			add(field+".guard", ErrUndefinedGuard, "undefined guard %q", tile.Guard)
		}
		if len(tile.Kernels) == 0 {
			add(field+".kernels", ErrInvalidTile, "tile has no kernels")
		}
		if len(tile.Dims) > 0 {
			if len(tile.Dims) > spec.Rank+1 {
				add(field+".dims", ErrInvalidTile, "tile has %d dims, at most %d allowed", len(tile.Dims), spec.Rank+1)
			}
			cells := 1
			for _, d := range tile.Dims {
				if d <= 0 {
					add(field+".dims", ErrInvalidTile, "tile dim %d must be positive", d)
				}
				cells *= d
			}
			if cells != len(tile.Kernels) {
				add(field+".dims", ErrInvalidTile, "tile dims %v hold %d kernels, got %d", tile.Dims, cells, len(tile.Kernels))
			}
		}
		for m, k := range tile.Kernels {
			kfield := fmt.Sprintf("%s.kernels[%d]", field, m)
			if k.Name != "" {
				if !identPattern.MatchString(k.Name) {
					add(kfield+".name", ErrInvalidIdent, "kernel %q is not an identifier", k.Name)
				}
				if kernelNames[k.Name] {
					add(kfield+".name", ErrDuplicateName, "duplicate kernel name: %q", k.Name)
				}
				kernelNames[k.Name] = true
			}
			if !arrayNames[k.Array] {
				add(kfield+".array", ErrUndefinedArray, "undefined array %q", k.Array)
			}
			if msg := checkExpr(k.At); msg != "" {
				add(kfield+".at", ErrInvalidExpr, "%s", msg)
			}
			if msg := checkExpr(k.Expr); msg != "" {
				add(kfield+".expr", ErrInvalidExpr, "%s", msg)
			}
			if len(k.Shape) > 0 {
				errs = append(errs, validateShifts(kfield+".shape", k.Shape, spec.Rank)...)
			}
		}
	}

	if len(spec.Domain) > 0 {
		if len(spec.Domain) != spec.Rank {
			add("domain", ErrInvalidDomain, "domain has %d axes, rank is %d", len(spec.Domain), spec.Rank)
		}
		for axis, d := range spec.Domain {
			if d.Size <= 0 {
				add(fmt.Sprintf("domain[%d].size", axis), ErrInvalidDomain, "domain size %d must be positive", d.Size)
			}
		}
	}
	if spec.Timesteps < 0 {
		add("timesteps", ErrInvalidSteps, "timesteps %d must not be negative", spec.Timesteps)
	}

	return errs
}

func validateShifts(field string, shifts []ir.Shift, rank int) []ValidationError {
	if len(shifts) == 0 {
		return []ValidationError{{Field: field, Code: ErrInvalidShape, Message: "shape must have at least one shift"}}
	}
	var errs []ValidationError
	for n, s := range shifts {
		if len(s) != rank+1 {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("%s[%d]", field, n),
				Code:    ErrInvalidShape,
				Message: fmt.Sprintf("shift %v has %d components, want %d", []int(s), len(s), rank+1),
			})
		}
	}
	return errs
}

// checkIdent reports why name cannot become a local in a generated module,
// or "" if it can.
func checkIdent(name string) string {
	switch {
	case !identPattern.MatchString(name):
		return "is not an identifier"
	case token.IsKeyword(name):
		return "is a Go keyword"
	case types.Universe.Lookup(name) != nil:
		return "shadows a predeclared identifier"
	case reservedNames[name] || reservedPattern.MatchString(name):
		return "is reserved"
	}
	return ""
}

func checkExpr(expr string) string {
	if expr == "" {
		return "expression is empty"
	}
	if _, err := parser.ParseExpr(expr); err != nil {
		return fmt.Sprintf("expression %q does not parse: %v", expr, err)
	}
	return ""
}
