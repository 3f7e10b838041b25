package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"go/format"
	"io"
	"strings"
	"text/template"

	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/kernel"
	"github.com/roach88/stencil/internal/shape"
)

// Kind selects what a generated module registers.
type Kind int

const (
	// KindCatalog registers the spec's guards and tiles as tile kernels and
	// initializes arrays.
	KindCatalog Kind = iota
	// KindMerged registers one region kernel set per color, each merging
	// the tile kernels active in that color.
	KindMerged
)

func (k Kind) String() string {
	switch k {
	case KindCatalog:
		return "catalog"
	case KindMerged:
		return "merged"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind maps a mode tag to a Kind.
func ParseKind(mode string) (Kind, error) {
	switch mode {
	case "catalog":
		return KindCatalog, nil
	case "merged", "merge":
		return KindMerged, nil
	default:
		return 0, fmt.Errorf("unknown generator mode %q (want catalog or merged)", mode)
	}
}

// Options controls generation.
type Options struct {
	Kind Kind
}

// ABIPath is the import path generated modules use for host symbols.
const ABIPath = "stencil/abi"

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("").ParseFS(templateFS, "templates/*.tmpl"))

var axisNames = []string{"i", "j", "k"}

type moduleView struct {
	Name   string
	Kind   string
	Rank   int
	Color  int
	Toggle int
	Axes   string
	ABI    string
	Arrays []arrayView
	Guards []guardView
	Tiles  []tileView
	Colors []colorView
}

type arrayView struct {
	Index int
	Name  string
	Init  string
}

type guardView struct {
	Index int
	Name  string
	Expr  string
}

type tileView struct {
	Index   int
	Guard   int
	Dims    string
	Kernels []kernelView
}

type kernelView struct {
	Index int
	Name  string
	Array int
	At    string
	Expr  string
	Shape string
}

type colorView struct {
	Index int
	O, A  uint64
	Steps []stepView
}

type stepView struct {
	Tile    int
	Guard   int
	Checked bool
}

// Generate renders the Go source of a kernel module for spec. cv is required
// for KindMerged and ignored for KindCatalog.
func Generate(w io.Writer, spec *ir.StencilSpec, cv *ir.ColorVector, opts Options) error {
	v, err := buildView(spec, cv, opts)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, "module.go.tmpl", v); err != nil {
		return fmt.Errorf("render %s module: %w", opts.Kind, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return fmt.Errorf("generated %s module for %s does not parse: %w", opts.Kind, spec.Name, err)
	}
	_, err = w.Write(src)
	return err
}

func buildView(spec *ir.StencilSpec, cv *ir.ColorVector, opts Options) (*moduleView, error) {
	if spec.Rank < 1 || spec.Rank > len(axisNames) {
		return nil, fmt.Errorf("stencil %s: rank %d unsupported (1..%d)", spec.Name, spec.Rank, len(axisNames))
	}
	reg := shape.NewRegistry(spec.Rank)
	if err := reg.Register(spec.Shape); err != nil {
		return nil, fmt.Errorf("stencil %s: %w", spec.Name, err)
	}
	v := &moduleView{
		Name:   spec.Name,
		Kind:   opts.Kind.String(),
		Rank:   spec.Rank,
		Toggle: reg.Toggle(),
		Axes:   axesDecl(spec.Rank),
		ABI:    ABIPath,
	}
	for n, a := range spec.Arrays {
		v.Arrays = append(v.Arrays, arrayView{Index: n, Name: a.Name, Init: a.Init})
	}
	for n, g := range spec.Guards {
		v.Guards = append(v.Guards, guardView{Index: n, Name: g.Name, Expr: g.Expr})
	}
	for n, tile := range spec.Tiles {
		gi := spec.GuardIndex(tile.Guard)
		if gi < 0 {
			return nil, fmt.Errorf("tile %d: unknown guard %q", n, tile.Guard)
		}
		if err := checkTile(tile); err != nil {
			return nil, fmt.Errorf("tile %d: %w", n, err)
		}
		tv := tileView{Index: n, Guard: gi, Dims: intsLit(TileDims(tile))}
		for k, ks := range tile.Kernels {
			ai := spec.ArrayIndex(ks.Array)
			if ai < 0 {
				return nil, fmt.Errorf("tile %d kernel %d: unknown array %q", n, k, ks.Array)
			}
			name := ks.Name
			if name == "" {
				name = fmt.Sprintf("%s_%d_%d", spec.Name, n, k)
			}
			tv.Kernels = append(tv.Kernels, kernelView{
				Index: k,
				Name:  name,
				Array: ai,
				At:    ks.At,
				Expr:  ks.Expr,
				Shape: shapeLit(spec.KernelShape(ks)),
			})
		}
		v.Tiles = append(v.Tiles, tv)
	}

	if opts.Kind == KindMerged {
		if cv == nil {
			return nil, fmt.Errorf("merged module needs a color vector")
		}
		if cv.Guards != len(spec.Tiles) {
			return nil, fmt.Errorf("color vector has %d guards, stencil %s has %d tiles", cv.Guards, spec.Name, len(spec.Tiles))
		}
		v.Color = cv.Color
		for c, h := range cv.Colors {
			cvw := colorView{Index: c, O: h.O, A: h.A}
			for n, tv := range v.Tiles {
				bit := uint64(1) << n
				if h.A&bit == 0 {
					continue
				}
				cvw.Steps = append(cvw.Steps, stepView{Tile: n, Guard: tv.Guard, Checked: h.O&bit == 0})
			}
			v.Colors = append(v.Colors, cvw)
		}
	}
	return v, nil
}

// axesDecl binds the axis variables from idx and marks them used.
func axesDecl(rank int) string {
	names := axisNames[:rank]
	vals := make([]string, rank)
	blanks := make([]string, rank)
	for a := range names {
		vals[a] = fmt.Sprintf("idx[%d]", a)
		blanks[a] = "_"
	}
	return fmt.Sprintf("%s := %s\n%s = %s",
		strings.Join(names, ", "), strings.Join(vals, ", "),
		strings.Join(blanks, ", "), strings.Join(names, ", "))
}

func intsLit(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return "[]int{" + strings.Join(parts, ", ") + "}"
}

func shapeLit(sh []ir.Shift) string {
	parts := make([]string, len(sh))
	for i, s := range sh {
		parts[i] = strings.TrimPrefix(intsLit(s), "[]int")
	}
	return "[]abi.Shift{" + strings.Join(parts, ", ") + "}"
}

// TileDims returns the dims a tile spec lays its kernels out over.
func TileDims(t ir.TileSpec) []int {
	if len(t.Dims) == 0 {
		return []int{len(t.Kernels)}
	}
	return t.Dims
}

// checkTile validates a tile spec the way kernel.NewTile will at load time.
func checkTile(t ir.TileSpec) error {
	ks := make([]kernel.Kernel, len(t.Kernels))
	for i := range ks {
		ks[i].Fn = func(int, []int) {}
	}
	_, err := kernel.NewTile(TileDims(t), ks)
	return err
}
