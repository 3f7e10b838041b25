package codegen

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/roach88/stencil/internal/ir"
)

// GenerateFile is the generator entry point: it reads the color vector of
// plan color order, renders the module of the given mode for spec and
// writes it to outFile.
func GenerateFile(spec *ir.StencilSpec, order int, mode, colorFile, outFile string) error {
	kind, err := ParseKind(mode)
	if err != nil {
		return err
	}
	var cv *ir.ColorVector
	if kind == KindMerged {
		if cv, err = ReadColorVector(colorFile); err != nil {
			return err
		}
		if cv.Color != order {
			return fmt.Errorf("color vector %s is color %d, want %d", colorFile, cv.Color, order)
		}
	}
	var buf bytes.Buffer
	if err := Generate(&buf, spec, cv, Options{Kind: kind}); err != nil {
		return err
	}
	if err := os.WriteFile(outFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write kernel module: %w", err)
	}
	return nil
}

// Local generates modules in process instead of launching a command.
type Local struct {
	Spec *ir.StencilSpec
}

// Generate implements the planner's generator hook.
func (l Local) Generate(ctx context.Context, color int, mode, colorFile, outFile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return GenerateFile(l.Spec, color, mode, colorFile, outFile)
}
