// Package codegen produces the kernel modules paired with plans: Go source
// built from a compiled stencil spec and, for tiled plans, its color vector.
package codegen

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stencil/internal/ir"
)

// ColorFile returns the color vector path for a plan of color built at base.
func ColorFile(base string, color int) string {
	return fmt.Sprintf("%s_%d_color.yaml", base, color)
}

// KernelFile returns the generated module path for a plan of color.
func KernelFile(base string, color int) string {
	return fmt.Sprintf("%s_%d_gen_kernel.go", base, color)
}

// WriteColorVector writes cv as YAML.
func WriteColorVector(path string, cv *ir.ColorVector) error {
	data, err := yaml.Marshal(cv)
	if err != nil {
		return fmt.Errorf("marshal color vector: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write color vector: %w", err)
	}
	return nil
}

// ReadColorVector reads a color vector written by WriteColorVector.
func ReadColorVector(path string) (*ir.ColorVector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read color vector: %w", err)
	}
	var cv ir.ColorVector
	if err := yaml.Unmarshal(data, &cv); err != nil {
		return nil, fmt.Errorf("parse color vector %s: %w", path, err)
	}
	if cv.Guards < 0 || cv.Guards > 64 {
		return nil, fmt.Errorf("color vector %s: %d guards", path, cv.Guards)
	}
	return &cv, nil
}
