package codegen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stencil/internal/ir"
)

func TestGenerateFileMerged(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "heat")
	cv := &ir.ColorVector{Color: 2, Mode: "merged", Guards: 2, Colors: []ir.Homogeneity{{O: 1, A: 1}, {A: 3}}}
	require.NoError(t, WriteColorVector(ColorFile(base, 2), cv))

	out := KernelFile(base, 2)
	require.NoError(t, Local{Spec: heatSpec()}.Generate(context.Background(), 2, "merged", ColorFile(base, 2), out))

	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(src), "kind: merged color: 2")
	assert.Contains(t, string(src), "// color 1: o=0 a=3")
}

func TestGenerateFileCatalogIgnoresColorFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "catalog.go")
	require.NoError(t, GenerateFile(heatSpec(), 0, "catalog", "does-not-exist.yaml", out))

	src, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(src), "kind: catalog")
}

func TestGenerateFileErrors(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "heat")
	require.NoError(t, WriteColorVector(ColorFile(base, 1), &ir.ColorVector{Color: 1, Guards: 2}))

	err := GenerateFile(heatSpec(), 1, "fused", ColorFile(base, 1), filepath.Join(dir, "x.go"))
	assert.ErrorContains(t, err, "unknown generator mode")

	err = GenerateFile(heatSpec(), 4, "merged", ColorFile(base, 1), filepath.Join(dir, "x.go"))
	assert.ErrorContains(t, err, "is color 1, want 4")

	err = GenerateFile(heatSpec(), 1, "merged", filepath.Join(dir, "missing.yaml"), filepath.Join(dir, "x.go"))
	assert.ErrorContains(t, err, "read color vector")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = Local{Spec: heatSpec()}.Generate(ctx, 1, "merged", ColorFile(base, 1), filepath.Join(dir, "x.go"))
	assert.ErrorIs(t, err, context.Canceled)
}
