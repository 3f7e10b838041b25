package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenariosDir = "../harness/testdata/scenarios"

func TestTestCommand_Pass(t *testing.T) {
	out, _, err := execute(t, "test", scenariosDir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ shift")
	assert.Contains(t, out, "✓ drift")
	assert.Contains(t, out, "✓ heat")
	assert.Contains(t, out, "Test Summary: 3 passed, 0 failed, 3 total")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommand_Filter(t *testing.T) {
	out, _, err := execute(t, "--format", "json", "test", scenariosDir, "--filter", "sh*")
	require.NoError(t, err)

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Passed)
	require.Len(t, result.Scenarios, 1)
	assert.Equal(t, "shift", result.Scenarios[0].Name)
}

func TestTestCommand_UpdateGolden(t *testing.T) {
	golden := t.TempDir()

	out, _, err := execute(t, "test", scenariosDir, "--filter", "shift", "--golden", golden, "--update")
	require.NoError(t, err)
	assert.Contains(t, out, "↻ shift (golden updated)")

	want, err := os.ReadFile("../harness/testdata/golden/shift.golden")
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(golden, "shift.golden"))
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))

	_, _, err = execute(t, "test", scenariosDir, "--filter", "shift", "--golden", golden)
	require.NoError(t, err)
}

func TestTestCommand_GoldenMismatch(t *testing.T) {
	golden := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(golden, "drift.golden"), []byte(`{"stale":true}`), 0o644))

	out, _, err := execute(t, "test", scenariosDir, "--filter", "drift", "--golden", golden)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ drift")
	assert.Contains(t, out, "snapshot does not match golden file")
}

func TestTestCommand_FailingScenario(t *testing.T) {
	dir := t.TempDir()
	specs, err := filepath.Abs("../harness/testdata/specs")
	require.NoError(t, err)
	scenario := `name: wrong
description: "A checksum nobody computes"
specs: ` + specs + `
stencil: shift
runs:
  - mode: interp
assertions:
  - type: checksum
    mode: interp
    value: 1
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrong.yaml"), []byte(scenario), 0o644))

	out, _, err := execute(t, "--format", "json", "test", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var result TestResult
	resp := decodeData(t, out, &result)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_TEST_FAILED", resp.Error.Code)
	assert.Equal(t, 1, result.Failed)
	assert.NotEmpty(t, result.Scenarios[0].Errors)
}

func TestTestCommand_Empty(t *testing.T) {
	out, _, err := execute(t, "test", t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommand_MissingDir(t *testing.T) {
	_, _, err := execute(t, "test", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestFindScenarioFiles(t *testing.T) {
	files, err := findScenarioFiles(scenariosDir, "")
	require.NoError(t, err)
	assert.Len(t, files, 3)

	_, err = findScenarioFiles(scenariosDir, "[")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid filter pattern")
}
