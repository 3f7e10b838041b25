package harness

import (
	"strconv"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stencil/internal/ir"
)

// Snapshot captures the deterministic part of a scenario execution.
// Plan ids, hashes and region counts depend on the decomposer's thresholds
// and are left out; checksums are rendered as strings since canonical JSON
// carries no floats.
type Snapshot struct {
	ScenarioName string
	Result       *Result
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON serialization.
func (s *Snapshot) toCanonicalMap() map[string]any {
	runs := make([]any, len(s.Result.Runs))
	for i, run := range s.Result.Runs {
		runs[i] = map[string]any{
			"mode":     run.Mode,
			"tiled":    run.Tiled,
			"checksum": formatFloat(run.Checksum),
		}
	}
	slope := s.Result.Slope
	if slope == nil {
		slope = []int{}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"stencil":       s.Result.Stencil,
		"slope":         slope,
		"toggle":        s.Result.Toggle,
		"time_shift":    s.Result.TimeShift,
		"timesteps":     s.Result.Timesteps,
		"sweep":         formatFloat(s.Result.Sweep),
		"runs":          runs,
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// RunWithGolden executes a scenario and compares its snapshot against a
// golden file stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	return AssertGolden(t, scenario.Name, result)
}

// GoldenBytes renders the canonical JSON snapshot of result.
func GoldenBytes(scenarioName string, result *Result) ([]byte, error) {
	snapshot := Snapshot{ScenarioName: scenarioName, Result: result}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// AssertGolden compares an already computed result against a golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := GoldenBytes(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
