package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/stencil/internal/session"
)

// Scenario defines a conformance test scenario.
// A scenario plans one stencil, executes the plan in each listed mode and
// checks every execution against a plain sequential sweep.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE specs to load.
	// Relative paths are resolved against the scenario file location.
	Specs string `yaml:"specs"`

	// Stencil names the stencil to plan.
	Stencil string `yaml:"stencil"`

	// Timesteps overrides the stencil's own timestep count.
	Timesteps int `yaml:"timesteps,omitempty"`

	// ThresholdBytes overrides the base region size; small values force
	// deep decompositions on small domains.
	ThresholdBytes int `yaml:"threshold_bytes,omitempty"`

	// Tolerance bounds the difference to the sweep and to checksums.
	Tolerance float64 `yaml:"tolerance,omitempty"`

	// Runs lists the executions to perform, each on fresh arrays.
	Runs []RunStep `yaml:"runs"`

	// Assertions validate the executions.
	Assertions []Assertion `yaml:"assertions"`

	// RunID is the fixed run id stamped on logs.
	// If empty, defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`
}

// RunStep is one execution: a plan kind and an execution mode.
type RunStep struct {
	// Mode is interp, obase or merge.
	Mode string `yaml:"mode"`

	// Tiled selects a tiled plan with colored regions. Merge requires it.
	Tiled bool `yaml:"tiled,omitempty"`
}

// Assertion validates the executions of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "matches_sweep": final arrays equal the sequential sweep
	// - "checksum": final first-array sum equals Value
	// - "min_epochs": plans have at least Count epochs
	// - "min_regions": plans have at least Count regions
	// - "catalog": the plan catalog holds Count plans matching Where
	Type string `yaml:"type"`

	// Mode restricts the assertion to runs of one mode. Empty means all.
	Mode string `yaml:"mode,omitempty"`

	// Value is the expected checksum (used by checksum).
	Value float64 `yaml:"value,omitempty"`

	// Count is the expected lower bound or row count.
	Count int `yaml:"count,omitempty"`

	// Where filters catalog rows (used by catalog).
	// All fields must match exactly.
	Where map[string]interface{} `yaml:"where,omitempty"`
}

// Assertion type constants.
const (
	AssertMatchesSweep = "matches_sweep"
	AssertChecksum     = "checksum"
	AssertMinEpochs    = "min_epochs"
	AssertMinRegions   = "min_regions"
	AssertCatalog      = "catalog"
)

// LoadScenario reads and parses a scenario YAML file, resolving the specs
// directory relative to the file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving the specs directory relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}

	if s.Stencil == "" {
		return fmt.Errorf("stencil is required")
	}

	if s.Timesteps < 0 {
		return fmt.Errorf("timesteps must be non-negative")
	}
	if s.ThresholdBytes < 0 {
		return fmt.Errorf("threshold_bytes must be non-negative")
	}
	if s.Tolerance < 0 {
		return fmt.Errorf("tolerance must be non-negative")
	}

	if len(s.Runs) == 0 {
		return fmt.Errorf("runs list is required and must be non-empty")
	}
	for i, run := range s.Runs {
		if !slices.Contains(session.Modes, run.Mode) {
			return fmt.Errorf("runs[%d]: unknown mode %q", i, run.Mode)
		}
		if run.Mode == session.ModeMerge && !run.Tiled {
			return fmt.Errorf("runs[%d]: merge mode needs a tiled plan", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Mode != "" && !slices.Contains(session.Modes, a.Mode) {
		return fmt.Errorf("assertions[%d]: unknown mode %q", index, a.Mode)
	}

	switch a.Type {
	case AssertMatchesSweep, AssertChecksum:
	case AssertMinEpochs, AssertMinRegions:
		if a.Count < 1 {
			return fmt.Errorf("assertions[%d]: count must be positive for %s", index, a.Type)
		}
	case AssertCatalog:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for catalog", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
