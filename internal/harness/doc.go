// Package harness provides conformance testing for stencil plans.
//
// The harness loads CUE stencil specs, plans a stencil, executes the plan in
// one or more modes and checks each execution against a plain sequential
// sweep of the same stencil.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario validates"
//	specs: ../specs
//	stencil: heat
//	timesteps: 8
//	threshold_bytes: 128
//	runs:
//	  - mode: interp
//	  - mode: obase
//	    tiled: true
//	  - mode: merge
//	    tiled: true
//	assertions:
//	  - type: matches_sweep
//	  - type: checksum
//	    mode: merge
//	    value: 378
//	  - type: catalog
//	    where: { mode: tiled }
//	    count: 2
//
// # Assertion Types
//
//   - matches_sweep: final arrays equal the sequential sweep within tolerance
//   - checksum: the final first-array sum equals value
//   - min_epochs: every plan has at least count epochs
//   - min_regions: every plan has at least count regions
//   - catalog: the plan catalog holds count plans matching where
//
// # Deterministic Testing
//
// Every run gets fresh arrays and a fresh catalog module, and every plan is
// recorded in an in-memory SQLite catalog and executed from its stored copy.
// Log lines carry a fixed run id (scenario.run_id, default "test-run").
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/shift.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
