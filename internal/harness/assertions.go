package harness

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/roach88/stencil/internal/planquery"
	"github.com/roach88/stencil/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Runs     []RunResult // Runs the assertion looked at
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Runs) > 0 {
		fmt.Fprintf(&buf, "\nRuns:\n")
		for i, run := range e.Runs {
			fmt.Fprintf(&buf, "  [%d] %s tiled=%t regions=%d epochs=%d checksum=%g max_diff=%g\n",
				i+1, run.Mode, run.Tiled, run.Regions, run.Epochs, run.Checksum, run.MaxDiff)
		}
	}

	return buf.String()
}

// selectRuns returns the runs an assertion applies to.
func selectRuns(runs []RunResult, mode string) []RunResult {
	if mode == "" {
		return runs
	}
	var out []RunResult
	for _, r := range runs {
		if r.Mode == mode {
			out = append(out, r)
		}
	}
	return out
}

// assertMatchesSweep checks that every selected run ended where the
// sequential sweep ended.
func assertMatchesSweep(result *Result, assertion Assertion, tol float64) error {
	runs := selectRuns(result.Runs, assertion.Mode)
	if len(runs) == 0 {
		return noRuns(assertion)
	}
	for i, run := range runs {
		if run.MaxDiff > tol {
			return &AssertionError{
				Type:     AssertMatchesSweep,
				Expected: fmt.Sprintf("max difference to sweep <= %g", tol),
				Actual:   fmt.Sprintf("run %d (%s) differs by %g", i+1, run.Mode, run.MaxDiff),
				Runs:     runs,
			}
		}
	}
	return nil
}

// assertChecksum checks the final first-array sum of every selected run.
func assertChecksum(result *Result, assertion Assertion, tol float64) error {
	runs := selectRuns(result.Runs, assertion.Mode)
	if len(runs) == 0 {
		return noRuns(assertion)
	}
	for i, run := range runs {
		if math.Abs(run.Checksum-assertion.Value) > tol {
			return &AssertionError{
				Type:     AssertChecksum,
				Expected: fmt.Sprintf("checksum %g", assertion.Value),
				Actual:   fmt.Sprintf("run %d (%s) checksum %g", i+1, run.Mode, run.Checksum),
				Runs:     runs,
			}
		}
	}
	return nil
}

// assertMinimum checks a lower bound on a per-run plan count.
func assertMinimum(result *Result, assertion Assertion, what string, get func(RunResult) int) error {
	runs := selectRuns(result.Runs, assertion.Mode)
	if len(runs) == 0 {
		return noRuns(assertion)
	}
	for i, run := range runs {
		if n := get(run); n < assertion.Count {
			return &AssertionError{
				Type:     assertion.Type,
				Expected: fmt.Sprintf("at least %d %s", assertion.Count, what),
				Actual:   fmt.Sprintf("run %d (%s) has %d", i+1, run.Mode, n),
				Runs:     runs,
			}
		}
	}
	return nil
}

func noRuns(assertion Assertion) error {
	return &AssertionError{
		Type:     assertion.Type,
		Expected: fmt.Sprintf("runs in mode %q", assertion.Mode),
		Actual:   "no matching runs",
	}
}

// assertCatalog counts plan catalog rows matching the where clause.
func assertCatalog(ctx context.Context, st *store.Store, assertion Assertion) error {
	filter, err := planquery.Where(assertion.Where)
	if err != nil {
		return err
	}

	count, err := st.CountPlans(ctx, filter)
	if err != nil {
		return &AssertionError{
			Type:     AssertCatalog,
			Expected: fmt.Sprintf("query plans where %s", planquery.Describe(filter)),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertCatalog,
			Expected: fmt.Sprintf("%d plans where %s", assertion.Count, planquery.Describe(filter)),
			Actual:   fmt.Sprintf("%d plans", count),
		}
	}
	return nil
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	Store     *store.Store
	Ctx       context.Context
	Tolerance float64
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides catalog access for catalog assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	var tol float64
	if actx != nil {
		tol = actx.Tolerance
	}

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertMatchesSweep:
			err = assertMatchesSweep(result, assertion, tol)
		case AssertChecksum:
			err = assertChecksum(result, assertion, tol)
		case AssertMinEpochs:
			err = assertMinimum(result, assertion, "epochs", func(r RunResult) int { return r.Epochs })
		case AssertMinRegions:
			err = assertMinimum(result, assertion, "regions", func(r RunResult) int { return r.Regions })
		case AssertCatalog:
			if actx == nil || actx.Store == nil {
				err = fmt.Errorf("assertion[%d]: catalog requires database context", i)
			} else {
				ctx := actx.Ctx
				if ctx == nil {
					ctx = context.Background()
				}
				if cerr := assertCatalog(ctx, actx.Store, assertion); cerr != nil {
					err = fmt.Errorf("assertion[%d]: %w", i, cerr)
				}
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
