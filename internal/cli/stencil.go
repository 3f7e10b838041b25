package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/roach88/stencil/internal/compiler"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/session"
)

// Environment overrides.
const (
	EnvDatabase = "STENCIL_DB"      // default catalog path for plan and plans
	EnvCodegen  = "STENCIL_CODEGEN" // generator argv prefix, space separated
)

// dbPath returns flag, or the STENCIL_DB override when flag is empty.
func dbPath(flag string) string {
	if flag != "" {
		return flag
	}
	return os.Getenv(EnvDatabase)
}

// codegenArgv returns the generator the tiled planner launches: the
// STENCIL_CODEGEN override, or this executable's genkernels command bound
// to the spec directory and stencil.
func codegenArgv(specDir, name string) ([]string, error) {
	if env := strings.Fields(os.Getenv(EnvCodegen)); len(env) > 0 {
		return env, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return []string{exe, "genkernels", "--spec", specDir, "--stencil", name}, nil
}

// loadStencil compiles specDir and returns the stencil called name.
func loadStencil(specDir, name string) (*ir.StencilSpec, error) {
	result, errs := compiler.LoadDir(specDir, compiler.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, WrapExitError(ExitCommandError, "failed to load specs", errs[0])
	}
	if name == "" {
		names := result.Names()
		if len(names) != 1 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("--stencil is required: %s declares %v", specDir, names))
		}
		name = names[0]
	}
	spec, ok := result.Find(name)
	if !ok {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("stencil %q not found in %s (have %v)", name, specDir, result.Names()))
	}
	return spec, nil
}

// openSession builds a configured session for spec.
func openSession(spec *ir.StencilSpec, logger *slog.Logger, opts ...engine.Option) (*session.Session, error) {
	s, err := session.Open(spec, logger, opts...)
	if err != nil {
		return nil, WrapExitError(exitCodeFor(err), "failed to open stencil "+spec.Name, err)
	}
	return s, nil
}

// exitCodeFor maps engine errors to exit codes: configuration mistakes are
// command errors, everything else a failure.
func exitCodeFor(err error) int {
	if engine.IsConfigError(err) {
		return ExitCommandError
	}
	return ExitFailure
}

// errorCode returns the code shown for err in formatted output.
func errorCode(err error) string {
	var ce *engine.ConfigError
	if errors.As(err, &ce) {
		return string(ce.Code)
	}
	var le *compiler.LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	switch {
	case engine.IsExternalError(err):
		return "EXTERNAL"
	case engine.IsInternalError(err):
		return "INTERNAL"
	}
	return compiler.ErrCodeGeneric
}

// fail prints err through the formatter and returns it as an ExitError.
func fail(f *OutputFormatter, err error) error {
	_ = f.Error(errorCode(err), err.Error(), nil)
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return WrapExitError(exitCodeFor(err), "command failed", err)
}

// finalTime is the last time step a plan writes.
func finalTime(plan *ir.Plan) int {
	t := 0
	for _, r := range plan.Regions {
		t = max(t, r.T1)
	}
	return t
}
