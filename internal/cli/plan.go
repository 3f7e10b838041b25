package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/stencil/internal/codegen"
	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/store"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Stencil        string
	Out            string
	Tiled          bool
	Timesteps      int
	ThresholdBytes int
	Database       string

	// Generator overrides the kernel generator launched for tiled plans
	// (for testing). If nil, the generator command is launched.
	Generator engine.Generator
}

// PlanResult is the output of the plan command.
type PlanResult struct {
	Stencil   string `json:"stencil"`
	Mode      string `json:"mode"`
	Color     int    `json:"color"`
	Timesteps int    `json:"timesteps"`
	Regions   int    `json:"regions"`
	Epochs    int    `json:"epochs"`
	Base      string `json:"base"`
	PlanID    string `json:"plan_id,omitempty"`
	PlanHash  string `json:"plan_hash"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	return newPlanCommand(&PlanOptions{RootOptions: rootOpts})
}

func newPlanCommand(opts *PlanOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <spec-dir>",
		Short: "Generate and store an execution plan",
		Long: `Generate an execution plan for a stencil and store it next to --out.

A direct plan lists regions for the interpreter. A tiled plan colors the
regions, writes the color vector next to --out and launches the kernel
generator to produce the merged kernel module.

The plan is recorded in the plan catalog when --db (or STENCIL_DB) is set.

Example:
  stencil plan ./specs --stencil heat --out ./plans/heat --timesteps 64
  stencil plan ./specs --stencil heat --out ./plans/heat --tiled --db plans.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Stencil, "stencil", "", "stencil name (optional when the specs declare one)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "plan base path (required)")
	cmd.Flags().BoolVar(&opts.Tiled, "tiled", false, "generate a tiled plan with merged kernels")
	cmd.Flags().IntVar(&opts.Timesteps, "timesteps", 0, "time steps to plan (default: the stencil's own)")
	cmd.Flags().IntVar(&opts.ThresholdBytes, "threshold", 0, "base region size in bytes (default 32KiB)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "plan catalog path (default $"+EnvDatabase+")")
	_ = cmd.MarkFlagRequired("out")

	return cmd
}

func runPlan(opts *PlanOptions, specDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	spec, err := loadStencil(specDir, opts.Stencil)
	if err != nil {
		return fail(formatter, err)
	}
	timesteps := opts.Timesteps
	if timesteps == 0 {
		timesteps = spec.Timesteps
	}
	if timesteps < 1 {
		return fail(formatter, NewExitError(ExitCommandError, fmt.Sprintf("stencil %s declares no timesteps: pass --timesteps", spec.Name)))
	}

	base, err := filepath.Abs(opts.Out)
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "invalid --out", err))
	}

	cfg := engine.DefaultConfig()
	if opts.ThresholdBytes > 0 {
		cfg.ThresholdBytes = opts.ThresholdBytes
	}
	gen := opts.Generator
	if gen == nil {
		argv, err := codegenArgv(specDir, spec.Name)
		if err != nil {
			return fail(formatter, WrapExitError(ExitCommandError, "kernel generator", err))
		}
		cfg.Codegen = argv
		gen = codegen.Runner{Argv: argv}
	}

	engineOpts := []engine.Option{engine.WithConfig(cfg), engine.WithGenerator(gen)}

	// Continue color numbering after the plans already in the catalog.
	var st *store.Store
	if path := dbPath(opts.Database); path != "" {
		st, err = store.Open(path, store.WithLogger(logger))
		if err != nil {
			return fail(formatter, WrapExitError(ExitCommandError, "failed to open plan catalog", err))
		}
		defer st.Close()
		next, err := st.NextColor(ctx)
		if err != nil {
			return fail(formatter, WrapExitError(ExitFailure, "failed to read plan catalog", err))
		}
		engineOpts = append(engineOpts, engine.WithColorClock(engine.NewColorClockAt(next)))
	}

	s, err := openSession(spec, logger, engineOpts...)
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close()

	formatter.VerboseLog("Planning %s: %d step(s), tiled=%t", spec.Name, timesteps, opts.Tiled)
	plan, err := s.Plan(ctx, timesteps, opts.Tiled, base)
	if err != nil {
		return fail(formatter, err)
	}
	if err := s.Stencil.StorePlan(base, plan); err != nil {
		return fail(formatter, err)
	}

	hash, err := ir.PlanHash(plan)
	if err != nil {
		return fail(formatter, err)
	}
	mode := engine.ModeDirect
	if opts.Tiled {
		mode = engine.ModeTiled
	}
	result := PlanResult{
		Stencil:   spec.Name,
		Mode:      mode,
		Color:     plan.Color,
		Timesteps: timesteps,
		Regions:   len(plan.Regions),
		Epochs:    len(plan.Sync) - 1,
		Base:      base,
		PlanHash:  hash,
	}

	if st != nil {
		id, err := recordPlan(ctx, st, spec, result, plan)
		if err != nil {
			return fail(formatter, WrapExitError(ExitFailure, "failed to record plan", err))
		}
		result.PlanID = id
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %s plan for %s: color %d, %d region(s), %d epoch(s)\n",
		result.Mode, result.Stencil, result.Color, result.Regions, result.Epochs)
	fmt.Fprintf(formatter.Writer, "  stored at %s\n", result.Base)
	if result.PlanID != "" {
		fmt.Fprintf(formatter.Writer, "  catalog id %s\n", result.PlanID)
	}
	return nil
}

// recordPlan writes plan to the catalog and returns its id.
func recordPlan(ctx context.Context, st *store.Store, spec *ir.StencilSpec, result PlanResult, plan *ir.Plan) (string, error) {
	specHash, err := ir.SpecHash(spec)
	if err != nil {
		return "", err
	}
	rec, err := st.WritePlan(ctx, store.PlanRecord{
		Stencil:   spec.Name,
		SpecHash:  specHash,
		Mode:      result.Mode,
		Timesteps: result.Timesteps,
		Base:      result.Base,
	}, plan)
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}
