package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stencil/internal/engine"
	"github.com/roach88/stencil/internal/session"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Stencil     string
	Plan        string
	Mode        string
	Gen         string
	Repeat      int
	MetricsAddr string
	Hold        bool

	// RunIDs allows overriding the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// RunResult is the output of the run command.
type RunResult struct {
	Stencil     string  `json:"stencil"`
	Mode        string  `json:"mode"`
	Color       int     `json:"color"`
	Regions     int     `json:"regions"`
	Epochs      int     `json:"epochs"`
	Repeat      int     `json:"repeat"`
	Final       int     `json:"final"`
	Checksum    float64 `json:"checksum"`
	BestSeconds float64 `json:"best_seconds"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <spec-dir>",
		Short: "Execute a stored plan",
		Long: `Execute a plan stored by "stencil plan" on freshly initialized arrays.

Modes:
  interp  walk every region point by point through the tile kernels
  obase   step every region through one region kernel set per color
  merge   load the merged kernel module generated for a tiled plan

Prints the checksum of the first array at the final time step and the best
wall time over --repeat executions. With --metrics-addr the engine's
Prometheus metrics are served while the plan runs; --hold keeps serving
until interrupted.

Example:
  stencil run ./specs --stencil heat --plan ./plans/heat --mode merge --repeat 5
  stencil run ./specs --plan ./plans/heat --mode interp --metrics-addr :9090 --hold`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlanFile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Stencil, "stencil", "", "stencil name (optional when the specs declare one)")
	cmd.Flags().StringVar(&opts.Plan, "plan", "", "plan base path (required)")
	cmd.Flags().StringVar(&opts.Mode, "mode", session.ModeInterp, "execution mode (interp|obase|merge)")
	cmd.Flags().StringVar(&opts.Gen, "gen", "", "merged kernel base path (default: --plan)")
	cmd.Flags().IntVar(&opts.Repeat, "repeat", 1, "number of executions")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&opts.Hold, "hold", false, "keep serving metrics after the runs until interrupted")
	_ = cmd.MarkFlagRequired("plan")

	return cmd
}

func runPlanFile(opts *RunOptions, specDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	if opts.Repeat < 1 {
		return fail(formatter, NewExitError(ExitCommandError, fmt.Sprintf("--repeat must be positive, got %d", opts.Repeat)))
	}
	valid := false
	for _, m := range session.Modes {
		valid = valid || m == opts.Mode
	}
	if !valid {
		return fail(formatter, NewExitError(ExitCommandError, fmt.Sprintf("invalid mode %q: must be one of %v", opts.Mode, session.Modes)))
	}

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	spec, err := loadStencil(specDir, opts.Stencil)
	if err != nil {
		return fail(formatter, err)
	}

	ids := &lastRunID{RunIDGenerator: opts.RunIDs}
	if ids.RunIDGenerator == nil {
		ids.RunIDGenerator = engine.UUIDv7Generator{}
	}
	s, err := openSession(spec, logger, engine.WithRunIDs(ids))
	if err != nil {
		return fail(formatter, err)
	}
	defer s.Close()

	plan, err := s.Stencil.LoadPlan(opts.Plan)
	if err != nil {
		return fail(formatter, WrapExitError(exitCodeFor(err), "failed to load plan", err))
	}
	gen := opts.Gen
	if gen == "" {
		gen = opts.Plan
	}

	var metrics *metricsServer
	if opts.MetricsAddr != "" {
		metrics, err = startMetrics(opts.MetricsAddr, logger)
		if err != nil {
			return fail(formatter, WrapExitError(ExitCommandError, "failed to serve metrics", err))
		}
		defer stopMetrics(metrics)
	}

	var best time.Duration
	for i := 0; i < opts.Repeat; i++ {
		if i > 0 {
			if err := s.Reset(); err != nil {
				return fail(formatter, err)
			}
		}
		start := time.Now()
		if err := s.Execute(ctx, plan, opts.Mode, gen); err != nil {
			return fail(formatter, err)
		}
		elapsed := time.Since(start)
		if i == 0 || elapsed < best {
			best = elapsed
		}
		formatter.VerboseLog("run %d/%d: %s", i+1, opts.Repeat, elapsed)
	}
	if opts.Mode == session.ModeMerge {
		best = s.Stencil.BestTime()
	}

	final := finalTime(plan)
	result := RunResult{
		Stencil:     spec.Name,
		Mode:        opts.Mode,
		Color:       plan.Color,
		Regions:     len(plan.Regions),
		Epochs:      len(plan.Sync) - 1,
		Repeat:      opts.Repeat,
		Final:       final,
		Checksum:    s.Checksum(final),
		BestSeconds: best.Seconds(),
	}

	if formatter.JSON() {
		err = formatter.Respond(CLIResponse{Status: "ok", Data: result, RunID: ids.last})
	} else {
		fmt.Fprintf(formatter.Writer, "✓ %s %s: %d region(s) in %d epoch(s)\n", result.Stencil, result.Mode, result.Regions, result.Epochs)
		fmt.Fprintf(formatter.Writer, "  checksum(t=%d) = %.12g\n", result.Final, result.Checksum)
		fmt.Fprintf(formatter.Writer, "  best of %d: %s\n", result.Repeat, best)
		formatter.VerboseLog("last run id %s", ids.last)
	}
	if err != nil {
		return err
	}

	if metrics != nil && opts.Hold {
		fmt.Fprintf(formatter.GetErrWriter(), "Serving metrics on %s. Press Ctrl-C to stop.\n", metrics.Addr())
		if err := metrics.Wait(ctx); err != nil {
			return WrapExitError(ExitFailure, "metrics", err)
		}
	}
	return nil
}

// lastRunID remembers the most recent id handed to the engine.
type lastRunID struct {
	engine.RunIDGenerator
	last string
}

func (g *lastRunID) Generate() string {
	g.last = g.RunIDGenerator.Generate()
	return g.last
}
