package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/stencil/internal/planquery"
	"github.com/roach88/stencil/internal/store"
)

// PlansOptions holds flags for the plans command.
type PlansOptions struct {
	*RootOptions
	Database   string
	Stencil    string
	Mode       string
	MinRegions int
	Limit      int
	Delete     string
}

// NewPlansCommand creates the plans command.
func NewPlansCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlansOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "List the plan catalog",
		Long: `List the plans recorded by "stencil plan --db", oldest first.

Example:
  stencil plans --db plans.db
  stencil plans --db plans.db --stencil heat --mode tiled --format json
  stencil plans --db plans.db --min-regions 16 --limit 5
  stencil plans --db plans.db --delete 0190f5d2-...`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlans(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "plan catalog path (default $"+EnvDatabase+")")
	cmd.Flags().StringVar(&opts.Stencil, "stencil", "", "only list plans of this stencil")
	cmd.Flags().StringVar(&opts.Mode, "mode", "", "only list plans of this mode (direct|tiled)")
	cmd.Flags().IntVar(&opts.MinRegions, "min-regions", 0, "only list plans with at least this many regions")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "list at most this many plans")
	cmd.Flags().StringVar(&opts.Delete, "delete", "", "delete the plan with this id")

	return cmd
}

func runPlans(opts *PlansOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	path := dbPath(opts.Database)
	if path == "" {
		return fail(formatter, NewExitError(ExitCommandError, "--db or "+EnvDatabase+" is required"))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(path, store.WithLogger(logger))
	if err != nil {
		return fail(formatter, WrapExitError(ExitCommandError, "failed to open plan catalog", err))
	}
	defer st.Close()

	if opts.Delete != "" {
		if err := st.DeletePlan(ctx, opts.Delete); err != nil {
			return fail(formatter, WrapExitError(ExitFailure, "failed to delete plan", err))
		}
		if formatter.JSON() {
			return formatter.Success(map[string]string{"deleted": opts.Delete})
		}
		fmt.Fprintf(formatter.Writer, "✓ deleted %s\n", opts.Delete)
		return nil
	}

	if opts.Limit < 0 {
		return fail(formatter, NewExitError(ExitCommandError, fmt.Sprintf("--limit must be non-negative, got %d", opts.Limit)))
	}
	records, err := st.QueryPlans(ctx, planquery.Select{Filter: opts.filter(), Limit: opts.Limit})
	if err != nil {
		return fail(formatter, WrapExitError(ExitFailure, "failed to list plans", err))
	}

	if formatter.JSON() {
		return formatter.Success(records)
	}

	if len(records) == 0 {
		fmt.Fprintln(formatter.Writer, "No plans recorded.")
		return nil
	}
	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTENCIL\tMODE\tCOLOR\tSTEPS\tREGIONS\tEPOCHS\tBASE")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID, r.Stencil, r.Mode, r.Color, r.Timesteps, r.Regions, r.Epochs, r.Base)
	}
	return tw.Flush()
}

// filter is the catalog predicate the filter flags select.
func (o *PlansOptions) filter() planquery.Predicate {
	var and planquery.And
	if o.Stencil != "" {
		and.Predicates = append(and.Predicates, planquery.Equals{Column: "stencil", Value: o.Stencil})
	}
	if o.Mode != "" {
		and.Predicates = append(and.Predicates, planquery.Equals{Column: "mode", Value: o.Mode})
	}
	if o.MinRegions > 0 {
		and.Predicates = append(and.Predicates, planquery.AtLeast{Column: "regions", Value: int64(o.MinRegions)})
	}
	return and
}
