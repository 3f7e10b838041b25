package cli

import (
	"errors"
	"flag"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stencil/internal/codegen"
)

// GenKernelsOptions holds the arguments of the genkernels command.
type GenKernelsOptions struct {
	*RootOptions
	Spec    string
	Stencil string
	Order   int
}

// NewGenKernelsCommand creates the genkernels command, the kernel generator
// the tiled planner launches.
//
// The planner appends "-order <color> <mode> <colorfile> <outfile>" to the
// generator argv. "-order" is a single-dash long flag, which cobra would
// read as a cluster of shorthands, so arguments are parsed with the
// standard flag package.
func NewGenKernelsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "genkernels --spec <dir> --stencil <name> -order <color> <mode> <colorfile> <outfile>",
		Short: "Generate a kernel module",
		Long: `Generate the Go kernel module of a stencil.

Mode "catalog" renders the tile kernels of the spec. Mode "merged" reads the
color vector of plan <color> and renders one merged region kernel set per
region index. The module is written to <outfile>.`,
		DisableFlagParsing: true,
		SilenceUsage:       true,
		SilenceErrors:      true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := &GenKernelsOptions{RootOptions: rootOpts}
			rest, err := parseGenKernelsArgs(opts, args, cmd)
			if err != nil {
				if errors.Is(err, flag.ErrHelp) {
					return nil
				}
				return NewExitError(ExitCommandError, err.Error())
			}
			return runGenKernels(opts, rest, cmd)
		},
	}

	return cmd
}

func parseGenKernelsArgs(opts *GenKernelsOptions, args []string, cmd *cobra.Command) ([]string, error) {
	fs := flag.NewFlagSet("genkernels", flag.ContinueOnError)
	fs.SetOutput(cmd.ErrOrStderr())
	fs.StringVar(&opts.Spec, "spec", "", "spec directory")
	fs.StringVar(&opts.Stencil, "stencil", "", "stencil name")
	fs.IntVar(&opts.Order, "order", 0, "plan color")
	fs.BoolVar(&opts.Verbose, "v", opts.Verbose, "verbose output")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.Spec == "" {
		return nil, errors.New("--spec is required")
	}
	if opts.Order < 0 {
		return nil, fmt.Errorf("-order must be non-negative, got %d", opts.Order)
	}
	if fs.NArg() != 3 {
		return nil, fmt.Errorf("want <mode> <colorfile> <outfile>, got %d argument(s)", fs.NArg())
	}
	return fs.Args(), nil
}

func runGenKernels(opts *GenKernelsOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	mode, colorFile, outFile := args[0], args[1], args[2]

	spec, err := loadStencil(opts.Spec, opts.Stencil)
	if err != nil {
		return fail(formatter, err)
	}

	formatter.VerboseLog("Generating %s module for %s (color %d)", mode, spec.Name, opts.Order)
	if err := codegen.GenerateFile(spec, opts.Order, mode, colorFile, outFile); err != nil {
		return fail(formatter, WrapExitError(ExitFailure, "kernel generation failed", err))
	}
	formatter.VerboseLog("Wrote %s", outFile)
	return nil
}
