package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/stencil/internal/compiler"
)

// StencilSummary describes one valid stencil.
type StencilSummary struct {
	Name      string `json:"name"`
	Rank      int    `json:"rank"`
	Arrays    int    `json:"arrays"`
	Guards    int    `json:"guards"`
	Tiles     int    `json:"tiles"`
	Kernels   int    `json:"kernels"`
	Timesteps int    `json:"timesteps,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool                       `json:"valid"`
	Stencils []StencilSummary           `json:"stencils,omitempty"`
	Errors   []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <spec-dir>",
		Short: "Validate stencil specs",
		Long: `Compile and validate every CUE stencil spec in a directory.

Reports all problems at once: CUE errors, missing fields, undefined guards
and arrays, malformed kernel expressions and tile layouts.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specDir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	loadResult, loadErrors := compiler.LoadDir(specDir, compiler.LoadModeCollectAll)

	// Directory not found, no files, CUE build failures
	if loadResult == nil {
		var loadErr *compiler.LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message)
		}
		return outputValidateError(formatter, compiler.ErrCodeGeneric, loadErrors[0].Error())
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specDir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			validationErrors = append(validationErrors, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
			continue
		}
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: err.Error(),
			Code:    compiler.ErrCodeGeneric,
		})
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	summaries := make([]StencilSummary, 0, len(loadResult.Stencils))
	for _, spec := range loadResult.Stencils {
		kernels := 0
		for _, tile := range spec.Tiles {
			kernels += len(tile.Kernels)
		}
		formatter.VerboseLog("Validated stencil: %s", spec.Name)
		summaries = append(summaries, StencilSummary{
			Name:      spec.Name,
			Rank:      spec.Rank,
			Arrays:    len(spec.Arrays),
			Guards:    len(spec.Guards),
			Tiles:     len(spec.Tiles),
			Kernels:   kernels,
			Timesteps: spec.Timesteps,
		})
	}
	return outputValidateSuccess(formatter, summaries)
}

// lineOf extracts the line number of a load error, or 0.
func lineOf(err *compiler.LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, summaries []StencilSummary) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Stencils: summaries})
	}

	for _, s := range summaries {
		fmt.Fprintf(formatter.Writer, "  %s: rank %d, %d array(s), %d tile(s), %d kernel(s)\n",
			s.Name, s.Rank, s.Arrays, s.Tiles, s.Kernels)
	}
	fmt.Fprintln(formatter.Writer, "✓ All specs valid")
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string) error {
	_ = formatter.Error(code, message, nil)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.JSON() {
		formatter.Indent = true
		if err := formatter.Failure(ValidationResult{Valid: false, Errors: errs}, errs[0].Code, errs[0].Message); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", err.Code, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
