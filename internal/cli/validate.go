package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool                       `json:"valid"`
	Queries []string                   `json:"queries,omitempty"`
	Errors  []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate graph definitions without building them",
		Long: `Validate CUE graph definitions without building engine queries.

Reports every compile and schema error with its position instead of
stopping at the first one. Faster than compile for development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, validationErrors, err := ValidateSpecsDir(specsDir)
	if err != nil {
		code, message := parseCompileError(err)
		return outputValidateError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, name := range loadResult.Names() {
		formatter.VerboseLog("Validated query: %s", name)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, loadResult.Names())
}

// ValidateSpecsDir loads every query in specsDir and returns all compile
// and schema errors. The error return is reserved for directories that
// cannot be loaded at all.
func ValidateSpecsDir(specsDir string) (*compiler.LoadResult, []compiler.ValidationError, error) {
	loadResult, loadErrors := compiler.Load(specsDir, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return nil, nil, loadErrors[0]
	}

	var errs []compiler.ValidationError
	for _, err := range loadErrors {
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) {
			errs = append(errs, compiler.ValidationError{
				Field:   "load",
				Message: loadErr.Message,
				Code:    loadErr.Code,
				Line:    lineOf(loadErr),
			})
			continue
		}
		errs = append(errs, compiler.ValidationError{Field: "load", Message: err.Error(), Code: compiler.ErrCodeGeneric})
	}
	errs = append(errs, compiler.ValidateAll(loadResult.Queries)...)

	return loadResult, errs, nil
}

func lineOf(err *compiler.LoadError) int {
	if err.Pos.IsValid() {
		return err.Pos.Line()
	}
	return 0
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, queries []string) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Queries: queries})
	}

	fmt.Fprintf(formatter.Writer, "OK %d query(s) valid\n", len(queries))
	return nil
}

// outputValidateError outputs a single validation error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: errs},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "FAIL Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
