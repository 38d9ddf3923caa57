package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/compiler"
	"github.com/roach88/requex/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledQuery is one compiled graph definition.
type CompiledQuery struct {
	Name      string       `json:"name"`
	GraphHash string       `json:"graph_hash"`
	Root      *ir.NodeSpec `json:"root"`
}

// CompilationResult holds the compiled queries.
type CompilationResult struct {
	Queries []CompiledQuery `json:"queries"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE graph definitions to node specs",
		Long: `Compile the CUE graph definitions in a directory.

Every query under "query: <name>:" is compiled to a node spec, validated,
and printed with its graph hash. Checkpoints are tied to that hash, so a
changed definition never verifies against an old checkpoint.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loadResult, loadErrors := compiler.Load(specsDir, compiler.LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputCompileError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)
	for _, q := range loadResult.Queries {
		formatter.VerboseLog("Compiling query: %s", q.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}
	if verrs := compiler.ValidateAll(loadResult.Queries); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i := range verrs {
			errs[i] = verrs[i]
		}
		return outputCompileErrors(formatter, errs)
	}

	result := &CompilationResult{Queries: make([]CompiledQuery, 0, len(loadResult.Queries))}
	for _, q := range loadResult.Queries {
		hash, err := ir.GraphHash(q)
		if err != nil {
			return outputCompileError(formatter, compiler.ErrCodeGeneric, fmt.Sprintf("hashing query %s: %v", q.Name, err), nil)
		}
		result.Queries = append(result.Queries, CompiledQuery{Name: q.Name, GraphHash: hash, Root: q.Root})
	}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "OK Compiled %d query(s)\n\n", len(result.Queries))
	for _, q := range result.Queries {
		fmt.Fprintf(formatter.Writer, "  %s  %s\n", q.Name, truncateID(q.GraphHash))
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote node specs to %s\n", outputFile)
	}

	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{
				Code:    code,
				Message: message,
			}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}

		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "FAIL Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *compiler.LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	code := ErrorCode(err, compiler.ErrCodeGeneric)
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return code, loadErr.Message
	}
	var verr compiler.ValidationError
	if errors.As(err, &verr) {
		return code, fmt.Sprintf("%s: %s", verr.Field, verr.Message)
	}
	return code, err.Error()
}

// writeIRToFile writes the compilation result to a file.
func writeIRToFile(result *CompilationResult, filename string) error {
	// Indented for readability; canonical JSON is used only for hashing
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling node specs: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
