package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/requex/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (substring of the file name)
	GoldenDir string // defaults to <scenarios-dir>/golden
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name      string   `json:"name"`
	Path      string   `json:"path"`
	Pass      bool     `json:"pass"`
	StateHash string   `json:"state_hash,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios using the harness framework.

Each scenario names a specs directory and a query, feeds its events through
the query and checks its assertions. When a golden file exists for the
scenario, the dispatch trace must match it byte for byte.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, no scenarios, etc.)

Examples:
  requex test ./scenarios
  requex test ./scenarios --filter todo
  requex test ./scenarios --update
  requex test ./scenarios --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "only run scenarios whose file name contains this")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden-dir", "", "golden file directory (default <scenarios-dir>/golden)")

	return cmd
}

func runTests(opts *TestOptions, scenariosDir string, cmd *cobra.Command) error {
	if _, err := os.Stat(scenariosDir); os.IsNotExist(err) {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}

	suite, err := harness.RunSuite(scenariosDir, opts.Filter)
	if err != nil {
		var nf *harness.ScenarioNotFoundError
		if errors.As(err, &nf) {
			return WrapExitError(ExitCommandError, "no scenarios to run", err)
		}
		return WrapExitError(ExitCommandError, "failed to run scenarios", err)
	}

	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(scenariosDir, "golden")
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, suite.Total), Total: suite.Total}

	failures := make(map[string]harness.ScenarioFailure, len(suite.Failures))
	for _, f := range suite.Failures {
		failures[f.ScenarioPath] = f
	}
	ran := make(map[string]bool, len(suite.Results))

	for _, outcome := range suite.Results {
		ran[outcome.Path] = true
		sr := ScenarioResult{
			Name:      outcome.Name,
			Path:      outcome.Path,
			Pass:      outcome.Result.Pass,
			StateHash: outcome.Result.StateHash,
			Errors:    outcome.Result.Errors,
		}
		if err := checkGolden(opts, goldenDir, outcome); err != nil {
			sr.Pass = false
			sr.Errors = append(sr.Errors, err.Error())
		}
		result.Scenarios = append(result.Scenarios, sr)
	}

	// Scenarios that failed to load or run have no outcome.
	for path, f := range failures {
		if ran[path] {
			continue
		}
		name := f.Name
		if name == "" {
			name = filepath.Base(path)
		}
		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:   name,
			Path:   path,
			Errors: []string{f.Error},
		})
	}

	sort.Slice(result.Scenarios, func(i, j int) bool {
		return result.Scenarios[i].Path < result.Scenarios[j].Path
	})
	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	// Output results
	if opts.Format == "json" {
		return outputTestJSON(cmd, result)
	}
	return outputTestText(cmd, result, opts.Update)
}

// checkGolden updates or compares the golden trace of a scenario. Without
// --update, a scenario with no golden file is checked by its assertions
// alone.
func checkGolden(opts *TestOptions, goldenDir string, outcome harness.ScenarioOutcome) error {
	data, err := harness.NewSnapshot(outcome.Scenario, outcome.Result).Marshal()
	if err != nil {
		return err
	}
	path := goldenFilePath(goldenDir, outcome.Name)

	if opts.Update {
		if err := os.MkdirAll(goldenDir, 0755); err != nil {
			return fmt.Errorf("failed to create golden directory: %w", err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return fmt.Errorf("failed to update golden file: %w", err)
		}
		return nil
	}

	want, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read golden file: %w", err)
	}
	if !bytes.Equal(bytes.TrimRight(want, "\n"), data) {
		return fmt.Errorf("trace does not match golden file %s (run with --update to regenerate)", path)
	}
	return nil
}

// goldenFilePath returns the path to the golden file for a scenario.
func goldenFilePath(goldenDir, name string) string {
	return filepath.Join(goldenDir, name+".golden")
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(cmd *cobra.Command, result TestResult) error {
	status := "ok"
	if result.Failed > 0 {
		status = "error"
	}

	response := CLIResponse{
		Status: status,
		Data:   result,
	}

	if result.Failed > 0 {
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(response); err != nil {
		return err
	}

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(cmd *cobra.Command, result TestResult, updated bool) error {
	w := cmd.OutOrStdout()

	for _, sr := range result.Scenarios {
		if sr.Pass {
			suffix := ""
			if updated {
				suffix = " (golden updated)"
			}
			fmt.Fprintf(w, "OK %s%s\n", sr.Name, suffix)
			continue
		}
		fmt.Fprintf(w, "FAIL %s\n", sr.Name)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", strings.ReplaceAll(e, "\n", "\n  "))
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)

	if result.Failed > 0 {
		// Test failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "OK All scenarios passed")
	return nil
}
