package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ScenarioNotFoundError is returned when a requested scenario doesn't exist.
type ScenarioNotFoundError struct {
	Dir    string
	Filter string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	if e.Filter != "" {
		return fmt.Sprintf("no scenario matching %q in %s", e.Filter, e.Dir)
	}
	return fmt.Sprintf("no scenario files in %s", e.Dir)
}

// SuiteResult aggregates the outcome of running a directory of scenarios.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []ScenarioOutcome `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioOutcome is the result of one scenario in a suite.
type ScenarioOutcome struct {
	Name     string    `json:"name"`
	Path     string    `json:"path"`
	Result   *Result   `json:"result,omitempty"`
	Scenario *Scenario `json:"-"`
}

// ScenarioFailure represents a scenario that failed to load, run or pass.
type ScenarioFailure struct {
	Name         string `json:"name,omitempty"`
	ScenarioPath string `json:"scenario_path"`
	Error        string `json:"error"`
}

// Pass reports whether every scenario passed.
func (r *SuiteResult) Pass() bool {
	return r.Failed == 0
}

// FindScenarioFiles lists the .yaml/.yml files in dir, sorted. A non-empty
// filter keeps files whose base name (without extension) contains it.
func FindScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" && !strings.Contains(strings.TrimSuffix(name, ext), filter) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	if len(files) == 0 {
		return nil, &ScenarioNotFoundError{Dir: dir, Filter: filter}
	}
	return files, nil
}

// RunSuite loads and runs every scenario in dir matching filter.
//
// For each scenario file:
// 1. Load it (relative specs resolve against the file's directory)
// 2. Run it via Run
// 3. Collect the outcome
func RunSuite(dir, filter string) (*SuiteResult, error) {
	files, err := FindScenarioFiles(dir, filter)
	if err != nil {
		return nil, err
	}

	suite := &SuiteResult{}
	for _, path := range files {
		suite.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			suite.fail(ScenarioFailure{ScenarioPath: path, Error: fmt.Sprintf("failed to load scenario: %v", err)})
			continue
		}

		result, err := Run(scenario)
		if err != nil {
			suite.fail(ScenarioFailure{Name: scenario.Name, ScenarioPath: path, Error: fmt.Sprintf("scenario execution failed: %v", err)})
			continue
		}

		suite.Results = append(suite.Results, ScenarioOutcome{Name: scenario.Name, Path: path, Result: result, Scenario: scenario})
		if !result.Pass {
			suite.fail(ScenarioFailure{
				Name:         scenario.Name,
				ScenarioPath: path,
				Error:        fmt.Sprintf("scenario assertions failed: %s", strings.Join(result.Errors, "; ")),
			})
			continue
		}
		suite.Passed++
	}

	return suite, nil
}

func (r *SuiteResult) fail(f ScenarioFailure) {
	r.Failed++
	r.Failures = append(r.Failures, f)
}
