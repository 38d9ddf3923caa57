package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/requex/internal/ir"
)

// Scenario defines a conformance scenario: a query, the events fed to it,
// and assertions over the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Specs is the directory of CUE graph definitions. A relative path is
	// resolved against the scenario file's directory.
	Specs string `yaml:"specs"`

	// Query names the query under test.
	Query string `yaml:"query"`

	// Stream is an optional fixed stream token. Defaults to
	// "test-stream-default" so golden files stay deterministic.
	Stream string `yaml:"stream,omitempty"`

	// Batch dispatches all events as one batch instead of one at a time.
	Batch bool `yaml:"batch,omitempty"`

	// Events are journaled and dispatched in order.
	Events []EventStep `yaml:"events"`

	// Assertions are evaluated in order after the events, against the live
	// store. Supported types: state_equals, path_equals, unchanged,
	// dispatch_error.
	Assertions []Assertion `yaml:"assertions"`
}

// EventStep is one input event.
type EventStep struct {
	Type    string         `yaml:"type"`
	Payload map[string]any `yaml:"payload,omitempty"`
}

// Event converts the step to an ir.Event. Floats and nulls are rejected.
func (e EventStep) Event() (ir.Event, error) {
	if len(e.Payload) == 0 {
		return ir.Event{Type: e.Type, Payload: ir.IRObject{}}, nil
	}
	v, err := ir.FromNative(e.Payload)
	if err != nil {
		return ir.Event{}, fmt.Errorf("event %s: payload: %w", e.Type, err)
	}
	return ir.Event{Type: e.Type, Payload: v.(ir.IRObject)}, nil
}

// Assertion validates the state after the scenario's events.
type Assertion struct {
	// Type specifies the assertion type:
	// - "state_equals": the whole state equals Expect
	// - "path_equals": the value at Path equals Expect
	// - "unchanged": dispatching Events keeps the state reference
	// - "dispatch_error": dispatching Events as one batch fails and keeps
	//   the state reference
	Type string `yaml:"type"`

	// Expect is the expected value, compared as canonical JSON. An absent
	// expect means null, the state of a query that has not emitted.
	Expect any `yaml:"expect,omitempty"`

	// Path is a dotted path into the state; numeric segments index lists
	// (used by path_equals).
	Path string `yaml:"path,omitempty"`

	// Events are dispatched by unchanged and dispatch_error.
	Events []EventStep `yaml:"events,omitempty"`

	// Code optionally pins the engine error code (used by dispatch_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertStateEquals   = "state_equals"
	AssertPathEquals    = "path_equals"
	AssertUnchanged     = "unchanged"
	AssertDispatchError = "dispatch_error"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving a relative specs directory against basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve the specs path BEFORE validation
	if scenario.Specs != "" && !filepath.IsAbs(scenario.Specs) && basePath != "" {
		scenario.Specs = filepath.Join(basePath, scenario.Specs)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Specs == "" {
		return fmt.Errorf("specs directory is required")
	}
	if info, err := os.Stat(s.Specs); err != nil || !info.IsDir() {
		return fmt.Errorf("specs directory not found: %s", s.Specs)
	}

	if s.Query == "" {
		return fmt.Errorf("query is required")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Events {
		if step.Type == "" {
			return fmt.Errorf("events[%d]: type is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStateEquals:
	case AssertPathEquals:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for path_equals", index)
		}
	case AssertUnchanged, AssertDispatchError:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for %s", index, a.Type)
		}
		for j, step := range a.Events {
			if step.Type == "" {
				return fmt.Errorf("assertions[%d].events[%d]: type is required", index, j)
			}
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	if a.Code != "" && a.Type != AssertDispatchError {
		return fmt.Errorf("assertions[%d]: code is only valid for dispatch_error", index)
	}

	return nil
}
