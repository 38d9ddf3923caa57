package harness

import (
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/testutil"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string      `json:"scenario"`
	Query        string      `json:"query"`
	Stream       string      `json:"stream"`
	Trace        []TraceStep `json:"steps"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	steps := make([]any, len(s.Trace))
	for i, step := range s.Trace {
		m := map[string]any{
			"tick":    step.Tick,
			"event":   step.Event,
			"changed": step.Changed,
		}
		if step.Events > 1 {
			m["events"] = step.Events
		}
		if step.State != nil {
			m["state"] = step.State
		}
		if step.Error != "" {
			m["error"] = step.Error
		}
		steps[i] = m
	}

	return map[string]any{
		"scenario": s.ScenarioName,
		"query":    s.Query,
		"stream":   s.Stream,
		"steps":    steps,
	}
}

// Marshal renders the snapshot as canonical JSON.
func (s *TraceSnapshot) Marshal() ([]byte, error) {
	data, err := ir.MarshalCanonical(s.toCanonicalMap())
	if err != nil {
		return nil, fmt.Errorf("trace snapshot %s: %w", s.ScenarioName, err)
	}
	return data, nil
}

// NewSnapshot builds the snapshot of a scenario run.
func NewSnapshot(scenario *Scenario, result *Result) *TraceSnapshot {
	stream := scenario.Stream
	if stream == "" {
		stream = testutil.DefaultStream
	}
	return &TraceSnapshot{
		ScenarioName: scenario.Name,
		Query:        scenario.Query,
		Stream:       stream,
		Trace:        result.Trace,
	}
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can check Pass; goldie fails the test if the
// trace doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	return result, assertSnapshot(t, NewSnapshot(scenario, result))
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()
	return assertSnapshot(t, NewSnapshot(scenario, result))
}

func assertSnapshot(t *testing.T, snapshot *TraceSnapshot) error {
	t.Helper()

	data, err := snapshot.Marshal()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, snapshot.ScenarioName, data)
	return nil
}
