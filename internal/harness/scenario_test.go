package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/requex/internal/ir"
)

// writeScenario writes body to a temp dir next to a specs directory and
// returns the scenario path.
func writeScenario(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "specs"), 0o755))
	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadScenario_Valid(t *testing.T) {
	path := writeScenario(t, `
name: valid
description: "A valid scenario"
specs: specs
query: todos
stream: s-1
batch: true
events:
  - type: add-todo
    payload: {id: 1, text: "foo"}
  - type: clear-todos
assertions:
  - type: state_equals
    expect: []
  - type: path_equals
    path: "0.id"
    expect: 1
  - type: unchanged
    events:
      - type: noise
  - type: dispatch_error
    code: NOT_SUMMABLE
    events:
      - type: inc
        payload: {by: "x"}
`)

	s, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "valid", s.Name)
	assert.Equal(t, filepath.Join(filepath.Dir(path), "specs"), s.Specs, "specs resolve against the scenario file")
	assert.Equal(t, "todos", s.Query)
	assert.Equal(t, "s-1", s.Stream)
	assert.True(t, s.Batch)
	require.Len(t, s.Events, 2)
	assert.Equal(t, map[string]any{"id": 1, "text": "foo"}, s.Events[0].Payload)
	assert.Nil(t, s.Events[1].Payload)
	require.Len(t, s.Assertions, 4)
	assert.Equal(t, []any{}, s.Assertions[0].Expect)
	assert.Equal(t, "NOT_SUMMABLE", s.Assertions[3].Code)
}

func TestLoadScenarioWithBasePath(t *testing.T) {
	path := writeScenario(t, `
name: based
description: "Base path"
specs: specs
query: q
assertions:
  - type: state_equals
`)
	dir := filepath.Dir(path)

	_, err := LoadScenarioWithBasePath(path, t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "specs directory not found")

	s, err := LoadScenarioWithBasePath(path, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "specs"), s.Specs)
}

func TestLoadScenario_Errors(t *testing.T) {
	header := "name: n\ndescription: d\nspecs: specs\nquery: q\n"

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"unknown field", header + "assertion:\n  - type: state_equals\n", "field assertion not found"},
		{"malformed yaml", "name: [unterminated\n", "failed to parse YAML"},
		{"missing name", "description: d\nspecs: specs\nquery: q\nassertions: [{type: state_equals}]\n", "name is required"},
		{"missing description", "name: n\nspecs: specs\nquery: q\nassertions: [{type: state_equals}]\n", "description is required"},
		{"missing specs", "name: n\ndescription: d\nquery: q\nassertions: [{type: state_equals}]\n", "specs directory is required"},
		{"specs not found", "name: n\ndescription: d\nspecs: nowhere\nquery: q\nassertions: [{type: state_equals}]\n", "specs directory not found"},
		{"missing query", "name: n\ndescription: d\nspecs: specs\nassertions: [{type: state_equals}]\n", "query is required"},
		{"no assertions", header, "assertions list is required"},
		{"event without type", header + "events: [{payload: {a: 1}}]\nassertions: [{type: state_equals}]\n", "events[0]: type is required"},
		{"assertion without type", header + "assertions: [{expect: 1}]\n", "assertions[0]: type is required"},
		{"unknown assertion", header + "assertions: [{type: trace_contains}]\n", `unknown assertion type "trace_contains"`},
		{"path_equals without path", header + "assertions: [{type: path_equals, expect: 1}]\n", "path is required for path_equals"},
		{"unchanged without events", header + "assertions: [{type: unchanged}]\n", "events list is required for unchanged"},
		{"dispatch_error event without type", header + "assertions: [{type: dispatch_error, events: [{}]}]\n", "assertions[0].events[0]: type is required"},
		{"code on state_equals", header + "assertions: [{type: state_equals, code: NOT_SUMMABLE}]\n", "code is only valid for dispatch_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadScenario(writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestEventStep_Event(t *testing.T) {
	ev, err := EventStep{Type: "add-todo", Payload: map[string]any{
		"id":   1,
		"tags": []any{"a", "b"},
		"meta": map[string]any{"pinned": true},
	}}.Event()
	require.NoError(t, err)
	assert.Equal(t, ir.NewEvent("add-todo",
		ir.O("id", ir.IRInt(1)),
		ir.O("tags", ir.IRArray{ir.IRString("a"), ir.IRString("b")}),
		ir.O("meta", ir.IRObject{"pinned": ir.IRBool(true)}),
	), ev)

	empty, err := EventStep{Type: "noise"}.Event()
	require.NoError(t, err)
	assert.Equal(t, ir.IRObject{}, empty.Payload)

	_, err = EventStep{Type: "x", Payload: map[string]any{"n": 1.5}}.Event()
	require.Error(t, err)

	_, err = EventStep{Type: "x", Payload: map[string]any{"n": nil}}.Event()
	require.Error(t, err)
}
