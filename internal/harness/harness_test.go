package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/requex/internal/ir"
)

const specsDir = "testdata/specs"

func todoScenario(assertions ...Assertion) *Scenario {
	return &Scenario{
		Name:        "todos_inline",
		Description: "Inline todo scenario",
		Specs:       specsDir,
		Query:       "todos",
		Events: []EventStep{
			{Type: "add-todo", Payload: map[string]any{"id": 1, "text": "foo"}},
			{Type: "toggle-todo", Payload: map[string]any{"id": 1}},
			{Type: "noise"},
		},
		Assertions: assertions,
	}
}

func TestRun_TracesEveryDispatch(t *testing.T) {
	result, err := Run(todoScenario(Assertion{
		Type:   AssertStateEquals,
		Expect: []any{map[string]any{"id": 1, "text": "foo", "completed": true}},
	}))
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 3)

	for i, step := range result.Trace {
		assert.Equal(t, int64(i+1), step.Tick)
		assert.Equal(t, 1, step.Events)
		assert.Empty(t, step.Error)
	}
	assert.True(t, result.Trace[0].Changed)
	assert.True(t, result.Trace[1].Changed)
	assert.False(t, result.Trace[2].Changed, "unrelated events keep the state reference")

	assert.Len(t, result.StateHash, 64)
	assert.Equal(t, ir.MustStateHash(result.State), result.StateHash)
}

func TestRun_Batch(t *testing.T) {
	scenario := &Scenario{
		Name:        "batch_inline",
		Description: "Batch dispatch",
		Specs:       specsDir,
		Query:       "total",
		Batch:       true,
		Events: []EventStep{
			{Type: "inc", Payload: map[string]any{"by": 4}},
			{Type: "inc", Payload: map[string]any{"by": 6}},
		},
		Assertions: []Assertion{{Type: AssertStateEquals, Expect: 10}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	require.Len(t, result.Trace, 1)
	assert.Equal(t, 2, result.Trace[0].Events)
	assert.Equal(t, "inc", result.Trace[0].Event)
}

func TestRun_NoEvents(t *testing.T) {
	scenario := &Scenario{
		Name:        "seed_only",
		Description: "State after seeding",
		Specs:       specsDir,
		Query:       "session",
		Assertions:  []Assertion{{Type: AssertStateEquals}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
	assert.Nil(t, result.State, "flat_reduce without a seed has not emitted")
	assert.Len(t, result.StateHash, 64)
}

func TestRun_FailingAssertion(t *testing.T) {
	result, err := Run(todoScenario(Assertion{Type: AssertStateEquals, Expect: []any{}}))
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "assertion 0")
	assert.Contains(t, result.Errors[0], "state_equals")
}

func TestRun_DispatchFailureFailsScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "bad_increment",
		Description: "A mistyped increment",
		Specs:       specsDir,
		Query:       "total",
		Events: []EventStep{
			{Type: "inc", Payload: map[string]any{"by": 1}},
			{Type: "inc", Payload: map[string]any{"by": "x"}},
			{Type: "inc", Payload: map[string]any{"by": 2}},
		},
		Assertions: []Assertion{{Type: AssertStateEquals, Expect: 3}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Trace, 3)
	assert.Contains(t, result.Trace[1].Error, "NOT_SUMMABLE")
	assert.False(t, result.Trace[1].Changed)
	require.Len(t, result.Errors, 1, "the failed event stays out of the journal, so replay still verifies")
	assert.Contains(t, result.Errors[0], "dispatch 2 (inc) failed")
}

func TestRun_UnknownQuery(t *testing.T) {
	scenario := todoScenario(Assertion{Type: AssertStateEquals})
	scenario.Query = "nope"

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `query "nope" not defined`)
}

func TestRun_RejectsFloatPayload(t *testing.T) {
	scenario := todoScenario(Assertion{Type: AssertStateEquals})
	scenario.Events = []EventStep{{Type: "add-todo", Payload: map[string]any{"id": 1.5}}}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floats are forbidden")
}

func TestRun_Deterministic(t *testing.T) {
	scenario := todoScenario(Assertion{Type: AssertPathEquals, Path: "0.id", Expect: 1})

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := NewSnapshot(scenario, first).Marshal()
	require.NoError(t, err)
	b, err := NewSnapshot(scenario, second).Marshal()
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
	assert.Equal(t, first.StateHash, second.StateHash)
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	assert.Empty(t, r.Errors)

	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}
