package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventIDDeterminism(t *testing.T) {
	ev := NewEvent("add-todo", O("id", IRInt(1)), O("text", IRString("foo")))

	id1, err := EventID("stream-1", ev, 1)
	require.NoError(t, err)
	id2, err := EventID("stream-1", ev, 1)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Len(t, id1, 64, "SHA-256 hex is 64 characters")
}

func TestEventIDChangesWithInput(t *testing.T) {
	ev := NewEvent("add-todo", O("id", IRInt(1)))

	base := MustEventID("s1", ev, 1)
	assert.NotEqual(t, base, MustEventID("s2", ev, 1), "stream")
	assert.NotEqual(t, base, MustEventID("s1", ev, 2), "seq")
	assert.NotEqual(t, base, MustEventID("s1", NewEvent("remove-todo", O("id", IRInt(1))), 1), "type")
	assert.NotEqual(t, base, MustEventID("s1", NewEvent("add-todo", O("id", IRInt(2))), 1), "payload")
}

func TestEventIDNilPayloadEqualsEmpty(t *testing.T) {
	assert.Equal(t,
		MustEventID("s", Event{Type: "tick"}, 1),
		MustEventID("s", Event{Type: "tick", Payload: IRObject{}}, 1))
}

func TestStateHashIgnoresRepresentation(t *testing.T) {
	native := map[string]any{"n": 3, "items": []any{"a"}}
	irForm := IRObject{"n": IRInt(3), "items": IRArray{IRString("a")}}

	assert.Equal(t, MustStateHash(native), MustStateHash(irForm))
	assert.NotEqual(t, MustStateHash(native), MustStateHash(map[string]any{"n": 4, "items": []any{"a"}}))
}

func TestStateHashRejectsFloats(t *testing.T) {
	_, err := StateHash(map[string]any{"x": 1.5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "StateHash")
}

func TestHashDomainSeparation(t *testing.T) {
	data := []byte(`{"a":1}`)
	assert.NotEqual(t, hashWithDomain(DomainEvent, data), hashWithDomain(DomainState, data))
}

func TestGraphHash(t *testing.T) {
	q := QuerySpec{Name: "count", Root: &NodeSpec{Events: "inc", Fold: FoldCount}}
	h1, err := GraphHash(q)
	require.NoError(t, err)
	h2, err := GraphHash(QuerySpec{Name: "count", Root: &NodeSpec{Events: "inc", Fold: FoldCount}})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := GraphHash(QuerySpec{Name: "count", Root: &NodeSpec{Events: "inc", Fold: FoldSum, Select: "n"}})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestMarshalStateNil(t *testing.T) {
	data, err := MarshalState(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))
	assert.Len(t, MustStateHash(nil), 64)
}

func TestMarshalStateEvents(t *testing.T) {
	data, err := MarshalState(NewEvent("foo", O("v", IRInt(1))))
	require.NoError(t, err)
	assert.Equal(t, `{"payload":{"v":1},"type":"foo"}`, string(data))

	data, err = MarshalState([]any{Event{Type: "bare"}})
	require.NoError(t, err)
	assert.Equal(t, `[{"payload":{},"type":"bare"}]`, string(data))
}

func TestMarshalStateUnseededItems(t *testing.T) {
	data, err := MarshalState([]any{IRInt(1), nil})
	require.NoError(t, err)
	assert.Equal(t, `[1,null]`, string(data))

	data, err = MarshalState(map[any]any{IRString("a"): nil})
	require.NoError(t, err)
	assert.Equal(t, `{"a":null}`, string(data))

	assert.NotEqual(t, MustStateHash([]any{IRInt(1), nil}), MustStateHash([]any{IRInt(1)}))

	_, err = MarshalCanonical([]any{IRInt(1), nil})
	assert.Error(t, err, "canonical IR still forbids null")
}
