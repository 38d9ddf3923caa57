package reduce

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/requex/internal/delta"
	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/plist"
)

func reduceOnce(t *testing.T, b *Builder, events ...ir.Event) any {
	t.Helper()
	q, err := b.Build()
	require.NoError(t, err)
	res, err := q.Reduce(engine.Input{Events: events})
	require.NoError(t, err)
	return res.State
}

func field(name string) func(any) any {
	return func(v any) any { return v.(ir.Event).Payload[name] }
}

func one(any) any { return 1 }

func TestEntryPoints(t *testing.T) {
	abc := ir.NewEvent("abc")

	tests := []struct {
		name   string
		query  *Builder
		events []ir.Event
		want   any
	}{
		{"value", Value(10), nil, 10},
		{"value select", Value(10).Select(func(x any) any { return x.(int) * 2 }), nil, 20},
		{"value where kept", Value(10).Where(func(x any) bool { return x == 10 }), nil, 10},
		{"value where dropped", Value(10).Filter(func(x any) bool { return x == 20 }), nil, nil},
		{"events of type", EventsOfType("abc"), []ir.Event{abc}, abc},
		{"events of other type", EventsOfType("abc"), []ir.Event{ir.NewEvent("def")}, nil},
		{"all events", AllEvents(), []ir.Event{abc}, abc},
		{"never", Never(), []ir.Event{abc}, nil},
		{"constant structure", Structure(map[string]any{"foo": "abc", "bar": "def"}), nil,
			map[string]any{"foo": "abc", "bar": "def"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, reduceOnce(t, tt.query, tt.events...))
		})
	}
}

func TestStructure_ReducedFields(t *testing.T) {
	fields := map[string]any{
		"foo": "abc",
		"bar": Value(10),
		"baz": EventsOfType("test-event-type").Select(field("value")),
	}
	event := ir.NewEvent("test-event-type", ir.O("value", ir.IRInt(42)))

	assert.Equal(t,
		map[string]any{"foo": "abc", "bar": 10, "baz": ir.IRInt(42)},
		reduceOnce(t, Structure(fields), event))

	assert.Equal(t,
		map[string]any{"foo": "abc", "bar": 10},
		reduceOnce(t, Structure(fields)),
		"seeding leaves fields that never emitted absent")
}

func TestStructure_SameObjectWhenUnchanged(t *testing.T) {
	q := Structure(map[string]any{
		"foo": "abc",
		"baz": EventsOfType("set").Select(field("value")),
	}).MustBuild()

	first, err := q.Reduce(engine.Input{Events: []ir.Event{ir.NewEvent("set", ir.O("value", ir.IRInt(1)))}})
	require.NoError(t, err)

	second, err := q.Reduce(engine.Input{
		PreviousState: first.State,
		PreviousAux:   first.Aux,
		Events:        []ir.Event{ir.NewEvent("other")},
	})
	require.NoError(t, err)
	assert.False(t, second.Changed)
	assert.Same(t, first.Aux, second.Aux)
}

func TestSum(t *testing.T) {
	inc := ir.NewEvent("inc")

	t.Run("counts", func(t *testing.T) {
		q := EventsOfType("inc").Select(one).Sum(0)
		assert.Equal(t, 3, reduceOnce(t, q, inc, inc, inc))
	})

	t.Run("mapped after sum", func(t *testing.T) {
		q := EventsOfType("inc").Select(one).Sum(0).Select(func(x any) any { return 2 * x.(int) })
		assert.Equal(t, 6, reduceOnce(t, q, inc, inc, inc))
	})

	t.Run("double sum", func(t *testing.T) {
		q := AllEvents().Select(one).Sum(0).Sum(0)
		// (0+1), (1+2)
		assert.Equal(t, 3, reduceOnce(t, q, inc, inc))
	})

	t.Run("nothing passes the filter", func(t *testing.T) {
		q := AllEvents().Where(func(any) bool { return false }).Sum(10)
		s, err := engine.NewStore(q.MustBuild())
		require.NoError(t, err)
		require.NoError(t, s.DispatchBatch(inc, inc))
		assert.Equal(t, 10, s.State())
	})

	t.Run("ir integers keep their type", func(t *testing.T) {
		q := EventsOfType("add").Select(field("n")).Sum(ir.IRInt(0))
		got := reduceOnce(t, q,
			ir.NewEvent("add", ir.O("n", ir.IRInt(2))),
			ir.NewEvent("add", ir.O("n", ir.IRInt(5))))
		assert.Equal(t, ir.IRInt(7), got)
	})

	t.Run("strings concatenate", func(t *testing.T) {
		q := EventsOfType("say").Select(field("word")).Sum("")
		got := reduceOnce(t, q,
			ir.NewEvent("say", ir.O("word", ir.IRString("foo"))),
			ir.NewEvent("say", ir.O("word", ir.IRString("bar"))))
		assert.Equal(t, "foobar", got)
	})

	t.Run("mixed kinds fail the dispatch", func(t *testing.T) {
		q := EventsOfType("say").Select(field("word")).Sum(0).MustBuild()
		_, err := q.Reduce(engine.Input{Events: []ir.Event{ir.NewEvent("say", ir.O("word", ir.IRString("x")))}})
		require.Error(t, err)
		assert.True(t, engine.HasCode(err, engine.ErrCodeNotSummable))
	})
}

func TestFold(t *testing.T) {
	q := EventsOfType("push").Select(field("v")).Fold(func(acc, v any) any {
		return append(append([]any(nil), acc.([]any)...), v)
	}, []any{})

	got := reduceOnce(t, q,
		ir.NewEvent("push", ir.O("v", ir.IRInt(1))),
		ir.NewEvent("push", ir.O("v", ir.IRInt(2))))
	assert.Equal(t, []any{ir.IRInt(1), ir.IRInt(2)}, got)
}

func TestScopedAndFlatReduce(t *testing.T) {
	t.Run("switch latest", func(t *testing.T) {
		q := Value(2).FlatReduce(func(x any) *Builder {
			return Value(x).Map(func(y any) any { return 3 * y.(int) })
		})
		assert.Equal(t, 6, reduceOnce(t, q))
	})

	t.Run("scoped", func(t *testing.T) {
		mine := func(e ir.Event) bool { return ir.Equal(e.Payload["id"], 7) }
		q := AllEvents().Select(one).Sum(0).Scoped(mine)
		got := reduceOnce(t, q,
			ir.NewEvent("hit", ir.O("id", ir.IRInt(7))),
			ir.NewEvent("hit", ir.O("id", ir.IRInt(8))),
			ir.NewEvent("hit", ir.O("id", ir.IRInt(7))))
		assert.Equal(t, 2, got)
	})
}

func TestMergeAndCombineLatest(t *testing.T) {
	assert.Equal(t, []any{10}, reduceOnce(t, Merge(Value(10))))
	assert.Nil(t, reduceOnce(t, CombineLatest(Value(10), Never())))

	q := CombineLatest(Value(10), EventsOfType("foo").Select(field("value"))).MustBuild()
	s, err := engine.NewStore(q)
	require.NoError(t, err)
	assert.Nil(t, s.State())

	require.NoError(t, s.Dispatch(ir.NewEvent("foo", ir.O("value", ir.IRInt(2)))))
	assert.Equal(t, []any{10, ir.IRInt(2)}, s.State())
}

func newTodo(args any) Item {
	p := args.(ir.IRObject)
	id := p["id"]
	return Derived(Structure(map[string]any{
		"id":   id,
		"text": p["text"],
		"completed": EventsOfType("toggle-todo").
			Fold(func(acc, _ any) any { return !acc.(bool) }, false).
			Scoped(func(e ir.Event) bool { return ir.Equal(e.Payload["id"], id) }),
	}))
}

func todoDeltas() []*Builder {
	return []*Builder{
		EventsOfType("add-todo").Select(func(v any) any {
			p := v.(ir.Event).Payload
			return delta.Added(p["id"], p)
		}),
		EventsOfType("remove-todo").Select(func(v any) any {
			return delta.Removed(v.(ir.Event).Payload["id"])
		}),
	}
}

func todoEvents() []ir.Event {
	add := func(id int64, text string) ir.Event {
		return ir.NewEvent("add-todo", ir.O("id", ir.IRInt(id)), ir.O("text", ir.IRString(text)))
	}
	toggle := func(id int64) ir.Event { return ir.NewEvent("toggle-todo", ir.O("id", ir.IRInt(id))) }
	return []ir.Event{
		add(1, "foo"), add(2, "bar"), toggle(2), add(3, "barf"),
		ir.NewEvent("remove-todo", ir.O("id", ir.IRInt(2))), toggle(3),
	}
}

func TestCollections(t *testing.T) {
	todo := func(id int64, text string, done bool) map[string]any {
		return map[string]any{"id": ir.IRInt(id), "text": ir.IRString(text), "completed": done}
	}
	want := []any{todo(1, "foo", false), todo(3, "barf", true)}

	run := func(t *testing.T, b *Builder) any {
		s, err := engine.NewStore(b.MustBuild())
		require.NoError(t, err)
		for _, e := range todoEvents() {
			require.NoError(t, s.Dispatch(e))
		}
		return s.State()
	}

	assert.Equal(t, want, run(t, ArrayOf(newTodo, todoDeltas()...)))
	assert.Equal(t, map[any]any{ir.IRInt(1): want[0], ir.IRInt(3): want[1]},
		run(t, DictionaryOf(newTodo, todoDeltas()...)))

	list := run(t, LinkedListOf(newTodo, todoDeltas()...)).(*plist.List[any])
	assert.Equal(t, want, list.Slice())
}

func TestCollection_ConstantItems(t *testing.T) {
	labels := ArrayOf(func(args any) Item { return Constant(args) },
		EventsOfType("tag").Select(func(v any) any {
			name := v.(ir.Event).Payload["name"]
			return delta.Added(name, name)
		}))

	s, err := engine.NewStore(labels.MustBuild())
	require.NoError(t, err)
	require.NoError(t, s.DispatchBatch(
		ir.NewEvent("tag", ir.O("name", ir.IRString("a"))),
		ir.NewEvent("tag", ir.O("name", ir.IRString("b"))),
		ir.NewEvent("tag", ir.O("name", ir.IRString("a"))),
	))
	assert.Equal(t, []any{ir.IRString("a"), ir.IRString("b")}, s.State())
}

func TestConstructionErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
		code engine.ErrorCode
	}{
		{"nil selector", Value(1).Select(nil), engine.ErrCodeInvalidArgument},
		{"nil predicate", Value(1).Where(nil), engine.ErrCodeInvalidArgument},
		{"nil fold", Value(1).Fold(nil, 0), engine.ErrCodeInvalidArgument},
		{"unsummable zero", Value(1).Sum(1.5), engine.ErrCodeInvalidArgument},
		{"nil scope", Value(1).Scoped(nil), engine.ErrCodeInvalidArgument},
		{"nil flat selector", Value(1).FlatReduce(nil), engine.ErrCodeInvalidArgument},
		{"empty event type", EventsOfType(""), engine.ErrCodeInvalidArgument},
		{"nil structure", Structure(nil), engine.ErrCodeInvalidStructure},
		{"bad nested field", Structure(map[string]any{"x": Value(1).Select(nil)}), engine.ErrCodeInvalidArgument},
		{"no merge sources", Merge(), engine.ErrCodeInvalidArgument},
		{"nil combine source", CombineLatest(Value(1), nil), engine.ErrCodeInvalidArgument},
		{"nil factory", ArrayOf(nil, Never()), engine.ErrCodeInvalidArgument},
		{"error sticks through the chain", Value(1).Select(nil).Where(func(any) bool { return true }).Sum(0), engine.ErrCodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.b.Build()
			require.Error(t, err)
			assert.Nil(t, q)
			assert.True(t, engine.IsConstructionError(err))
			assert.True(t, engine.HasCode(err, tt.code))
		})
	}
}

func TestDerived_BrokenBuilderFailsDispatch(t *testing.T) {
	broken := ArrayOf(func(any) Item { return Derived(Value(1).Select(nil)) },
		EventsOfType("add").Select(func(any) any { return delta.Added(1, nil) }))

	s, err := engine.NewStore(broken.MustBuild())
	require.NoError(t, err)

	err = s.Dispatch(ir.NewEvent("add"))
	require.Error(t, err)
	assert.True(t, engine.IsConstructionError(err))
	assert.Equal(t, []any{}, s.State())
}
