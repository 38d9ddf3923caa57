package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
	"github.com/roach88/requex/internal/plist"
)

func storeFor(t *testing.T, src, name string) *engine.Store {
	t.Helper()
	v := compileString(t, src)
	spec, err := CompileQuery(v.LookupPath(cue.ParsePath("query." + name)))
	require.NoError(t, err)
	q, err := BuildQuery(spec)
	require.NoError(t, err)
	s, err := engine.NewStore(q)
	require.NoError(t, err)
	return s
}

func dispatch(t *testing.T, s *engine.Store, events ...ir.Event) {
	t.Helper()
	for _, e := range events {
		require.NoError(t, s.Dispatch(e))
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

func todo(id int64, text string, done bool) map[string]any {
	return map[string]any{"id": ir.IRInt(id), "text": ir.IRString(text), "completed": ir.IRBool(done)}
}

func TestBuild_TodoCollection(t *testing.T) {
	s := storeFor(t, todosCUE, "todos")
	assert.Equal(t, []any{}, s.State())

	dispatch(t, s, todoEvents()...)
	assert.Equal(t, []any{todo(1, "foo", false), todo(3, "barf", true)}, s.State())

	dispatch(t, s, ir.NewEvent("clear-todos"))
	assert.Equal(t, []any{}, s.State())
}

func TestBuild_CollectionKinds(t *testing.T) {
	src := func(kind string) string {
		return `
query: todos: collection: {
	kind:   "` + kind + `"
	key:    "id"
	add:    "add-todo"
	remove: "remove-todo"
	item: structure: {
		id:        {arg: "id"}
		text:      {arg: "text"}
		completed: {events: "toggle-todo", fold: "toggle", scope: {field: "id", arg: "id"}}
	}
}`
	}
	want := []any{todo(1, "foo", false), todo(3, "barf", true)}

	dict := storeFor(t, src("dictionary"), "todos")
	dispatch(t, dict, todoEvents()...)
	assert.Equal(t, map[any]any{ir.IRInt(1): want[0], ir.IRInt(3): want[1]}, dict.State())

	list := storeFor(t, src("list"), "todos")
	dispatch(t, list, todoEvents()...)
	assert.Equal(t, want, list.State().(*plist.List[any]).Slice())
}

func TestBuild_LiteralAndWholeArgItems(t *testing.T) {
	s := storeFor(t, `
query: names: collection: {
	kind: "array"
	key:  "id"
	add:  "join"
	item: {arg: "name"}
}
`, "names")
	join := ir.NewEvent("join", ir.O("id", ir.IRInt(1)), ir.O("name", ir.IRString("ada")))
	dispatch(t, s, join)
	assert.Equal(t, []any{ir.IRString("ada")}, s.State())

	p := storeFor(t, `
query: payloads: collection: {
	kind: "dictionary"
	key:  "id"
	add:  "join"
	item: {arg: "$"}
}
`, "payloads")
	dispatch(t, p, join)
	assert.Equal(t, map[any]any{ir.IRInt(1): join.Payload}, p.State())
}

func TestBuild_Folds(t *testing.T) {
	src := `
query: total: {events: "inc", select: "by", fold: "sum"}
query: count: {events: "*", fold: "count"}
query: words: {events: "say", select: "word", fold: "sum", zero: ""}
query: last:  {events: "say", select: "word", fold: "last", zero: "none"}
query: seen:  {events: "say", select: "word", fold: "collect"}
query: flag:  {events: "flip", fold: "toggle", zero: true}
`
	events := []ir.Event{
		ir.NewEvent("inc", ir.O("by", ir.IRInt(2))),
		ir.NewEvent("say", ir.O("word", ir.IRString("foo"))),
		ir.NewEvent("inc", ir.O("by", ir.IRInt(3))),
		ir.NewEvent("say", ir.O("word", ir.IRString("bar"))),
		ir.NewEvent("flip"),
	}

	tests := []struct {
		query string
		seed  any
		want  any
	}{
		{"total", ir.IRInt(0), ir.IRInt(5)},
		{"count", ir.IRInt(0), ir.IRInt(5)},
		{"words", ir.IRString(""), ir.IRString("foobar")},
		{"last", ir.IRString("none"), ir.IRString("bar")},
		{"seen", []any{}, []any{ir.IRString("foo"), ir.IRString("bar")}},
		{"flag", ir.IRBool(true), ir.IRBool(false)},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			s := storeFor(t, src, tt.query)
			assert.Equal(t, tt.seed, s.State())
			dispatch(t, s, events...)
			assert.Equal(t, tt.want, s.State())
		})
	}
}

func TestBuild_WhereSelectMergeCombine(t *testing.T) {
	src := `
query: red: {events: "paint", where: {field: "color", equals: "red"}, select: "size"}
query: merged: merge: [{value: 10}, {events: "ping", select: "n"}]
query: pair: combine_latest: [{value: 10}, {events: "ping", select: "n"}]
`
	red := storeFor(t, src, "red")
	dispatch(t, red,
		ir.NewEvent("paint", ir.O("color", ir.IRString("red")), ir.O("size", ir.IRInt(1))),
		ir.NewEvent("paint", ir.O("color", ir.IRString("blue")), ir.O("size", ir.IRInt(2))),
		ir.NewEvent("paint", ir.O("color", ir.IRString("red"))),
	)
	assert.Equal(t, ir.IRInt(1), red.State(), "events without the selected field are dropped")

	merged := storeFor(t, src, "merged")
	assert.Equal(t, []any{ir.IRInt(10)}, merged.State())
	dispatch(t, merged, ir.NewEvent("ping", ir.O("n", ir.IRInt(2))))
	assert.Equal(t, []any{ir.IRInt(2)}, merged.State())

	pair := storeFor(t, src, "pair")
	assert.Nil(t, pair.State())
	dispatch(t, pair, ir.NewEvent("ping", ir.O("n", ir.IRInt(2))))
	assert.Equal(t, []any{ir.IRInt(10), ir.IRInt(2)}, pair.State())
}

func TestBuild_FlatReduce(t *testing.T) {
	src := `
query: six: {value: 2, flat_reduce: {arg: "$", fold: "sum", zero: 4}}
query: session: {
	events: "login"
	select: "user"
	flat_reduce: structure: {
		user:   {arg: "$"}
		clicks: {events: "click", fold: "count"}
	}
}
`
	six := storeFor(t, src, "six")
	assert.Equal(t, ir.IRInt(6), six.State())

	s := storeFor(t, src, "session")
	assert.Nil(t, s.State())

	dispatch(t, s,
		ir.NewEvent("login", ir.O("user", ir.IRString("ada"))),
		ir.NewEvent("click"), ir.NewEvent("click"),
	)
	assert.Equal(t, map[string]any{"user": ir.IRString("ada"), "clicks": ir.IRInt(2)}, s.State())

	dispatch(t, s, ir.NewEvent("login", ir.O("user", ir.IRString("bob"))), ir.NewEvent("click"))
	assert.Equal(t, map[string]any{"user": ir.IRString("bob"), "clicks": ir.IRInt(1)}, s.State(),
		"a new seed restarts the nested derivation")
}

func TestBuild_StructureWithConstants(t *testing.T) {
	s := storeFor(t, `
query: app: structure: {
	title: "Todos"
	count: {events: "add-todo", fold: "count"}
	todos: {events: "never-sent", fold: "collect"}
}`, "app")
	assert.Equal(t, map[string]any{
		"title": ir.IRString("Todos"),
		"count": ir.IRInt(0),
		"todos": []any{},
	}, s.State())

	before := s.State()
	dispatch(t, s, ir.NewEvent("unrelated"))
	assert.Equal(t, before, s.State())

	dispatch(t, s, todoEvents()[0])
	assert.Equal(t, ir.IRInt(1), s.State().(map[string]any)["count"])
}

func TestBuildQuery_RejectsInvalidSpecs(t *testing.T) {
	_, err := BuildQuery(&ir.QuerySpec{Name: "bad", Root: &ir.NodeSpec{Arg: "id"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrArgOutsideItem)
}
