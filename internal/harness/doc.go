// Package harness runs conformance scenarios against compiled queries.
//
// A scenario names a directory of CUE graph definitions, a query in it, a
// list of events and assertions over the derived state:
//
//	name: todo_lifecycle
//	description: "Adding, toggling and removing todos"
//	specs: ../specs
//	query: todos
//	events:
//	  - type: add-todo
//	    payload: {id: 1, text: "foo"}
//	assertions:
//	  - type: path_equals
//	    path: "0.text"
//	    expect: "foo"
//
// Run executes a scenario in a fresh in-memory journal. Every event is
// journaled under a fixed stream token and dispatched to an engine store
// driven by a deterministic clock, so traces are reproducible. After the
// events, the state is checkpointed and the journal is replayed to verify
// determinism before the assertions run.
//
// Traces compare against golden files (testdata/golden/<name>.golden) as
// canonical JSON; run "go test ./internal/harness -update" to regenerate.
package harness
