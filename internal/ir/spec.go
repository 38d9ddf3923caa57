package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Fold operations understood by NodeSpec.Fold.
const (
	FoldSum     = "sum"
	FoldCount   = "count"
	FoldToggle  = "toggle"
	FoldLast    = "last"
	FoldCollect = "collect"
)

// Collection kinds understood by CollectionSpec.Kind.
const (
	KindArray      = "array"
	KindDictionary = "dictionary"
	KindList       = "list"
)

// AnyEventType in NodeSpec.Events matches every event.
const AnyEventType = "*"

// WholeArg in an arg reference selects the entire environment (the item's
// constructor payload, or a flat_reduce seed) rather than one field of it.
const WholeArg = "$"

// ValidFolds lists accepted fold operations.
var ValidFolds = map[string]bool{
	FoldSum:     true,
	FoldCount:   true,
	FoldToggle:  true,
	FoldLast:    true,
	FoldCollect: true,
}

// ValidKinds lists accepted collection kinds.
var ValidKinds = map[string]bool{
	KindArray:      true,
	KindDictionary: true,
	KindList:       true,
}

// QuerySpec is one named, compiled graph definition.
type QuerySpec struct {
	Name string    `json:"name"`
	Root *NodeSpec `json:"root"`
}

// NodeSpec declares one derivation node.
//
// Exactly one source is set (Constant, Value, Never, Events, Arg, Structure,
// Merge, CombineLatest, Collection). Transforms apply in a fixed order:
// Where, Select, Fold, FlatReduce, Scope.
type NodeSpec struct {
	Constant      IRValue              `json:"constant,omitempty"`
	Value         IRValue              `json:"value,omitempty"`
	Never         bool                 `json:"never,omitempty"`
	Events        string               `json:"events,omitempty"`
	Arg           string               `json:"arg,omitempty"`
	Structure     map[string]*NodeSpec `json:"structure,omitempty"`
	Merge         []*NodeSpec          `json:"merge,omitempty"`
	CombineLatest []*NodeSpec          `json:"combine_latest,omitempty"`
	Collection    *CollectionSpec      `json:"collection,omitempty"`

	Where      *MatchSpec `json:"where,omitempty"`
	Select     string     `json:"select,omitempty"`
	Fold       string     `json:"fold,omitempty"`
	Zero       IRValue    `json:"zero,omitempty"`
	FlatReduce *NodeSpec  `json:"flat_reduce,omitempty"`
	Scope      *MatchSpec `json:"scope,omitempty"`
}

// MatchSpec compares a field of the value (or event payload) against either
// a literal or an environment argument.
type MatchSpec struct {
	Field  string  `json:"field"`
	Equals IRValue `json:"equals,omitempty"`
	Arg    string  `json:"arg,omitempty"`
}

// CollectionSpec declares a keyed collection maintained by add/remove/clear
// events. Add events contribute Added(payload[Key], payload).
type CollectionSpec struct {
	Kind   string    `json:"kind"`
	Key    string    `json:"key"`
	Add    []string  `json:"add"`
	Remove []string  `json:"remove,omitempty"`
	Clear  []string  `json:"clear,omitempty"`
	Item   *NodeSpec `json:"item"`
}

// IsConstant reports whether the node is a bare structure constant.
func (n *NodeSpec) IsConstant() bool {
	return n != nil && n.Constant != nil
}

func (n *NodeSpec) sources() []string {
	var s []string
	if n.Constant != nil {
		s = append(s, "constant")
	}
	if n.Value != nil {
		s = append(s, "value")
	}
	if n.Never {
		s = append(s, "never")
	}
	if n.Events != "" {
		s = append(s, "events")
	}
	if n.Arg != "" {
		s = append(s, "arg")
	}
	if n.Structure != nil {
		s = append(s, "structure")
	}
	if n.Merge != nil {
		s = append(s, "merge")
	}
	if n.CombineLatest != nil {
		s = append(s, "combine_latest")
	}
	if n.Collection != nil {
		s = append(s, "collection")
	}
	return s
}

// HasTransforms reports whether any of where, select, fold, flat_reduce or
// scope is set.
func (n *NodeSpec) HasTransforms() bool {
	return n.Where != nil || n.Select != "" || n.Fold != "" || n.FlatReduce != nil || n.Scope != nil
}

// ValidationError is one problem found in a graph definition.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the query and returns every problem found, not just the
// first.
func (q QuerySpec) Validate() []ValidationError {
	if q.Name == "" {
		return []ValidationError{{Field: "name", Message: "query name is required"}}
	}
	if q.Root == nil {
		return []ValidationError{{Field: "query." + q.Name, Message: "query has no root node"}}
	}
	var errs []ValidationError
	q.Root.validate("query."+q.Name, false, &errs)
	return errs
}

func (n *NodeSpec) validate(path string, hasEnv bool, errs *[]ValidationError) {
	add := func(field, format string, args ...any) {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if n == nil {
		add(path, "node is empty")
		return
	}

	switch src := n.sources(); len(src) {
	case 0:
		add(path, "node has no source (one of value, never, events, arg, structure, merge, combine_latest, collection)")
	case 1:
	default:
		add(path, "node has %d sources %v, exactly one is allowed", len(src), src)
	}

	if n.Constant != nil && n.HasTransforms() {
		add(path, "a constant field cannot have transforms")
	}
	if n.Arg != "" && !hasEnv {
		add(path+".arg", "arg is only valid inside a collection item or flat_reduce")
	}

	for _, name := range sortedFieldNames(n.Structure) {
		n.Structure[name].validate(path+".structure."+name, hasEnv, errs)
	}
	if n.Merge != nil && len(n.Merge) == 0 {
		add(path+".merge", "merge needs at least one source")
	}
	for i, s := range n.Merge {
		s.validate(fmt.Sprintf("%s.merge[%d]", path, i), hasEnv, errs)
	}
	if n.CombineLatest != nil && len(n.CombineLatest) == 0 {
		add(path+".combine_latest", "combine_latest needs at least one source")
	}
	for i, s := range n.CombineLatest {
		s.validate(fmt.Sprintf("%s.combine_latest[%d]", path, i), hasEnv, errs)
	}
	if c := n.Collection; c != nil {
		c.validate(path+".collection", errs)
	}

	n.Where.validate(path+".where", hasEnv, errs)
	n.Scope.validate(path+".scope", hasEnv, errs)

	if n.Fold != "" {
		if !ValidFolds[n.Fold] {
			add(path+".fold", "invalid fold %q, must be one of: sum, count, toggle, last, collect", n.Fold)
		}
		if n.Fold == FoldLast && n.Zero == nil {
			add(path+".zero", "fold \"last\" requires a zero value")
		}
	} else if n.Zero != nil {
		add(path+".zero", "zero is only valid with fold")
	}

	if n.FlatReduce != nil {
		n.FlatReduce.validate(path+".flat_reduce", true, errs)
	}
}

func (m *MatchSpec) validate(path string, hasEnv bool, errs *[]ValidationError) {
	if m == nil {
		return
	}
	if m.Field == "" {
		*errs = append(*errs, ValidationError{Field: path + ".field", Message: "field is required"})
	}
	switch {
	case m.Equals == nil && m.Arg == "":
		*errs = append(*errs, ValidationError{Field: path, Message: "one of equals or arg is required"})
	case m.Equals != nil && m.Arg != "":
		*errs = append(*errs, ValidationError{Field: path, Message: "equals and arg are mutually exclusive"})
	case m.Arg != "" && !hasEnv:
		*errs = append(*errs, ValidationError{Field: path + ".arg", Message: "arg is only valid inside a collection item or flat_reduce"})
	}
}

func (c *CollectionSpec) validate(path string, errs *[]ValidationError) {
	add := func(field, msg string) {
		*errs = append(*errs, ValidationError{Field: field, Message: msg})
	}
	if !ValidKinds[c.Kind] {
		add(path+".kind", fmt.Sprintf("invalid kind %q, must be one of: array, dictionary, list", c.Kind))
	}
	if c.Key == "" {
		add(path+".key", "key is required")
	}
	if len(c.Add) == 0 {
		add(path+".add", "at least one add event type is required")
	}
	if c.Item == nil {
		add(path+".item", "item is required")
		return
	}
	c.Item.validate(path+".item", true, errs)
}

func sortedFieldNames(m map[string]*NodeSpec) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// canonicalJSON renders the query as canonical JSON for GraphHash.
func (q QuerySpec) canonicalJSON() ([]byte, error) {
	data, err := json.Marshal(q)
	if err != nil {
		return nil, err
	}
	v, err := decodeLenient(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v, false); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
