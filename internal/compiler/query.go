package compiler

import (
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/requex/internal/ir"
)

// nodeKeys are the keys that make a CUE struct a node rather than a
// structure literal.
var nodeKeys = map[string]bool{
	"value":          true,
	"never":          true,
	"events":         true,
	"arg":            true,
	"structure":      true,
	"merge":          true,
	"combine_latest": true,
	"collection":     true,
	"where":          true,
	"select":         true,
	"fold":           true,
	"zero":           true,
	"flat_reduce":    true,
	"scope":          true,
}

// CompileQueries compiles every query under the top-level "query" field.
// All queries are attempted; the returned errors are per query.
func CompileQueries(v cue.Value) ([]ir.QuerySpec, []error) {
	if err := v.Err(); err != nil {
		return nil, []error{formatCUEError(err)}
	}
	queriesVal := v.LookupPath(cue.ParsePath("query"))
	if !queriesVal.Exists() {
		return nil, nil
	}

	iter, err := queriesVal.Fields()
	if err != nil {
		return nil, []error{formatCUEError(err)}
	}

	var specs []ir.QuerySpec
	var errs []error
	for iter.Next() {
		spec, err := CompileQuery(iter.Value())
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, *spec)
	}
	return specs, errs
}

// CompileQuery parses a CUE value into a QuerySpec. The value is the node
// itself; its last path selector names the query:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`query: todos: { collection: { ... } }`)
//	spec, err := CompileQuery(v.LookupPath(cue.ParsePath("query.todos")))
func CompileQuery(v cue.Value) (*ir.QuerySpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.QuerySpec{}
	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	if !isNode(v) {
		return nil, &CompileError{
			Field:   "query." + spec.Name,
			Message: "query root must be a node (a struct with a source such as value, events or structure)",
			Pos:     v.Pos(),
		}
	}

	root, err := parseNode(v, "query."+spec.Name)
	if err != nil {
		return nil, err
	}
	spec.Root = root
	return spec, nil
}

// isNode reports whether v is a struct carrying at least one node key.
func isNode(v cue.Value) bool {
	if v.IncompleteKind() != cue.StructKind {
		return false
	}
	iter, err := v.Fields()
	if err != nil {
		return false
	}
	for iter.Next() {
		if nodeKeys[iter.Label()] {
			return true
		}
	}
	return false
}

func parseNode(v cue.Value, path string) (*ir.NodeSpec, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	n := &ir.NodeSpec{}
	for iter.Next() {
		key := iter.Label()
		fv := iter.Value()
		field := path + "." + key

		switch key {
		case "value":
			n.Value, err = parseLiteral(fv, field)
		case "never":
			n.Never, err = fv.Bool()
			err = wrapCUE(err)
		case "events":
			n.Events, err = parseString(fv, field)
		case "arg":
			n.Arg, err = parseString(fv, field)
		case "select":
			n.Select, err = parseString(fv, field)
		case "fold":
			n.Fold, err = parseString(fv, field)
		case "zero":
			n.Zero, err = parseLiteral(fv, field)
		case "structure":
			n.Structure, err = parseStructure(fv, field)
		case "merge":
			n.Merge, err = parseNodeList(fv, field)
		case "combine_latest":
			n.CombineLatest, err = parseNodeList(fv, field)
		case "collection":
			n.Collection, err = parseCollection(fv, field)
		case "flat_reduce":
			n.FlatReduce, err = parseChild(fv, field)
		case "where":
			n.Where, err = parseMatch(fv, field)
		case "scope":
			n.Scope, err = parseMatch(fv, field)
		default:
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("unknown node key %q", key),
				Pos:     fv.Pos(),
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return n, nil
}

// parseChild parses a value that must be a node.
func parseChild(v cue.Value, path string) (*ir.NodeSpec, error) {
	if !isNode(v) {
		return nil, &CompileError{Field: path, Message: "must be a node", Pos: v.Pos()}
	}
	return parseNode(v, path)
}

// parseStructure parses structure fields. Fields that are nodes stay nodes;
// every other value becomes a constant.
func parseStructure(v cue.Value, path string) (map[string]*ir.NodeSpec, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: path, Message: "structure must be a field mapping", Pos: v.Pos()}
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	fields := make(map[string]*ir.NodeSpec)
	for iter.Next() {
		name := iter.Label()
		fv := iter.Value()
		field := path + "." + name

		if isNode(fv) {
			n, err := parseNode(fv, field)
			if err != nil {
				return nil, err
			}
			fields[name] = n
			continue
		}
		c, err := parseLiteral(fv, field)
		if err != nil {
			return nil, err
		}
		fields[name] = &ir.NodeSpec{Constant: c}
	}
	return fields, nil
}

func parseNodeList(v cue.Value, path string) ([]*ir.NodeSpec, error) {
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "must be a list of nodes", Pos: v.Pos()}
	}
	nodes := []*ir.NodeSpec{}
	for i := 0; iter.Next(); i++ {
		n, err := parseChild(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func parseCollection(v cue.Value, path string) (*ir.CollectionSpec, error) {
	c := &ir.CollectionSpec{}
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "collection must be a struct", Pos: v.Pos()}
	}
	for iter.Next() {
		key := iter.Label()
		fv := iter.Value()
		field := path + "." + key

		switch key {
		case "kind":
			c.Kind, err = parseString(fv, field)
		case "key":
			c.Key, err = parseString(fv, field)
		case "add":
			c.Add, err = parseStrings(fv, field)
		case "remove":
			c.Remove, err = parseStrings(fv, field)
		case "clear":
			c.Clear, err = parseStrings(fv, field)
		case "item":
			c.Item, err = parseItem(fv, field)
		default:
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("unknown collection key %q", key),
				Pos:     fv.Pos(),
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return c, nil
}

// parseItem accepts a node or a literal; a literal item is stored as is.
func parseItem(v cue.Value, path string) (*ir.NodeSpec, error) {
	if isNode(v) {
		return parseNode(v, path)
	}
	c, err := parseLiteral(v, path)
	if err != nil {
		return nil, err
	}
	return &ir.NodeSpec{Constant: c}, nil
}

func parseMatch(v cue.Value, path string) (*ir.MatchSpec, error) {
	m := &ir.MatchSpec{}
	iter, err := v.Fields()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "must be a struct with field and equals or arg", Pos: v.Pos()}
	}
	for iter.Next() {
		key := iter.Label()
		fv := iter.Value()
		field := path + "." + key

		switch key {
		case "field":
			m.Field, err = parseString(fv, field)
		case "equals":
			m.Equals, err = parseLiteral(fv, field)
		case "arg":
			m.Arg, err = parseString(fv, field)
		default:
			return nil, &CompileError{
				Field:   field,
				Message: fmt.Sprintf("unknown match key %q", key),
				Pos:     fv.Pos(),
			}
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func parseString(v cue.Value, path string) (string, error) {
	s, err := v.String()
	if err != nil {
		return "", &CompileError{Field: path, Message: "must be a string", Pos: v.Pos()}
	}
	return s, nil
}

func parseStrings(v cue.Value, path string) ([]string, error) {
	if s, err := v.String(); err == nil {
		return []string{s}, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, &CompileError{Field: path, Message: "must be a string or a list of strings", Pos: v.Pos()}
	}
	var out []string
	for i := 0; iter.Next(); i++ {
		s, err := parseString(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// parseLiteral converts a concrete CUE value to IR. Floats and null are
// rejected, as everywhere in IR.
func parseLiteral(v cue.Value, path string) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.StringKind:
		s, err := v.String()
		return ir.IRString(s), wrapCUE(err)
	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, &CompileError{Field: path, Message: "integer out of int64 range", Pos: v.Pos()}
		}
		return ir.IRInt(n), nil
	case cue.BoolKind:
		b, err := v.Bool()
		return ir.IRBool(b), wrapCUE(err)
	case cue.FloatKind:
		return nil, &CompileError{Field: path, Message: "floats are forbidden, use int instead", Pos: v.Pos()}
	case cue.NullKind:
		return nil, &CompileError{Field: path, Message: "null is forbidden", Pos: v.Pos()}
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for i := 0; iter.Next(); i++ {
			elem, err := parseLiteral(iter.Value(), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			key := iter.Label()
			elem, err := parseLiteral(iter.Value(), path+"."+key)
			if err != nil {
				return nil, err
			}
			obj[key] = elem
		}
		return obj, nil
	default:
		return nil, &CompileError{
			Field:   path,
			Message: fmt.Sprintf("must be a concrete value, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func wrapCUE(err error) error {
	if err == nil {
		return nil
	}
	return formatCUEError(err)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: strings.TrimSpace(firstErr.Error()),
			Pos:     positions[0],
		}
	}

	return err
}
