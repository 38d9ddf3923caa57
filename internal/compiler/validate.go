package compiler

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/requex/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	ErrInvalidQueryName  = "E101" // empty or malformed query name
	ErrNodeSource        = "E102" // missing or conflicting node source
	ErrInvalidFold       = "E103" // unknown fold or zero of the wrong type
	ErrInvalidCollection = "E104" // malformed collection definition
	ErrDuplicateName     = "E105" // two queries with the same name
	ErrArgOutsideItem    = "E106" // arg used without an enclosing item or flat_reduce
	ErrInvalidMatch      = "E107" // malformed where or scope clause
	ErrInvalidEventType  = "E108" // malformed event type
	ErrInvalidPath       = "E109" // malformed select or key path
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled query against schema rules.
// Returns all errors found (does not fail-fast).
func Validate(v any) []ValidationError {
	switch q := v.(type) {
	case *ir.QuerySpec:
		return validateQuery(q)
	case ir.QuerySpec:
		return validateQuery(&q)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

// ValidateAll validates every query and the set as a whole.
func ValidateAll(specs []ir.QuerySpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range specs {
		name := specs[i].Name
		if seen[name] {
			errs = append(errs, ValidationError{
				Field:   "query." + name,
				Message: fmt.Sprintf("duplicate query name: %q", name),
				Code:    ErrDuplicateName,
			})
		}
		seen[name] = true
		errs = append(errs, validateQuery(&specs[i])...)
	}
	return errs
}

// queryNamePattern matches identifiers such as "todos" or "open_count".
var queryNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

// eventTypePattern matches event types such as "add-todo" or "cart.item_added".
var eventTypePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.:-]*$`)

func validateQuery(q *ir.QuerySpec) []ValidationError {
	var errs []ValidationError

	// E101: name
	if q.Name != "" && !queryNamePattern.MatchString(q.Name) {
		errs = append(errs, ValidationError{
			Field:   "query." + q.Name,
			Message: fmt.Sprintf("invalid query name %q, must start with a letter and contain only letters, digits, _ and -", q.Name),
			Code:    ErrInvalidQueryName,
		})
	}

	for _, e := range q.Validate() {
		errs = append(errs, ValidationError{
			Field:   e.Field,
			Message: e.Message,
			Code:    codeForField(e.Field),
		})
	}

	if q.Root != nil {
		walkNode(q.Root, "query."+q.Name, &errs)
	}
	return errs
}

// codeForField classifies a structural error from ir by the last segment of
// its field path.
func codeForField(field string) string {
	if field == "name" {
		return ErrInvalidQueryName
	}
	last := field
	if i := strings.LastIndex(field, "."); i >= 0 {
		last = field[i+1:]
	}
	if i := strings.Index(last, "["); i >= 0 {
		last = last[:i]
	}

	switch last {
	case "fold", "zero":
		return ErrInvalidFold
	case "arg":
		return ErrArgOutsideItem
	case "where", "scope", "field":
		return ErrInvalidMatch
	case "collection", "kind", "key", "add", "item":
		return ErrInvalidCollection
	default:
		return ErrNodeSource
	}
}

// walkNode adds the checks ir does not know about: event type syntax,
// path syntax and fold zero types.
func walkNode(n *ir.NodeSpec, path string, errs *[]ValidationError) {
	if n == nil {
		return
	}
	add := func(field, code, format string, args ...any) {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	// E108: event types
	if n.Events != "" && n.Events != ir.AnyEventType && !eventTypePattern.MatchString(n.Events) {
		add(path+".events", ErrInvalidEventType, "invalid event type %q", n.Events)
	}

	// E109: paths
	if n.Select != "" && !validPath(n.Select) {
		add(path+".select", ErrInvalidPath, "invalid path %q, expected dot-separated field names", n.Select)
	}
	if n.Arg != "" && n.Arg != ir.WholeArg && !validPath(n.Arg) {
		add(path+".arg", ErrInvalidPath, "invalid path %q, expected %q or dot-separated field names", n.Arg, ir.WholeArg)
	}

	// E103: zero types
	if n.Fold != "" && n.Zero != nil {
		if msg := zeroMismatch(n.Fold, n.Zero); msg != "" {
			add(path+".zero", ErrInvalidFold, "%s", msg)
		}
	}

	for _, name := range sortedKeys(n.Structure) {
		walkNode(n.Structure[name], path+".structure."+name, errs)
	}
	for i, s := range n.Merge {
		walkNode(s, fmt.Sprintf("%s.merge[%d]", path, i), errs)
	}
	for i, s := range n.CombineLatest {
		walkNode(s, fmt.Sprintf("%s.combine_latest[%d]", path, i), errs)
	}
	if c := n.Collection; c != nil {
		cpath := path + ".collection"
		if c.Key != "" && !validPath(c.Key) {
			add(cpath+".key", ErrInvalidPath, "invalid path %q", c.Key)
		}
		checkTypes := func(field string, types []string) {
			for i, t := range types {
				if !eventTypePattern.MatchString(t) {
					add(fmt.Sprintf("%s.%s[%d]", cpath, field, i), ErrInvalidEventType, "invalid event type %q", t)
				}
			}
		}
		checkTypes("add", c.Add)
		checkTypes("remove", c.Remove)
		checkTypes("clear", c.Clear)
		walkNode(c.Item, cpath+".item", errs)
	}
	walkNode(n.FlatReduce, path+".flat_reduce", errs)
}

func zeroMismatch(fold string, zero ir.IRValue) string {
	switch fold {
	case ir.FoldSum:
		switch zero.(type) {
		case ir.IRInt, ir.IRString:
			return ""
		}
		return fmt.Sprintf("fold \"sum\" needs an int or string zero, got %s", irKind(zero))
	case ir.FoldCount:
		if _, ok := zero.(ir.IRInt); !ok {
			return fmt.Sprintf("fold \"count\" needs an int zero, got %s", irKind(zero))
		}
	case ir.FoldToggle:
		if _, ok := zero.(ir.IRBool); !ok {
			return fmt.Sprintf("fold \"toggle\" needs a bool zero, got %s", irKind(zero))
		}
	case ir.FoldCollect:
		if _, ok := zero.(ir.IRArray); !ok {
			return fmt.Sprintf("fold \"collect\" needs a list zero, got %s", irKind(zero))
		}
	}
	return ""
}

func irKind(v ir.IRValue) string {
	switch v.(type) {
	case ir.IRString:
		return "string"
	case ir.IRInt:
		return "int"
	case ir.IRBool:
		return "bool"
	case ir.IRArray:
		return "list"
	case ir.IRObject:
		return "struct"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func validPath(p string) bool {
	for _, seg := range strings.Split(p, ".") {
		if seg == "" {
			return false
		}
	}
	return true
}

func sortedKeys(m map[string]*ir.NodeSpec) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
