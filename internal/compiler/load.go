package compiler

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/requex/internal/engine"
	"github.com/roach88/requex/internal/ir"
)

// LoadMode controls how errors are handled during loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Load error codes (E001-E099). Query errors use the validation codes.
const (
	ErrCodeGeneric      = "E001" // generic/unknown error
	ErrCodeScanError    = "E002" // directory scan error
	ErrCodeNoFiles      = "E003" // no CUE files found
	ErrCodeLoadFailed   = "E004" // CUE load failed
	ErrCodeNotFound     = "E005" // path not found
	ErrCodeBuildFailed  = "E006" // CUE build failed
	ErrCodeNoQueries    = "E008" // no query definitions
	ErrCodeUnknownQuery = "E009" // requested query is not defined
)

// LoadResult contains the queries compiled from a directory.
type LoadResult struct {
	Queries   []ir.QuerySpec
	CUEValue  cue.Value // the raw CUE value for additional processing
	FileCount int       // number of CUE files found
}

// Find returns the query called name.
func (r *LoadResult) Find(name string) (*ir.QuerySpec, bool) {
	for i := range r.Queries {
		if r.Queries[i].Name == name {
			return &r.Queries[i], true
		}
	}
	return nil, false
}

// Names lists the loaded query names in definition order.
func (r *LoadResult) Names() []string {
	names := make([]string, len(r.Queries))
	for i, q := range r.Queries {
		names[i] = q.Name
	}
	return names
}

// LoadError represents an error that occurred during loading.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Load compiles every query defined in the CUE files of dir.
// If mode is LoadModeFailFast, returns on first error.
// If mode is LoadModeCollectAll, collects all errors.
func Load(dir string, mode LoadMode) (*LoadResult, []error) {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("specs directory not found: %s", dir)}}
	}
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing specs directory: %v", err)}}
	}
	if !info.IsDir() {
		return nil, []error{&LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("not a directory: %s", dir)}}
	}

	cueFiles, err := FindCUEFiles(dir)
	if err != nil {
		return nil, []error{&LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}}
	}
	if len(cueFiles) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeNoFiles, Message: fmt.Sprintf("no CUE files found in %s", dir)}}
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, []error{&LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", inst.Err)}}
	}

	value := ctx.BuildInstance(inst)
	if err := value.Err(); err != nil {
		return nil, []error{&LoadError{Code: ErrCodeBuildFailed, Message: fmt.Sprintf("building CUE value: %v", err)}}
	}

	result := &LoadResult{
		CUEValue:  value,
		FileCount: len(cueFiles),
	}

	specs, compileErrs := CompileQueries(value)
	result.Queries = specs

	var errs []error
	for _, err := range compileErrs {
		errs = append(errs, convertCompileError(err))
		if mode == LoadModeFailFast {
			return result, errs
		}
	}

	if len(result.Queries) == 0 && len(errs) == 0 {
		errs = append(errs, &LoadError{Code: ErrCodeNoQueries, Message: "no queries found in specs"})
	}
	return result, errs
}

// FindCUEFiles walks the directory and returns all .cue file paths.
func FindCUEFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && filepath.Ext(path) == ".cue" {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// convertCompileError converts a compiler error to a LoadError with position info.
func convertCompileError(err error) *LoadError {
	var compileErr *CompileError
	if errors.As(err, &compileErr) {
		return &LoadError{
			Code:    codeForField(compileErr.Field),
			Message: fmt.Sprintf("%s: %s", compileErr.Field, compileErr.Message),
			Pos:     compileErr.Pos,
		}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: err.Error()}
}

// Loaded is a query ready to run.
type Loaded struct {
	Spec      *ir.QuerySpec
	Query     *engine.Query
	GraphHash string
}

// LoadQuery loads dir, validates every query in it and builds the one
// called name.
func LoadQuery(dir, name string) (*Loaded, error) {
	res, errs := Load(dir, LoadModeFailFast)
	if len(errs) > 0 {
		return nil, errs[0]
	}
	if verrs := ValidateAll(res.Queries); len(verrs) > 0 {
		return nil, verrs[0]
	}

	spec, ok := res.Find(name)
	if !ok {
		return nil, &LoadError{
			Code:    ErrCodeUnknownQuery,
			Message: fmt.Sprintf("query %q not defined in %s (have %v)", name, dir, res.Names()),
		}
	}

	q, err := BuildQuery(spec)
	if err != nil {
		return nil, err
	}
	hash, err := ir.GraphHash(*spec)
	if err != nil {
		return nil, err
	}
	return &Loaded{Spec: spec, Query: q, GraphHash: hash}, nil
}
