package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/requex/internal/compiler"
)

func TestValidateValidSpecs(t *testing.T) {
	out, err := execute(NewValidateCommand(textOpts()), "", writeSpecs(t, demoSpecs))
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "OK 2 query(s) valid")
}

func TestValidateValidSpecsJSON(t *testing.T) {
	out, err := execute(NewValidateCommand(jsonOpts()), "", writeSpecs(t, demoSpecs))
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.ElementsMatch(t, []string{"todos", "total"}, resp.Data.Queries)
}

func TestValidateCollectsAllErrors(t *testing.T) {
	specsDir := writeSpecs(t, `package demo

query: a: {events: "add todo"}
query: b: {value: 1.5}
query: c: {events: "x", select: "a..b"}
`)

	out, err := execute(NewValidateCommand(jsonOpts()), "", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out.Stdout), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)

	var codes []string
	for _, e := range resp.Data.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, compiler.ErrInvalidEventType)
	assert.Contains(t, codes, compiler.ErrInvalidPath)
	assert.GreaterOrEqual(t, len(codes), 3, "the float literal is reported as well")
}

func TestValidateTextOutput(t *testing.T) {
	specsDir := writeSpecs(t, `package demo

query: a: {events: "add todo"}
`)

	out, err := execute(NewValidateCommand(textOpts()), "", specsDir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out.Stdout, "FAIL Validation failed")
	assert.Contains(t, out.Stdout, compiler.ErrInvalidEventType)
	assert.Contains(t, out.Stdout, "query.a.events")
}

func TestValidateMissingDirectory(t *testing.T) {
	out, err := execute(NewValidateCommand(textOpts()), "", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out.Stdout, "Error ["+compiler.ErrCodeNotFound+"]")
}

func TestValidateSpecsDir(t *testing.T) {
	res, verrs, err := ValidateSpecsDir(writeSpecs(t, demoSpecs))
	require.NoError(t, err)
	assert.Empty(t, verrs)
	assert.Equal(t, 1, res.FileCount)

	_, _, err = ValidateSpecsDir(t.TempDir())
	require.Error(t, err)
	var loadErr *compiler.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, compiler.ErrCodeNoFiles, loadErr.Code)
}
