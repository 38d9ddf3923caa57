package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const demoSpecs = `package demo

query: todos: collection: {
	kind:   "array"
	key:    "id"
	add:    "add-todo"
	remove: "remove-todo"
	item: structure: {
		id:   {arg: "id"}
		text: {arg: "text"}
		completed: {
			events: "toggle-todo"
			fold:   "toggle"
			scope: {field: "id", arg: "id"}
		}
	}
}

query: total: {events: "inc", select: "by", fold: "sum"}
`

// writeSpecs writes src as the only CUE file of a fresh specs directory.
func writeSpecs(t *testing.T, src string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "specs")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "queries.cue"), []byte(src), 0644))
	return dir
}

// tempDB returns the path of a journal in a fresh temp directory.
func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "requex.db")
}

type cmdOutput struct {
	Stdout string
	Stderr string
}

// execute runs cmd with args and stdin, capturing both outputs.
func execute(cmd *cobra.Command, stdin string, args ...string) (cmdOutput, error) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return cmdOutput{Stdout: stdout.String(), Stderr: stderr.String()}, err
}

func textOpts() *RootOptions { return &RootOptions{Format: "text"} }

func jsonOpts() *RootOptions { return &RootOptions{Format: "json"} }
