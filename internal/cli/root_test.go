package cli

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "requex", cmd.Use)
	assert.Contains(t, cmd.Long, "replayed")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"compile", "validate", "append", "run", "replay", "trace", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "", configFlag.DefValue)
}

func TestCompileCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	compileCmd, _, err := cmd.Find([]string{"compile"})
	require.NoError(t, err)

	outputFlag := compileCmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
}

func TestJournalCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	for _, name := range []string{"append", "run", "replay", "trace"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)

			dbFlag := sub.Flags().Lookup("db")
			require.NotNil(t, dbFlag)
			// Falls back to the config's database
			assert.Equal(t, "", dbFlag.DefValue)

			assert.NotNil(t, sub.Flags().Lookup("stream"))
		})
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	runCmd, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)

	assert.NotNil(t, runCmd.Flags().Lookup("query"))
	assert.NotNil(t, runCmd.Flags().Lookup("checkpoint-every"))
	assert.NotNil(t, runCmd.Flags().Lookup("metrics-addr"))
}

func TestAppendCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	appendCmd, _, err := cmd.Find([]string{"append"})
	require.NoError(t, err)

	payloadFlag := appendCmd.Flags().Lookup("payload")
	require.NotNil(t, payloadFlag)
	assert.Equal(t, "{}", payloadFlag.DefValue)
}

func TestRootInvalidFormat(t *testing.T) {
	_, err := execute(NewRootCommand(), "", "--format", "yaml", "append", "--db", tempDB(t), "--type", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), `invalid format "yaml"`)
}

func TestRootConfigFile(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "from-config.db")
	cfgPath := filepath.Join(dir, "requex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("database: "+db+"\nformat: json\n"), 0644))

	out, err := execute(NewRootCommand(), "", "--config", cfgPath, "append", "--stream", "s1", "--type", "inc")
	require.NoError(t, err)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out.Stdout), &resp), "format comes from the config file")
	assert.Equal(t, "ok", resp.Status)

	_, statErr := os.Stat(db)
	assert.NoError(t, statErr, "database comes from the config file")
}

func TestRootFlagOverridesConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "requex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("format: json\n"), 0644))

	out, err := execute(NewRootCommand(), "",
		"--config", cfgPath, "--format", "text",
		"append", "--db", filepath.Join(dir, "j.db"), "--stream", "s1", "--type", "inc")
	require.NoError(t, err)
	assert.Contains(t, out.Stdout, "Appended inc to stream s1 at seq 1")
}

func TestRootBadConfig(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "requex.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("colour: red\n"), 0644))

	_, err := execute(NewRootCommand(), "", "--config", cfgPath, "append", "--type", "x")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load config")
}

func TestRootVerboseSetsDebug(t *testing.T) {
	opts := &RootOptions{Format: "text", Verbose: true}
	cmd := NewRootCommand()
	require.NoError(t, opts.resolve(cmd))
	assert.Equal(t, "debug", opts.Config.LogLevel)
	assert.True(t, opts.Logger.Enabled(context.Background(), slog.LevelDebug))
}
