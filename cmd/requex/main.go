// Command requex compiles, runs, journals and replays incremental
// derivations over event streams.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/requex/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(cli.GetExitCode(err))
	}
}
