// Command hydra is the CLI entry point: it builds the cobra command
// tree from internal/cli and translates a returned *cli.ExitError (or
// any other error) into a process exit code per spec.md §6/§7.
//
// The teacher repository exposes its cobra command tree only as a
// library (internal/cli), with no cmd/ package of its own; this main
// is new, following the standard cobra wiring the teacher's own
// internal/cli.NewRootCommand is built to support.
package main

import (
	"fmt"
	"os"

	"github.com/hydra-analyzer/hydra/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
