// fuzzyinfer runs fuzzy forward-chaining inference and merges knowledge
// bases.
//
// Usage:
//
//	fuzzyinfer run <kb-file> [--query pred(args)] [--explain pred(args)] [--journal db]
//	fuzzyinfer validate <kb-file>
//	fuzzyinfer analyze <kb-file>
//	fuzzyinfer merge <kb1> <kb2> --strategy union|override|complement|weighted|smart
//	fuzzyinfer trace --journal db [--run id] [--fact pred(args)]
//	fuzzyinfer replay --journal db [--run id]
//	fuzzyinfer test <scenario-dir|file> [--filter glob] [--update]
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/fuzzyinfer/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil && !reported(err) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}

// reported tells whether a command already printed err through its
// formatter. Flag and argument errors from cobra are not.
func reported(err error) bool {
	var exitErr *cli.ExitError
	return errors.As(err, &exitErr)
}
