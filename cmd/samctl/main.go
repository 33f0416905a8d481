// Command samctl seeds an in-memory license ledger from the configured source
// and runs one ledger operation against it, printing the outcome as JSON.
package main

import (
	"fmt"
	"io"
	"os"
)

var (
	version = "dev"
	commit  = "none"

	exitFunc = os.Exit
)

func main() {
	exitFunc(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(stdout)
	root.SetArgs(args)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "samctl: %v\n", err)
		return 1
	}
	return 0
}
