// Command consolctl checks account mappings, runs consolidations and maintains FX rates from the
// command line.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd, env := newRootCommand()
	defer env.close()
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			return exit.code
		}
		fmt.Fprintf(os.Stderr, "consolctl: %v\n", err)
		return 1
	}
	return 0
}
