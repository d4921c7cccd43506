// Command flyter is the command-line front end of the flyter message ledger.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/flyter/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}
