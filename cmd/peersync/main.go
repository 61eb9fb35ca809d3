// Command peersync hosts or joins a document sync session on the local
// network. See "peersync --help".
package main

import (
	"fmt"
	"os"

	"github.com/roach88/peersync/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
