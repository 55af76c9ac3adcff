// Command stackline edits layered timelines and reports what plays when.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/stackline/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cli.GetExitCode(err))
}
