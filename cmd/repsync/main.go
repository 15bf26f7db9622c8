// Command repsync inspects and drives the offline-first workout sync engine.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/repsync/internal/cli"
)

func main() {
	err := cli.NewRootCommand().ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(cli.GetExitCode(err))
}
