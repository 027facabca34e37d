// Command ctf records story lifecycle events and reports sprint metrics.
package main

import (
	"os"

	"cycletrack/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
