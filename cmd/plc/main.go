// Command plc runs and inspects software PLC applications.
package main

import (
	"fmt"
	"os"

	"github.com/tebeka/atexit"

	"github.com/roach88/plc/internal/cli"
)

func main() {
	err := cli.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	atexit.Exit(cli.GetExitCode(err))
}
