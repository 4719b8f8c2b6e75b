package main

import (
	"fmt"
	"os"

	"github.com/ayusman/signbridge/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "signbridge:", err)
		os.Exit(cli.ExitCode(err))
	}
}
