package main

import (
	"fmt"
	"os"

	"ledgerdash/internal/cli"
)

func main() {
	cli.LoadEnvFile()

	cmd := cli.New(nil)
	cmd.SetArgs(os.Args[1:])
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
