package main

import (
	"fmt"
	"os"

	"keygate/cmd/keygate/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
