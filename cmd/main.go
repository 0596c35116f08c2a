package main

import (
	"fmt"
	"os"

	"invofox/internal/transport/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
