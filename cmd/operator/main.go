package main

import (
	"fmt"
	"os"

	"github.com/urumi/store-platform/internal/cli"
)

func main() {
	cmd := cli.NewOperatorRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
