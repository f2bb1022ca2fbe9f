// Package main is the operator CLI for the fiscal emission pipeline.
package main

import (
	"fmt"
	"os"

	"comanda/cmd/fiscalctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
