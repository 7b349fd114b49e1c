// Package main is the entry point for the log distributor service.
package main

import (
	"fmt"
	"os"

	"github.com/AnimatorJoe/distributor/cmd"
	_ "github.com/AnimatorJoe/distributor/plugins" // register built-in processor plugins
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
