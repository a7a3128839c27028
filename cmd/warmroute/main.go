// Package main is the entry point for the warmroute CLI.
package main

import (
	"os"

	"github.com/runger/warmroute/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
