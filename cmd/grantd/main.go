// Package main is the entry point for the grantd daemon.
package main

import (
	"os"

	"github.com/fernandezvara/grantkit/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
