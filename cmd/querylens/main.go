// Package main is the entrypoint for the querylens CLI.
package main

import (
	"os"

	"github.com/querylens-labs/querylens/internal/cli"
)

// Set via ldflags at build time.
var (
	version   = ""
	gitCommit = ""
	buildDate = ""
)

func main() {
	cli.SetVersionInfo(version, gitCommit, buildDate)
	os.Exit(cli.New().Execute())
}
