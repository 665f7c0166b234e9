// Package main provides the multiagent CLI.
package main

import (
	"github.com/dotcommander/multiagent/internal/cmd"
	"github.com/dotcommander/multiagent/internal/config"
)

// Build vars.
var (
	//nolint: gochecknoglobals
	Version = ""
	//nolint: gochecknoglobals
	CommitSHA = ""
)

func main() {
	cfg, cfgErr := config.Load()
	cmd.Execute(cmd.BuildInfo{Version: Version, CommitSHA: CommitSHA}, cfg, cfgErr)
}
