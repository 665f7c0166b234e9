package cmd

import (
	"os"

	"github.com/dotcommander/multiagent/internal/config"
)

// Execute wires commands and runs Cobra. Any error exits with status 1.
func Execute(build BuildInfo, cfg config.Config, cfgErr error) {
	root := NewRootCmd(build, cfg, cfgErr)
	if err := root.Execute(); err != nil {
		handleError(err)
		os.Exit(1)
	}
}
