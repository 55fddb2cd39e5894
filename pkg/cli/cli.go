// Package cli provides the command-line interface for uiflow.
package cli

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to uiflow.yaml (default: ./uiflow.yaml when present)",
		EnvVars: []string{"UIFLOW_CONFIG"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"UIFLOW_VERBOSE"},
	},
	&cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to this file instead of the default location",
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the uiflow application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "uiflow",
		Usage:   "Declarative UI flow runner",
		Version: Version,
		Description: `uiflow executes declarative UI flows (click, input, assert, loop,
api_request, run_script, custom components, ...) against a device agent.

Examples:
  uiflow run login.yaml
  uiflow run flows/ --parallel 2 --allure
  uiflow --config uiflow.yaml validate flows/`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			validateCommand,
		},
	}
}

// Execute runs the CLI.
func Execute() {
	if err := NewApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
