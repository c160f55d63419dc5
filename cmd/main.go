package main

import (
	"context"
	"errors"
	"os"

	"github.com/desertthunder/taskmirror/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	runner := NewRunner(RunnerOpts{
		Logger: logger,
		Plain:  os.Getenv("NO_COLOR") != "",
	})

	app := newApp(runner)

	if err := app.Run(context.Background(), os.Args); err != nil {
		if errors.Is(err, shared.ErrNotImplemented) {
			logger.Warn("not implemented")
			os.Exit(0)
		} else {
			logger.Fatalf("application error: %v", err)
		}
	}
}

// newApp builds the root command with the global flags.
func newApp(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "taskmirror",
		Usage:   "Mirror Google Tasks into Notion databases",
		Version: "0.1.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file",
				Value:   "config.toml",
				Sources: cli.EnvVars("TASKMIRROR_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the configured log level (debug, info, warn, error)",
			},
		},
		Before:   r.loadConfig,
		Commands: r.register(),
	}
}
