// submodule cmd contains command definitions
package main

import (
	"fmt"

	"github.com/desertthunder/taskmirror/internal/models"
	"github.com/desertthunder/taskmirror/internal/tasks"
	"github.com/urfave/cli/v3"
)

// setupCommand creates the config file and manages migrations
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Initialize configuration and database",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Create the database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write a config file from the built-in template",
				Action: r.SetupConfig,
			},
			{
				Name:   "rollback",
				Usage:  "Roll back the most recent migration",
				Action: r.SetupRollback,
			},
			{
				Name:  "migrations",
				Usage: "List applied migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SetupMigrations,
			},
		},
	}
}

// serveCommand runs the HTTP API and scheduler
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API and the automatic sync scheduler",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Listen port (overrides server.port)",
			},
			&cli.BoolFlag{
				Name:  "no-scheduler",
				Usage: "Serve the API without automatic syncs",
			},
		},
		Action: r.Serve,
	}
}

// accountsCommand enrolls accounts and sets their destinations
func accountsCommand(r *Runner) *cli.Command {
	accountArgs := []cli.Argument{&cli.StringArg{Name: "account"}}

	return &cli.Command{
		Name:    "accounts",
		Aliases: []string{"acct"},
		Usage:   "Enroll and configure accounts",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Enroll an account from Google OAuth tokens",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "refresh-token",
						Usage:    "Google OAuth refresh token",
						Required: true,
						Sources:  cli.EnvVars("TASKMIRROR_REFRESH_TOKEN"),
					},
					&cli.StringFlag{
						Name:  "access-token",
						Usage: "Google OAuth access token (refreshed when missing)",
					},
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Resolve email, name and subject from Google instead of flags",
						Value: true,
					},
					&cli.StringFlag{
						Name:  "email",
						Usage: "Account email (required without --verify)",
					},
					&cli.StringFlag{
						Name:  "name",
						Usage: "Display name",
					},
					&cli.StringFlag{
						Name:  "subject",
						Usage: "Google account subject id (required without --verify)",
					},
				},
				Action: r.AccountsAdd,
			},
			{
				Name:  "list",
				Usage: "List enrolled accounts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.AccountsList,
			},
			{
				Name:      "destination",
				Usage:     "Validate and store the account's Notion database",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "token",
						Usage:    "Notion integration token",
						Required: true,
						Sources:  cli.EnvVars("NOTION_TOKEN"),
					},
					&cli.StringFlag{
						Name:     "database",
						Aliases:  []string{"d"},
						Usage:    "Notion database id",
						Required: true,
					},
				},
				Action: r.AccountsDestination,
			},
			{
				Name:      "activate",
				Usage:     "Allow automatic syncs for the account",
				Arguments: accountArgs,
				Action:    r.AccountsSetActive(true),
			},
			{
				Name:      "deactivate",
				Usage:     "Exclude the account from automatic syncs",
				Arguments: accountArgs,
				Action:    r.AccountsSetActive(false),
			},
		},
	}
}

// syncCommand starts passes and reads run history
func syncCommand(r *Runner) *cli.Command {
	accountArgs := []cli.Argument{&cli.StringArg{Name: "account"}}

	return &cli.Command{
		Name:  "sync",
		Usage: "Run and inspect sync passes",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Start a manual sync (through the running server unless --wait)",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "wait",
						Aliases: []string{"w"},
						Usage:   "Run the pass in this process and wait for it to finish",
					},
					&cli.StringFlag{
						Name:  "server",
						Usage: "Server base URL (default: http://<server.host>:<server.port>)",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncRun,
			},
			{
				Name:      "status",
				Usage:     "Show whether a sync is running and recent runs",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, json, csv, markdown",
						Value:   "text",
					},
				},
				Action: r.SyncStatus,
			},
			{
				Name:      "settings",
				Usage:     "Show or change automatic sync settings",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "auto-sync",
						Usage: "Enable or disable automatic syncs (--auto-sync=false to disable)",
					},
					&cli.IntFlag{
						Name:    "interval",
						Aliases: []string{"i"},
						Usage:   fmt.Sprintf("Minutes between automatic syncs (1-%d)", models.MaxIntervalMinutes),
					},
				},
				Action: r.SyncSettings,
			},
			{
				Name:  "sweep",
				Usage: "Run one scheduler sweep and wait for the passes it starts",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.SyncSweep,
			},
		},
	}
}

// tasksCommand reads mirror records
func tasksCommand(r *Runner) *cli.Command {
	accountArgs := []cli.Argument{&cli.StringArg{Name: "account"}}
	formatFlag := &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: text, json, csv, markdown",
		Value:   "text",
	}

	return &cli.Command{
		Name:  "tasks",
		Usage: "Inspect mirrored tasks",
		Commands: []*cli.Command{
			{
				Name:      "list",
				Usage:     "List mirrored tasks, most recently synced first",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					formatFlag,
					&cli.IntFlag{
						Name:  "page",
						Usage: "Page number",
						Value: 1,
					},
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"l"},
						Usage:   "Tasks per page",
						Value:   tasks.DefaultPageSize,
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file instead of stdout",
					},
				},
				Action: r.TasksList,
			},
			{
				Name:      "stats",
				Usage:     "Count mirrored tasks by status and outcome",
				Arguments: accountArgs,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output raw JSON",
					},
				},
				Action: r.TasksStats,
			},
		},
	}
}
