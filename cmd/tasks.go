package main

import (
	"context"

	"github.com/desertthunder/taskmirror/internal/formatter"
	"github.com/urfave/cli/v3"
)

// TasksList prints one page of mirror records.
func (r *Runner) TasksList(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}
	format, err := formatter.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	page, err := a.coordinator.ListMirrorRecords(ctx, id, cmd.Int("page"), cmd.Int("limit"))
	if err != nil {
		return err
	}

	palette := r.palette
	if cmd.String("output") != "" {
		palette = nil
	}
	data, err := formatter.RenderRecords(page, format, palette)
	if err != nil {
		return err
	}
	return r.writeRendered(data, cmd.String("output"))
}

// TasksStats prints record counts.
func (r *Runner) TasksStats(ctx context.Context, cmd *cli.Command) error {
	id, err := accountArg(cmd)
	if err != nil {
		return err
	}

	a, err := r.open(false)
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	stats, err := a.coordinator.Stats(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(stats, true)
	}
	_, err = r.output.Write(formatter.StatsToText(stats, r.palette))
	return err
}
