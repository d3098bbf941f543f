package main

import (
	"fmt"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/service"

	"github.com/urfave/cli/v2"
)

var showCommand = &cli.Command{
	Name:      "show",
	Usage:     "Show a placeholder and its current display status",
	ArgsUsage: "PLACEHOLDER_ID",
	Before:    requiresDatabase,
	After:     closeDatabase,
	Action:    cmdShow,
}

var timelineCommand = &cli.Command{
	Name:      "timeline",
	Usage:     "Print the ordered timeline of a thread",
	ArgsUsage: "THREAD_ID",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "mark-read",
			Usage: "Mark every entry read after printing",
		},
	},
	Before: requiresDatabase,
	After:  closeDatabase,
	Action: cmdTimeline,
}

type placeholderDetails struct {
	Placeholder *models.Placeholder  `json:"placeholder"`
	Status      models.DisplayStatus `json:"status"`
	StatusText  string               `json:"statusText"`
	Replaceable bool                 `json:"replaceable"`
}

func cmdShow(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a placeholder id")
	}

	manager, err := newManager(ctx)
	if err != nil {
		return err
	}
	p, err := manager.Get(ctx.Context, ctx.Args().Get(0))
	if err != nil {
		return err
	}

	now := clock.Real{}.Now()
	status := p.DisplayStatus(now)
	return printJSON(ctx, placeholderDetails{
		Placeholder: p,
		Status:      status,
		StatusText:  status.Text(),
		Replaceable: p.IsReplaceable(now),
	})
}

func cmdTimeline(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("you must specify a thread id")
	}
	threadID := ctx.Args().Get(0)

	timeline := service.NewTimelineService(getDatabase(ctx), clock.Real{}, getLogger(ctx))
	entries, err := timeline.Timeline(ctx.Context, threadID)
	if err != nil {
		return err
	}
	if err := printJSON(ctx, timeline.View(entries)); err != nil {
		return err
	}

	if !ctx.Bool("mark-read") {
		return nil
	}
	marked, err := timeline.MarkThreadRead(ctx.Context, threadID)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.App.ErrWriter, "Marked %d entries read\n", marked)
	return nil
}
