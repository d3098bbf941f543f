package main

import (
	"fmt"

	"decryptrecovery/internal/clock"
	"decryptrecovery/internal/service"

	"github.com/urfave/cli/v2"
)

var sweepCommand = &cli.Command{
	Name:  "sweep",
	Usage: "Expire every placeholder whose recovery window has passed",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "cleanup",
			Usage: "Also delete expired placeholders older than the retention period",
		},
	},
	Before: requiresDatabase,
	After:  closeDatabase,
	Action: cmdSweep,
}

func cmdSweep(ctx *cli.Context) error {
	manager, err := newManager(ctx)
	if err != nil {
		return err
	}
	sweeper := service.NewSweeper(manager, getDatabase(ctx), getConfig(ctx).Recovery, clock.Real{}, getLogger(ctx))

	expired, err := sweeper.RunSweep(ctx.Context)
	if err != nil {
		return fmt.Errorf("sweep failed after expiring %d placeholder(s): %w", expired, err)
	}
	fmt.Fprintf(ctx.App.Writer, "Expired %d placeholder(s)\n", expired)

	if !ctx.Bool("cleanup") {
		return nil
	}
	removed, err := sweeper.RunCleanup(ctx.Context)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}
	fmt.Fprintf(ctx.App.Writer, "Removed %d expired placeholder(s) past retention\n", removed)
	return nil
}
