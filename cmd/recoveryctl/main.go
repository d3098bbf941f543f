package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"decryptrecovery/internal/config"
	"decryptrecovery/internal/database"
	"decryptrecovery/internal/models"
	"decryptrecovery/internal/placeholder"
	"decryptrecovery/internal/service"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

type contextKey int

const (
	contextKeyConfig contextKey = iota
	contextKeyDatabase
	contextKeyLogger
)

func getConfig(ctx *cli.Context) *models.Config {
	return ctx.Context.Value(contextKeyConfig).(*models.Config)
}

func getDatabase(ctx *cli.Context) *database.Database {
	val := ctx.Context.Value(contextKeyDatabase)
	if val == nil {
		return nil
	}
	return val.(*database.Database)
}

func getLogger(ctx *cli.Context) *logrus.Logger {
	return ctx.Context.Value(contextKeyLogger).(*logrus.Logger)
}

// prepareApp loads the configuration and sets up logging.
func prepareApp(ctx *cli.Context) error {
	cfg, err := config.LoadConfig(ctx.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(ctx.App.ErrWriter)
	logger.SetLevel(logrus.WarnLevel)
	if ctx.Bool("verbose") {
		logger.SetLevel(logrus.DebugLevel)
	}

	newCtx := context.WithValue(ctx.Context, contextKeyConfig, cfg)
	newCtx = context.WithValue(newCtx, contextKeyLogger, logger)
	ctx.Context = newCtx
	return nil
}

// requiresDatabase prepares the app and opens the timeline store. The
// store's own schema migrations run on open.
func requiresDatabase(ctx *cli.Context) error {
	if err := prepareApp(ctx); err != nil {
		return err
	}
	db, err := database.New(getConfig(ctx).Database)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	ctx.Context = context.WithValue(ctx.Context, contextKeyDatabase, db)
	return nil
}

func closeDatabase(ctx *cli.Context) error {
	if db := getDatabase(ctx); db != nil {
		return db.Close()
	}
	return nil
}

// newManager builds a lifecycle manager over the opened store.
func newManager(ctx *cli.Context) (*placeholder.Manager, error) {
	cfg := getConfig(ctx)
	db := getDatabase(ctx)
	return placeholder.NewManager(db, service.NewThreadDirectory(db), cfg.Recovery.Window(), getLogger(ctx),
		placeholder.WithSweepBatchSize(cfg.Recovery.SweepBatchSize),
	)
}

func printJSON(ctx *cli.Context, v interface{}) error {
	encoder := json.NewEncoder(ctx.App.Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "recoveryctl",
		Usage:   "Inspect and maintain decryption recovery placeholders",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to config file",
				Value:   "config.json",
				EnvVars: []string{"DECRYPTRECOVERY_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging (includes sensitive information)",
			},
		},
		Commands: []*cli.Command{
			migrateCommand,
			sweepCommand,
			showCommand,
			timelineCommand,
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
