package main

import (
	"database/sql"
	"fmt"
	"os"

	"decryptrecovery/internal/migrations"

	_ "github.com/mattn/go-sqlite3"
	"github.com/urfave/cli/v2"
)

var migrateCommand = &cli.Command{
	Name:  "migrate",
	Usage: "Apply pending schema migrations to an existing database",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "Path to the database file (defaults to database.path from config)",
		},
	},
	Action: cmdMigrate,
}

func cmdMigrate(ctx *cli.Context) error {
	dbPath := ctx.String("db")
	if dbPath == "" {
		if err := prepareApp(ctx); err != nil {
			return err
		}
		dbPath = getConfig(ctx).Database.Path
	}

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	applied, err := migrations.Apply(ctx.Context, db)
	if err != nil {
		return fmt.Errorf("migration failed after %d step(s): %w", applied, err)
	}
	version, err := migrations.CurrentVersion(ctx.Context, db)
	if err != nil {
		return err
	}

	if applied == 0 {
		fmt.Fprintf(ctx.App.Writer, "Schema already at version %d, nothing to apply\n", version)
		return nil
	}
	fmt.Fprintf(ctx.App.Writer, "Applied %d migration(s), schema now at version %d\n", applied, version)
	return nil
}
