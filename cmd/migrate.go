// Package cmd provides command-line interface functionality for the embedqueue application.
/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"embedqueue/internal/application/common/slogger"

	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver for goose
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

const defaultMigrationsDir = "migrations"

// newMigrateCmd creates and returns the migrate command.
func newMigrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate [up|down|status|version|create NAME]",
		Short: "Run database migrations",
		Long: `Run database migrations to set up or update the database schema.

This command manages the queue, worker registry, event, and rollup tables.
Migrations are plain goose SQL files; "up" is safe to run repeatedly.

Configuration for database connection is loaded from config files and environment variables.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runMigrations(dir, args[0], args[1:]...)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", defaultMigrationsDir, "directory holding migration files")

	return cmd
}

// runMigrations dispatches a goose command against the configured database.
func runMigrations(dir, command string, args ...string) error {
	cfg := GetConfig()

	db, err := sql.Open("pgx", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slogger.ErrorNoCtx("Error closing database connection", slogger.Fields{"error": closeErr.Error()})
		}
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	slogger.InfoNoCtx("Running migration command", slogger.Fields2("command", command, "dir", dir))

	start := time.Now()
	switch command {
	case "up":
		err = goose.Up(db, dir)
	case "down":
		err = goose.Down(db, dir)
	case "status":
		err = goose.Status(db, dir)
	case "version":
		err = goose.Version(db, dir)
	case "create":
		if len(args) == 0 || args[0] == "" {
			return errors.New("migration name is required for 'create'")
		}
		err = goose.Create(db, dir, args[0], "sql")
	default:
		return fmt.Errorf("unknown migration command %q (expected up, down, status, version, or create)", command)
	}
	if err != nil {
		return fmt.Errorf("migration %s: %w", command, err)
	}

	slogger.InfoNoCtx("Migration command completed", slogger.Fields2(
		"command", command,
		"duration", time.Since(start).String(),
	))

	return nil
}

func init() { //nolint:gochecknoinits // Standard Cobra CLI pattern for command registration
	rootCmd.AddCommand(newMigrateCmd())
}
