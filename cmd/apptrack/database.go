package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/garnizeh/apptrack/db"
	idb "github.com/garnizeh/apptrack/internal/db"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database and apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			conn, err := idb.New(ctx, cfg.DatabasePath, newLogger(cfg))
			if err != nil {
				return err
			}
			defer conn.Close()

			if err := idb.Migrate(ctx, conn, db.Migrations); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database migrated.")
			return nil
		},
	}
}

func backupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup [file]",
		Short: "Write a consistent copy of the database",
		Long: `Write a consistent copy of the database while it is in use.

Without a file argument the copy is written next to the database with a
timestamp suffix.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			dst := cfg.DatabasePath + "." + time.Now().UTC().Format("20060102T150405") + ".bak"
			if len(args) == 1 {
				dst = args[0]
			}
			if err := backup(cmd.Context(), cfg.DatabasePath, dst); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Database backed up to %s.\n", dst)
			return nil
		},
	}
}

func backup(ctx context.Context, path, dst string) error {
	conn, err := idb.New(ctx, path, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Backup(ctx, dst)
}

func restoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Replace the database with a backup",
		Long:  `Replace the database with a backup. Stop the server and workers first.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := idb.Restore(args[0], cfg.DatabasePath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database restored.")
			return nil
		},
	}
}
