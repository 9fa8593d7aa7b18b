// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Vouch Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nozz/vouch/internal/config"
	"github.com/nozz/vouch/internal/store"
)

// NewMigrateCmd creates the migrate subcommand with its lifecycle
// verbs.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long:  `Apply, roll back, or inspect the embedded database migrations.`,
		RunE:  runMigrateUp,
	}
	cmd.PersistentFlags().String("database.url", "", "PostgreSQL connection URL")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations (destructive)",
		RunE:  runMigrateDown,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		RunE:  runMigrateVersion,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE:  runMigrateStatus,
	})

	return cmd
}

func openMigrator(cmd *cobra.Command) (*store.Migrator, error) {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}
	return store.NewMigrator(cfg.Database.URL)
}

func runMigrateUp(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("schema is up to date")
		return nil
	}
	if err := m.Up(); err != nil {
		return err
	}
	for _, v := range pending {
		name, nameErr := store.MigrationName(v)
		if nameErr != nil {
			name = "?"
		}
		cmd.Printf("applied %s\n", name)
	}
	return nil
}

func runMigrateDown(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	if err := m.Down(); err != nil {
		return err
	}
	cmd.Println("all migrations rolled back")
	return nil
}

func runMigrateVersion(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if version == 0 {
		cmd.Println("no migrations applied")
		return nil
	}
	name, err := store.MigrationName(version)
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("version %d (%s) DIRTY\n", version, name)
	} else {
		cmd.Printf("version %d (%s)\n", version, name)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, _ []string) error {
	m, err := openMigrator(cmd)
	if err != nil {
		return err
	}
	defer closeMigrator(m)

	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}

	printVersions := func(label string, versions []uint) {
		for _, v := range versions {
			name, nameErr := store.MigrationName(v)
			if nameErr != nil || name == "" {
				name = "?"
			}
			cmd.Printf("%s  %s\n", label, name)
		}
	}
	printVersions("applied", applied)
	printVersions("pending", pending)
	if len(applied) == 0 && len(pending) == 0 {
		cmd.Println("no migrations found")
	}
	return nil
}

func closeMigrator(m *store.Migrator) {
	if err := m.Close(); err != nil {
		slog.Error("closing migrator", "error", err)
	}
}
