package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/conduit-jsonapi/internal/cli/ui"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/migrate"
	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

// NewMigrateCommand creates the migrate command
func NewMigrateCommand(load func() (*app, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
		Long: `Run and manage database migrations.

Migrations are NNN_name.up.sql / NNN_name.down.sql pairs. They are read
from database.migrations_dir when set. Otherwise the bundled Postgres
migrations are used, or for SQLite a migration generated from the entity
metadata.`,
	}

	cmd.AddCommand(newMigrateUpCommand(load))
	cmd.AddCommand(newMigrateDownCommand(load))
	cmd.AddCommand(newMigrateStatusCommand(load))
	cmd.AddCommand(newMigrateGenerateCommand(load))

	return cmd
}

// withRunner opens the store and hands a migration runner plus the
// migrations for its dialect to fn
func withRunner(ctx context.Context, load func() (*app, error), fn func(*migrate.Runner, []*migrate.Migration) error) error {
	a, err := load()
	if err != nil {
		return err
	}
	defer a.logger.Sync()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	migrations, err := a.migrations(store.Dialect())
	if err != nil {
		return err
	}

	runner := migrate.NewRunner(store.DB(), store.Dialect(), a.logger.Named("migrate"))
	if err := runner.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return fn(runner, migrations)
}

func newMigrateUpCommand(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), load, func(runner *migrate.Runner, migrations []*migrate.Migration) error {
				out := cmd.OutOrStdout()
				applied, err := runner.MigrateUp(cmd.Context(), migrations)
				if err != nil {
					color.New(color.FgRed, color.Bold).Fprintf(out, "✗ Applied %d migration(s) before failing\n", applied)
					return err
				}
				if applied == 0 {
					color.New(color.FgCyan).Fprintln(out, "No pending migrations")
					return nil
				}
				color.New(color.FgGreen, color.Bold).Fprintf(out, "✓ Applied %d migration(s)\n", applied)
				return nil
			})
		},
	}
}

func newMigrateDownCommand(load func() (*app, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "down",
		Short: "Roll back the last applied migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), load, func(runner *migrate.Runner, _ []*migrate.Migration) error {
				out := cmd.OutOrStdout()
				m, err := runner.MigrateDown(cmd.Context())
				if errors.Is(err, migrate.ErrNothingToRollback) {
					color.New(color.FgYellow).Fprintln(out, "No migrations to roll back")
					return nil
				}
				if err != nil {
					return err
				}
				color.New(color.FgGreen, color.Bold).Fprintf(out, "✓ Rolled back %03d_%s\n", m.Version, m.Name)
				return nil
			})
		},
	}
}

func newMigrateStatusCommand(load func() (*app, error)) *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show which migrations are applied",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(cmd.Context(), load, func(runner *migrate.Runner, migrations []*migrate.Migration) error {
				status, err := runner.Status(cmd.Context(), migrations)
				if err != nil {
					return err
				}

				appliedAt := make(map[int64]time.Time, len(status.Applied))
				for _, m := range status.Applied {
					appliedAt[m.Version] = m.AppliedAt
				}

				out := cmd.OutOrStdout()
				table := ui.NewTable(out, noColor, "VERSION", "NAME", "STATUS")
				for _, m := range migrations {
					state := "pending"
					if at, ok := appliedAt[m.Version]; ok {
						state = "applied " + at.UTC().Format(time.RFC3339)
					}
					table.AddRow(fmt.Sprintf("%03d", m.Version), m.Name, state)
				}
				table.Render()
				fmt.Fprintln(out, status.Summary())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable coloured output")
	return cmd
}

func newMigrateGenerateCommand(load func() (*app, error)) *cobra.Command {
	var (
		dir     string
		name    string
		version int64
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a migration creating the tables of every entity",
		Long: `Generate CREATE TABLE statements from the entity metadata for the
configured database driver and write them as a new up/down pair.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load()
			if err != nil {
				return err
			}
			defer a.logger.Sync()

			dialect, err := query.DialectFor(a.cfg.Database.Driver)
			if err != nil {
				return err
			}
			if version <= 0 {
				if version, err = nextVersion(dir); err != nil {
					return err
				}
			}

			m, err := migrate.GenerateMigration(a.registry.AllMetadata(), dialect, version, name)
			if err != nil {
				return err
			}
			upPath, downPath, err := migrate.WriteFiles(dir, m)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen, color.Bold).Fprintf(out, "✓ Generated migration %03d_%s\n", m.Version, m.Name)
			fmt.Fprintf(out, "  %s\n  %s\n", upPath, downPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "migrations", "Directory to write the migration to")
	cmd.Flags().StringVar(&name, "name", "create_schema", "Migration name")
	cmd.Flags().Int64Var(&version, "version", 0, "Migration version (default: one past the highest in --dir)")

	return cmd
}

// nextVersion returns one past the highest migration version in dir
func nextVersion(dir string) (int64, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return 1, nil
	}
	existing, err := migrate.Load(os.DirFS(dir), ".")
	if err != nil {
		return 0, err
	}
	if len(existing) == 0 {
		return 1, nil
	}
	return existing[len(existing)-1].Version + 1, nil
}
