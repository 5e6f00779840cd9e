package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"ms-ledger/internal/config"
	"ms-ledger/internal/database/migrations"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/order/db"
)

func main() {
	log := logger.NewLogger()
	defer log.Close()

	if err := godotenv.Load(); err != nil {
		log.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	var (
		dir  string
		seed bool
	)

	withRunner := func(fn func(r *migrations.Runner) error) error {
		store, err := db.OpenPostgres(context.Background(), cfg.Database, log)
		if err != nil {
			return err
		}
		defer store.Bun.Close()

		runner := migrations.NewRunner(store.Bun, migrations.MigrateOptions{MigrationsDir: dir, SeedData: seed}, log)
		defer runner.Close()
		return fn(runner)
	}

	root := &cobra.Command{
		Use:           "ledger-migrate",
		Short:         "Manage the ledger database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dir, "dir", cfg.Migrations.Dir, "directory holding the SQL migrations")
	root.PersistentFlags().BoolVar(&seed, "seed", cfg.Migrations.SeedData, "also apply the demo seed migrations")

	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply the schema, plus seed data with --seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error { return r.RunMigrations() })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error { return r.MigrateDown() })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "to VERSION",
		Short: "Migrate up or down to VERSION",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withRunner(func(r *migrations.Runner) error { return r.MigrateTo(uint(v)) })
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the applied version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRunner(func(r *migrations.Runner) error {
				v, dirty, err := r.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", v, dirty)
				return nil
			})
		},
	})

	if err := root.Execute(); err != nil {
		log.Error("MIGRATE", err.Error())
		os.Exit(1)
	}
}
