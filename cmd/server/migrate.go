package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/config"
	"github.com/galihcitta/confras/internal/repository"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres store schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrapPostgres()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return repository.MigrateUp(cfg.Database.URL, logger)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down [steps]",
		Short: "Roll back migrations, one step unless told otherwise",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps := 1
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("steps must be a positive number, got %q", args[0])
				}
				steps = n
			}

			cfg, logger, err := bootstrapPostgres()
			if err != nil {
				return err
			}
			defer logger.Sync()
			return repository.MigrateDown(cfg.Database.URL, steps, logger)
		},
	})

	return cmd
}

func bootstrapPostgres() (*config.Config, *zap.Logger, error) {
	cfg, logger, err := bootstrap()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver != config.StorePostgres {
		return nil, nil, fmt.Errorf("migrations only apply to store.driver %q", config.StorePostgres)
	}
	return cfg, logger, nil
}
