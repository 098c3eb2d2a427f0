package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	GitCommit string
	GitTag    string
	BuildTime string
)

//	@title						Library API
//	@version					1.0
//	@description				Books catalog with a borrow and return ledger.
//	@BasePath					/
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
func main() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCommand builds the command line of the application. Without
// subcommand it starts the api server.
func NewRootCommand() *cobra.Command {
	var configFile, envFile string
	loadConfig := func() (*Config, error) {
		return LoadAndInitConfigs(configFile, envFile, GitCommit, GitTag, BuildTime)
	}

	serve := func(cmd *cobra.Command, _ []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		app, err := NewApp(config)
		if err != nil {
			return fmt.Errorf("application failed to initialized: %w", err)
		}
		if err = app.Run(); err != nil {
			return fmt.Errorf("application exited. check logs for more details: %w", err)
		}
		return nil
	}

	root := &cobra.Command{
		Use:          "demo-library",
		Short:        "Library books api with a borrow and return ledger",
		SilenceUsage: true,
		RunE:         serve,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", GitTag, GitCommit, BuildTime),
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yml", "path to the yaml configuration file")
	root.PersistentFlags().StringVarP(&envFile, "env", "e", "config.env", "path to the optional env file")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the api server",
		RunE:  serve,
	})

	root.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			logger, closer := SetupAppLogger(config)
			defer closer()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			store, err := OpenStore(ctx, config, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			cmd.Println("database schema is up to date.")
			return nil
		},
	})

	var quantity int
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Insert the initial books catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			config, err := loadConfig()
			if err != nil {
				return err
			}
			logger, closer := SetupAppLogger(config)
			defer closer()
			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			store, err := OpenStore(ctx, config, logger)
			if err != nil {
				return err
			}
			defer store.Close()
			inserted, err := NewSeeder(logger, NewClock(config.IsProduction), NewIDsHandler(), store).Seed(ctx, quantity)
			if err != nil {
				return err
			}
			cmd.Printf("seeded %d books.\n", inserted)
			return nil
		},
	}
	seed.Flags().IntVarP(&quantity, "quantity", "q", defaultSeedQuantity, "number of copies of each book")
	root.AddCommand(seed)
	return root
}
