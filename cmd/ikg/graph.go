package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/CRISalid-esr/crisalid-ikg/config"
	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/graph/memstore"
	"github.com/CRISalid-esr/crisalid-ikg/graph/neo4jstore"
)

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (graph.Store, error) {
	switch cfg.App.Store {
	case config.StoreMemory:
		logger.Warn("Using the in-memory graph store, nothing will be persisted")
		return memstore.New(cfg.App.Env), nil
	default:
		store, err := neo4jstore.New(ctx, neo4jstore.Config{
			URI:      cfg.Neo4j.URI,
			User:     cfg.Neo4j.User,
			Password: cfg.Neo4j.Password,
			Database: cfg.Neo4j.Database,
			Edition:  cfg.Neo4j.Edition,
			Env:      cfg.App.Env,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open neo4j store: %w", err)
		}
		return store, nil
	}
}

func newSetupGraphCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "setup-graph",
		Short: "Create the graph constraints and indexes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if err := store.Global().Setup(ctx); err != nil {
				return fmt.Errorf("setup graph: %w", err)
			}
			logger.Info("Graph setup complete")
			return nil
		},
	}
}

func newResetGraphCmd(flags *cliFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-graph",
		Short: "Delete every node of the graph (dev and test only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := flags.load(cmd)
			if err != nil {
				return err
			}
			if !graph.ResetAllowed(cfg.App.Env) {
				return fmt.Errorf("reset-graph: %w (app.env=%s)", graph.ErrResetRefused, cfg.App.Env)
			}

			ctx := cmd.Context()
			store, err := openStore(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if err := store.Global().ResetAll(ctx); err != nil {
				return fmt.Errorf("reset graph: %w", err)
			}
			logger.Warn("Graph reset", "env", cfg.App.Env)
			return nil
		},
	}
}
