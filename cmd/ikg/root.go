package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/CRISalid-esr/crisalid-ikg/config"
)

// cliFlags override the matching configuration keys when set
type cliFlags struct {
	configPath string
	logLevel   string
	logFormat  string
	store      string
}

func newRootCmd() *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:           "ikg",
		Short:         "CRISalid institutional knowledge graph",
		Long:          "Consumes directory and harvester events, reconciles them into the knowledge graph and serves the graph API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "Path to a YAML configuration file (env: IKG_CONFIG)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json, text")
	pf.StringVar(&flags.store, "store", "", "Graph store: neo4j or memory")

	root.AddCommand(
		newServeCmd(flags),
		newSetupGraphCmd(flags),
		newResetGraphCmd(flags),
		newVersionCmd(),
	)
	return root
}

// load reads the configuration, applies the flag overrides and installs the
// default logger.
func (f *cliFlags) load(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	path := f.configPath
	if path == "" {
		path = getEnv("IKG_CONFIG", "")
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	if f.store != "" {
		cfg.App.Store = f.store
		if err := cfg.Validate(); err != nil {
			return nil, nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build %s)\n", appName, Version, BuildTime)
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
