package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/aristath/etlrun/internal/config"
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	logLevel   string
	store      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "etlrun",
		Short: "Run the ETL report workflow and inspect its exchange entries",
		Long: `etlrun executes the extract >> transform >> load >> send_email workflow.
Tasks hand data to each other through a run-scoped key/value exchange that
can live in memory, in SQLite or in Redis.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default .etlrun/config.{yaml,yml,json})")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.store, "store", "", "exchange backend: memory, sqlite or redis")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newRunCmd(opts), newInspectCmd(opts), newServeCmd(opts))
	return root
}

// load resolves configuration: defaults, global file, project file (or
// --config), environment, then flags.
func (o *rootOptions) load() (*config.Config, error) {
	var globalPath string
	if home, err := os.UserHomeDir(); err == nil {
		globalPath = config.FindFile(filepath.Join(home, ".etlrun"))
	}

	projectPath := o.configPath
	if projectPath == "" {
		projectPath = config.FindFile(".etlrun")
	} else if _, err := os.Stat(projectPath); err != nil {
		return nil, fmt.Errorf("config file: %w", err)
	}

	cfg, err := config.Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.store != "" {
		cfg.Store.Backend = o.store
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
