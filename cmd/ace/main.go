// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ace CLI. Each pipeline stage is a
// subcommand: scrape downloads articles, ingest parses them into the
// database and export writes the extracted coordinates back out.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/ace/internal/database"
	"github.com/pdiddy/ace/internal/httputil"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/internal/pubmed"
	"github.com/pdiddy/ace/internal/secrets"
	"github.com/pdiddy/ace/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets map[string]string

	// cfg is the merged configuration: defaults, config file, environment
	// and flags, in increasing order of precedence.
	cfg types.Config
)

var rootCmd = &cobra.Command{
	Use:   "ace",
	Short: "Automated extraction of activation coordinates from neuroimaging articles",
	Long: `ace scrapes full-text neuroimaging articles from publisher websites,
finds the tables of activation coordinates in them and stores articles,
tables and activations in a SQLite database for export and meta-analysis.

A typical run is scrape, then ingest, then export.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}

		cfg, err = loadConfig()
		if err != nil {
			return err
		}
		cfg.PubMed.APIKey = secrets.PubMedAPIKey(cfg.PubMed.APIKey, loadedSecrets)

		level := logging.ParseLevel(cfg.LogLevel)
		if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
			level = log.DebugLevel
		}
		logger := logging.New(os.Stderr, level)
		cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	defaults := types.DefaultConfig()
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ./ace.yaml or ~/.config/ace/config.yaml)")
	flags.String("db", defaults.Database.Path, "SQLite database file")
	flags.String("adapter", string(defaults.Database.Adapter), "database driver: sqlite3 (cgo) or sqlite (pure Go)")
	flags.BoolP("verbose", "v", false, "log at debug level")

	viper.BindPFlag("database.path", flags.Lookup("db"))
	viper.BindPFlag("database.adapter", flags.Lookup("adapter"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ace")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ace"))
		}
	}

	viper.SetEnvPrefix("ACE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("log_level", "ACE_LOGLEVEL", "ACE_LOG_LEVEL")

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig overlays whatever viper knows onto DefaultConfig.
func loadConfig() (types.Config, error) {
	c := types.DefaultConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("reading configuration: %w", err)
	}
	return c, nil
}

// --- shared helpers ---

func openStore() (*database.Store, error) {
	return database.NewStore(cfg.Database)
}

func newPubMed() *pubmed.Client {
	return pubmed.NewClient(cfg.PubMed, cfg.HTTP)
}

func newFetcher() *httputil.Fetcher {
	return httputil.NewFetcher(cfg.HTTP, cfg.PubMed.MaxRetries)
}

// outputFile opens path for writing, or returns stdout for "" and "-".
func outputFile(path string) (*os.File, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
