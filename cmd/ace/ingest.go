// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/ingest"
	"github.com/pdiddy/ace/internal/sources"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file or glob>...",
	Short: "Parse article files and add them to the database",
	Long: `Ingest identifies the publisher of each article file, extracts the
article text, its activation tables and NeuroVault links, fetches PubMed
metadata and saves the result. Files are parsed concurrently.

Quote glob patterns so the shell leaves them alone:

  ace ingest 'articles/html/NeuroImage/*.html' --pmid-filenames`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	opts := ingest.Options{
		IngestConfig:                   cfg.Ingest,
		SaveArticlesWithoutActivations: cfg.Parsing.SaveArticlesWithoutActivations,
	}
	if f.Changed("pmid-filenames") {
		opts.PMIDFilenames, _ = f.GetBool("pmid-filenames")
	}
	if f.Changed("limit") {
		opts.Limit, _ = f.GetInt("limit")
	}
	if f.Changed("workers") {
		opts.Workers, _ = f.GetInt("workers")
	}
	if f.Changed("table-dir") {
		opts.TableDir, _ = f.GetString("table-dir")
	}
	if f.Changed("metadata-dir") {
		opts.MetadataDir, _ = f.GetString("metadata-dir")
	}
	parsing := cfg.Parsing
	if f.Changed("overwrite") {
		parsing.OverwriteExistingRows, _ = f.GetBool("overwrite")
	}

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	mgr, err := sources.NewManager(store, newPubMed(), newFetcher(), sources.Options{
		Parsing:  parsing,
		TableDir: opts.TableDir,
	})
	if err != nil {
		return err
	}

	summary, err := ingest.AddArticles(cmd.Context(), store, mgr, args, opts, os.Stdout)
	if err != nil {
		return err
	}
	if summary.HasFailures() {
		return fmt.Errorf("%d file(s) failed", summary.Failed)
	}
	return nil
}

func init() {
	f := ingestCmd.Flags()
	f.Bool("pmid-filenames", false, "use each file's basename as its PMID")
	f.Int("limit", 0, "process at most this many files, chosen at random (0 = all)")
	f.Int("workers", 0, "number of files parsed concurrently (default from config)")
	f.String("table-dir", "", "cache directory for separately downloaded tables")
	f.String("metadata-dir", "", "cache directory for PubMed metadata")
	f.Bool("overwrite", false, "re-extract articles already in the database")

	rootCmd.AddCommand(ingestCmd)
}
