// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/scrape"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [journal...]",
	Short: "Download full-text articles for journals listed in PubMed",
	Long: `Scrape searches PubMed for the articles of each journal, follows the
publisher link of every PMID and saves the page to
<store>/html/<journal>/<pmid>.html. Articles already saved are skipped.

Journals are given as arguments, sharing the options set by flags, or in
a YAML jobs file (--jobs) that sets options per journal. An explicit
--mode overrides the mode of every job.`,
	RunE: runScrape,
}

func runScrape(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	storeDir, _ := cmd.Flags().GetString("store")
	jobsFile, _ := cmd.Flags().GetString("jobs")
	headless, _ := cmd.Flags().GetBool("headless")

	var jobs []scrape.Job
	if jobsFile != "" {
		loaded, err := scrape.LoadJobs(jobsFile)
		if err != nil {
			return err
		}
		if err := applyModeFlag(cmd, loaded); err != nil {
			return err
		}
		jobs = loaded
	}
	if len(args) > 0 {
		opts, err := journalOptsFromFlags(cmd)
		if err != nil {
			return err
		}
		for _, j := range args {
			jobs = append(jobs, scrape.Job{Journal: j, Options: opts})
		}
	}
	if len(jobs) == 0 {
		return fmt.Errorf("no journals: give journal names or --jobs")
	}

	browser := scrape.NewRodBrowser(headless)
	defer browser.Close()
	s := scrape.New(storeDir, newPubMed(), newFetcher(), browser)

	failed := 0
	for _, job := range jobs {
		summary, err := s.RetrieveJournalArticles(ctx, job.Journal, job.Options, os.Stdout)
		if err != nil {
			return err
		}
		failed += summary.Failed
	}
	if failed > 0 {
		return fmt.Errorf("%d article(s) failed to download", failed)
	}
	return nil
}

func modeFlag(cmd *cobra.Command) (scrape.Mode, error) {
	mode, _ := cmd.Flags().GetString("mode")
	switch scrape.Mode(mode) {
	case scrape.ModeDirect, scrape.ModeBrowser:
		return scrape.Mode(mode), nil
	}
	return "", fmt.Errorf("unknown mode %q: use direct or browser", mode)
}

// applyModeFlag sets the mode of every job when --mode was given.
func applyModeFlag(cmd *cobra.Command, jobs []scrape.Job) error {
	if !cmd.Flags().Changed("mode") {
		return nil
	}
	mode, err := modeFlag(cmd)
	if err != nil {
		return err
	}
	for i := range jobs {
		jobs[i].Options.Mode = mode
	}
	return nil
}

func journalOptsFromFlags(cmd *cobra.Command) (scrape.JournalOptions, error) {
	opts := scrape.DefaultJournalOptions()
	f := cmd.Flags()

	mode, err := modeFlag(cmd)
	if err != nil {
		return opts, err
	}
	opts.Mode = mode
	delay, _ := f.GetFloat64("delay")
	opts.Delay = time.Duration(delay * float64(time.Second))
	opts.Overwrite, _ = f.GetBool("overwrite")
	opts.Search, _ = f.GetString("search")
	opts.RetMax, _ = f.GetInt("retmax")
	opts.Limit, _ = f.GetInt("limit")
	opts.MinPMID, _ = f.GetInt64("min-pmid")
	opts.MaxPMID, _ = f.GetInt64("max-pmid")
	opts.Shuffle, _ = f.GetBool("shuffle")
	includePMC, _ := f.GetBool("include-pmc")
	opts.SkipPubMedCentral = !includePMC
	noMetadata, _ := f.GetBool("no-metadata")
	opts.SaveMetadata = !noMetadata
	return opts, nil
}

func addScrapeFlags(cmd *cobra.Command) {
	defaults := scrape.DefaultJournalOptions()
	f := cmd.Flags()
	f.String("store", "articles", "directory articles and metadata are saved under")
	f.String("jobs", "", "YAML file mapping journal names to options")
	f.String("mode", string(defaults.Mode), "retrieval mode: direct or browser")
	f.Bool("headless", true, "run the browser without a window")
	f.Float64("delay", defaults.Delay.Seconds(), "mean pause in seconds after each article")
	f.Bool("overwrite", false, "download articles that are already saved")
	f.String("search", "", "extra PubMed search terms, e.g. 2010[DP]")
	f.Int("retmax", defaults.RetMax, "maximum number of PubMed search results")
	f.Int("limit", 0, "maximum number of new articles per journal (0 = no limit)")
	f.Int64("min-pmid", 0, "skip PMIDs below this value")
	f.Int64("max-pmid", 0, "skip PMIDs above this value")
	f.Bool("shuffle", false, "process articles in random order")
	f.Bool("include-pmc", false, "also download articles available in PubMed Central")
	f.Bool("no-metadata", false, "do not save PubMed metadata for downloaded articles")
}

func init() {
	addScrapeFlags(scrapeCmd)
	rootCmd.AddCommand(scrapeCmd)
}
