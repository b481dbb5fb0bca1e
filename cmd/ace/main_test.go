// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ace/internal/database"
	"github.com/pdiddy/ace/internal/scrape"
)

func scrapeFlags(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	addScrapeFlags(cmd)
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestJournalOptsFromFlags(t *testing.T) {
	opts, err := journalOptsFromFlags(scrapeFlags(t, "--mode", "direct", "--delay", "1.5", "--limit", "10",
		"--min-pmid", "100", "--include-pmc", "--no-metadata"))
	require.NoError(t, err)

	want := scrape.DefaultJournalOptions()
	want.Mode = scrape.ModeDirect
	want.Delay = 1500 * time.Millisecond
	want.Limit = 10
	want.MinPMID = 100
	want.SkipPubMedCentral = false
	want.SaveMetadata = false
	assert.Equal(t, want, opts)
}

func TestJournalOptsFromFlagsBadMode(t *testing.T) {
	_, err := journalOptsFromFlags(scrapeFlags(t, "--mode", "ftp"))
	assert.ErrorContains(t, err, `unknown mode "ftp"`)
}

func TestApplyModeFlag(t *testing.T) {
	jobsFile := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(jobsFile, []byte(
		"journals:\n  NeuroImage:\n    mode: browser\n  Cortex:\n    mode: direct\n"), 0o644))

	tests := []struct {
		name    string
		args    []string
		want    []scrape.Mode
		wantErr string
	}{
		{"flag absent keeps job modes", nil, []scrape.Mode{scrape.ModeBrowser, scrape.ModeDirect}, ""},
		{"flag overrides every job", []string{"--mode", "direct"}, []scrape.Mode{scrape.ModeDirect, scrape.ModeDirect}, ""},
		{"flag default value given explicitly", []string{"--mode", "browser"}, []scrape.Mode{scrape.ModeBrowser, scrape.ModeBrowser}, ""},
		{"bad flag", []string{"--mode", "ftp"}, nil, `unknown mode "ftp"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := scrape.LoadJobs(jobsFile)
			require.NoError(t, err)

			err = applyModeFlag(scrapeFlags(t, tt.args...), jobs)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			var got []scrape.Mode
			for _, j := range jobs {
				got = append(got, j.Options.Mode)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderStats(t *testing.T) {
	out := renderStats("ace.db", database.Stats{Articles: 3, Tables: 5, Activations: 120, NeurovaultLinks: 1})
	assert.Contains(t, out, "ace.db")
	assert.Contains(t, out, "120  activations")
	assert.Contains(t, out, "1  NeuroVault links")
}

func TestOutputFile(t *testing.T) {
	w, closeOut, err := outputFile("-")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, w)
	require.NoError(t, closeOut())

	path := filepath.Join(t.TempDir(), "sub", "out.tsv")
	w, closeOut, err = outputFile(path)
	require.NoError(t, err)
	_, err = w.WriteString("x\n")
	require.NoError(t, err)
	require.NoError(t, closeOut())
	assert.FileExists(t, path)
}
