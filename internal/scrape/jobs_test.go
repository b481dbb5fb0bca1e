// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsYAML = `
defaults:
  mode: direct
  delay: 2.5
  search: 2010[DP]
journals:
  PLoS ONE:
    limit: 100
    skip_pubmed_central: false
  Frontiers in Human Neuroscience: {}
  J Neurosci:
    mode: browser
    delay: 30
    min_pmid: 20000000
    shuffle: true
`

func TestParseJobs(t *testing.T) {
	jobs, err := ParseJobs([]byte(jobsYAML))
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, "PLoS ONE", jobs[0].Journal)
	assert.Equal(t, JournalOptions{
		ArticleOptions: ArticleOptions{Mode: ModeDirect, Delay: 2500 * time.Millisecond},
		Search:         "2010[DP]",
		RetMax:         100000,
		Limit:          100,
		SaveMetadata:   true,
	}, jobs[0].Options)

	assert.Equal(t, "Frontiers in Human Neuroscience", jobs[1].Journal)
	assert.True(t, jobs[1].Options.SkipPubMedCentral)
	assert.Equal(t, ModeDirect, jobs[1].Options.Mode)

	assert.Equal(t, "J Neurosci", jobs[2].Journal)
	assert.Equal(t, ModeBrowser, jobs[2].Options.Mode)
	assert.Equal(t, 30*time.Second, jobs[2].Options.Delay)
	assert.Equal(t, int64(20000000), jobs[2].Options.MinPMID)
	assert.True(t, jobs[2].Options.Shuffle)
	assert.Equal(t, "2010[DP]", jobs[2].Options.Search)
}

func TestParseJobsErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"no journals", "defaults:\n  mode: direct\n", "no journals listed"},
		{"journals list", "journals:\n  - PLoS ONE\n", "must be a mapping"},
		{"bad mode", "journals:\n  Cortex:\n    mode: carrier-pigeon\n", `unknown mode "carrier-pigeon"`},
		{"bad window", "journals:\n  Cortex:\n    min_pmid: 10\n    max_pmid: 5\n", "min_pmid 10 is above max_pmid 5"},
		{"bad yaml", "journals: [", "parsing jobs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseJobs([]byte(tt.doc))
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestLoadJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("journals:\n  NeuroImage:\n"), 0o644))

	jobs, err := LoadJobs(path)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, DefaultJournalOptions(), jobs[0].Options)

	_, err = LoadJobs(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading jobs file")
}
