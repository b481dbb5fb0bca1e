// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scrape

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v3"
)

// Job is one journal to retrieve.
type Job struct {
	Journal string
	Options JournalOptions
}

// jobFile is the on-disk layout of a jobs file:
//
//	defaults:
//	  mode: direct
//	  delay: 2.5
//	journals:
//	  PLoS ONE:
//	    search: 2010[DP]
//	    limit: 100
//	  Frontiers in Human Neuroscience: {}
//
// Journal entries override the defaults, which override
// DefaultJournalOptions.
type jobFile struct {
	Defaults jobOptions `yaml:"defaults"`
	Journals yaml.Node  `yaml:"journals"`
}

type jobOptions struct {
	Mode              *Mode    `yaml:"mode"`
	Delay             *float64 `yaml:"delay"`
	Overwrite         *bool    `yaml:"overwrite"`
	Search            *string  `yaml:"search"`
	RetMax            *int     `yaml:"retmax"`
	Limit             *int     `yaml:"limit"`
	MinPMID           *int64   `yaml:"min_pmid"`
	MaxPMID           *int64   `yaml:"max_pmid"`
	Shuffle           *bool    `yaml:"shuffle"`
	SkipPubMedCentral *bool    `yaml:"skip_pubmed_central"`
	SaveMetadata      *bool    `yaml:"save_metadata"`
}

func (o jobOptions) apply(opts *JournalOptions) {
	if o.Mode != nil {
		opts.Mode = *o.Mode
	}
	if o.Delay != nil {
		opts.Delay = time.Duration(*o.Delay * float64(time.Second))
	}
	if o.Overwrite != nil {
		opts.Overwrite = *o.Overwrite
	}
	if o.Search != nil {
		opts.Search = *o.Search
	}
	if o.RetMax != nil {
		opts.RetMax = *o.RetMax
	}
	if o.Limit != nil {
		opts.Limit = *o.Limit
	}
	if o.MinPMID != nil {
		opts.MinPMID = *o.MinPMID
	}
	if o.MaxPMID != nil {
		opts.MaxPMID = *o.MaxPMID
	}
	if o.Shuffle != nil {
		opts.Shuffle = *o.Shuffle
	}
	if o.SkipPubMedCentral != nil {
		opts.SkipPubMedCentral = *o.SkipPubMedCentral
	}
	if o.SaveMetadata != nil {
		opts.SaveMetadata = *o.SaveMetadata
	}
}

// LoadJobs reads a jobs file.
func LoadJobs(path string) ([]Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading jobs file: %w", err)
	}
	jobs, err := ParseJobs(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return jobs, nil
}

// ParseJobs decodes a jobs document. Jobs keep the order of the file.
func ParseJobs(data []byte) ([]Job, error) {
	var f jobFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing jobs: %w", err)
	}
	if f.Journals.Kind == 0 {
		return nil, fmt.Errorf("no journals listed")
	}
	if f.Journals.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: journals must be a mapping", f.Journals.Line)
	}

	defaults := DefaultJournalOptions()
	f.Defaults.apply(&defaults)

	var jobs []Job
	for i := 0; i+1 < len(f.Journals.Content); i += 2 {
		key, value := f.Journals.Content[i], f.Journals.Content[i+1]
		var o jobOptions
		if err := value.Decode(&o); err != nil {
			return nil, fmt.Errorf("journal %q: %w", key.Value, err)
		}
		opts := defaults
		o.apply(&opts)
		if err := opts.validate(); err != nil {
			return nil, fmt.Errorf("journal %q: %w", key.Value, err)
		}
		jobs = append(jobs, Job{Journal: key.Value, Options: opts})
	}
	return jobs, nil
}

func (o JournalOptions) validate() error {
	switch o.Mode {
	case ModeDirect, ModeBrowser:
	default:
		return fmt.Errorf("unknown mode %q", o.Mode)
	}
	if o.MinPMID > 0 && o.MaxPMID > 0 && o.MinPMID > o.MaxPMID {
		return fmt.Errorf("min_pmid %d is above max_pmid %d", o.MinPMID, o.MaxPMID)
	}
	return nil
}
