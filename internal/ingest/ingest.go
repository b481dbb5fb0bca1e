// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest adds scraped article files to the database: each file's
// publisher is identified, the article and its tables are parsed, and the
// result is saved. Files are processed by a bounded pool of workers.
package ingest

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/internal/sources"
	"github.com/pdiddy/ace/pkg/types"
)

// Store is the part of the database ingestion writes to.
type Store interface {
	sources.ArticleStore
	AddArticle(ctx context.Context, a *types.Article) error
}

// Options controls an ingestion run.
type Options struct {
	types.IngestConfig

	// SaveArticlesWithoutActivations saves articles in which no table was
	// found. Otherwise they are counted as skipped.
	SaveArticlesWithoutActivations bool
}

// Summary holds counts from an ingestion run.
type Summary struct {
	Added        int
	Skipped      int
	Unidentified int
	Failed       int
}

// Total returns the number of files processed.
func (s Summary) Total() int {
	return s.Added + s.Skipped + s.Unidentified + s.Failed
}

// HasFailures reports whether any file failed to parse or save.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Files expands glob patterns into a sorted list of unique files.
// Patterns without glob characters are taken literally.
func Files(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var files []string
	for _, p := range patterns {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("expanding %q: %w", p, err)
		}
		if len(matches) == 0 && !strings.ContainsAny(p, "*?[") {
			matches = []string{p}
		}
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				files = append(files, m)
			}
		}
	}
	sort.Strings(files)
	return files, nil
}

// Sample returns limit files chosen at random, or all of them when limit
// is zero or not smaller than the number of files.
func Sample(files []string, limit int) []string {
	if limit <= 0 || limit >= len(files) {
		return files
	}
	out := append([]string(nil), files...)
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out[:limit]
}

// AddArticles parses every file matched by patterns and saves the articles
// to store. It prints one line per file to w and a summary at the end, and
// continues past individual failures. The error is non-nil only when the
// patterns are invalid or ctx is cancelled.
func AddArticles(ctx context.Context, store Store, mgr *sources.Manager, patterns []string, opts Options, w io.Writer) (Summary, error) {
	files, err := Files(patterns)
	if err != nil {
		return Summary{}, err
	}
	files = Sample(files, opts.Limit)

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}

	var (
		mu      sync.Mutex
		summary Summary
	)
	report := func(count *int, format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		*count++
		fmt.Fprintf(w, format+"\n", args...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, f := range files {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcome, detail, err := addFile(gctx, store, mgr, f, opts)
			switch {
			case err != nil:
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				report(&summary.Failed, "failed       %s: %v", f, err)
			case outcome == outcomeUnidentified:
				report(&summary.Unidentified, "unidentified %s", f)
			case outcome == outcomeSkipped:
				report(&summary.Skipped, "skipped      %s (%s)", f, detail)
			default:
				report(&summary.Added, "added        %s (%s)", f, detail)
			}
			return nil
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	fmt.Fprintf(w, "\nadded: %d, skipped: %d, unidentified: %d, failed: %d (total: %d)\n",
		summary.Added, summary.Skipped, summary.Unidentified, summary.Failed, summary.Total())
	return summary, err
}

type outcome int

const (
	outcomeAdded outcome = iota
	outcomeSkipped
	outcomeUnidentified
)

func addFile(ctx context.Context, store Store, mgr *sources.Manager, path string, opts Options) (outcome, string, error) {
	logger := logging.FromContext(ctx).With("file", path)

	data, err := os.ReadFile(path)
	if err != nil {
		return 0, "", fmt.Errorf("reading file: %w", err)
	}
	html := string(data)

	src := mgr.Identify(html)
	if src == nil {
		logger.Warn("could not identify source")
		return outcomeUnidentified, "", nil
	}

	var pmid string
	if opts.PMIDFilenames {
		base := filepath.Base(path)
		pmid = strings.TrimSuffix(base, filepath.Ext(base))
	}

	article, skipped, err := src.ParseArticle(ctx, html, pmid, opts.MetadataDir)
	if err != nil {
		return 0, "", fmt.Errorf("%s: %w", src.Name, err)
	}
	if skipped {
		return outcomeSkipped, "already in database", nil
	}
	if len(article.Tables) == 0 && !opts.SaveArticlesWithoutActivations {
		return outcomeSkipped, "no tables", nil
	}

	if err := store.AddArticle(ctx, article); err != nil {
		return 0, "", fmt.Errorf("saving article %d: %w", article.ID, err)
	}
	logger.Info("added article", "pmid", article.ID, "source", src.Name, "tables", len(article.Tables))
	return outcomeAdded, fmt.Sprintf("%s, pmid %d, %d tables, %d activations",
		src.Name, article.ID, len(article.Tables), article.NActivations()), nil
}
