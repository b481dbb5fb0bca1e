// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scrape downloads full-text articles from publisher websites.
// PubMed is searched for a journal's articles, each PMID is resolved to the
// publisher's page through the E-utilities prlinks redirect, and the page
// is saved under <store>/html/<journal>/<pmid>.html for ingestion.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pdiddy/ace/internal/httputil"
	"github.com/pdiddy/ace/internal/logging"
)

// Mode selects how article pages are retrieved.
type Mode string

const (
	// ModeDirect fetches pages over plain HTTP.
	ModeDirect Mode = "direct"

	// ModeBrowser drives a headless Chrome so scripted content loads.
	ModeBrowser Mode = "browser"
)

const (
	htmlDir     = "html"
	metadataDir = "metadata"
)

// ErrNoBrowser is returned for browser mode when no browser was configured.
var ErrNoBrowser = errors.New("browser mode requires a browser")

// PubMed is the part of the E-utilities client the scraper uses.
type PubMed interface {
	ESearch(ctx context.Context, query string, retmax int) ([]string, error)
	ELinkURL(pmid string) string
	HasPMCEntry(ctx context.Context, pmid string) (bool, error)
	RawMetadata(ctx context.Context, pmid, store string) ([]byte, error)
}

// PageFetcher fetches a page over HTTP and reports the URL it ended up at.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (body []byte, finalURL string, err error)
}

// Scraper retrieves articles into a storage directory.
type Scraper struct {
	store   string
	pubmed  PubMed
	pages   PageFetcher
	browser Browser

	// sleep waits between articles; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a Scraper saving into store. browser may be nil when only
// direct mode is used.
func New(store string, pm PubMed, pages PageFetcher, browser Browser) *Scraper {
	return &Scraper{
		store:   store,
		pubmed:  pm,
		pages:   pages,
		browser: browser,
		sleep:   httputil.Wait,
	}
}

// SearchJournal returns the PMIDs of journal articles in journal, narrowed
// by an optional extra search expression.
func (s *Scraper) SearchJournal(ctx context.Context, journal, search string, retmax int) ([]string, error) {
	query := fmt.Sprintf("(%s[Journal] journal article[pt]", journal)
	if search != "" {
		query += " " + search
	}
	query += ")"
	logging.FromContext(ctx).Info("searching PubMed", "query", query)
	return s.pubmed.ESearch(ctx, query, retmax)
}

// HTML retrieves the full text at url. Both modes follow redirects and then
// switch to a better version of the document when SubstituteURL knows one.
func (s *Scraper) HTML(ctx context.Context, url, journal string, mode Mode) (string, error) {
	switch mode {
	case ModeDirect:
		body, final, err := s.pages.Fetch(ctx, url)
		if err != nil {
			return "", err
		}
		if sub := SubstituteURL(final, string(body), journal); sub != final {
			logging.FromContext(ctx).Debug("substituting URL", "from", final, "to", sub)
			if body, _, err = s.pages.Fetch(ctx, sub); err != nil {
				return "", err
			}
		}
		return string(body), nil

	case ModeBrowser:
		if s.browser == nil {
			return "", ErrNoBrowser
		}
		return s.browserHTML(ctx, url, journal)

	default:
		return "", fmt.Errorf("unknown retrieval mode %q", mode)
	}
}

var (
	wileyJournals = map[string]bool{
		"human brain mapping":              true,
		"european journal of neuroscience": true,
		"brain and behavior":               true,
		"epilepsia":                        true,
	}
	jneurosciJournals = map[string]bool{
		"journal of neuroscience": true,
		"j neurosci":              true,
	}
)

func (s *Scraper) browserHTML(ctx context.Context, url, journal string) (string, error) {
	logger := logging.FromContext(ctx)
	page, err := s.browser.Open(ctx, url)
	if err != nil {
		return "", err
	}
	defer page.Close()

	current, err := page.URL()
	if err != nil {
		return "", err
	}
	html, err := page.HTML()
	if err != nil {
		return "", err
	}

	j := strings.ToLower(journal)
	if sub := SubstituteURL(current, html, journal); sub != current {
		logger.Debug("substituting URL", "from", current, "to", sub)
		if err := page.Navigate(sub); err != nil {
			return "", err
		}
		if wileyJournals[j] {
			if err := page.WaitFor("#relatedArticles", 5*time.Second); err != nil {
				logger.Warn("Wiley page took too long to load", "url", sub)
			}
		}
	}

	// J Neurosci loads table bodies only when their inline links are clicked.
	if jneurosciJournals[j] {
		if err := page.ClickAll(".table-expand-inline", randomDelay(500*time.Millisecond)); err != nil {
			logger.Warn("expanding inline tables", "err", err)
		}
	}
	return page.HTML()
}

var (
	plosIDPattern       = regexp.MustCompile(`article\?id=(.*)`)
	frontiersPathSuffix = regexp.MustCompile(`(full|abstract)/*$`)
)

// PlosAssetURL is the format of the PLoS ONE XML download, taking the DOI.
var PlosAssetURL = "http://journals.plos.org/plosone/article/asset?id=%s.XML"

// SubstituteURL returns a URL for a better version of the document at url,
// or url itself. PLoS ONE serves XML with embedded tables instead of table
// images, Wiley and MIT Press serve full text instead of the abstract,
// Frontiers serves NLM XML, and ScienceDirect and Springer have full-text
// variants of their article pages.
func SubstituteURL(url, html, journal string) string {
	j := strings.ToLower(journal)
	switch {
	case j == "plos one":
		if m := plosIDPattern.FindStringSubmatch(url); m != nil {
			return fmt.Sprintf(PlosAssetURL, m[1])
		}
		return url
	case wileyJournals[j]:
		return strings.SplitN(strings.Replace(url, "abstract", "full", -1), ";", 2)[0]
	case j == "journal of cognitive neuroscience":
		return strings.Replace(url, "doi/abs", "doi/full", -1)
	case strings.HasPrefix(j, "frontiers in"):
		return frontiersPathSuffix.ReplaceAllString(url, "xml/nlm")
	case strings.Contains(url, "sciencedirect"):
		return url + "?np=y"
	case strings.Contains(url, "springer.com"):
		return url + "/fulltext.html"
	default:
		return url
	}
}

// ArticleOptions controls how one article is saved.
type ArticleOptions struct {
	Mode Mode

	// Delay is the mean pause after each download. The actual pause is
	// drawn uniformly from [0, 2*Delay).
	Delay time.Duration

	// Overwrite downloads articles that are already saved.
	Overwrite bool
}

// ArticlePath returns where the page for pmid in journal is saved.
func (s *Scraper) ArticlePath(journal, pmid string) string {
	return filepath.Join(s.store, htmlDir, journal, pmid+".html")
}

// ProcessArticle downloads the article for pmid and saves it. It returns
// the saved path, or "" when the article already existed and overwriting is
// off.
func (s *Scraper) ProcessArticle(ctx context.Context, pmid, journal string, opts ArticleOptions) (string, error) {
	logger := logging.FromContext(ctx).With("pmid", pmid)
	path := s.ArticlePath(journal, pmid)
	if !opts.Overwrite {
		if _, err := os.Stat(path); err == nil {
			logger.Info("already exists, skipping")
			return "", nil
		}
	}

	html, err := s.HTML(ctx, s.pubmed.ELinkURL(pmid), journal, opts.Mode)
	if err != nil {
		return "", fmt.Errorf("retrieving %s: %w", pmid, err)
	}
	if html == "" {
		return "", fmt.Errorf("retrieving %s: empty document", pmid)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("creating journal directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("saving %s: %w", pmid, err)
	}

	if err := s.sleep(ctx, randomDelay(opts.Delay)); err != nil {
		return path, err
	}
	return path, nil
}

func randomDelay(mean time.Duration) time.Duration {
	if mean <= 0 {
		return 0
	}
	return time.Duration(rand.Float64() * float64(2*mean))
}

// JournalOptions controls the retrieval of one journal's articles.
type JournalOptions struct {
	ArticleOptions

	// Search narrows the PubMed query, e.g. by publication date.
	Search string

	// RetMax caps the number of PubMed search results.
	RetMax int

	// Limit caps the number of new articles saved. Zero means no limit.
	Limit int

	// MinPMID and MaxPMID bound the PMIDs processed when non-zero.
	MinPMID int64
	MaxPMID int64

	// Shuffle processes articles in random order instead of by PMID.
	Shuffle bool

	// SkipPubMedCentral skips articles with a PubMed Central copy.
	SkipPubMedCentral bool

	// SaveMetadata stores each article's PubMed record under <store>/metadata.
	SaveMetadata bool
}

// DefaultJournalOptions are the options a journal job starts from.
func DefaultJournalOptions() JournalOptions {
	return JournalOptions{
		ArticleOptions:    ArticleOptions{Mode: ModeBrowser},
		RetMax:            100000,
		SkipPubMedCentral: true,
		SaveMetadata:      true,
	}
}

// Summary holds counts from retrieving one journal.
type Summary struct {
	Found      int
	Retrieved  int
	Existing   int
	PMC        int
	OutOfRange int
	Failed     int
}

// HasFailures reports whether any article failed to download.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// RetrieveJournalArticles saves every article of journal that is not yet
// in the store, printing one line per article to w. Only newly saved
// articles count against opts.Limit. Individual failures are reported and
// skipped; the error is non-nil when the search fails or ctx is cancelled.
func (s *Scraper) RetrieveJournalArticles(ctx context.Context, journal string, opts JournalOptions, w io.Writer) (Summary, error) {
	logger := logging.FromContext(ctx).With("journal", journal)
	var summary Summary

	retmax := opts.RetMax
	if retmax <= 0 {
		retmax = DefaultJournalOptions().RetMax
	}
	ids, err := s.SearchJournal(ctx, journal, opts.Search, retmax)
	if err != nil {
		return summary, fmt.Errorf("searching %s: %w", journal, err)
	}
	summary.Found = len(ids)
	logger.Info("found records", "n", len(ids))

	if opts.Shuffle {
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	} else {
		sortNumerically(ids)
	}

	if err := os.MkdirAll(filepath.Join(s.store, htmlDir, journal), 0o755); err != nil {
		return summary, fmt.Errorf("creating journal directory: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if opts.Limit > 0 && summary.Retrieved >= opts.Limit {
			break
		}
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil || (opts.MinPMID > 0 && n < opts.MinPMID) || (opts.MaxPMID > 0 && n > opts.MaxPMID) {
			summary.OutOfRange++
			continue
		}

		if opts.SkipPubMedCentral {
			pmc, err := s.pubmed.HasPMCEntry(ctx, id)
			if err != nil {
				fmt.Fprintf(w, "failed    %s: checking PubMed Central: %v\n", id, err)
				summary.Failed++
				continue
			}
			if pmc {
				fmt.Fprintf(w, "pmc       %s\n", id)
				summary.PMC++
				continue
			}
		}

		path, err := s.ProcessArticle(ctx, id, journal, opts.ArticleOptions)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			fmt.Fprintf(w, "failed    %s: %v\n", id, err)
			summary.Failed++
			continue
		}
		if path == "" {
			fmt.Fprintf(w, "existing  %s\n", id)
			summary.Existing++
			continue
		}

		if opts.SaveMetadata {
			if _, err := s.pubmed.RawMetadata(ctx, id, filepath.Join(s.store, metadataDir)); err != nil {
				logger.Warn("saving metadata", "pmid", id, "err", err)
			}
		}
		fmt.Fprintf(w, "retrieved %s -> %s\n", id, path)
		summary.Retrieved++
	}

	fmt.Fprintf(w, "\n%s: found %d, retrieved %d, existing %d, pmc %d, out of range %d, failed %d\n",
		journal, summary.Found, summary.Retrieved, summary.Existing, summary.PMC, summary.OutOfRange, summary.Failed)
	return summary, nil
}

// sortNumerically orders PMIDs by value; non-numeric IDs sort last.
func sortNumerically(ids []string) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, errA := strconv.ParseInt(ids[i], 10, 64)
		b, errB := strconv.ParseInt(ids[j], 10, 64)
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		default:
			return a < b
		}
	})
}
