// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pubmed is a small client for the NCBI E-utilities API: searching
// PubMed, fetching MEDLINE records and resolving publisher links.
package pubmed

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/ace/internal/httputil"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

// BaseURL is the E-utilities endpoint. Declared as a var so tests can
// substitute an httptest server.
var BaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// RetryBaseDelay is the first backoff interval for transient failures.
var RetryBaseDelay = time.Second

// ErrNotFound is returned when a lookup matches no PubMed record.
var ErrNotFound = errors.New("no PubMed record found")

// Client issues E-utilities requests.
type Client struct {
	http      *http.Client
	apiKey    string
	userAgent string
	policy    httputil.Policy
}

// NewClient builds a client. An empty cfg.APIKey sends requests without a
// key at the lower public rate limit.
func NewClient(cfg types.PubMedConfig, httpCfg types.HTTPConfig) *Client {
	return &Client{
		http:      &http.Client{Timeout: httpCfg.Timeout},
		apiKey:    cfg.APIKey,
		userAgent: httputil.PickUserAgent(httpCfg.UserAgents),
		policy: httputil.Policy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  RetryBaseDelay,
			RetryOn:    httputil.TransientStatuses,
		},
	}
}

// URL returns the request URL for util with params, including the API key.
func (c *Client) URL(util string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}
	return fmt.Sprintf("%s/%s.fcgi?%s", BaseURL, util, params.Encode())
}

func (c *Client) get(ctx context.Context, util string, params url.Values) ([]byte, error) {
	u := c.URL(util, params)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", util, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.policy.Do(ctx, c.http, req)
	if err != nil {
		return nil, fmt.Errorf("PubMed %s request: %w", util, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("PubMed API returned status code %d for %s", resp.StatusCode, util)
	}
	return io.ReadAll(resp.Body)
}

type esearchResult struct {
	Count int      `xml:"Count"`
	IDs   []string `xml:"IdList>Id"`
}

// ESearch runs a PubMed query and returns the matching PMIDs.
func (c *Client) ESearch(ctx context.Context, query string, retmax int) ([]string, error) {
	params := url.Values{
		"db":     {"pubmed"},
		"term":   {query},
		"retmax": {fmt.Sprint(retmax)},
	}
	data, err := c.get(ctx, "esearch", params)
	if err != nil {
		return nil, err
	}
	var res esearchResult
	if err := xml.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("parsing esearch response: %w", err)
	}
	return res.IDs, nil
}

// EFetch returns the raw record for id. MEDLINE XML is retmode "xml",
// rettype "medline".
func (c *Client) EFetch(ctx context.Context, id, retmode, rettype string) ([]byte, error) {
	params := url.Values{
		"db":      {"pubmed"},
		"id":      {id},
		"retmode": {retmode},
		"rettype": {rettype},
	}
	return c.get(ctx, "efetch", params)
}

// ELinkURL returns the prlinks URL that redirects to the publisher's copy
// of pmid.
func (c *Client) ELinkURL(pmid string) string {
	return c.URL("elink", url.Values{
		"dbfrom":  {"pubmed"},
		"id":      {pmid},
		"cmd":     {"prlinks"},
		"retmode": {"ref"},
	})
}

// ELink asks for the links of pmid in the given retmode ("xml", "json", "ref").
func (c *Client) ELink(ctx context.Context, pmid, retmode string) ([]byte, error) {
	return c.get(ctx, "elink", url.Values{
		"dbfrom":  {"pubmed"},
		"id":      {pmid},
		"cmd":     {"prlinks"},
		"retmode": {retmode},
	})
}

// PMIDFromDOI looks up the PMID of the article with the given DOI. Some
// publisher pages never state their PMID, so this is the only way to key them.
func (c *Client) PMIDFromDOI(ctx context.Context, doi string) (string, error) {
	ids, err := c.ESearch(ctx, doi+"[aid]", 20)
	if err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", fmt.Errorf("DOI %s: %w", doi, ErrNotFound)
	}
	return ids[0], nil
}

// HasPMCEntry reports whether pmid has a PubMed Central copy.
func (c *Client) HasPMCEntry(ctx context.Context, pmid string) (bool, error) {
	data, err := c.EFetch(ctx, pmid, "xml", "medline")
	if err != nil {
		return false, err
	}
	return strings.Contains(string(data), `<ArticleId IdType="pmc">`), nil
}

// Metadata returns the parsed MEDLINE record for pmid. When store is set the
// record is read from store/<pmid> if present; otherwise it is fetched and,
// if store is set, saved there for next time.
func (c *Client) Metadata(ctx context.Context, pmid, store string) (*types.PubMedMetadata, error) {
	data, err := c.RawMetadata(ctx, pmid, store)
	if err != nil {
		return nil, err
	}
	return ParseMetadata(data)
}

// RawMetadata is Metadata without parsing.
func (c *Client) RawMetadata(ctx context.Context, pmid, store string) ([]byte, error) {
	logger := logging.FromContext(ctx)

	var path string
	if store != "" {
		path = filepath.Join(store, pmid)
		if data, err := os.ReadFile(path); err == nil {
			logger.Debug("retrieving metadata from file", "path", path)
			return data, nil
		}
	}

	logger.Info("retrieving metadata from PubMed", "pmid", pmid)
	data, err := c.EFetch(ctx, pmid, "xml", "medline")
	if err != nil {
		return nil, fmt.Errorf("fetching metadata for %s: %w", pmid, err)
	}

	if path != "" {
		if err := os.MkdirAll(store, 0o755); err != nil {
			return nil, fmt.Errorf("creating metadata store: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("saving metadata for %s: %w", pmid, err)
		}
	}
	return data, nil
}
