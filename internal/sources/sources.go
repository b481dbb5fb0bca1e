// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sources recognises which publisher an article page came from and
// extracts the article, its results tables and its NeuroVault links using
// that publisher's page layout. Publisher definitions (identifying
// patterns, extra entities, download delay) are embedded YAML files.
package sources

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ace/internal/dom"
	"github.com/pdiddy/ace/internal/extract"
	"github.com/pdiddy/ace/internal/httputil"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

//go:embed definitions/*.yaml
var definitionFS embed.FS

var (
	// ErrUnknownSource is returned for a definition with no matching parser.
	ErrUnknownSource = errors.New("unknown source")

	// ErrNoTableBody is returned when a table element holds no rows.
	ErrNoTableBody = errors.New("table has no rows")
)

// ArticleStore is the part of the database a source consults before
// parsing.
type ArticleStore interface {
	ArticleExists(ctx context.Context, pmid int64) (bool, error)
}

// MetadataSource resolves PMIDs and bibliographic records.
type MetadataSource interface {
	PMIDFromDOI(ctx context.Context, doi string) (string, error)
	Metadata(ctx context.Context, pmid, store string) (*types.PubMedMetadata, error)
}

// Downloader fetches remote pages such as separately served tables.
type Downloader interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures every source built by a Manager.
type Options struct {
	Parsing types.ParsingConfig

	// TableDir caches downloaded tables. Empty disables the cache.
	TableDir string
}

// Definition is the YAML description of a publisher.
type Definition struct {
	Name        string            `yaml:"name"`
	Identifiers []string          `yaml:"identifiers"`
	Entities    map[string]string `yaml:"entities"`

	// Delay is the pause in seconds before each table download.
	Delay float64 `yaml:"delay"`
}

// baseEntities are decoded for every source before parsing.
var baseEntities = map[string]string{
	"&nbsp;":   " ",
	"&#160;":   " ",
	"&minus;":  "-",
	"&#8722;":  "-",
	"&#x2212;": "-",
	"&ndash;":  "-",
	"&#8211;":  "-",
	"&mdash;":  "-",
	"&#8212;":  "-",
	"\u00a0":   " ",
	"\u2212":   "-",
	"\u2012":   "-",
	"\u2013":   "-",
	"\u2014":   "-",
	"\u2015":   "-",
	"\u2018":   "'",
	"\u2019":   "'",
}

// textNormalizer cleans characters the tokenizer decodes from entity forms
// not listed above.
var textNormalizer = strings.NewReplacer(
	"\u00a0", " ",
	"\u2009", " ",
	"\u2212", "-",
	"\u2012", "-",
	"\u2013", "-",
	"\u2014", "-",
	"\u2015", "-",
	"\u2018", "'",
	"\u2019", "'",
)

// Source parses articles from one publisher.
type Source struct {
	Definition

	identifiers []*regexp.Regexp
	entities    *strings.Replacer
	layout      layout

	store    ArticleStore
	metadata MetadataSource
	fetch    Downloader
	opts     Options
}

// Manager holds every known source and picks the right one for a page.
type Manager struct {
	sources []*Source
}

// NewManager loads the embedded definitions and wires each source to the
// given collaborators.
func NewManager(store ArticleStore, md MetadataSource, dl Downloader, opts Options) (*Manager, error) {
	defs, err := LoadDefinitions()
	if err != nil {
		return nil, err
	}
	m := &Manager{}
	for _, def := range defs {
		src, err := newSource(def, store, md, dl, opts)
		if err != nil {
			return nil, err
		}
		m.sources = append(m.sources, src)
	}
	return m, nil
}

// LoadDefinitions reads the embedded publisher definitions, sorted by name.
func LoadDefinitions() ([]Definition, error) {
	paths, err := fs.Glob(definitionFS, "definitions/*.yaml")
	if err != nil {
		return nil, err
	}
	var defs []Definition
	for _, p := range paths {
		data, err := definitionFS.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", p, err)
		}
		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", p, err)
		}
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs, nil
}

func newSource(def Definition, store ArticleStore, md MetadataSource, dl Downloader, opts Options) (*Source, error) {
	l, ok := layouts[def.Name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", def.Name, ErrUnknownSource)
	}

	s := &Source{
		Definition: def,
		layout:     l,
		store:      store,
		metadata:   md,
		fetch:      dl,
		opts:       opts,
	}
	for _, pat := range def.Identifiers {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("%s identifier %q: %w", def.Name, pat, err)
		}
		s.identifiers = append(s.identifiers, re)
	}

	// Source entities first so the shared ones win on conflict.
	merged := make(map[string]string, len(baseEntities)+len(def.Entities))
	for k, v := range def.Entities {
		merged[k] = v
	}
	for k, v := range baseEntities {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	// Longest first so "&#8722;" is not shadowed by a shorter prefix.
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, merged[k])
	}
	s.entities = strings.NewReplacer(pairs...)
	return s, nil
}

// Sources returns every source in identification order.
func (m *Manager) Sources() []*Source {
	return m.sources
}

// Source returns the source with the given name, or nil.
func (m *Manager) Source(name string) *Source {
	for _, s := range m.sources {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Identify returns the first source with an identifier matching html, or
// nil when no publisher is recognised.
func (m *Manager) Identify(html string) *Source {
	for _, s := range m.sources {
		if s.Matches(html) {
			return s
		}
	}
	return nil
}

// Matches reports whether any of the source's identifiers occurs in html.
func (s *Source) Matches(html string) bool {
	for _, re := range s.identifiers {
		if re.MatchString(html) {
			return true
		}
	}
	return false
}

// DecodeEntities replaces the entities and characters that confuse table
// parsing (non-breaking spaces, typographic minus signs) with plain ASCII.
func (s *Source) DecodeEntities(html string) string {
	return s.entities.Replace(html)
}

// ParseArticle extracts an article from a publisher page. pmid may be empty,
// in which case it is read from the page or looked up by DOI. skipped is
// true when the article is already stored and overwriting is off. A stored
// article is left in place; saving the result replaces it.
func (s *Source) ParseArticle(ctx context.Context, html, pmid, metadataDir string) (article *types.Article, skipped bool, err error) {
	logger := logging.FromContext(ctx).With("source", s.Name)
	overwrite := s.opts.Parsing.OverwriteExistingRows

	if pmid != "" && !overwrite {
		id, err := parsePMID(pmid)
		if err != nil {
			return nil, false, err
		}
		exists, err := s.store.ArticleExists(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("checking article %s: %w", pmid, err)
		}
		if exists {
			return nil, true, nil
		}
	}

	root := dom.ParseString(s.DecodeEntities(html))
	doi := strings.TrimSpace(s.layout.doi(root))

	if pmid == "" {
		pmid, err = s.layout.pmid(ctx, s, root, doi)
		if err != nil {
			return nil, false, fmt.Errorf("finding PMID: %w", err)
		}
	}
	id, err := parsePMID(pmid)
	if err != nil {
		return nil, false, err
	}

	md, err := s.metadata.Metadata(ctx, pmid, metadataDir)
	if err != nil {
		return nil, false, fmt.Errorf("metadata for %s: %w", pmid, err)
	}

	exists, err := s.store.ArticleExists(ctx, id)
	if err != nil {
		return nil, false, fmt.Errorf("checking article %s: %w", pmid, err)
	}
	if exists && !overwrite {
		return nil, true, nil
	}

	text := textNormalizer.Replace(root.Text())
	article = types.NewArticle(text, id, doi, md, extract.GuessSpace)
	article.Publisher = s.Name
	article.NeurovaultLinks = NeurovaultLinks(root)

	tables, err := s.layout.tables(ctx, s, root)
	if err != nil {
		return nil, false, fmt.Errorf("extracting tables: %w", err)
	}
	article.Tables = tables
	logger.Debug("parsed article", "pmid", id, "tables", len(tables), "activations", article.NActivations())
	return article, false, nil
}

func parsePMID(pmid string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(pmid), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid PMID %q: %w", pmid, err)
	}
	return id, nil
}

var (
	neurovaultImage      = regexp.MustCompile(`identifiers\.org/neurovault\.image:(\d*)|neurovault\.org/images/(\d*)`)
	neurovaultCollection = regexp.MustCompile(`identifiers\.org/neurovault\.collection:(\w*)|neurovault\.org/collections/(\w*)`)
)

// NeurovaultLinks returns every link to a NeuroVault image or collection.
func NeurovaultLinks(root *dom.Node) []types.NeurovaultLink {
	var links []types.NeurovaultLink
	for _, a := range root.FindAll(dom.Tag("a")) {
		href, ok := a.Attr("href")
		if !ok {
			continue
		}
		var kind string
		var m []string
		if m = neurovaultImage.FindStringSubmatch(href); m != nil {
			kind = "image"
		} else if m = neurovaultCollection.FindStringSubmatch(href); m != nil {
			kind = "collection"
		} else {
			continue
		}
		val := m[1]
		if val == "" {
			val = m[2]
		}
		links = append(links, types.NeurovaultLink{Type: kind, NeurovaultID: val, URL: href})
	}
	return links
}

// downloadTable fetches a separately served table page, reading and
// filling the table cache when one is configured.
func (s *Source) downloadTable(ctx context.Context, url string) (*dom.Node, error) {
	var cached string
	if s.opts.TableDir != "" {
		cached = filepath.Join(s.opts.TableDir, strings.ReplaceAll(url, "/", "_"))
		if data, err := os.ReadFile(cached); err == nil {
			return dom.ParseString(s.DecodeEntities(string(data))), nil
		}
	}

	if err := httputil.Wait(ctx, time.Duration(s.Delay*float64(time.Second))); err != nil {
		return nil, err
	}
	data, err := s.fetch.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	if cached != "" {
		if err := os.MkdirAll(s.opts.TableDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating table directory: %w", err)
		}
		if err := os.WriteFile(cached, data, 0o644); err != nil {
			return nil, fmt.Errorf("caching table: %w", err)
		}
	}
	return dom.ParseString(s.DecodeEntities(string(data))), nil
}
