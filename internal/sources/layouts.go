// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/ace/internal/dom"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

// layout knows where one publisher puts the DOI, PMID and tables.
type layout interface {
	doi(root *dom.Node) string
	pmid(ctx context.Context, s *Source, root *dom.Node, doi string) (string, error)
	tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error)
}

// layouts maps definition names to their page layouts.
var layouts = map[string]layout{
	"HighWire":                       highWire{},
	"Sage":                           highWire{},
	"ScienceDirect":                  scienceDirect{},
	"Plos":                           jats{},
	"Frontiers":                      jats{requireTableID: true},
	"JournalOfCognitiveNeuroscience": jcogNeuro{},
	"Wiley":                          wiley{},
	"Springer":                       springer{},
}

// JCogNeuroPopupURL is the format of the Journal of Cognitive Neuroscience
// table popup, taking the table number and DOI. Declared as a var so tests
// can substitute an httptest server.
var JCogNeuroPopupURL = "http://www.mitpressjournals.org/action/showPopup?citid=citart1&id=T%d&doi=%s"

var (
	tableIDPattern    = regexp.MustCompile(`^T\d+$`)
	wileyTablePattern = regexp.MustCompile(`^(.*?)-tbl-\d+$|^t(bl)*\d+$`)
	wileyNumber       = regexp.MustCompile(`t[bl0\-]*(\d+)$`)
	springerTableID   = regexp.MustCompile(`^Tab\d+$`)
)

var errNoDOI = errors.New("page has no DOI")

func metaContent(root *dom.Node, name string) string {
	v, _ := root.Find(dom.AttrEquals("meta", "name", name)).Attr("content")
	return strings.TrimSpace(v)
}

func trimmedText(n *dom.Node) string {
	return strings.TrimSpace(textNormalizer.Replace(n.Text()))
}

func lastField(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return strings.TrimRight(f[len(f)-1], ".:")
}

// pmidByDOI resolves the PMID through PubMed for pages that do not state it.
func pmidByDOI(ctx context.Context, s *Source, doi string) (string, error) {
	if doi == "" {
		return "", errNoDOI
	}
	return s.metadata.PMIDFromDOI(ctx, doi)
}

// parseTables runs ParseTable on each container's <table> and lets fill
// decorate the tables that parsed. Positions count every container.
func parseTables(ctx context.Context, s *Source, containers []*dom.Node, fill func(i int, tc *dom.Node, t *types.Table)) ([]*types.Table, error) {
	var tables []*types.Table
	for i, tc := range containers {
		t, err := s.ParseTable(ctx, tc.Find(dom.Tag("table")))
		if err != nil {
			if errors.Is(err, ErrNoTableBody) {
				continue
			}
			return nil, err
		}
		if t == nil {
			continue
		}
		t.Position = i + 1
		fill(i, tc, t)
		tables = append(tables, t)
	}
	return tables, nil
}

// highWire pages list table labels inline and serve each table from a
// separate expansion page.
type highWire struct{}

func (highWire) doi(root *dom.Node) string {
	return metaContent(root, "citation_doi")
}

func (highWire) pmid(ctx context.Context, s *Source, root *dom.Node, doi string) (string, error) {
	if p := metaContent(root, "citation_pmid"); p != "" {
		return p, nil
	}
	return pmidByDOI(ctx, s, doi)
}

func (highWire) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	logger := logging.FromContext(ctx)
	contentURL := metaContent(root, "citation_public_url")
	if contentURL == "" {
		return nil, errors.New("page has no citation_public_url")
	}
	n := len(root.FindAll(dom.Class("span", "table-label")))

	var tables []*types.Table
	for num := 1; num <= n; num++ {
		url := fmt.Sprintf("%s/T%d.expansion.html", contentURL, num)
		page, err := s.downloadTable(ctx, url)
		if err != nil {
			logger.Warn("downloading table", "url", url, "err", err)
			continue
		}
		tc := page.Find(dom.Class("", "table-expansion"))
		if tc == nil {
			continue
		}
		t, err := s.ParseTable(ctx, tc.Find(dom.AttrEquals("table", "id", fmt.Sprintf("table-%d", num))))
		if err != nil && !errors.Is(err, ErrNoTableBody) {
			return nil, err
		}
		if t == nil {
			continue
		}
		t.Position = num
		t.Label = trimmedText(tc.Find(dom.Class("", "table-label")))
		t.Number = lastField(t.Label)
		t.Caption = trimmedText(tc.Find(dom.Class("", "table-caption")))
		t.Notes = trimmedText(tc.Find(dom.Class("", "table-footnotes")))
		tables = append(tables, t)
	}
	return tables, nil
}

type scienceDirect struct{}

func (scienceDirect) doi(root *dom.Node) string {
	links := root.Find(dom.AttrEquals("div", "id", "article-identifier-links"))
	for _, a := range links.FindAll(dom.Tag("a")) {
		if href, ok := a.Attr("href"); ok {
			return strings.TrimPrefix(strings.TrimPrefix(href, "https://doi.org/"), "http://doi.org/")
		}
	}
	return ""
}

func (scienceDirect) pmid(ctx context.Context, s *Source, _ *dom.Node, doi string) (string, error) {
	return pmidByDOI(ctx, s, doi)
}

func (scienceDirect) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	return parseTables(ctx, s, root.FindAll(dom.Class("div", "tables")), func(_ int, tc *dom.Node, t *types.Table) {
		label := trimmedText(tc.Find(dom.Class("span", "label")))
		t.Label = label
		t.Number = lastField(label)
		// The caption is the last piece of the first paragraph, after the label.
		if p := tc.Find(dom.Tag("p")); p != nil && len(p.Children) > 0 {
			t.Caption = trimmedText(p.Children[len(p.Children)-1])
		}
		t.Notes = trimmedText(tc.Find(dom.Class("", "tblFootnote")))
	})
}

// jats reads JATS XML as served by PLoS and Frontiers.
type jats struct {
	// requireTableID limits tables to <table-wrap id="T1"> style wrappers
	// and takes the table number from the id.
	requireTableID bool
}

func (jats) doi(root *dom.Node) string {
	return trimmedText(root.Find(dom.AttrEquals("article-id", "pub-id-type", "doi")))
}

func (jats) pmid(ctx context.Context, s *Source, root *dom.Node, doi string) (string, error) {
	if p := trimmedText(root.Find(dom.AttrEquals("article-id", "pub-id-type", "pmid"))); p != "" {
		return p, nil
	}
	return pmidByDOI(ctx, s, doi)
}

func (j jats) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	var containers []*dom.Node
	if j.requireTableID {
		containers = root.FindAll(dom.AttrMatches("table-wrap", "id", tableIDPattern))
	} else {
		containers = root.FindAll(dom.Tag("table-wrap"))
	}
	return parseTables(ctx, s, containers, func(_ int, tc *dom.Node, t *types.Table) {
		t.Label = trimmedText(tc.Find(dom.Tag("label")))
		if j.requireTableID {
			id, _ := tc.Attr("id")
			t.Number = strings.TrimSpace(id[1:])
			t.Caption = trimmedText(tc.Find(dom.Tag("caption")))
		} else {
			t.Number = lastField(t.Label)
			t.Caption = trimmedText(tc.Find(dom.Tag("title")))
		}
		t.Notes = trimmedText(tc.Find(dom.Tag("table-wrap-foot")))
	})
}

// jcogNeuro serves each table from a popup page that nests the real table
// one level deep.
type jcogNeuro struct{}

func (jcogNeuro) doi(root *dom.Node) string {
	meta := root.Find(func(n *dom.Node) bool {
		if n.Type != dom.ElementNode || n.Tag != "meta" {
			return false
		}
		name, _ := n.Attr("name")
		scheme, _ := n.Attr("scheme")
		return name == "dc.Identifier" && scheme == "doi"
	})
	v, _ := meta.Attr("content")
	return strings.TrimSpace(v)
}

func (jcogNeuro) pmid(ctx context.Context, s *Source, _ *dom.Node, doi string) (string, error) {
	return pmidByDOI(ctx, s, doi)
}

func (j jcogNeuro) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	logger := logging.FromContext(ctx)
	doi := j.doi(root)
	n := len(root.FindAll(dom.AttrMatches("table", "id", tableIDPattern)))
	logger.Debug("found tables", "n", n)

	var tables []*types.Table
	for num := 1; num <= n; num++ {
		url := fmt.Sprintf(JCogNeuroPopupURL, num, doi)
		page, err := s.downloadTable(ctx, url)
		if err != nil {
			logger.Warn("downloading table", "url", url, "err", err)
			continue
		}
		tc := page.Find(dom.Tag("table")).Find(dom.Tag("table"))
		if tc == nil {
			continue
		}
		t, err := s.ParseTable(ctx, tc)
		if err != nil && !errors.Is(err, ErrNoTableBody) {
			return nil, err
		}
		if t == nil {
			continue
		}
		t.Position = num
		t.Number = strconv.Itoa(num)
		title := tc.Find(dom.Tag("caption")).Find(dom.Class("span", "title"))
		t.Label = trimmedText(title.Find(dom.Tag("b")))
		t.Caption = trimmedText(title)
		t.Notes = trimmedText(page.Find(dom.Class("div", "footnote")).Find(dom.Tag("p")))
		tables = append(tables, t)
	}
	return tables, nil
}

// wiley keeps table notes in a <tfoot> that must be removed before parsing.
type wiley struct{}

func (wiley) doi(root *dom.Node) string {
	return metaContent(root, "citation_doi")
}

func (wiley) pmid(ctx context.Context, s *Source, _ *dom.Node, doi string) (string, error) {
	return pmidByDOI(ctx, s, doi)
}

func (wiley) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	containers := root.FindAll(func(n *dom.Node) bool {
		return dom.Class("div", "table")(n) && dom.AttrMatches("div", "id", wileyTablePattern)(n)
	})
	logging.FromContext(ctx).Debug("found tables", "n", len(containers))

	var tables []*types.Table
	for i, tc := range containers {
		tableNode := tc.Find(dom.Tag("table"))
		var notes string
		if foot := tableNode.Find(dom.Tag("tfoot")); foot != nil {
			notes = trimmedText(foot)
			foot.Remove()
		}
		t, err := s.ParseTable(ctx, tableNode)
		if err != nil && !errors.Is(err, ErrNoTableBody) {
			return nil, err
		}
		if t == nil {
			continue
		}
		t.Position = i + 1
		id, _ := tc.Attr("id")
		if m := wileyNumber.FindStringSubmatch(id); m != nil {
			t.Number = m[1]
		}
		t.Label = trimmedText(tc.Find(dom.Class("span", "label")))
		t.Caption = trimmedText(tc.Find(dom.Tag("caption")))
		t.Notes = notes
		tables = append(tables, t)
	}
	return tables, nil
}

type springer struct{}

func (springer) doi(root *dom.Node) string {
	f := strings.Fields(trimmedText(root.Find(dom.Class("p", "ArticleDOI"))))
	if len(f) < 2 {
		return ""
	}
	return f[1]
}

func (springer) pmid(ctx context.Context, s *Source, _ *dom.Node, doi string) (string, error) {
	return pmidByDOI(ctx, s, doi)
}

func (springer) tables(ctx context.Context, s *Source, root *dom.Node) ([]*types.Table, error) {
	containers := root.FindAll(dom.AttrMatches("figure", "id", springerTableID))
	return parseTables(ctx, s, containers, func(_ int, tc *dom.Node, t *types.Table) {
		id, _ := tc.Attr("id")
		t.Number = strings.TrimSpace(id[3:])
		t.Label = trimmedText(tc.Find(dom.Class("span", "CaptionNumber")))
		t.Caption = trimmedText(tc.Find(dom.Class("", "CaptionContent")).Find(dom.Tag("p")))
		t.Notes = trimmedText(tc.Find(dom.Class("", "TableFooter")).Find(dom.Tag("p")))
	})
}
