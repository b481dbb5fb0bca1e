// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/ace/internal/dom"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

type fakeStore struct {
	exists map[int64]bool
}

func (f *fakeStore) ArticleExists(_ context.Context, pmid int64) (bool, error) {
	return f.exists[pmid], nil
}

type fakeMetadata struct {
	byDOI map[string]string
	calls int
}

func (f *fakeMetadata) PMIDFromDOI(_ context.Context, doi string) (string, error) {
	if p, ok := f.byDOI[doi]; ok {
		return p, nil
	}
	return "", errors.New("no PMID for DOI")
}

func (f *fakeMetadata) Metadata(_ context.Context, pmid, _ string) (*types.PubMedMetadata, error) {
	f.calls++
	return &types.PubMedMetadata{PMID: pmid, Title: "Faces and places", Journal: "NeuroImage", Year: 2012}, nil
}

type fakeDownloader struct {
	pages map[string]string
	calls int
}

func (f *fakeDownloader) Get(_ context.Context, url string) ([]byte, error) {
	f.calls++
	p, ok := f.pages[url]
	if !ok {
		return nil, errors.New("not found: " + url)
	}
	return []byte(p), nil
}

func quietCtx() context.Context {
	return logging.WithLogger(context.Background(), logging.Discard())
}

func newTestManager(t *testing.T, opts Options) (*Manager, *fakeStore, *fakeMetadata, *fakeDownloader) {
	t.Helper()
	store := &fakeStore{exists: map[int64]bool{}}
	md := &fakeMetadata{byDOI: map[string]string{}}
	dl := &fakeDownloader{pages: map[string]string{}}
	m, err := NewManager(store, md, dl, opts)
	require.NoError(t, err)
	for _, s := range m.Sources() {
		s.Delay = 0
	}
	return m, store, md, dl
}

const peaksTable = `<table><thead><tr><th>Region</th><th>x</th><th>y</th><th>z</th></tr></thead>
<tbody>
<tr><td rowspan="2">Insula</td><td>&minus;36</td><td>18</td><td>2</td></tr>
<tr><td>40</td><td>10</td><td>4</td></tr>
<tr><td>Amygdala</td><td>12</td><td>-4</td></tr>
</tbody></table>`

const methodsText = `<p>Images were preprocessed and analysed using SPM8 software following the standard pipeline of our laboratory.</p>`

const plosPage = `<?xml version="1.0" encoding="UTF-8"?>
<article><front><journal-meta><publisher><publisher-name>Public Library of Science</publisher-name></publisher></journal-meta>
<article-meta><article-id pub-id-type="pmid">22334455</article-id><article-id pub-id-type="doi">10.1371/journal.pone.0001</article-id></article-meta></front>
<body>` + methodsText + `
<p>Maps are at <a href="http://neurovault.org/collections/ABCD/">NeuroVault</a>.</p>
<table-wrap id="pone-0001-t001"><label>Table 1</label><caption><title>Peak <italic>activations</italic></title></caption>` +
	peaksTable + `<table-wrap-foot><p>Coordinates in MNI space.</p></table-wrap-foot></table-wrap>
</body></article>`

func TestLoadDefinitions(t *testing.T) {
	defs, err := LoadDefinitions()
	require.NoError(t, err)

	var names []string
	for _, d := range defs {
		names = append(names, d.Name)
		assert.NotEmpty(t, d.Identifiers, d.Name)
		_, ok := layouts[d.Name]
		assert.True(t, ok, "no layout for %s", d.Name)
	}
	assert.Equal(t, []string{
		"Frontiers", "HighWire", "JournalOfCognitiveNeuroscience", "Plos",
		"Sage", "ScienceDirect", "Springer", "Wiley",
	}, names)
}

func TestNewSourceUnknownName(t *testing.T) {
	_, err := newSource(Definition{Name: "Nature"}, nil, nil, nil, Options{})
	assert.ErrorIs(t, err, ErrUnknownSource)
}

func TestIdentify(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})

	tests := []struct {
		name string
		html string
		want string
	}{
		{"plos", plosPage, "Plos"},
		{"highwire", `<meta name="HW.identifier" content="/jneuro/30/1/1.atom">`, "HighWire"},
		{"sciencedirect", `<a href="https://www.sciencedirect.com/science/article/pii/S1053">x</a>`, "ScienceDirect"},
		{"wiley", `<meta name="citation_publisher" content="John Wiley &amp; Sons">`, "Wiley"},
		{"unknown", `<html><body>nothing here</body></html>`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := m.Identify(tt.html)
			if tt.want == "" {
				assert.Nil(t, src)
				return
			}
			require.NotNil(t, src)
			assert.Equal(t, tt.want, src.Name)
		})
	}
}

func TestDecodeEntities(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})

	plos := m.Source("Plos")
	require.NotNil(t, plos)
	assert.Equal(t, "-36 and -4 'a'", plos.DecodeEntities("&minus;36&nbsp;and &#8722;4 ‘a’"))

	sd := m.Source("ScienceDirect")
	require.NotNil(t, sd)
	assert.Equal(t, "12 mm", sd.DecodeEntities("12&thinsp;mm"))
}

func TestParseTableSpans(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	src := m.Source("Plos")

	root := dom.ParseString(src.DecodeEntities(peaksTable))
	table, err := src.ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	require.NoError(t, err)
	require.NotNil(t, table)

	// The short Amygdala row is widened into an overflow cell and dropped.
	require.Len(t, table.Activations, 2)
	assert.Equal(t, 4, table.NColumns)

	first, second := table.Activations[0], table.Activations[1]
	assert.Equal(t, "Insula", first.Region)
	require.NotNil(t, first.X)
	assert.Equal(t, -36.0, *first.X)
	assert.Equal(t, "Insula", second.Region)
	require.NotNil(t, second.Z)
	assert.Equal(t, 4.0, *second.Z)
}

func TestParseTableOmittedEndTags(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	src := m.Source("Plos")
	page := `<table><tbody><tr><td>Region<td>x<td>y<td>z` +
		`<tr><td>Insula<td>-36<td>18<td>2` +
		`<tr><td>Amygdala<td>12<td>-4<td>8</tbody></table>`

	root := dom.ParseString(src.DecodeEntities(page))
	table, err := src.ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Equal(t, 4, table.NColumns)
	require.Len(t, table.Activations, 2)
	assert.Equal(t, "Insula", table.Activations[0].Region)
	assert.Equal(t, "Amygdala", table.Activations[1].Region)
	require.NotNil(t, table.Activations[1].Z)
	assert.Equal(t, 8.0, *table.Activations[1].Z)
}

func TestSpanAttr(t *testing.T) {
	tests := []struct {
		name string
		cell string
		key  string
		want int
	}{
		{"missing", `<td>1</td>`, "colspan", 1},
		{"blank", `<td colspan=" ">1</td>`, "colspan", 1},
		{"zero", `<td colspan="0">1</td>`, "colspan", 1},
		{"plain", `<td colspan="3">1</td>`, "colspan", 3},
		{"huge colspan", `<td colspan="100000000">1</td>`, "colspan", 1000},
		{"huge rowspan", `<td rowspan="100000000">1</td>`, "rowspan", 65534},
		{"rowspan at limit", `<td rowspan="65534">1</td>`, "rowspan", 65534},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := spanAttr(dom.ParseString(tt.cell).Find(dom.Tag("td")), tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseTableNilAndEmpty(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	src := m.Source("Plos")

	table, err := src.ParseTable(quietCtx(), nil)
	assert.NoError(t, err)
	assert.Nil(t, table)

	root := dom.ParseString(`<table><caption>empty</caption></table>`)
	_, err = src.ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	assert.ErrorIs(t, err, ErrNoTableBody)
}

func TestParseTableBadSpan(t *testing.T) {
	bad := `<table><tr><th>x</th><th>y</th><th>z</th></tr><tr><td colspan="two">1</td><td>2</td><td>3</td></tr></table>`

	m, _, _, _ := newTestManager(t, Options{})
	root := dom.ParseString(bad)
	_, err := m.Source("Plos").ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	assert.Error(t, err)

	m, _, _, _ = newTestManager(t, Options{Parsing: types.ParsingConfig{IgnoreBadRows: true, SilentErrors: true}})
	root = dom.ParseString(bad)
	table, err := m.Source("Plos").ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	assert.NoError(t, err)
	assert.Nil(t, table)
}

func TestParseTableSavesOriginalHTML(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{Parsing: types.ParsingConfig{SaveOriginalHTML: true}})
	src := m.Source("Plos")

	root := dom.ParseString(src.DecodeEntities(peaksTable))
	table, err := src.ParseTable(quietCtx(), root.Find(dom.Tag("table")))
	require.NoError(t, err)
	require.NotNil(t, table)
	assert.Contains(t, table.OriginalHTML, `<td rowspan="2">Insula</td>`)
}

func TestParseArticleJATS(t *testing.T) {
	m, _, md, _ := newTestManager(t, Options{})
	src := m.Identify(plosPage)
	require.NotNil(t, src)

	article, skipped, err := src.ParseArticle(quietCtx(), plosPage, "", "")
	require.NoError(t, err)
	require.False(t, skipped)
	require.NotNil(t, article)

	assert.Equal(t, int64(22334455), article.ID)
	assert.Equal(t, "10.1371/journal.pone.0001", article.DOI)
	assert.Equal(t, "Plos", article.Publisher)
	assert.Equal(t, "Faces and places", article.Title)
	assert.Equal(t, 2012, article.Year)
	assert.Equal(t, types.SpaceMNI, article.Space)
	assert.Equal(t, 1, md.calls)

	require.Len(t, article.Tables, 1)
	table := article.Tables[0]
	assert.Equal(t, 1, table.Position)
	assert.Equal(t, "Table 1", table.Label)
	assert.Equal(t, "1", table.Number)
	assert.Equal(t, "Peak activations", table.Caption)
	assert.Equal(t, "Coordinates in MNI space.", table.Notes)
	assert.Equal(t, 2, article.NActivations())

	require.Len(t, article.NeurovaultLinks, 1)
	assert.Equal(t, "collection", article.NeurovaultLinks[0].Type)
	assert.Equal(t, "ABCD", article.NeurovaultLinks[0].NeurovaultID)
}

func TestParseArticleSkipsExisting(t *testing.T) {
	m, store, md, _ := newTestManager(t, Options{})
	store.exists[22334455] = true

	article, skipped, err := m.Source("Plos").ParseArticle(quietCtx(), plosPage, "22334455", "")
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Nil(t, article)
	assert.Zero(t, md.calls)

	// Found through the page when no PMID is given.
	_, skipped, err = m.Source("Plos").ParseArticle(quietCtx(), plosPage, "", "")
	require.NoError(t, err)
	assert.True(t, skipped)
}

func TestParseArticleOverwrites(t *testing.T) {
	m, store, _, _ := newTestManager(t, Options{Parsing: types.ParsingConfig{OverwriteExistingRows: true}})
	store.exists[22334455] = true

	article, skipped, err := m.Source("Plos").ParseArticle(quietCtx(), plosPage, "", "")
	require.NoError(t, err)
	assert.False(t, skipped)
	require.NotNil(t, article)
	assert.Equal(t, int64(22334455), article.ID)
	assert.True(t, store.exists[22334455])
}

func TestParseArticleOverwriteFailureKeepsStored(t *testing.T) {
	m, store, md, _ := newTestManager(t, Options{Parsing: types.ParsingConfig{OverwriteExistingRows: true}})
	md.byDOI["10.1523/JNEUROSCI.0001-10.2010"] = "20053900"
	store.exists[20053900] = true
	page := `<meta name="HW.identifier" content="/jneuro/30/1/1.atom">` +
		`<meta name="citation_doi" content="10.1523/JNEUROSCI.0001-10.2010">`

	article, skipped, err := m.Source("HighWire").ParseArticle(quietCtx(), page, "", "")
	require.ErrorContains(t, err, "citation_public_url")
	assert.False(t, skipped)
	assert.Nil(t, article)
	assert.True(t, store.exists[20053900])
}

func TestParseArticleInvalidPMID(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	_, _, err := m.Source("Plos").ParseArticle(quietCtx(), plosPage, "abc", "")
	assert.Error(t, err)
}

func TestParseArticleNoDOI(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	_, _, err := m.Source("ScienceDirect").ParseArticle(quietCtx(), `<html><body>no identifiers</body></html>`, "", "")
	assert.ErrorIs(t, err, errNoDOI)
}

const highWirePage = `<html><head>
<meta name="HW.identifier" content="/jneuro/30/1/1.atom">
<meta name="citation_doi" content="10.1523/JNEUROSCI.0001-10.2010">
<meta name="citation_public_url" content="http://www.jneurosci.org/content/30/1/1">
</head><body>` + methodsText + `
<div class="table-inline"><span class="table-label">Table 1.</span></div>
</body></html>`

var highWireExpansion = `<html><body><div class="table-expansion">
<span class="table-label">Table 1.</span><div class="table-caption">Regions responding to faces</div>
<table id="table-1">` + peaksTable[len("<table>"):] + `
<div class="table-footnotes">Corrected p &lt; 0.05</div></div></body></html>`

func TestParseArticleDownloadsTables(t *testing.T) {
	tableDir := t.TempDir()
	m, _, md, dl := newTestManager(t, Options{TableDir: tableDir})
	md.byDOI["10.1523/JNEUROSCI.0001-10.2010"] = "20053900"
	url := "http://www.jneurosci.org/content/30/1/1/T1.expansion.html"
	dl.pages[url] = highWireExpansion

	src := m.Identify(highWirePage)
	require.NotNil(t, src)
	require.Equal(t, "HighWire", src.Name)

	article, _, err := src.ParseArticle(quietCtx(), highWirePage, "", "")
	require.NoError(t, err)
	require.NotNil(t, article)
	assert.Equal(t, int64(20053900), article.ID)

	require.Len(t, article.Tables, 1)
	table := article.Tables[0]
	assert.Equal(t, "1", table.Number)
	assert.Equal(t, "Table 1.", table.Label)
	assert.Equal(t, "Regions responding to faces", table.Caption)
	assert.Equal(t, "Corrected p < 0.05", table.Notes)
	assert.Len(t, table.Activations, 2)

	_, err = os.Stat(filepath.Join(tableDir, "http:__www.jneurosci.org_content_30_1_1_T1.expansion.html"))
	require.NoError(t, err)

	// A second pass reads the cached table.
	_, _, err = src.ParseArticle(quietCtx(), highWirePage, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, dl.calls)
}

func TestParseArticleCitationPMID(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	page := `<meta name="HW.identifier" content="x"><meta name="citation_pmid" content="123">`

	article, _, err := m.Source("HighWire").ParseArticle(quietCtx(), page, "", "")
	require.Error(t, err, "page lacks citation_public_url")
	assert.Nil(t, article)

	p, err := highWire{}.pmid(quietCtx(), m.Source("HighWire"), dom.ParseString(page), "")
	require.NoError(t, err)
	assert.Equal(t, "123", p)
}

func TestLayoutDOIs(t *testing.T) {
	tests := []struct {
		name   string
		layout layout
		html   string
		want   string
	}{
		{"sciencedirect", scienceDirect{}, `<div id="article-identifier-links"><a href="https://doi.org/10.1016/j.neuroimage.2010.01.001">doi</a></div>`, "10.1016/j.neuroimage.2010.01.001"},
		{"springer", springer{}, `<p class="ArticleDOI">DOI 10.1007/s00429-011-0001-1</p>`, "10.1007/s00429-011-0001-1"},
		{"jcogneuro", jcogNeuro{}, `<meta name="dc.Identifier" scheme="doi" content="10.1162/jocn.2009.21001">`, "10.1162/jocn.2009.21001"},
		{"wiley", wiley{}, `<meta name="citation_doi" content="10.1002/hbm.20001">`, "10.1002/hbm.20001"},
		{"jats", jats{}, `<article-id pub-id-type="doi">10.3389/fnhum.2012.00001</article-id>`, "10.3389/fnhum.2012.00001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layout.doi(dom.ParseString(tt.html)))
		})
	}
}

func TestWileyTables(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	src := m.Source("Wiley")
	page := `<div class="table" id="hbm20001-tbl-0002"><span class="label">Table 2</span>
<table><caption>Task effects</caption><tfoot><tr><td>FWE corrected.</td></tr></tfoot>` +
		peaksTable[len("<table>"):] + `</div>`

	tables, err := src.layout.tables(quietCtx(), src, dom.ParseString(src.DecodeEntities(page)))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "2", tables[0].Number)
	assert.Equal(t, "FWE corrected.", tables[0].Notes)
	assert.Equal(t, "Task effects", tables[0].Caption)
	assert.Len(t, tables[0].Activations, 2)
}

func TestSpringerTables(t *testing.T) {
	m, _, _, _ := newTestManager(t, Options{})
	src := m.Source("Springer")
	page := `<figure id="Tab3"><div class="Caption"><span class="CaptionNumber">Table 3</span>
<div class="CaptionContent"><p>Conjunction peaks</p></div></div>` + peaksTable +
		`<div class="TableFooter"><p>BA Brodmann area</p></div></figure>`

	tables, err := src.layout.tables(quietCtx(), src, dom.ParseString(src.DecodeEntities(page)))
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "3", tables[0].Number)
	assert.Equal(t, "Table 3", tables[0].Label)
	assert.Equal(t, "Conjunction peaks", tables[0].Caption)
	assert.Equal(t, "BA Brodmann area", tables[0].Notes)
	assert.Equal(t, 1, tables[0].Position)
}

func TestNeurovaultLinks(t *testing.T) {
	root := dom.ParseString(`<a href="https://identifiers.org/neurovault.image:123">img</a>
<a href="http://neurovault.org/collections/XYZ/">col</a><a href="http://example.com">other</a><a>none</a>`)

	links := NeurovaultLinks(root)
	require.Len(t, links, 2)
	assert.Equal(t, types.NeurovaultLink{Type: "image", NeurovaultID: "123", URL: "https://identifiers.org/neurovault.image:123"}, links[0])
	assert.Equal(t, "collection", links[1].Type)
	assert.Equal(t, "XYZ", links[1].NeurovaultID)
}

func TestLayoutTables(t *testing.T) {
	body := peaksTable[len("<table>"):]
	popupURL := fmt.Sprintf(JCogNeuroPopupURL, 1, "10.1162/jocn.2009.21001")

	type wantTable struct {
		Position    int
		Activations int
		Number      string
		Label       string
		Caption     string
		Notes       string
	}
	tests := []struct {
		name   string
		source string
		page   string
		popups map[string]string
		want   []wantTable
	}{
		{
			name:   "sciencedirect",
			source: "ScienceDirect",
			page: `<div class="tables" id="tbl1"><table><tr><td>Stub</td></tr></table></div>` +
				`<div class="tables" id="tbl2"><span class="label">Table 2</span>` +
				`<p class="caption"><span class="label">Table 2</span>Peak coordinates</p>` + peaksTable +
				`<dl class="tblFootnote"><dd>FDR corrected</dd></dl></div>`,
			want: []wantTable{{Position: 2, Activations: 2, Number: "2", Label: "Table 2", Caption: "Peak coordinates", Notes: "FDR corrected"}},
		},
		{
			name:   "jcogneuro",
			source: "JournalOfCognitiveNeuroscience",
			page: `<meta name="dc.Identifier" scheme="doi" content="10.1162/jocn.2009.21001">` +
				`<table id="T1"><tr><td>preview</td></tr></table>`,
			popups: map[string]string{
				popupURL: `<html><body><table><tr><td><table><caption><span class="title"><b>Table 1.</b> Peak coordinates</span></caption>` +
					body + `</td></tr></table><div class="footnote"><p>MNI coordinates.</p></div></body></html>`,
			},
			want: []wantTable{{Position: 1, Activations: 2, Number: "1", Label: "Table 1.", Caption: "Table 1. Peak coordinates", Notes: "MNI coordinates."}},
		},
		{
			name:   "jcogneuro missing popup",
			source: "JournalOfCognitiveNeuroscience",
			page: `<meta name="dc.Identifier" scheme="doi" content="10.1162/jocn.2009.21001">` +
				`<table id="T1"><tr><td>preview</td></tr></table>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, _, dl := newTestManager(t, Options{})
			for url, page := range tt.popups {
				dl.pages[url] = page
			}
			src := m.Source(tt.source)
			require.NotNil(t, src)

			tables, err := src.layout.tables(quietCtx(), src, dom.ParseString(src.DecodeEntities(tt.page)))
			require.NoError(t, err)

			var got []wantTable
			for _, tb := range tables {
				got = append(got, wantTable{
					Position:    tb.Position,
					Activations: len(tb.Activations),
					Number:      tb.Number,
					Label:       tb.Label,
					Caption:     tb.Caption,
					Notes:       tb.Notes,
				})
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
