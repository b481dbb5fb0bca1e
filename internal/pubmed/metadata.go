// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pubmed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/ace/pkg/types"
)

// MEDLINE XML structures. Only the fields ACE stores are mapped.
type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation medlineCitation `xml:"MedlineCitation"`
	Data     pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID     string        `xml:"PMID"`
	Article  medlineRecord `xml:"Article"`
	Mesh     []xmlText     `xml:"MeshHeadingList>MeshHeading>DescriptorName"`
	Keywords []xmlText     `xml:"KeywordList>Keyword"`
}

type medlineRecord struct {
	JournalTitle string    `xml:"Journal>Title"`
	PubDate      pubDate   `xml:"Journal>JournalIssue>PubDate"`
	Title        xmlText   `xml:"ArticleTitle"`
	Abstract     []xmlText `xml:"Abstract>AbstractText"`
	Authors      []author  `xml:"AuthorList>Author"`
	ArticleDate  []pubDate `xml:"ArticleDate"`
}

type pubDate struct {
	Year        string `xml:"Year"`
	MedlineDate string `xml:"MedlineDate"`
}

type author struct {
	LastName string `xml:"LastName"`
	ForeName string `xml:"ForeName"`
}

type pubmedData struct {
	ArticleIDs []articleID `xml:"ArticleIdList>ArticleId"`
}

type articleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// xmlText collects the character data of an element and all of its
// descendants, so inline markup such as <i> in titles is flattened.
type xmlText string

func (t *xmlText) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var sb strings.Builder
	depth := 0
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch v := tok.(type) {
		case xml.CharData:
			sb.Write(v)
		case xml.StartElement:
			depth++
		case xml.EndElement:
			if depth == 0 {
				*t = xmlText(strings.TrimSpace(sb.String()))
				return nil
			}
			depth--
		}
	}
}

var yearPattern = regexp.MustCompile(`\d{4}`)

func (p pubDate) year() int {
	s := p.Year
	if s == "" {
		s = yearPattern.FindString(p.MedlineDate)
	}
	y, _ := strconv.Atoi(strings.TrimSpace(s))
	return y
}

// ParseMetadata converts a MEDLINE XML record into PubMedMetadata. Authors
// are "Last, Fore" joined with ";" (authors without a forename, usually
// collectives, are dropped), MeSH descriptors are joined with " | " and the
// citation is the record's second article identifier.
func ParseMetadata(data []byte) (*types.PubMedMetadata, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	var set pubmedArticleSet
	if err := dec.Decode(&set); err != nil {
		return nil, fmt.Errorf("parsing PubMed XML: %w", err)
	}
	if len(set.Articles) == 0 {
		return nil, fmt.Errorf("parsing PubMed XML: %w", ErrNotFound)
	}

	pa := set.Articles[0]
	art := pa.Citation.Article

	md := &types.PubMedMetadata{
		PMID:    strings.TrimSpace(pa.Citation.PMID),
		Title:   string(art.Title),
		Journal: strings.TrimSpace(art.JournalTitle),
	}

	if len(art.ArticleDate) > 0 {
		md.Year = art.ArticleDate[0].year()
	}
	if md.Year == 0 {
		md.Year = art.PubDate.year()
	}

	var authors []string
	for _, a := range art.Authors {
		if a.ForeName == "" {
			continue
		}
		authors = append(authors, a.LastName+", "+a.ForeName)
	}
	md.Authors = strings.Join(authors, ";")

	md.Abstract = joinText(art.Abstract, " ")
	md.Mesh = joinText(pa.Citation.Mesh, " | ")
	md.Keywords = joinText(pa.Citation.Keywords, " | ")

	ids := pa.Data.ArticleIDs
	if len(ids) > 1 {
		md.Citation = strings.TrimSpace(ids[1].Value)
	}
	for _, id := range ids {
		if id.IDType == "doi" {
			md.DOI = strings.TrimSpace(id.Value)
		}
	}
	return md, nil
}

func joinText(parts []xmlText, sep string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, string(p))
		}
	}
	return strings.Join(out, sep)
}
