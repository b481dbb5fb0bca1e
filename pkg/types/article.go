// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the ACE pipeline:
// articles scraped from publishers, the results tables found in them, and
// the activation peaks parsed out of each table.
package types

import (
	"bytes"
	"encoding/json"
	"time"
)

// Space identifies the stereotactic space an article reports coordinates in.
type Space string

const (
	SpaceMNI       Space = "MNI"
	SpaceTalairach Space = "TAL"
	SpaceUnknown   Space = "UNKNOWN"
)

// PubMedMetadata holds the standardized fields parsed from a PubMed
// MEDLINE XML record.
type PubMedMetadata struct {
	PMID     string `json:"pmid" yaml:"pmid"`
	Title    string `json:"title" yaml:"title"`
	Authors  string `json:"authors" yaml:"authors"`
	Abstract string `json:"abstract" yaml:"abstract"`
	Journal  string `json:"journal" yaml:"journal"`
	Year     int    `json:"year" yaml:"year"`
	DOI      string `json:"doi,omitempty" yaml:"doi,omitempty"`
	Citation string `json:"citation" yaml:"citation"`

	// Mesh lists MeSH descriptor names joined with " | ".
	Mesh     string `json:"mesh" yaml:"mesh"`
	Keywords string `json:"keywords" yaml:"keywords"`
}

// Article is a single full-text publication and everything extracted from it.
type Article struct {
	// ID is the PubMed ID.
	ID        int64  `json:"id" yaml:"id"`
	Title     string `json:"title" yaml:"title"`
	Text      string `json:"-" yaml:"-"`
	Journal   string `json:"journal" yaml:"journal"`
	Space     Space  `json:"space" yaml:"space"`
	Publisher string `json:"publisher" yaml:"publisher"`
	DOI       string `json:"doi" yaml:"doi"`
	Year      int    `json:"year" yaml:"year"`
	Authors   string `json:"authors" yaml:"authors"`
	Abstract  string `json:"abstract" yaml:"abstract"`
	Citation  string `json:"citation" yaml:"citation"`

	Metadata *PubMedMetadata `json:"pubmed_metadata,omitempty" yaml:"pubmed_metadata,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`

	Tables          []*Table         `json:"tables" yaml:"tables"`
	NeurovaultLinks []NeurovaultLink `json:"neurovault_links,omitempty" yaml:"neurovault_links,omitempty"`
}

// NewArticle builds an Article from its plain text. The stereotactic space
// is guessed with guessSpace and bibliographic fields are copied from
// metadata when present.
func NewArticle(text string, pmid int64, doi string, metadata *PubMedMetadata, guessSpace func(string) Space) *Article {
	a := &Article{
		ID:       pmid,
		Text:     text,
		DOI:      doi,
		Metadata: metadata,
		Space:    SpaceUnknown,
	}
	if guessSpace != nil {
		a.Space = guessSpace(text)
	}
	a.UpdateFromMetadata()
	return a
}

// UpdateFromMetadata copies bibliographic fields from the PubMed metadata.
func (a *Article) UpdateFromMetadata() {
	md := a.Metadata
	if md == nil {
		return
	}
	a.Title = md.Title
	a.Journal = md.Journal
	a.Year = md.Year
	a.Authors = md.Authors
	a.Abstract = md.Abstract
	a.Citation = md.Citation
}

// NActivations returns the number of activations across all tables.
func (a *Article) NActivations() int {
	n := 0
	for _, t := range a.Tables {
		n += len(t.Activations)
	}
	return n
}

// NeurovaultLink points at a NeuroVault image or collection referenced by
// an article.
type NeurovaultLink struct {
	ID           int64  `json:"id,omitempty" yaml:"id,omitempty"`
	Type         string `json:"type" yaml:"type"`
	NeurovaultID string `json:"neurovault_id" yaml:"neurovault_id"`
	URL          string `json:"url" yaml:"url"`
}

// Table is one results table of an article.
type Table struct {
	ID        int64 `json:"id" yaml:"id"`
	ArticleID int64 `json:"article_id" yaml:"article_id"`

	// Position is the serial position of the table within the article.
	Position int `json:"position" yaml:"position"`

	// Number is the stated table ID (e.g. "1", "2b").
	Number string `json:"number" yaml:"number"`

	// Label is the full label (e.g. "Table 2b").
	Label   string `json:"label" yaml:"label"`
	Caption string `json:"caption" yaml:"caption"`
	Notes   string `json:"notes" yaml:"notes"`

	NActivations int `json:"n_activations" yaml:"n_activations"`
	NColumns     int `json:"n_columns" yaml:"n_columns"`

	OriginalHTML string `json:"-" yaml:"-"`

	Activations []*Activation `json:"activations" yaml:"activations"`
}

// Finalize updates derived fields before the table is saved.
func (t *Table) Finalize() {
	t.NActivations = len(t.Activations)
}

// Column is one labelled cell of the source row an activation came from.
type Column struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// Columns keeps every cell of an activation's row in column order.
type Columns []Column

// Get returns the value for label and whether it was present. When a label
// occurs more than once the last value wins.
func (c Columns) Get(label string) (string, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if c[i].Label == label {
			return c[i].Value, true
		}
	}
	return "", false
}

// MarshalJSON encodes the columns as a JSON object in column order.
func (c Columns) MarshalJSON() ([]byte, error) {
	buf := []byte{'{'}
	for i, col := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		k, err := json.Marshal(col.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(col.Value)
		if err != nil {
			return nil, err
		}
		buf = append(buf, k...)
		buf = append(buf, ':')
		buf = append(buf, v...)
	}
	return append(buf, '}'), nil
}

// UnmarshalJSON decodes a JSON object, preserving key order.
func (c *Columns) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	var out Columns
	for dec.More() {
		kt, err := dec.Token()
		if err != nil {
			return err
		}
		var v string
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, Column{Label: kt.(string), Value: v})
	}
	*c = out
	return nil
}
