// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package export writes the contents of the article database to flat files:
// a tab-delimited list of activations, a directory of CSV tables, or a
// single YAML document.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ace/internal/database"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

// Store is the part of the database exports read from.
type Store interface {
	Articles(ctx context.Context, f database.Filter) ([]*types.Article, error)
}

// ActivationOptions controls the activations export.
type ActivationOptions struct {
	// Metadata adds title, authors, year and journal columns.
	Metadata bool

	// Groups adds the activation's groups joined with "///".
	Groups bool

	// Screen drops articles that do not look like fMRI studies.
	Screen bool
}

var (
	vbmPattern          = regexp.MustCompile(`VBM|voxel-?based.*?morphom`)
	metaAnalysisPattern = regexp.MustCompile(`meta-analy`)
	fmriPattern         = regexp.MustCompile(`fMRI|functional magnetic`)
)

// IsFMRI screens an article for fMRI content. It rejects VBM studies,
// meta-analyses, DTI studies, non-human animal studies, EEG/MEG studies
// that do not mention fMRI, and anything never mentioning fMRI. The
// screen is heuristic and admits both false positives and negatives.
func IsFMRI(a *types.Article) bool {
	var mesh string
	if a.Metadata != nil {
		mesh = a.Metadata.Mesh
	}
	switch {
	case vbmPattern.MatchString(a.Title), metaAnalysisPattern.MatchString(a.Title):
		return false
	case strings.Contains(mesh, "Diffusion Tensor Imaging"):
		return false
	case strings.Contains(mesh, "Animals") && !strings.Contains(mesh, "Humans"):
		return false
	case (strings.Contains(mesh, "Electroencephalography") || strings.Contains(mesh, "Magnetoencephalography")) &&
		!strings.Contains(a.Text, "fMRI"):
		return false
	}
	return fmriPattern.MatchString(a.Text)
}

// Activations writes every activation of every article with at least one
// table as a tab-delimited row. It returns the number of articles screened
// out.
func Activations(ctx context.Context, store Store, w io.Writer, opts ActivationOptions) (int, error) {
	logger := logging.FromContext(ctx)
	articles, err := store.Articles(ctx, database.Filter{})
	if err != nil {
		return 0, err
	}

	header := []string{"id", "doi", "x", "y", "z", "space", "peak_id", "table_id", "table_num"}
	if opts.Metadata {
		header = append(header, "title", "authors", "year", "journal")
	}
	if opts.Groups {
		header = append(header, "groups")
	}
	if _, err := fmt.Fprintln(w, strings.Join(header, "\t")); err != nil {
		return 0, err
	}

	screened := 0
	for _, a := range articles {
		if len(a.Tables) == 0 {
			continue
		}
		if opts.Screen && !IsFMRI(a) {
			screened++
			continue
		}
		logger.Debug("exporting article", "pmid", a.ID)
		for _, t := range a.Tables {
			for _, p := range t.Activations {
				fields := []string{
					strconv.FormatInt(a.ID, 10), a.DOI,
					formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z),
					string(a.Space), strconv.FormatInt(p.ID, 10), strconv.FormatInt(t.ID, 10),
					strings.Trim(t.Number, "\t\r\n"),
				}
				if opts.Metadata {
					fields = append(fields, a.Title, a.Authors, strconv.Itoa(a.Year), a.Journal)
				}
				if opts.Groups {
					fields = append(fields, strings.Join(p.Groups, "///"))
				}
				for i, f := range fields {
					fields[i] = tsvField(f)
				}
				if _, err := fmt.Fprintln(w, strings.Join(fields, "\t")); err != nil {
					return screened, err
				}
			}
		}
	}
	return screened, nil
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

var tsvCleaner = strings.NewReplacer("\t", " ", "\r", " ", "\n", " ")

func tsvField(s string) string {
	return tsvCleaner.Replace(s)
}

// Database writes coordinates.csv, metadata.csv and text.csv into dir.
// Coordinates carry one row per activation, metadata one row per article
// and text the full article text.
func Database(ctx context.Context, store Store, dir string) error {
	articles, err := store.Articles(ctx, database.Filter{})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating export directory: %w", err)
	}

	coords := [][]string{{"pmid", "table_id", "table_label", "table_caption", "table_number",
		"x", "y", "z", "p_value", "region", "size", "statistic", "groups"}}
	meta := [][]string{{"pmid", "doi", "authors", "title", "journal", "publication_year", "coordinate_space"}}
	text := [][]string{{"pmid", "title", "abstract", "body"}}

	for _, a := range articles {
		for _, t := range a.Tables {
			for _, p := range t.Activations {
				coords = append(coords, []string{
					strconv.FormatInt(a.ID, 10), strconv.FormatInt(t.ID, 10), t.Label, t.Caption, t.Number,
					formatCoord(p.X), formatCoord(p.Y), formatCoord(p.Z),
					p.PValue, p.Region, p.Size, p.Statistic, strings.Join(p.Groups, "///"),
				})
			}
		}
		meta = append(meta, []string{
			strconv.FormatInt(a.ID, 10), a.DOI, a.Authors, a.Title, a.Journal,
			strconv.Itoa(a.Year), string(a.Space),
		})
		text = append(text, []string{strconv.FormatInt(a.ID, 10), a.Title, a.Abstract, a.Text})
	}

	for name, records := range map[string][][]string{
		"coordinates.csv": coords,
		"metadata.csv":    meta,
		"text.csv":        text,
	} {
		if err := writeCSV(filepath.Join(dir, name), records); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(records); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return f.Close()
}

// yamlExport is the top-level document written by YAML.
type yamlExport struct {
	Stats    database.Stats   `yaml:"stats"`
	Articles []*types.Article `yaml:"articles"`
}

// YAML writes every article with its tables, activations and links as a
// single YAML document.
func YAML(ctx context.Context, store Store, w io.Writer) error {
	articles, err := store.Articles(ctx, database.Filter{})
	if err != nil {
		return err
	}
	doc := yamlExport{Articles: articles}
	doc.Stats.Articles = len(articles)
	for _, a := range articles {
		doc.Stats.Tables += len(a.Tables)
		doc.Stats.Activations += a.NActivations()
		doc.Stats.NeurovaultLinks += len(a.NeurovaultLinks)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}
