// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/ace/internal/database"
	"github.com/pdiddy/ace/pkg/types"
)

type fakeStore []*types.Article

func (f fakeStore) Articles(context.Context, database.Filter) ([]*types.Article, error) {
	return f, nil
}

func ptr(v float64) *float64 { return &v }

func article(id int64, title, text, mesh string) *types.Article {
	return &types.Article{
		ID: id, Title: title, Text: text, DOI: "10.1/" + title, Space: types.SpaceMNI,
		Authors: "Doe, Jane", Year: 2010, Journal: "NeuroImage",
		Metadata: &types.PubMedMetadata{Mesh: mesh},
		Tables: []*types.Table{{
			ID: id * 10, Number: "1\n", Label: "Table 1", Caption: "Peaks, all",
			Activations: []*types.Activation{{
				ID: id * 100, X: ptr(-36), Y: ptr(18.5), Z: ptr(2),
				Region: "Insula", Groups: []string{"Faces", "Young"},
			}},
		}},
	}
}

func fixtures() fakeStore {
	return fakeStore{
		article(1, "Face processing", "We used fMRI to study faces.", "Humans"),
		article(2, "A VBM study", "fMRI was not used", "Humans"),
		article(3, "Rats", "functional magnetic resonance imaging", "Animals"),
		{ID: 4, Title: "No tables", Text: "fMRI"},
	}
}

func TestIsFMRI(t *testing.T) {
	tests := []struct {
		name  string
		title string
		text  string
		mesh  string
		want  bool
	}{
		{"fmri", "Faces", "an fMRI study", "Humans", true},
		{"functional magnetic", "Faces", "functional magnetic resonance", "", true},
		{"vbm", "Altered voxel-based morphometry of grey matter", "fMRI", "", false},
		{"vbm acronym", "A VBM study of grey matter", "fMRI", "", false},
		{"meta-analysis", "A meta-analysis of reward", "fMRI", "", false},
		{"dti", "Tracts", "fMRI", "Diffusion Tensor Imaging | Humans", false},
		{"animals", "Monkeys", "fMRI", "Animals | Macaca", false},
		{"animals and humans", "Both", "fMRI", "Animals | Humans", true},
		{"eeg without fmri", "ERPs", "functional magnetic resonance", "Electroencephalography", false},
		{"eeg with fmri", "ERPs", "simultaneous EEG-fMRI", "Electroencephalography", true},
		{"no fmri", "PET", "positron emission", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &types.Article{Title: tt.title, Text: tt.text, Metadata: &types.PubMedMetadata{Mesh: tt.mesh}}
			assert.Equal(t, tt.want, IsFMRI(a))
		})
	}
}

func TestActivations(t *testing.T) {
	var buf bytes.Buffer
	screened, err := Activations(context.Background(), fixtures(), &buf, ActivationOptions{Metadata: true, Groups: true, Screen: true})
	require.NoError(t, err)
	assert.Equal(t, 2, screened)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id\tdoi\tx\ty\tz\tspace\tpeak_id\ttable_id\ttable_num\ttitle\tauthors\tyear\tjournal\tgroups", lines[0])
	assert.Equal(t, "1\t10.1/Face processing\t-36\t18.5\t2\tMNI\t100\t10\t1\tFace processing\tDoe, Jane\t2010\tNeuroImage\tFaces///Young", lines[1])
}

func TestActivationsWithoutScreen(t *testing.T) {
	var buf bytes.Buffer
	screened, err := Activations(context.Background(), fixtures(), &buf, ActivationOptions{})
	require.NoError(t, err)
	assert.Zero(t, screened)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "id\tdoi\tx\ty\tz\tspace\tpeak_id\ttable_id\ttable_num", lines[0])
	assert.Len(t, strings.Split(lines[3], "\t"), 9)
}

func TestDatabase(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	require.NoError(t, Database(context.Background(), fixtures(), dir))

	read := func(name string) [][]string {
		t.Helper()
		f, err := os.Open(filepath.Join(dir, name))
		require.NoError(t, err)
		defer f.Close()
		records, err := csv.NewReader(f).ReadAll()
		require.NoError(t, err)
		return records
	}

	coords := read("coordinates.csv")
	require.Len(t, coords, 4)
	assert.Equal(t, []string{"1", "10", "Table 1", "Peaks, all", "1\n", "-36", "18.5", "2", "", "Insula", "", "", "Faces///Young"}, coords[1])

	meta := read("metadata.csv")
	require.Len(t, meta, 5)
	assert.Equal(t, []string{"4", "", "", "No tables", "", "0", ""}, meta[4])

	text := read("text.csv")
	require.Len(t, text, 5)
	assert.Equal(t, "We used fMRI to study faces.", text[1][3])
}

func TestYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, YAML(context.Background(), fixtures(), &buf))

	var doc struct {
		Stats    database.Stats `yaml:"stats"`
		Articles []struct {
			ID     int64 `yaml:"id"`
			Tables []struct {
				Activations []struct {
					X      float64  `yaml:"x"`
					Groups []string `yaml:"groups"`
				} `yaml:"activations"`
			} `yaml:"tables"`
		} `yaml:"articles"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, database.Stats{Articles: 4, Tables: 3, Activations: 3}, doc.Stats)
	require.Len(t, doc.Articles, 4)
	assert.Equal(t, -36.0, doc.Articles[0].Tables[0].Activations[0].X)
	assert.Equal(t, []string{"Faces", "Young"}, doc.Articles[0].Tables[0].Activations[0].Groups)
	assert.NotContains(t, buf.String(), "We used fMRI", "article text is not exported")
}
