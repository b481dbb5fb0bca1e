// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Activation is a single reported peak from a results table.
type Activation struct {
	ID        int64 `json:"id" yaml:"id"`
	ArticleID int64 `json:"article_id" yaml:"article_id"`
	TableID   int64 `json:"table_id" yaml:"table_id"`

	// Columns holds every cell of the source row, labelled by column.
	Columns Columns `json:"columns" yaml:"columns"`

	// Groups are the column-group and row-group headings the peak falls under.
	Groups []string `json:"groups" yaml:"groups"`

	// Problems records validation issues that did not reject the peak.
	Problems []string `json:"problems" yaml:"problems"`

	X *float64 `json:"x" yaml:"x"`
	Y *float64 `json:"y" yaml:"y"`
	Z *float64 `json:"z" yaml:"z"`

	Number     int    `json:"number,omitempty" yaml:"number,omitempty"`
	Region     string `json:"region,omitempty" yaml:"region,omitempty"`
	Hemisphere string `json:"hemisphere,omitempty" yaml:"hemisphere,omitempty"`
	BA         string `json:"ba,omitempty" yaml:"ba,omitempty"`
	Size       string `json:"size,omitempty" yaml:"size,omitempty"`
	Statistic  string `json:"statistic,omitempty" yaml:"statistic,omitempty"`
	PValue     string `json:"p_value,omitempty" yaml:"p_value,omitempty"`
}

// AddColumn records a raw cell value under its column label.
func (a *Activation) AddColumn(label, value string) {
	a.Columns = append(a.Columns, Column{Label: label, Value: value})
}

// AddProblem records a validation issue.
func (a *Activation) AddProblem(format string, args ...any) {
	a.Problems = append(a.Problems, fmt.Sprintf(format, args...))
}

// SetCoords parses and sets all three coordinates. Nothing is changed when
// any of them fails to parse.
func (a *Activation) SetCoords(x, y, z string) error {
	vals := make([]float64, 3)
	for i, s := range []string{x, y, z} {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("parsing coordinate %q: %w", s, err)
		}
		vals[i] = v
	}
	a.X, a.Y, a.Z = &vals[0], &vals[1], &vals[2]
	return nil
}

// SetStandard assigns value to the attribute named by a standard column
// (region, hemisphere, ba, size, statistic, p_value). Coordinates are set
// separately through SetCoord.
func (a *Activation) SetStandard(name, value string) {
	switch name {
	case "region":
		a.Region = value
	case "hemisphere":
		a.Hemisphere = value
	case "ba":
		a.BA = value
	case "size":
		a.Size = value
	case "statistic":
		a.Statistic = value
	case "p_value":
		a.PValue = value
	}
}

// SetCoord sets one coordinate by axis name ("x", "y" or "z").
func (a *Activation) SetCoord(axis string, v float64) {
	switch axis {
	case "x":
		a.X = &v
	case "y":
		a.Y = &v
	case "z":
		a.Z = &v
	}
}

// Validate reports whether the peak looks like a real coordinate. A peak is
// rejected when any of x, y, z is missing, when any |coordinate| >= 100, or
// when two or more dimensions are zero.
func (a *Activation) Validate() bool {
	coords := []*float64{a.X, a.Y, a.Z}
	abs := make([]float64, 0, 3)
	for _, c := range coords {
		if c == nil {
			return false
		}
		if math.Abs(*c) >= 100 {
			return false
		}
		abs = append(abs, math.Abs(*c))
	}
	zeros := 0
	for _, v := range abs {
		if v == 0 {
			zeros++
		}
	}
	return zeros < 2
}
