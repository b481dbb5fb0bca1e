// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package evaluate checks the quality of exported coordinates.
package evaluate

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// Proportions holds the share of integer values in each coordinate column.
type Proportions struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

func (p Proportions) String() string {
	return fmt.Sprintf("x\t%.4f\ny\t%.4f\nz\t%.4f", p.X, p.Y, p.Z)
}

// ProportionIntegerValues reads a tab-delimited activations export and
// reports the proportion of integer values in the x, y and z columns. For a
// healthy extraction this is close to 1, typically around 0.98. Empty or
// unparsable values count as non-integer.
func ProportionIntegerValues(r io.Reader) (Proportions, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Proportions{}, errors.New("empty activations file")
		}
		return Proportions{}, fmt.Errorf("reading header: %w", err)
	}
	idx := map[string]int{"x": -1, "y": -1, "z": -1}
	for i, h := range header {
		if _, ok := idx[strings.TrimSpace(h)]; ok {
			idx[strings.TrimSpace(h)] = i
		}
	}
	for col, i := range idx {
		if i < 0 {
			return Proportions{}, fmt.Errorf("missing %s column", col)
		}
	}

	var n int
	var ints [3]int
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Proportions{}, fmt.Errorf("reading row %d: %w", n+2, err)
		}
		n++
		for k, col := range []string{"x", "y", "z"} {
			i := idx[col]
			if i >= len(rec) {
				continue
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(rec[i]), 64)
			if err == nil && v == math.Round(v) {
				ints[k]++
			}
		}
	}
	if n == 0 {
		return Proportions{}, nil
	}
	return Proportions{
		X: float64(ints[0]) / float64(n),
		Y: float64(ints[1]) / float64(n),
		Z: float64(ints[2]) / float64(n),
	}, nil
}
