// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package datatable holds the intermediate grid a results table is poured
// into before its rows are interpreted. Cells spanning several columns are
// written with overflow markers so the parser can recover column groups:
// the first cell of a span holds "@@value@N" and the remaining cells hold
// "@@value".
package datatable

import (
	"fmt"
	"strings"
)

// OverflowPrefix marks a cell that is part of a multi-column span.
const OverflowPrefix = "@@"

type cell struct {
	val    string
	filled bool
}

// DataTable is a row-major grid filled in reading order.
type DataTable struct {
	rows  [][]cell
	nCols int

	// Warnings collects span overruns found while filling the grid.
	Warnings []string
}

// New returns a grid with nRows empty rows of nCols cells each.
func New(nRows, nCols int) *DataTable {
	dt := &DataTable{nCols: nCols}
	for i := 0; i < nRows; i++ {
		dt.appendRow()
	}
	return dt
}

// NCols returns the number of columns.
func (dt *DataTable) NCols() int { return dt.nCols }

// NRows returns the number of rows.
func (dt *DataTable) NRows() int { return len(dt.rows) }

func (dt *DataTable) appendRow() {
	dt.rows = append(dt.rows, make([]cell, dt.nCols))
}

// nextOpen returns the flat index of the first unfilled cell, or -1.
func (dt *DataTable) nextOpen() int {
	for r, row := range dt.rows {
		for c, v := range row {
			if !v.filled {
				return r*dt.nCols + c
			}
		}
	}
	return -1
}

// Set writes val at row r, column c.
func (dt *DataTable) Set(r, c int, val string) {
	dt.rows[r][c] = cell{val: val, filled: true}
}

// Get returns the value at row r, column c and whether the cell was filled.
func (dt *DataTable) Get(r, c int) (string, bool) {
	v := dt.rows[r][c]
	return v.val, v.filled
}

// AddValue writes val into the next open position, spanning rows x cols
// cells. New rows are appended as needed; a span running past the bottom of
// the grid is recorded as a warning and padded. The column span is clamped
// to the right edge of the grid.
func (dt *DataTable) AddValue(val string, rows, cols int) {
	if dt.nCols == 0 {
		return
	}

	openPos := dt.nextOpen()
	if openPos < 0 {
		openPos = len(dt.rows) * dt.nCols
		for i := 0; i < rows; i++ {
			dt.appendRow()
		}
	} else {
		ri := openPos / dt.nCols
		if ri+rows > len(dt.rows) {
			dt.Warnings = append(dt.Warnings, fmt.Sprintf(
				"row has more columns than labels: [%d, %d, %d]", ri, rows, len(dt.rows)))
			for i := len(dt.rows); i < ri+rows; i++ {
				dt.appendRow()
			}
		}
	}

	ri := openPos / dt.nCols
	ci := openPos % dt.nCols
	if cols+ci > dt.nCols {
		cols = dt.nCols - ci
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			content := val
			if cols > 1 {
				if c == 0 {
					content = fmt.Sprintf("%s%s@%d", OverflowPrefix, val, cols)
				} else {
					content = OverflowPrefix + val
				}
			}
			dt.Set(ri+r, ci+c, content)
		}
	}
}

// OpenInRow returns the number of unfilled cells in row r. It returns an
// error when r is out of range.
func (dt *DataTable) OpenInRow(r int) (int, error) {
	if r < 0 || r >= len(dt.rows) {
		return 0, fmt.Errorf("row %d out of range (%d rows)", r, len(dt.rows))
	}
	n := 0
	for _, v := range dt.rows[r] {
		if !v.filled {
			n++
		}
	}
	return n, nil
}

// DropEmptyLastRow removes the final row when none of its cells were filled.
func (dt *DataTable) DropEmptyLastRow() {
	if len(dt.rows) == 0 {
		return
	}
	n, _ := dt.OpenInRow(len(dt.rows) - 1)
	if n == dt.nCols {
		dt.rows = dt.rows[:len(dt.rows)-1]
	}
}

// Rows returns the grid as strings. Unfilled cells are empty.
func (dt *DataTable) Rows() [][]string {
	out := make([][]string, len(dt.rows))
	for i, row := range dt.rows {
		out[i] = make([]string, len(row))
		for j, v := range row {
			out[i][j] = v.val
		}
	}
	return out
}

// String renders the grid one row per line, cells separated by " | ".
func (dt *DataTable) String() string {
	var sb strings.Builder
	for _, row := range dt.Rows() {
		sb.WriteString(strings.Join(row, " | "))
		sb.WriteByte('\n')
	}
	return sb.String()
}
