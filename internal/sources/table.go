// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pdiddy/ace/internal/datatable"
	"github.com/pdiddy/ace/internal/dom"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/internal/tableparser"
	"github.com/pdiddy/ace/pkg/types"
)

var cellTags = dom.Tag("td", "th")

// ParseTable reads a <table> element into a Table. It returns nil without
// error when node is nil or when the table holds no valid activations.
//
// Cells are poured into a DataTable honouring rowspan and colspan. When
// the last cell of a row leaves columns unaccounted for, it is widened to
// fill them; malformed markup often omits trailing cells.
func (s *Source) ParseTable(ctx context.Context, node *dom.Node) (*types.Table, error) {
	if node == nil {
		return nil, nil
	}
	logger := logging.FromContext(ctx).With("source", s.Name)
	cfg := s.opts.Parsing

	rows := node.FindAll(dom.Tag("tr"))
	if len(rows) == 0 {
		return nil, ErrNoTableBody
	}
	bodyRows := rows
	if tbody := node.Find(dom.Tag("tbody")); tbody != nil {
		if br := tbody.FindAll(dom.Tag("tr")); len(br) > 0 {
			bodyRows = br
		}
	}

	nCols := 0
	if cfg.CarefulParsing {
		for _, r := range bodyRows {
			nCols = max(nCols, colsInRow(r))
		}
	} else {
		nCols = colsInRow(bodyRows[0])
	}

	dt := datatable.New(0, nCols)
	for j, r := range rows {
		if err := fillRow(dt, j, r.ChildElements(cellTags), nCols); err != nil {
			if !cfg.SilentErrors {
				logger.Error("bad table row", "row", j, "err", err)
			}
			if !cfg.IgnoreBadRows {
				return nil, err
			}
		}
	}
	if !cfg.SilentErrors {
		for _, w := range dt.Warnings {
			logger.Warn(w)
		}
	}
	dt.DropEmptyLastRow()

	table := tableparser.Parse(ctx, dt, tableparser.Options{
		ExcludeTablesWithMissingLabels: cfg.ExcludeTablesWithMissingLabels,
	})
	if table == nil {
		return nil, nil
	}
	if cfg.SaveOriginalHTML {
		table.OriginalHTML = node.Render()
	}
	return table, nil
}

func fillRow(dt *datatable.DataTable, j int, cells []*dom.Node, nCols int) error {
	found := 0
	for i, c := range cells {
		rowSpan, err := spanAttr(c, "rowspan")
		if err != nil {
			return err
		}
		colSpan, err := spanAttr(c, "colspan")
		if err != nil {
			return err
		}
		found += colSpan

		if i+1 == len(cells) && found < nCols {
			open, err := dt.OpenInRow(j)
			if err != nil {
				// The row has not been started yet.
				open = nCols
			}
			if open > colSpan {
				colSpan += nCols - found
			}
		}
		dt.AddValue(cellText(c), rowSpan, colSpan)
	}
	return nil
}

func colsInRow(r *dom.Node) int {
	n := 0
	for _, c := range r.ChildElements(cellTags) {
		span, err := spanAttr(c, "colspan")
		if err != nil {
			span = 1
		}
		n += span
	}
	return n
}

// Span limits, as browsers apply them.
const (
	maxColSpan = 1000
	maxRowSpan = 65534
)

func spanAttr(c *dom.Node, key string) (int, error) {
	v, ok := c.Attr(key)
	if !ok || strings.TrimSpace(v) == "" {
		return 1, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	limit := maxRowSpan
	if key == "colspan" {
		limit = maxColSpan
	}
	return min(max(n, 1), limit), nil
}

func cellText(c *dom.Node) string {
	return strings.TrimSpace(textNormalizer.Replace(c.Text()))
}
