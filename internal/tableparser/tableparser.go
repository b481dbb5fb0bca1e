// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tableparser interprets a filled DataTable as a results table:
// it finds column labels, recognises standard columns (coordinates,
// region, statistic, ...), detects repeated column groups, and turns each
// body row into one or more validated activations.
package tableparser

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pdiddy/ace/internal/datatable"
	"github.com/pdiddy/ace/internal/logging"
	"github.com/pdiddy/ace/pkg/types"
)

var (
	threeNumbersPattern  = regexp.MustCompile(`\d+.*\d+.*\d+`)
	multiLabelPattern    = regexp.MustCompile(`^@@(.*)@(\d+)$`)
	coordLabelPattern    = regexp.MustCompile(`(?i)(ordinate|x.*y.*z)`)
	letterPattern        = regexp.MustCompile(`[a-zA-Z]`)
	spanCountPattern     = regexp.MustCompile(`@(\d+)`)
	spacedMinusPattern   = regexp.MustCompile(`^(-)\s+(\d+\.*\d*)$`)
	validCoordPattern    = regexp.MustCompile(`^-*\d+\.*\d*$`)
	minusGapPattern      = regexp.MustCompile(`-\s+`)
	coordTriplePattern   = regexp.MustCompile(coordTerm + `[,;\s]+` + coordTerm + `[,;\s]+` + coordTerm)
	brodmannPattern      = regexp.MustCompile(`(^\s*ba$)|brodmann`)
	regionPattern        = regexp.MustCompile(`region|anatom|location|area`)
	hemispherePattern    = regexp.MustCompile(`sphere|(^\s*h$)|^\s*hem|^\s*side`)
	sizePattern          = regexp.MustCompile(`(^k$)|(mm.*?3)|volume|voxels|size|extent`)
	xyPattern            = regexp.MustCompile(`^\s*[xy]\s*$`)
	zPattern             = regexp.MustCompile(`^\s*z\s*$`)
	coordinateLabel      = regexp.MustCompile(`rdinate`)
	statisticPattern     = regexp.MustCompile(`^(z|t).*(score|value)`)
	pValuePattern        = regexp.MustCompile(`p[\-\s]+.*val`)
)

const coordTerm = `([\-\.\s]*\d{1,3}\.*\d{0,2})`

// Standard column names.
const (
	ColBA         = "ba"
	ColRegion     = "region"
	ColHemisphere = "hemisphere"
	ColSize       = "size"
	ColX          = "x"
	ColY          = "y"
	ColZ          = "z"
	ColStatistic  = "statistic"
	ColPValue     = "p_value"
)

// Options controls table interpretation.
type Options struct {
	// ExcludeTablesWithMissingLabels drops a table when some column has no label.
	ExcludeTablesWithMissingLabels bool
}

// Group is a contiguous run of columns that repeats elsewhere in the header,
// e.g. the x/y/z block of each condition.
type Group struct {
	Onset  int
	Length int
}

// Key returns the "onset/length" key used to look up multi-column labels.
func (g Group) Key() string {
	return fmt.Sprintf("%d/%d", g.Onset, g.Length)
}

func (g Group) contains(i int) bool {
	return i >= g.Onset && i < g.Onset+g.Length
}

// IdentifyStandardColumns maps each label to the name of a standard column,
// or "" when the label is not recognised. For example
// ["p value", "brain region", "unknown"] yields ["p_value", "region", ""].
func IdentifyStandardColumns(labels []string) []string {
	standardized := make([]string, len(labels))
	foundCoords := false
	for i, lab := range labels {
		var s string
		switch {
		case brodmannPattern.MatchString(lab):
			s = ColBA
		case regionPattern.MatchString(lab):
			s = ColRegion
		case hemispherePattern.MatchString(lab):
			s = ColHemisphere
		case sizePattern.MatchString(lab):
			s = ColSize
		case xyPattern.MatchString(lab):
			foundCoords = true
			s = strings.TrimSpace(lab)
		case zPattern.MatchString(lab):
			// A z column is the z plane only when it directly follows a y
			// column; otherwise it is a z-score.
			if foundCoords && i > 0 && labels[i-1] == "y" {
				s = ColZ
			} else {
				s = ColStatistic
			}
		case coordinateLabel.MatchString(lab):
			continue
		case lab == "t" || statisticPattern.MatchString(lab):
			s = ColStatistic
		case pValuePattern.MatchString(lab):
			s = ColPValue
		}
		standardized[i] = s
	}
	return standardized
}

// IdentifyRepeatingGroups finds contiguous column sequences whose labels
// repeat, such as [region, x, y, z, x, y, z]. Only one level of repetition is
// detected: nested groupings collapse to their innermost repeating run.
func IdentifyRepeatingGroups(labels []string) []Group {
	n := len(labels)
	counts := make(map[string]int, n)
	for _, l := range labels {
		counts[l]++
	}
	repeated := func(l string) bool { return counts[l] > 1 }

	// Sequences made only of repeated labels, without the starting label
	// repeating inside the sequence. Key is the joined sequence.
	seqStarts := make(map[string][]int)
	var seqOrder []string
	for i, lab := range labels {
		if !repeated(lab) {
			continue
		}
		seq := []string{lab}
		for j := i + 1; j < n; j++ {
			if !repeated(labels[j]) || labels[j] == lab {
				break
			}
			seq = append(seq, labels[j])
		}
		if len(seq) > 1 {
			key := strings.Join(seq, "###")
			if _, ok := seqStarts[key]; !ok {
				seqOrder = append(seqOrder, key)
			}
			seqStarts[key] = append(seqStarts[key], i)
		}
	}

	startLen := make([]int, n)
	for _, key := range seqOrder {
		starts := seqStarts[key]
		if len(starts) < 2 {
			continue
		}
		size := len(strings.Split(key, "###"))
		for _, s := range starts {
			startLen[s] = size
		}
	}

	// Add a group when a sequence starts here and covers at least one column
	// not yet claimed, so y/z shared by x/y/z and a/y/z is not lost.
	used := make([]bool, n)
	var groups []Group
	for i := 0; i < n; i++ {
		size := startLen[i]
		if size == 0 {
			continue
		}
		end := i + size
		if end > n {
			end = n
		}
		allUsed := true
		for k := i; k < end; k++ {
			if !used[k] {
				allUsed = false
			}
			used[k] = true
		}
		if !allUsed {
			groups = append(groups, Group{Onset: i, Length: size})
		}
	}
	return groups
}

// CreateActivation builds an activation from one row's cells. Standard
// columns are copied to their attributes; coordinates are cleaned and
// validated, and invalid values are recorded as problems. Non-standard
// columns containing three numbers are read as an x, y, z triple.
func CreateActivation(ctx context.Context, cells, labels, standard []string, groups []string) *types.Activation {
	logger := logging.FromContext(ctx)
	act := &types.Activation{}

	for i, col := range cells {
		if sc := standard[i]; sc != "" {
			switch sc {
			case ColX, ColY, ColZ:
				if m := spacedMinusPattern.FindStringSubmatch(col); m != nil {
					col = m[1] + m[2]
				}
				if !validCoordPattern.MatchString(col) {
					logger.Debug("invalid coordinate value", "value", col, "column", sc)
					act.AddProblem("Value in %s column is not valid", sc)
					return act
				}
				v, err := strconv.ParseFloat(normalizeMinus(col), 64)
				if err != nil {
					act.AddProblem("Value in %s column is not valid", sc)
					return act
				}
				act.SetCoord(sc, v)
			case ColRegion:
				if !letterPattern.MatchString(col) {
					logger.Debug("value in region column is not a string", "value", col)
					act.AddProblem("Value in region column is not a string")
				}
				act.SetStandard(sc, col)
			default:
				act.SetStandard(sc, col)
			}
		}

		act.AddColumn(labels[i], col)

		// Columns such as "45; 12; -12" carry a whole coordinate.
		if standard[i] == "" {
			if m := coordTriplePattern.FindStringSubmatch(strings.TrimSpace(col)); m != nil {
				x := minusGapPattern.ReplaceAllString(m[1], "-")
				y := minusGapPattern.ReplaceAllString(m[2], "-")
				z := minusGapPattern.ReplaceAllString(m[3], "-")
				if err := act.SetCoords(x, y, z); err != nil {
					act.AddProblem("Could not read coordinates from %s column", labels[i])
				} else {
					logger.Info("found multi-coordinate column", "value", col, "x", x, "y", y, "z", z)
				}
			}
		}
	}

	act.Groups = groups
	return act
}

// normalizeMinus collapses repeated leading minus signs ("--4" reads as -4
// only once) so the value parses.
func normalizeMinus(s string) string {
	trimmed := strings.TrimLeft(s, "-")
	if len(trimmed) < len(s) {
		return "-" + trimmed
	}
	return s
}

// Parse interprets dt and returns the resulting table, or nil when the
// table yields no valid activations or is excluded for missing labels.
func Parse(ctx context.Context, dt *datatable.DataTable, opts Options) *types.Table {
	logger := logging.FromContext(ctx)
	rows := dt.Rows()
	nCols := dt.NCols()

	labels, multicol, found := findLabels(rows, nCols)

	// Lowercase and replace a letterless three-column span labelled
	// "Coordinates" with x, y, z.
	for i := range labels {
		labels[i] = strings.ToLower(labels[i])
	}
	for key, v := range multicol {
		if !coordLabelPattern.MatchString(v) {
			continue
		}
		var start, span int
		if _, err := fmt.Sscanf(key, "%d/%d", &start, &span); err != nil {
			continue
		}
		end := start + span
		if span != 3 || end > len(labels) {
			continue
		}
		if !letterPattern.MatchString(strings.Join(labels[start:end], "")) {
			logger.Info("possible multi-column coordinates found", "key", key, "label", v)
			copy(labels[start:end], []string{ColX, ColY, ColZ})
		}
	}

	for i, ok := range found {
		if ok {
			continue
		}
		msg := fmt.Sprintf("failed to identify at least one column label: [%s]", strings.Join(labels, ", "))
		if opts.ExcludeTablesWithMissingLabels {
			logger.Error(msg + ". Skipping table!")
			return nil
		}
		logger.Warn(msg, "column", i)
		break
	}

	standard := IdentifyStandardColumns(labels)
	groups := IdentifyRepeatingGroups(labels)
	logger.Debug("table labels", "labels", labels, "standard", standard)

	inGroup := make([]bool, nCols)
	for _, g := range groups {
		for i := g.Onset; i < g.Onset+g.Length && i < nCols; i++ {
			inGroup[i] = true
		}
	}

	table := &types.Table{NColumns: nCols}
	var groupRow string

	for _, r := range rows {
		if len(r) == 0 {
			continue
		}

		// Rows echoing a column label are header rows.
		if echoesLabel(r, labels) {
			continue
		}

		// A row with only its first cell filled heads the rows below it.
		if r[0] != "" && strings.TrimSpace(strings.Join(r[1:], "")) == "" {
			groupRow = strings.TrimSpace(r[0])
			continue
		}

		// So does a first cell spanning every column.
		if strings.HasPrefix(r[0], datatable.OverflowPrefix) {
			if m := spanCountPattern.FindStringSubmatch(r[0]); m != nil {
				if span, _ := strconv.Atoi(m[1]); span == nCols {
					parts := strings.Split(r[0], "@")
					if len(parts) > 2 {
						groupRow = strings.TrimSpace(parts[2])
					}
					continue
				}
			}
		}

		if len(r) != nCols || strings.Contains(strings.Join(r, " "), datatable.OverflowPrefix) {
			continue
		}

		if len(groups) == 0 {
			var g []string
			if groupRow != "" {
				g = []string{groupRow}
			}
			act := CreateActivation(ctx, r, labels, standard, g)
			if act.Validate() {
				table.Activations = append(table.Activations, act)
			}
			continue
		}

		for _, g := range groups {
			var names []string
			if v, ok := multicol[g.Key()]; ok {
				names = append(names, v)
			}
			if groupRow != "" {
				names = append(names, groupRow)
			}

			// Columns outside every group, plus the columns of this group.
			var actLabels, actCells, actStandard []string
			for i, v := range r {
				if !inGroup[i] || g.contains(i) {
					actLabels = append(actLabels, labels[i])
					actCells = append(actCells, v)
					actStandard = append(actStandard, standard[i])
				}
			}
			act := CreateActivation(ctx, actCells, actLabels, actStandard, names)
			if act.Validate() {
				table.Activations = append(table.Activations, act)
			}
		}
	}

	table.Finalize()
	if len(table.Activations) == 0 {
		return nil
	}
	return table
}

// findLabels returns the first plain value of each column as its label,
// the multi-column labels keyed by "onset/span", and which columns were
// labelled.
func findLabels(rows [][]string, nCols int) ([]string, map[string]string, []bool) {
	labels := make([]string, nCols)
	found := make([]bool, nCols)
	multicol := make(map[string]string)

	allFoundAfterFirst := func() bool {
		for _, ok := range found[1:] {
			if !ok {
				return false
			}
		}
		return true
	}

	for _, r := range rows {
		hasXYZ := threeNumbersPattern.MatchString(strings.Join(r, "/"))
		for j, raw := range r {
			if j >= nCols {
				break
			}
			val := strings.TrimSpace(raw)
			if val != "" && !strings.HasPrefix(val, datatable.OverflowPrefix) && !found[j] {
				// The first column is often unlabelled; once the other labels
				// are known, or the row is plainly data, it holds regions.
				if j == 0 && (allFoundAfterFirst() || hasXYZ) {
					labels[j] = ColRegion
				} else {
					labels[j] = val
				}
				found[j] = true
				continue
			}
			if m := multiLabelPattern.FindStringSubmatch(val); m != nil {
				multicol[fmt.Sprintf("%d/%s", j, m[2])] = m[1]
			}
		}
	}
	return labels, multicol, found
}

func echoesLabel(r, labels []string) bool {
	for i, v := range r {
		if i < len(labels) && labels[i] != "" && v == labels[i] {
			return true
		}
	}
	return false
}
