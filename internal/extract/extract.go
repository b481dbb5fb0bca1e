// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract pulls article-level facts out of full text. Currently
// that is the stereotactic space the reported coordinates are in.
package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/ace/pkg/types"
)

// SpaceTargets are the terms counted by GuessSpace, in report order.
var SpaceTargets = []string{
	"mni", "talairach", "afni", "flirt", "711-2", "spm", "brainvoyager", "fsl",
}

var targetPatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(SpaceTargets))
	for i, t := range SpaceTargets {
		// A target only counts when it sits inside a sentence-sized window
		// of text, which filters out reference lists and headers.
		out[i] = regexp.MustCompile(fmt.Sprintf(`\b(.{30,40}\b%s.{30,40})\b`, regexp.QuoteMeta(t)))
	}
	return out
}()

// SpaceEvidence counts each target term in an article's text.
type SpaceEvidence map[string]int

// CountSpaceTargets lowercases text and counts the context windows around
// each of SpaceTargets.
func CountSpaceTargets(text string) SpaceEvidence {
	text = strings.ToLower(text)
	ev := make(SpaceEvidence, len(SpaceTargets))
	for i, re := range targetPatterns {
		ev[SpaceTargets[i]] = len(re.FindAllStringIndex(text, -1))
	}
	return ev
}

// Space labels the evidence. SPM and FSL imply MNI, AFNI and BrainVoyager
// imply Talairach. When no software is mentioned the explicit space names
// decide, and only when exactly one of them appears.
func (ev SpaceEvidence) Space() types.Space {
	mni := ev["spm"] + ev["fsl"]
	t88 := ev["afni"] + ev["brainvoyager"]
	software := mni + t88

	switch {
	case (mni > 0 && t88 == 0) || (software == 0 && ev["mni"] > 0 && ev["talairach"] == 0):
		return types.SpaceMNI
	case (t88 > 0 && mni == 0) || (software == 0 && ev["talairach"] > 0 && ev["mni"] == 0):
		return types.SpaceTalairach
	default:
		return types.SpaceUnknown
	}
}

// GuessSpace returns the most likely stereotactic space of an article's
// coordinates given its full text.
func GuessSpace(text string) types.Space {
	return CountSpaceTargets(text).Space()
}
