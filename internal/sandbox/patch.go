package sandbox

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// fuzzyMatchThreshold is the minimum normalized similarity a candidate
// block must reach before it's accepted as the target of a hunk that
// failed to apply verbatim (mirrors the teacher's edit-tool threshold).
const fuzzyMatchThreshold = 0.7

// applyUnifiedDiff applies patch text to before, returning the patched
// content. diffmatchpatch's own PatchApply already tolerates small context
// drift (its bitap matcher has a configurable threshold/distance); when a
// hunk still fails outright — typically because the file has moved on
// further than that tolerance covers — each failing hunk is retried by
// locating the most similar block of the current text via Levenshtein
// distance and rewriting it directly, the same fallback the teacher's
// string-replace edit tool used.
func applyUnifiedDiff(patch, before string) (string, error) {
	// Skip the "--- path" / "+++ path" file header buildUnifiedDiff writes;
	// PatchFromText parses hunk text only.
	for strings.HasPrefix(patch, "--- ") || strings.HasPrefix(patch, "+++ ") {
		nl := strings.IndexByte(patch, '\n')
		if nl < 0 {
			patch = ""
			break
		}
		patch = patch[nl+1:]
	}

	dmp := diffmatchpatch.New()
	patches, err := dmp.PatchFromText(patch)
	if err != nil {
		return "", fmt.Errorf("invalid patch: %w", err)
	}

	after, applied := dmp.PatchApply(patches, before)
	allOK := true
	for _, ok := range applied {
		if !ok {
			allOK = false
			break
		}
	}
	if allOK {
		return after, nil
	}

	// Fall back hunk-by-hunk on the original text, since PatchApply's
	// partial application above may have scrambled context for the hunks
	// that did succeed.
	current := before
	for i, p := range patches {
		if applied[i] {
			continue
		}
		oldText, newText := hunkOldNew(p)
		if oldText == "" {
			return "", fmt.Errorf("hunk %d failed to apply and has no context to fuzzy-match against", i)
		}

		match, sim := findBestMatch(current, oldText)
		if match == "" || sim < fuzzyMatchThreshold {
			return "", fmt.Errorf("hunk %d failed to apply (best fuzzy match similarity %.2f)", i, sim)
		}
		current = strings.Replace(current, match, newText, 1)
	}

	return current, nil
}

// hunkOldNew reconstructs a patch hunk's pre- and post-image text from its
// line-level diff ops.
func hunkOldNew(p diffmatchpatch.Patch) (oldText, newText string) {
	var oldB, newB strings.Builder
	for _, d := range p.Diffs {
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			oldB.WriteString(d.Text)
			newB.WriteString(d.Text)
		case diffmatchpatch.DiffDelete:
			oldB.WriteString(d.Text)
		case diffmatchpatch.DiffInsert:
			newB.WriteString(d.Text)
		}
	}
	return oldB.String(), newB.String()
}

// findBestMatch finds the substring of text most similar to target,
// comparing line-for-line (single line target) or block-for-block
// (multi-line target).
func findBestMatch(text, target string) (string, float64) {
	lines := strings.Split(text, "\n")
	targetLines := strings.Split(target, "\n")

	bestMatch, bestSim := "", 0.0

	if len(targetLines) == 1 {
		for _, line := range lines {
			if sim := similarity(line, target); sim > bestSim {
				bestSim, bestMatch = sim, line
			}
		}
		return bestMatch, bestSim
	}

	targetLen := len(targetLines)
	for i := 0; i <= len(lines)-targetLen; i++ {
		block := strings.Join(lines[i:i+targetLen], "\n")
		if sim := similarity(block, target); sim > bestSim {
			bestSim, bestMatch = sim, block
		}
	}
	return bestMatch, bestSim
}

// similarity is normalized Levenshtein similarity in [0,1].
func similarity(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	if len(a) > 10000 || len(b) > 10000 {
		minLen, maxLen := len(a), len(b)
		if minLen > maxLen {
			minLen, maxLen = maxLen, minLen
		}
		return float64(minLen) / float64(maxLen)
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	return 1.0 - float64(dist)/float64(maxLen)
}
