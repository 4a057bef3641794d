package sandbox

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// buildUnifiedDiff computes a line-level unified diff between before and
// after, along with added/deleted line counts. Mirrors the teacher's
// buildDiffMetadata, generalized to work on sandbox-relative paths instead
// of a filesystem base directory.
func buildUnifiedDiff(relPath, before, after string) (diffText string, additions, deletions int) {
	if before == after {
		return "", 0, 0
	}

	dmp := diffmatchpatch.New()
	a, b, lineArray := dmp.DiffLinesToChars(before, after)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			additions += countLines(d.Text)
		case diffmatchpatch.DiffDelete:
			deletions += countLines(d.Text)
		}
	}

	patches := dmp.PatchMake(before, diffs)
	patchText := dmp.PatchToText(patches)
	if patchText == "" {
		return "", additions, deletions
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("--- %s\n", relPath))
	sb.WriteString(fmt.Sprintf("+++ %s\n", relPath))
	sb.WriteString(patchText)

	return sb.String(), additions, deletions
}

func countLines(text string) int {
	if text == "" {
		return 0
	}
	lines := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		lines++
	}
	return lines
}
