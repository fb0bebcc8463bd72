package chat

import (
	"fmt"

	"github.com/hexops/gotextdiff"
	"github.com/hexops/gotextdiff/myers"
	"github.com/hexops/gotextdiff/span"
)

// promptDiff returns a unified diff between two system prompts, or "" when equal.
func promptDiff(oldName, newName, oldText, newText string) string {
	if oldText == newText {
		return ""
	}
	edits := myers.ComputeEdits(span.URIFromPath(oldName), oldText, newText)
	return fmt.Sprint(gotextdiff.ToUnified(oldName, newName, oldText, edits))
}
