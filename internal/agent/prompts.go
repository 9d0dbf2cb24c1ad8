package agent

import (
	"fmt"
	"strings"

	"github.com/taskmindhq/taskmind/internal/models"
)

// buildExtraInstructions renders context snippets and similar past learnings
// into per-run additional instructions. Returns "" when there is nothing to
// add, which skips the field on the run entirely.
func buildExtraInstructions(snippets []string, lessons []*models.LearningEntry) string {
	if len(snippets) == 0 && len(lessons) == 0 {
		return ""
	}

	var sb strings.Builder
	if len(snippets) > 0 {
		sb.WriteString("Relevant context from the knowledge base:\n")
		for _, s := range snippets {
			fmt.Fprintf(&sb, "- %s\n", s)
		}
	}
	if len(lessons) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("Lessons from similar past work (bias your approach accordingly):\n")
		for _, l := range lessons {
			fmt.Fprintf(&sb, "- [%s] %s", l.Outcome, l.Pattern)
			if l.Improvement != "" {
				fmt.Fprintf(&sb, " (improvement: %s)", l.Improvement)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
