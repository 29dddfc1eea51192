// Package prompt builds the outbound prompt for each iteration from the
// instruction template and the current issue/task/progress state.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/pkg/models"
)

// ProgressWindow is the fixed number of recent journal entries included
// in the prompt. Only the progress tail is ever truncated; the template
// and the issue/task snapshots always go out whole.
const ProgressWindow = 10

// Assemble concatenates the instruction template with the current state.
// It is a pure function: identical inputs produce byte-identical output.
// Order: template, issues, tasks, progress tail.
func Assemble(template string, issues []models.Issue, tasks []models.Task, progress []journal.Entry) string {
	var b strings.Builder

	b.WriteString(strings.TrimRight(template, "\n"))
	b.WriteString("\n\n## Open Issues\n\n")
	b.WriteString(encodeJSON(issues))
	b.WriteString("\n\n## Task Backlog\n\n")
	b.WriteString(encodeJSON(tasks))
	b.WriteString("\n\n## Recent Progress\n\n")

	tail := progress
	if len(tail) > ProgressWindow {
		tail = tail[len(tail)-ProgressWindow:]
	}
	if len(tail) == 0 {
		b.WriteString("(no progress recorded yet)\n")
		return b.String()
	}

	for _, e := range tail {
		fmt.Fprintf(&b, "Iteration %d (%s, %s):\n", e.Iteration, e.Timestamp.UTC().Format("2006-01-02 15:04"), e.Status)
		for _, line := range strings.Split(e.Summary, "\n") {
			b.WriteString("  ")
			b.WriteString(line)
			b.WriteString("\n")
		}
		for _, l := range e.Learnings {
			b.WriteString("  * ")
			b.WriteString(l)
			b.WriteString("\n")
		}
	}

	return b.String()
}

// encodeJSON renders a snapshot section. Marshal of a slice of plain
// structs cannot fail; the fallback keeps the signature side-effect free
// anyway.
func encodeJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	if string(data) == "null" {
		return "[]"
	}
	return string(data)
}
