// Package models defines the shared data types for coralph.
package models

// IssueState represents the tracker-side state of an issue.
type IssueState string

const (
	// IssueOpen indicates the issue is still open in the tracker.
	IssueOpen IssueState = "open"
	// IssueClosed indicates the issue has been closed in the tracker.
	IssueClosed IssueState = "closed"
)

// Issue is a read-only snapshot of a tracker issue. The snapshot file is
// the source of truth for a run; coralph never writes issues back.
type Issue struct {
	// ID is the tracker-assigned identifier (issue number as a string).
	ID string `json:"id"`
	// Title is the issue title.
	Title string `json:"title"`
	// Body is the issue description.
	Body string `json:"body,omitempty"`
	// Labels are the tracker labels attached to the issue.
	Labels []string `json:"labels,omitempty"`
	// State is the tracker state at snapshot time.
	State IssueState `json:"state"`
}

// Open returns true if the issue was open at snapshot time.
func (i Issue) Open() bool {
	return i.State == IssueOpen
}

// FilterOpen returns only the open issues, preserving order.
func FilterOpen(issues []Issue) []Issue {
	var open []Issue
	for _, issue := range issues {
		if issue.Open() {
			open = append(open, issue)
		}
	}
	return open
}
