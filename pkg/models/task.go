package models

// TaskStatus represents the current state of a generated task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates the task is being worked on.
	TaskStatusInProgress TaskStatus = "in-progress"
	// TaskStatusDone indicates the task completed.
	TaskStatusDone TaskStatus = "done"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusDone:
		return true
	default:
		return false
	}
}

// Task is an entry in the generated task backlog. The backlog is a
// mutable cache shared across iterations within one process run.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Description is what the task asks for.
	Description string `json:"description"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// OriginIssueID back-references the issue this task was derived
	// from, if any. Lookup only, never an ownership edge.
	OriginIssueID string `json:"origin_issue_id,omitempty"`
}

// FilterStatus returns tasks with the given status, preserving order.
func FilterStatus(tasks []Task, status TaskStatus) []Task {
	var out []Task
	for _, t := range tasks {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
