// Package tools implements the closed set of read-only query tools the
// assistant may call during a session. Tool calls never mutate state;
// they are views over the task registry and the progress journal.
package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/registry"
)

// Kind enumerates the built-in tools. The set is closed: dispatch is an
// exhaustive switch, not a name lookup into a mutable table.
type Kind int

const (
	// KindListOpenIssues lists the open issues from the snapshot.
	KindListOpenIssues Kind = iota
	// KindListTasks lists the generated task backlog.
	KindListTasks
	// KindProgressSummary summarizes the recent progress entries.
	KindProgressSummary
	// KindSearchProgress searches progress entries by substring.
	KindSearchProgress
)

var kindNames = [...]string{
	KindListOpenIssues:  "list_open_issues",
	KindListTasks:       "list_tasks",
	KindProgressSummary: "progress_summary",
	KindSearchProgress:  "search_progress",
}

// Name returns the wire name of the tool.
func (k Kind) Name() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// KindFromName resolves a wire name to a Kind.
func KindFromName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return Kind(k), true
		}
	}
	return 0, false
}

// Result caps. Tool output feeds straight back into the next prompt, so
// every tool bounds its payload.
const (
	maxIssueResults  = 50
	maxTaskResults   = 100
	summaryWindow    = 10
	maxSearchResults = 20
	defaultSearchHit = 5
)

// ErrorKind classifies recoverable tool failures.
type ErrorKind string

const (
	// ErrUnknownTool means the requested tool name is not in the set.
	ErrUnknownTool ErrorKind = "unknown_tool"
	// ErrInvalidArguments means the arguments did not match the tool's shape.
	ErrInvalidArguments ErrorKind = "invalid_arguments"
	// ErrQueryFailed means the underlying read failed.
	ErrQueryFailed ErrorKind = "query_failed"
)

// ToolError is a recoverable dispatch failure. It is reported back into
// the conversation, never escalated to the run.
type ToolError struct {
	Kind    ErrorKind
	Tool    string
	Message string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s: %s: %s", e.Tool, e.Kind, e.Message)
}

// Payload serializes the error for the assistant.
func (e *ToolError) Payload() string {
	data, _ := json.Marshal(map[string]string{
		"error":   string(e.Kind),
		"tool":    e.Tool,
		"message": e.Message,
	})
	return string(data)
}

// Dispatcher resolves tool calls against the registry and journal.
type Dispatcher struct {
	reg   *registry.Registry
	store *journal.Store
}

// NewDispatcher creates a dispatcher over the given state.
func NewDispatcher(reg *registry.Registry, store *journal.Store) *Dispatcher {
	return &Dispatcher{reg: reg, store: store}
}

// Dispatch runs the named tool with the given JSON arguments and returns
// a JSON payload. Failures come back as *ToolError.
func (d *Dispatcher) Dispatch(name string, args json.RawMessage) (string, error) {
	kind, ok := KindFromName(name)
	if !ok {
		return "", &ToolError{Kind: ErrUnknownTool, Tool: name, Message: fmt.Sprintf("no tool named %q", name)}
	}

	switch kind {
	case KindListOpenIssues:
		return d.listOpenIssues(args)
	case KindListTasks:
		return d.listTasks(args)
	case KindProgressSummary:
		return d.progressSummary(args)
	case KindSearchProgress:
		return d.searchProgress(args)
	}
	// Unreachable while kindNames and this switch stay in sync.
	return "", &ToolError{Kind: ErrUnknownTool, Tool: name, Message: "unhandled tool kind"}
}

// decodeArgs unmarshals args strictly; unknown or mistyped fields are an
// InvalidArguments error.
func decodeArgs(tool string, args json.RawMessage, target any) *ToolError {
	if len(bytes.TrimSpace(args)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return &ToolError{Kind: ErrInvalidArguments, Tool: tool, Message: err.Error()}
	}
	return nil
}

func (d *Dispatcher) listOpenIssues(args json.RawMessage) (string, error) {
	var params struct {
		Label string `json:"label"`
	}
	if terr := decodeArgs(kindNames[KindListOpenIssues], args, &params); terr != nil {
		return "", terr
	}

	issues := d.reg.OpenIssues()
	if params.Label != "" {
		filtered := issues[:0]
		for _, issue := range issues {
			for _, l := range issue.Labels {
				if l == params.Label {
					filtered = append(filtered, issue)
					break
				}
			}
		}
		issues = filtered
	}

	truncated := false
	if len(issues) > maxIssueResults {
		issues = issues[:maxIssueResults]
		truncated = true
	}

	return encodePayload(map[string]any{
		"issues":    issues,
		"truncated": truncated,
	})
}

func (d *Dispatcher) listTasks(args json.RawMessage) (string, error) {
	var params struct {
		Status string `json:"status"`
	}
	if terr := decodeArgs(kindNames[KindListTasks], args, &params); terr != nil {
		return "", terr
	}

	tasks := d.reg.Tasks()
	if params.Status != "" {
		filtered := tasks[:0]
		for _, task := range tasks {
			if string(task.Status) == params.Status {
				filtered = append(filtered, task)
			}
		}
		tasks = filtered
	}

	truncated := false
	if len(tasks) > maxTaskResults {
		tasks = tasks[:maxTaskResults]
		truncated = true
	}

	return encodePayload(map[string]any{
		"tasks":     tasks,
		"truncated": truncated,
	})
}

func (d *Dispatcher) progressSummary(args json.RawMessage) (string, error) {
	var params struct{}
	if terr := decodeArgs(kindNames[KindProgressSummary], args, &params); terr != nil {
		return "", terr
	}

	all, err := d.store.Load()
	if err != nil {
		return "", &ToolError{Kind: ErrQueryFailed, Tool: kindNames[KindProgressSummary], Message: err.Error()}
	}

	recent := all
	if len(recent) > summaryWindow {
		recent = recent[len(recent)-summaryWindow:]
	}

	return encodePayload(map[string]any{
		"total_iterations": len(all),
		"recent":           summarizeEntries(recent),
	})
}

func (d *Dispatcher) searchProgress(args json.RawMessage) (string, error) {
	tool := kindNames[KindSearchProgress]

	var params struct {
		Query string `json:"query"`
		Limit int    `json:"limit"`
	}
	if terr := decodeArgs(tool, args, &params); terr != nil {
		return "", terr
	}
	if strings.TrimSpace(params.Query) == "" {
		return "", &ToolError{Kind: ErrInvalidArguments, Tool: tool, Message: "query must not be empty"}
	}

	limit := params.Limit
	if limit <= 0 {
		limit = defaultSearchHit
	}
	if limit > maxSearchResults {
		limit = maxSearchResults
	}

	needle := strings.ToLower(params.Query)
	matches, err := d.store.Query(func(e journal.Entry) bool {
		if strings.Contains(strings.ToLower(e.Summary), needle) {
			return true
		}
		for _, l := range e.Learnings {
			if strings.Contains(strings.ToLower(l), needle) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return "", &ToolError{Kind: ErrQueryFailed, Tool: tool, Message: err.Error()}
	}

	truncated := false
	if len(matches) > limit {
		// Most recent matches are the most useful ones.
		matches = matches[len(matches)-limit:]
		truncated = true
	}

	return encodePayload(map[string]any{
		"matches":   summarizeEntries(matches),
		"truncated": truncated,
	})
}

// entrySummary is the serialized view of a journal entry for tools.
type entrySummary struct {
	Iteration int      `json:"iteration"`
	Timestamp string   `json:"timestamp"`
	Status    string   `json:"status"`
	Completed bool     `json:"completed"`
	Summary   string   `json:"summary"`
	Learnings []string `json:"learnings,omitempty"`
}

func summarizeEntries(entries []journal.Entry) []entrySummary {
	out := make([]entrySummary, 0, len(entries))
	for _, e := range entries {
		out = append(out, entrySummary{
			Iteration: e.Iteration,
			Timestamp: e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
			Status:    string(e.Status),
			Completed: e.Completed,
			Summary:   e.Summary,
			Learnings: e.Learnings,
		})
	}
	return out
}

func encodePayload(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &ToolError{Kind: ErrQueryFailed, Tool: "", Message: err.Error()}
	}
	return string(data), nil
}
