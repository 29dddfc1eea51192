package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/zleao/coralph/internal/display"
	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/tools"
)

const (
	maxSummaryLines = 3
	maxSummaryLen   = 400
	maxLearnings    = 10
)

// Dispatcher executes a named tool. Satisfied by *tools.Dispatcher.
type Dispatcher interface {
	Dispatch(name string, args json.RawMessage) (string, error)
}

// Outcome is the result of one iteration.
type Outcome struct {
	Iteration  int
	FullText   string
	Completed  bool
	ToolCalls  int
	ToolErrors int
	Cancelled  bool
	Err        error
}

// Orchestrator drives single iterations: it opens a session, consumes
// the event stream, dispatches tool calls, and records each iteration
// in the progress journal.
type Orchestrator struct {
	backend Backend
	tools   Dispatcher
	store   *journal.Store
	printer *display.Printer

	iteration int
}

func NewOrchestrator(backend Backend, dispatcher Dispatcher, store *journal.Store, printer *display.Printer) *Orchestrator {
	return &Orchestrator{
		backend: backend,
		tools:   dispatcher,
		store:   store,
		printer: printer,
	}
}

// RunOnce executes a single iteration against the given prompt. The
// iteration counter advances even when the session fails, so journal
// numbering stays monotonic. A journal entry is appended in every
// case, including cancellation.
func (o *Orchestrator) RunOnce(ctx context.Context, prompt string) Outcome {
	o.iteration++
	outcome := Outcome{Iteration: o.iteration}

	sess, err := o.backend.Open(ctx, prompt)
	if err != nil {
		outcome.Err = fmt.Errorf("open session: %w", err)
		o.record(outcome)
		return outcome
	}
	defer sess.Close()

	var text strings.Builder
	ended := false
consume:
	for {
		select {
		case <-ctx.Done():
			outcome.Cancelled = true
			break consume
		case ev, ok := <-sess.Events():
			if !ok {
				break consume
			}
			switch ev.Type {
			case EventTextDelta:
				text.WriteString(ev.Text)
				o.printer.StreamText(ev.Text)
			case EventToolCall:
				outcome.ToolCalls++
				o.printer.ToolCall(ev.ToolName)
				payload, derr := o.tools.Dispatch(ev.ToolName, ev.ToolInput)
				if derr != nil {
					outcome.ToolErrors++
					o.printer.ToolError(ev.ToolName, derr)
					payload = errorPayload(derr)
				}
				if serr := sess.SendToolResult(ctx, ev.CallID, payload, derr != nil); serr != nil {
					outcome.Err = fmt.Errorf("send tool result: %w", serr)
					break consume
				}
			case EventEnded:
				ended = true
				if ev.Err != nil {
					outcome.Err = ev.Err
				}
				break consume
			}
		}
	}
	o.printer.EndStream()

	// The producer closes the event channel without an ended event only
	// when its context was cancelled. The select above may have drained
	// the closed channel before noticing ctx.Done, so re-check here.
	if !outcome.Cancelled && !ended && outcome.Err == nil && ctx.Err() != nil {
		outcome.Cancelled = true
	}

	outcome.FullText = text.String()
	outcome.Completed = HasCompletionMarker(outcome.FullText)
	o.record(outcome)
	return outcome
}

// errorPayload turns a dispatch error into the JSON sent back to the
// model as the tool result.
func errorPayload(err error) string {
	var terr *tools.ToolError
	if errors.As(err, &terr) {
		return terr.Payload()
	}
	payload, merr := json.Marshal(map[string]string{
		"error":   "tool_failed",
		"message": err.Error(),
	})
	if merr != nil {
		return `{"error":"tool_failed"}`
	}
	return string(payload)
}

func (o *Orchestrator) record(outcome Outcome) {
	entry := journal.Entry{
		Iteration:  outcome.Iteration,
		Status:     statusFor(outcome),
		ToolCalls:  outcome.ToolCalls,
		ToolErrors: outcome.ToolErrors,
		Completed:  outcome.Completed,
		Summary:    summarize(outcome),
		Learnings:  extractLearnings(outcome.FullText),
	}
	if err := o.store.Append(entry); err != nil {
		o.printer.Warn("could not append progress entry: %v", err)
	}
}

func statusFor(outcome Outcome) journal.Status {
	switch {
	case outcome.Cancelled:
		return journal.StatusCancelled
	case outcome.Err != nil:
		return journal.StatusError
	case outcome.ToolErrors > 0:
		return journal.StatusToolErrors
	default:
		return journal.StatusOK
	}
}

// summarize condenses the iteration into a few journal lines: the
// leading non-empty text lines, prefixed with the failure cause when
// the iteration did not finish normally.
func summarize(outcome Outcome) string {
	var lines []string
	if outcome.Cancelled {
		lines = append(lines, "iteration cancelled before completion")
	}
	if outcome.Err != nil {
		lines = append(lines, "iteration failed: "+outcome.Err.Error())
	}
	for _, line := range strings.Split(outcome.FullText, "\n") {
		if len(lines) >= maxSummaryLines {
			break
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || trimmed == CompletionMarker {
			continue
		}
		if len(trimmed) > maxSummaryLen {
			cut := maxSummaryLen
			for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
				cut--
			}
			trimmed = trimmed[:cut]
		}
		lines = append(lines, trimmed)
	}
	if len(lines) == 0 {
		lines = append(lines, "(no output)")
	}
	return strings.Join(lines, "\n")
}

// extractLearnings pulls bullet lines that follow a "Learnings"
// heading in the assistant text. Anything else is left to the summary.
func extractLearnings(text string) []string {
	var learnings []string
	inSection := false
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(strings.Trim(trimmed, "#: *"))
		if lower == "learnings" || lower == "learning" {
			inSection = true
			continue
		}
		if !inSection {
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			learnings = append(learnings, strings.TrimSpace(trimmed[2:]))
			if len(learnings) >= maxLearnings {
				break
			}
			continue
		}
		if trimmed != "" {
			inSection = false
		}
	}
	return learnings
}
