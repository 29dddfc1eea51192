// Package journal implements the append-only progress log for coralph.
// Each loop iteration appends exactly one entry; entries are never
// rewritten. The file is plain UTF-8 text so it stays readable (and
// greppable) without tooling.
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status classifies how an iteration went. A tool-call failure does not
// fail the iteration; it is recorded distinctly so later runs can see it.
type Status string

const (
	// StatusOK indicates the iteration ran cleanly.
	StatusOK Status = "ok"
	// StatusToolErrors indicates the iteration finished but one or more
	// tool calls failed and were reported back to the assistant.
	StatusToolErrors Status = "tool-errors"
	// StatusCancelled indicates the iteration was interrupted.
	StatusCancelled Status = "cancelled"
	// StatusError indicates a session-level failure.
	StatusError Status = "error"
)

// Separator is the line written between journal entries. It is part of
// the on-disk format: a line consisting of exactly eight dashes.
const Separator = "--------"

const headerPrefix = "### iteration "

// Entry is one iteration's progress record.
type Entry struct {
	// ID uniquely identifies the entry. Assigned on append if empty.
	ID string
	// Iteration is the 1-based loop iteration index.
	Iteration int
	// Timestamp is when the entry was appended.
	Timestamp time.Time
	// Status classifies the iteration outcome.
	Status Status
	// ToolCalls is the number of tool calls dispatched.
	ToolCalls int
	// ToolErrors is the number of tool calls that failed.
	ToolErrors int
	// Completed records whether the completion marker was seen.
	Completed bool
	// Summary is a short free-form description of the iteration.
	Summary string
	// Learnings are durable observations extracted from the response,
	// in the order they appeared.
	Learnings []string
}

// Store owns the journal file. It is the only writer; other components
// read through it.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the journal at path. The file is created
// lazily on first append.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the journal file location.
func (s *Store) Path() string {
	return s.path
}

// Append writes one entry to the end of the journal. The entry's ID and
// Timestamp are assigned if unset. Append never rewrites existing data.
func (s *Store) Append(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	if e.Status == "" {
		e.Status = StatusOK
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create journal directory: %w", err)
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatEntry(e)); err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Load reads every entry in append order. A missing file is an empty
// journal, not an error.
func (s *Store) Load() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal: %w", err)
	}

	entries, err := parseEntries(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse journal %s: %w", s.path, err)
	}
	return entries, nil
}

// Query re-reads the journal and returns the entries matching pred, in
// append order. Each call restarts from the file, so callers always see
// entries appended since their last query.
func (s *Store) Query(pred func(Entry) bool) ([]Entry, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}

	var matches []Entry
	for _, e := range entries {
		if pred(e) {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Tail returns the most recent n entries in append order.
func (s *Store) Tail(n int) ([]Entry, error) {
	entries, err := s.Load()
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(entries) <= n {
		return entries, nil
	}
	return entries[len(entries)-n:], nil
}

// formatEntry serializes one entry, including the trailing separator.
func formatEntry(e Entry) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s%d | %s | id=%s | status=%s | tools=%d errs=%d | completed=%t\n",
		headerPrefix, e.Iteration, e.Timestamp.UTC().Format(time.RFC3339),
		e.ID, e.Status, e.ToolCalls, e.ToolErrors, e.Completed)

	if e.Summary != "" {
		for _, line := range strings.Split(e.Summary, "\n") {
			b.WriteString(escapeLine(line))
			b.WriteString("\n")
		}
	}
	for _, l := range e.Learnings {
		// Learnings are single-line by contract.
		l = strings.ReplaceAll(l, "\n", " ")
		b.WriteString("* ")
		b.WriteString(l)
		b.WriteString("\n")
	}

	b.WriteString(Separator)
	b.WriteString("\n")
	return b.String()
}

// escapeLine keeps summary lines from being mistaken for structure.
func escapeLine(line string) string {
	if line == Separator || strings.HasPrefix(line, headerPrefix) || strings.HasPrefix(line, "* ") {
		return " " + line
	}
	return line
}

func parseEntries(data string) ([]Entry, error) {
	var entries []Entry
	var cur *Entry
	var summary []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Summary = strings.TrimRight(strings.Join(summary, "\n"), "\n ")
		entries = append(entries, *cur)
		cur = nil
		summary = nil
	}

	for _, line := range strings.Split(data, "\n") {
		switch {
		case strings.HasPrefix(line, headerPrefix):
			flush()
			e, err := parseHeader(line)
			if err != nil {
				return nil, err
			}
			cur = &e
		case line == Separator:
			flush()
		case cur == nil:
			// Ignore stray text outside an entry (e.g. trailing newline).
			if strings.TrimSpace(line) != "" {
				return nil, fmt.Errorf("unexpected line outside entry: %q", line)
			}
		case strings.HasPrefix(line, "* "):
			cur.Learnings = append(cur.Learnings, strings.TrimPrefix(line, "* "))
		default:
			summary = append(summary, strings.TrimPrefix(line, " "))
		}
	}
	flush()

	return entries, nil
}

func parseHeader(line string) (Entry, error) {
	var e Entry

	rest := strings.TrimPrefix(line, headerPrefix)
	fields := strings.Split(rest, " | ")
	if len(fields) != 6 {
		return e, fmt.Errorf("malformed entry header: %q", line)
	}

	iter, err := strconv.Atoi(fields[0])
	if err != nil {
		return e, fmt.Errorf("malformed iteration in header %q: %w", line, err)
	}
	e.Iteration = iter

	ts, err := time.Parse(time.RFC3339, fields[1])
	if err != nil {
		return e, fmt.Errorf("malformed timestamp in header %q: %w", line, err)
	}
	e.Timestamp = ts

	e.ID = strings.TrimPrefix(fields[2], "id=")
	e.Status = Status(strings.TrimPrefix(fields[3], "status="))

	if _, err := fmt.Sscanf(fields[4], "tools=%d errs=%d", &e.ToolCalls, &e.ToolErrors); err != nil {
		return e, fmt.Errorf("malformed tool counts in header %q: %w", line, err)
	}

	completed, err := strconv.ParseBool(strings.TrimPrefix(fields[5], "completed="))
	if err != nil {
		return e, fmt.Errorf("malformed completed flag in header %q: %w", line, err)
	}
	e.Completed = completed

	return e, nil
}
