package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/registry"
	"github.com/zleao/coralph/internal/session"
)

// stubSession replays one text response and ends its turn.
type stubSession struct {
	ch chan session.Event
}

func newStubSession(text string) *stubSession {
	ch := make(chan session.Event, 2)
	ch <- session.Event{Type: session.EventTextDelta, Text: text}
	ch <- session.Event{Type: session.EventEnded, Reason: session.ReasonEndTurn}
	close(ch)
	return &stubSession{ch: ch}
}

func (s *stubSession) Events() <-chan session.Event { return s.ch }

func (s *stubSession) SendToolResult(ctx context.Context, callID, content string, isError bool) error {
	return nil
}

func (s *stubSession) Close() error { return nil }

// stubBackend counts sessions and answers each with the same text.
type stubBackend struct {
	text  string
	opens int
}

func (b *stubBackend) Open(ctx context.Context, prompt string) (session.Session, error) {
	b.opens++
	return newStubSession(b.text), nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(name string, args json.RawMessage) (string, error) {
	return "{}", nil
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newLoopFixture(t *testing.T, responseText string) (*stubBackend, *session.Orchestrator, *registry.Registry, *journal.Store) {
	t.Helper()
	dir := t.TempDir()
	backend := &stubBackend{text: responseText}
	store := journal.NewStore(filepath.Join(dir, "progress.log"))
	reg := registry.New(filepath.Join(dir, "issues.json"), filepath.Join(dir, "tasks.json"))
	orch := session.NewOrchestrator(backend, stubDispatcher{}, store, nil)
	return backend, orch, reg, store
}

func TestIterateCompletesOnFirstMarker(t *testing.T) {
	backend, orch, reg, store := newLoopFixture(t, "all objectives met\n"+session.CompletionMarker+"\n")

	completed, iterations, err := iterate(context.Background(), orch, reg, store, "# Objective\n", 5, nil)
	if err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if !completed {
		t.Error("completed = false, want true")
	}
	if iterations != 1 || backend.opens != 1 {
		t.Errorf("iterations = %d, sessions = %d, want 1 and 1", iterations, backend.opens)
	}
	if code := exitCode(err); code != 0 {
		t.Errorf("exit code = %d, want 0", code)
	}

	entries, lerr := store.Load()
	if lerr != nil {
		t.Fatal(lerr)
	}
	if len(entries) != 1 || !entries[0].Completed {
		t.Errorf("journal entries = %+v, want one completed entry", entries)
	}
}

func TestIterateStopsAtCap(t *testing.T) {
	backend, orch, reg, store := newLoopFixture(t, "still working on it\n")

	completed, iterations, err := iterate(context.Background(), orch, reg, store, "# Objective\n", 3, nil)
	if !errors.Is(err, errNotCompleted) {
		t.Fatalf("err = %v, want errNotCompleted", err)
	}
	if completed {
		t.Error("completed = true without marker")
	}
	if iterations != 3 || backend.opens != 3 {
		t.Errorf("iterations = %d, sessions = %d, want 3 and 3", iterations, backend.opens)
	}
	if code := exitCode(err); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}

	entries, lerr := store.Load()
	if lerr != nil {
		t.Fatal(lerr)
	}
	if len(entries) != 3 {
		t.Errorf("journal entries = %d, want 3", len(entries))
	}
}

func TestIterateFailsFastOnMalformedRegistry(t *testing.T) {
	backend, orch, _, store := newLoopFixture(t, "irrelevant\n")

	dir := t.TempDir()
	issuesPath := filepath.Join(dir, "issues.json")
	writeTestFile(t, issuesPath, "{not json")
	reg := registry.New(issuesPath, filepath.Join(dir, "tasks.json"))

	_, _, err := iterate(context.Background(), orch, reg, store, "# Objective\n", 3, nil)
	if err == nil || errors.Is(err, errNotCompleted) {
		t.Fatalf("err = %v, want a fatal load error", err)
	}
	if backend.opens != 0 {
		t.Errorf("sessions opened = %d, want 0", backend.opens)
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestExitCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errNotCompleted, 1},
		{fmt.Errorf("run interrupted: %w", errNotCompleted), 1},
		{errors.New("session open failed"), 2},
	}
	for _, tc := range cases {
		if got := exitCode(tc.err); got != tc.want {
			t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}
