package tools

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/zleao/coralph/internal/journal"
	"github.com/zleao/coralph/internal/registry"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *registry.Registry, *journal.Store) {
	t.Helper()
	dir := t.TempDir()

	issuesPath := filepath.Join(dir, "issues.json")
	tasksPath := filepath.Join(dir, "tasks.json")
	issuesJSON := `[
  {"id":"1","title":"Fix login","body":"500 on login","labels":["bug"],"state":"open"},
  {"id":"2","title":"Old","state":"closed"},
  {"id":"3","title":"Add docs","labels":["docs"],"state":"open"}
]`
	tasksJSON := `[
  {"id":"t1","description":"write login test","status":"pending","origin_issue_id":"1"},
  {"id":"t2","description":"draft docs outline","status":"done"}
]`
	if err := os.WriteFile(issuesPath, []byte(issuesJSON), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(tasksPath, []byte(tasksJSON), 0644); err != nil {
		t.Fatal(err)
	}

	reg := registry.New(issuesPath, tasksPath)
	if err := reg.Load(); err != nil {
		t.Fatalf("registry load: %v", err)
	}

	store := journal.NewStore(filepath.Join(dir, "progress.log"))
	entries := []journal.Entry{
		{Iteration: 1, Summary: "bootstrapped the project", Learnings: []string{"viper wants mapstructure tags"}},
		{Iteration: 2, Summary: "fixed the login handler", Status: journal.StatusToolErrors},
		{Iteration: 3, Summary: "wrote docs skeleton"},
	}
	for _, e := range entries {
		if err := store.Append(e); err != nil {
			t.Fatalf("journal append: %v", err)
		}
	}

	return NewDispatcher(reg, store), reg, store
}

func dispatch(t *testing.T, d *Dispatcher, name, args string) map[string]any {
	t.Helper()
	payload, err := d.Dispatch(name, json.RawMessage(args))
	if err != nil {
		t.Fatalf("Dispatch(%s) failed: %v", name, err)
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		t.Fatalf("Dispatch(%s) payload is not JSON: %v", name, err)
	}
	return out
}

func TestKindNameRoundTrip(t *testing.T) {
	for _, k := range []Kind{KindListOpenIssues, KindListTasks, KindProgressSummary, KindSearchProgress} {
		got, ok := KindFromName(k.Name())
		if !ok || got != k {
			t.Errorf("KindFromName(%s) = %v, %v", k.Name(), got, ok)
		}
	}
	if _, ok := KindFromName("rm_rf"); ok {
		t.Error("unknown name should not resolve")
	}
}

func TestListOpenIssues(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	out := dispatch(t, d, "list_open_issues", "")
	issues := out["issues"].([]any)
	if len(issues) != 2 {
		t.Fatalf("got %d issues, want 2 (closed ones excluded)", len(issues))
	}

	out = dispatch(t, d, "list_open_issues", `{"label":"bug"}`)
	issues = out["issues"].([]any)
	if len(issues) != 1 {
		t.Fatalf("label filter returned %d issues, want 1", len(issues))
	}
	first := issues[0].(map[string]any)
	if first["id"] != "1" {
		t.Errorf("filtered issue id = %v, want 1", first["id"])
	}
}

func TestListTasks(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	out := dispatch(t, d, "list_tasks", `{"status":"pending"}`)
	tasks := out["tasks"].([]any)
	if len(tasks) != 1 {
		t.Fatalf("got %d pending tasks, want 1", len(tasks))
	}
}

func TestProgressSummary(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	out := dispatch(t, d, "progress_summary", "{}")
	if out["total_iterations"].(float64) != 3 {
		t.Errorf("total_iterations = %v, want 3", out["total_iterations"])
	}
	recent := out["recent"].([]any)
	if len(recent) != 3 {
		t.Errorf("recent = %d entries, want 3", len(recent))
	}
}

func TestSearchProgress(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	out := dispatch(t, d, "search_progress", `{"query":"LOGIN"}`)
	matches := out["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("got %d matches, want 1 (case-insensitive)", len(matches))
	}

	// Learnings are searched too.
	out = dispatch(t, d, "search_progress", `{"query":"mapstructure"}`)
	if len(out["matches"].([]any)) != 1 {
		t.Error("expected a match inside learnings")
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	_, err := d.Dispatch("delete_everything", nil)
	var terr *ToolError
	if !errors.As(err, &terr) {
		t.Fatalf("expected *ToolError, got %v", err)
	}
	if terr.Kind != ErrUnknownTool {
		t.Errorf("Kind = %v, want unknown_tool", terr.Kind)
	}

	var payload map[string]string
	if err := json.Unmarshal([]byte(terr.Payload()), &payload); err != nil {
		t.Fatalf("error payload is not JSON: %v", err)
	}
	if payload["error"] != "unknown_tool" {
		t.Errorf("payload error = %q, want unknown_tool", payload["error"])
	}
}

func TestDispatchInvalidArguments(t *testing.T) {
	d, _, _ := newTestDispatcher(t)

	cases := []struct {
		tool string
		args string
	}{
		{"list_tasks", `{"bogus": true}`},
		{"list_open_issues", `{"label": 7}`},
		{"search_progress", `{}`},
		{"search_progress", `{"query": "   "}`},
	}
	for _, tc := range cases {
		_, err := d.Dispatch(tc.tool, json.RawMessage(tc.args))
		var terr *ToolError
		if !errors.As(err, &terr) {
			t.Errorf("%s %s: expected *ToolError, got %v", tc.tool, tc.args, err)
			continue
		}
		if terr.Kind != ErrInvalidArguments {
			t.Errorf("%s %s: Kind = %v, want invalid_arguments", tc.tool, tc.args, terr.Kind)
		}
	}
}

// Dispatch is a pure read: registry and journal state must be identical
// before and after every built-in tool runs.
func TestDispatchDoesNotMutateState(t *testing.T) {
	d, reg, store := newTestDispatcher(t)

	issuesBefore := reg.Issues()
	tasksBefore := reg.Tasks()
	entriesBefore, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}

	calls := []struct {
		tool string
		args string
	}{
		{"list_open_issues", ""},
		{"list_tasks", ""},
		{"progress_summary", ""},
		{"search_progress", `{"query":"docs"}`},
	}
	for _, c := range calls {
		if _, err := d.Dispatch(c.tool, json.RawMessage(c.args)); err != nil {
			t.Fatalf("Dispatch(%s) failed: %v", c.tool, err)
		}
	}

	if !reflect.DeepEqual(reg.Issues(), issuesBefore) {
		t.Error("issues changed across dispatches")
	}
	if !reflect.DeepEqual(reg.Tasks(), tasksBefore) {
		t.Error("tasks changed across dispatches")
	}
	entriesAfter, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(entriesAfter, entriesBefore) {
		t.Error("journal changed across dispatches")
	}
}

func TestDefinitionsMatchKinds(t *testing.T) {
	defs := Definitions()
	if len(defs) != len(kindNames) {
		t.Fatalf("Definitions has %d tools, kinds has %d", len(defs), len(kindNames))
	}
	for _, def := range defs {
		if def.OfTool == nil {
			t.Fatal("definition missing OfTool")
		}
		if _, ok := KindFromName(def.OfTool.Name); !ok {
			t.Errorf("definition %q has no matching kind", def.OfTool.Name)
		}
	}
}
