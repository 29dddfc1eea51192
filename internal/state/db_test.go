package state

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBeginAndFinishRun(t *testing.T) {
	db := openTestDB(t)

	started := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	id, err := db.BeginRun(started)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	if id == "" {
		t.Fatal("BeginRun returned empty id")
	}

	finished := started.Add(5 * time.Minute)
	if err := db.FinishRun(id, finished, 4, true, 12000, 3400); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(runs))
	}
	r := runs[0]
	if r.ID != id {
		t.Errorf("ID = %q, want %q", r.ID, id)
	}
	if !r.StartedAt.Equal(started) {
		t.Errorf("StartedAt = %v, want %v", r.StartedAt, started)
	}
	if r.FinishedAt == nil || !r.FinishedAt.Equal(finished) {
		t.Errorf("FinishedAt = %v, want %v", r.FinishedAt, finished)
	}
	if r.Iterations != 4 || !r.Completed {
		t.Errorf("Iterations = %d, Completed = %v", r.Iterations, r.Completed)
	}
	if r.InputTokens != 12000 || r.OutputTokens != 3400 {
		t.Errorf("tokens = (%d, %d)", r.InputTokens, r.OutputTokens)
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	db := openTestDB(t)
	if err := db.FinishRun("no-such-run", time.Now(), 1, false, 0, 0); err == nil {
		t.Error("expected error for unknown run id")
	}
}

func TestListRunsOrderAndLimit(t *testing.T) {
	db := openTestDB(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.BeginRun(base.Add(time.Duration(i) * time.Hour))
		if err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		ids = append(ids, id)
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs not newest first: got %q, %q", runs[0].ID, runs[1].ID)
	}
	if runs[0].FinishedAt != nil {
		t.Error("unfinished run has FinishedAt set")
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := openTestDB(t)

	if _, err := db.BeginRun(time.Now().Add(-48 * time.Hour)); err != nil {
		t.Fatal(err)
	}
	if _, err := db.BeginRun(time.Now()); err != nil {
		t.Fatal(err)
	}

	purged, err := db.PurgeOldRuns(24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns: %v", err)
	}
	if purged != 1 {
		t.Errorf("purged = %d, want 1", purged)
	}
	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("remaining runs = %d, want 1", len(runs))
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if _, err := db.BeginRun(time.Now()); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	defer db2.Close()
	runs, err := db2.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("runs after reopen = %d, want 1", len(runs))
	}
}
