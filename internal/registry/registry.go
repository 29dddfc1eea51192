// Package registry holds the in-memory views over the two JSON-backed
// collections a run works from: the tracker issue snapshot (read-only)
// and the generated task backlog (read/write). Saves go through a
// write-then-rename so a crash never leaves a half-written file.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/zleao/coralph/pkg/models"
)

// Registry owns the issue and task collections for one process run.
type Registry struct {
	issuesPath string
	tasksPath  string

	mu     sync.RWMutex
	issues []models.Issue
	tasks  []taskRecord
}

// taskRecord pairs the decoded task with its raw JSON object so fields
// this version does not know about survive a load/save round trip.
type taskRecord struct {
	task models.Task
	raw  map[string]json.RawMessage
}

// New creates a registry over the given files. Call Load before use.
func New(issuesPath, tasksPath string) *Registry {
	return &Registry{issuesPath: issuesPath, tasksPath: tasksPath}
}

// Load reads both collections. A malformed file is a hard error: stale
// or corrupt input would silently degrade every iteration, so the loop
// must not start on it.
func (r *Registry) Load() error {
	if err := r.LoadIssues(); err != nil {
		return err
	}
	return r.LoadTasks()
}

// LoadIssues reads the issue snapshot. A missing file is an empty snapshot.
func (r *Registry) LoadIssues() error {
	data, err := os.ReadFile(r.issuesPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.issues = nil
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read issues file: %w", err)
	}

	var issues []models.Issue
	if err := json.Unmarshal(data, &issues); err != nil {
		return fmt.Errorf("parse issues file %s: %w", r.issuesPath, err)
	}

	r.mu.Lock()
	r.issues = issues
	r.mu.Unlock()
	return nil
}

// LoadTasks reads the task backlog. A missing file is an empty backlog.
func (r *Registry) LoadTasks() error {
	data, err := os.ReadFile(r.tasksPath)
	if err != nil {
		if os.IsNotExist(err) {
			r.mu.Lock()
			r.tasks = nil
			r.mu.Unlock()
			return nil
		}
		return fmt.Errorf("read tasks file: %w", err)
	}

	var rawTasks []map[string]json.RawMessage
	if err := json.Unmarshal(data, &rawTasks); err != nil {
		return fmt.Errorf("parse tasks file %s: %w", r.tasksPath, err)
	}

	records := make([]taskRecord, 0, len(rawTasks))
	for i, raw := range rawTasks {
		obj, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("re-encode task %d: %w", i, err)
		}
		var task models.Task
		if err := json.Unmarshal(obj, &task); err != nil {
			return fmt.Errorf("parse task %d in %s: %w", i, r.tasksPath, err)
		}
		if task.Status != "" && !task.Status.Valid() {
			return fmt.Errorf("task %q in %s has unknown status %q", task.ID, r.tasksPath, task.Status)
		}
		records = append(records, taskRecord{task: task, raw: raw})
	}

	r.mu.Lock()
	r.tasks = records
	r.mu.Unlock()
	return nil
}

// Issues returns a copy of the issue snapshot.
func (r *Registry) Issues() []models.Issue {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Issue, len(r.issues))
	copy(out, r.issues)
	return out
}

// OpenIssues returns only the issues open at snapshot time.
func (r *Registry) OpenIssues() []models.Issue {
	return models.FilterOpen(r.Issues())
}

// Tasks returns a copy of the task backlog.
func (r *Registry) Tasks() []models.Task {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Task, 0, len(r.tasks))
	for _, rec := range r.tasks {
		out = append(out, rec.task)
	}
	return out
}

// AddTask appends a task to the backlog. In-memory only until SaveTasks.
func (r *Registry) AddTask(task models.Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, taskRecord{task: task})
}

// SetTaskStatus updates one task's status.
func (r *Registry) SetTaskStatus(id string, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("invalid task status %q", status)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].task.ID == id {
			r.tasks[i].task.Status = status
			return nil
		}
	}
	return fmt.Errorf("task %q not found", id)
}

// SaveTasks writes the task backlog back to disk atomically. Known
// fields are re-serialized from the in-memory tasks; unknown fields from
// the loaded file are carried over untouched.
func (r *Registry) SaveTasks() error {
	r.mu.RLock()
	out := make([]map[string]json.RawMessage, 0, len(r.tasks))
	for _, rec := range r.tasks {
		obj, err := mergeTask(rec)
		if err != nil {
			r.mu.RUnlock()
			return err
		}
		out = append(out, obj)
	}
	r.mu.RUnlock()

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode tasks: %w", err)
	}
	data = append(data, '\n')

	return writeFileAtomic(r.tasksPath, data)
}

// mergeTask overlays the decoded task's known fields onto its raw object.
func mergeTask(rec taskRecord) (map[string]json.RawMessage, error) {
	known, err := json.Marshal(rec.task)
	if err != nil {
		return nil, fmt.Errorf("encode task %q: %w", rec.task.ID, err)
	}
	var knownFields map[string]json.RawMessage
	if err := json.Unmarshal(known, &knownFields); err != nil {
		return nil, fmt.Errorf("re-decode task %q: %w", rec.task.ID, err)
	}

	merged := make(map[string]json.RawMessage, len(rec.raw)+len(knownFields))
	for k, v := range rec.raw {
		merged[k] = v
	}
	for k, v := range knownFields {
		merged[k] = v
	}
	// A known field dropped from the struct (e.g. cleared origin) must
	// not resurrect from the raw copy.
	for _, k := range []string{"origin_issue_id"} {
		if _, ok := knownFields[k]; !ok {
			delete(merged, k)
		}
	}
	return merged, nil
}

// writeFileAtomic writes via a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s into place: %w", tmpName, err)
	}
	return nil
}
