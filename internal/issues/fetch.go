// Package issues snapshots open tracker issues into the local issues
// file using the GitHub CLI. The loop itself never talks to the tracker;
// it only reads the snapshot this package writes.
package issues

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/zleao/coralph/pkg/models"
)

// fetchLimit caps how many issues one snapshot pulls.
const fetchLimit = 100

// ghIssue mirrors the fields requested from `gh issue list --json`.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

// CheckCLI verifies that the 'gh' CLI is available in PATH.
func CheckCLI() error {
	if _, err := exec.LookPath("gh"); err != nil {
		return fmt.Errorf("gh CLI not found in PATH\n\n" +
			"coralph fetches issues through the GitHub CLI.\n\n" +
			"Install it from https://cli.github.com and run 'gh auth login',\n" +
			"or skip fetching with --no-fetch and maintain the issues file by hand.")
	}
	return nil
}

// Fetch lists open issues via the gh CLI. repo may be empty to use the
// repository of the current directory.
func Fetch(ctx context.Context, repo string) ([]models.Issue, error) {
	args := []string{
		"issue", "list",
		"--state", "open",
		"--limit", strconv.Itoa(fetchLimit),
		"--json", "number,title,body,state,labels",
	}
	if repo != "" {
		args = append(args, "--repo", repo)
	}

	out, err := exec.CommandContext(ctx, "gh", args...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("gh issue list: %s", exitErr.Stderr)
		}
		return nil, fmt.Errorf("gh issue list: %w", err)
	}

	return parseIssues(out)
}

// Snapshot fetches open issues and writes them to path, replacing any
// previous snapshot in one rename.
func Snapshot(ctx context.Context, repo, path string) error {
	fetched, err := Fetch(ctx, repo)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(fetched, "", "  ")
	if err != nil {
		return fmt.Errorf("encode issues: %w", err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename snapshot into place: %w", err)
	}
	return nil
}

// parseIssues converts gh's JSON output into the snapshot representation.
func parseIssues(data []byte) ([]models.Issue, error) {
	var raw []ghIssue
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse gh output: %w", err)
	}

	issues := make([]models.Issue, 0, len(raw))
	for _, gi := range raw {
		issue := models.Issue{
			ID:    strconv.Itoa(gi.Number),
			Title: gi.Title,
			Body:  gi.Body,
			State: models.IssueOpen,
		}
		// gh reports state in upper case.
		if gi.State == "CLOSED" || gi.State == "closed" {
			issue.State = models.IssueClosed
		}
		for _, l := range gi.Labels {
			issue.Labels = append(issue.Labels, l.Name)
		}
		issues = append(issues, issue)
	}
	return issues, nil
}
