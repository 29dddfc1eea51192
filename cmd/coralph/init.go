package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/zleao/coralph/internal/config"
	"github.com/zleao/coralph/internal/session"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Scaffold the project files coralph needs",
	Long: `Init creates the prompt template, empty issue and task files, the
progress journal, and a starter config in the current directory.
Existing files are left alone unless --force is given.`,
	RunE:         runInit,
	SilenceUsage: true,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite files that already exist")
}

var promptTemplate = fmt.Sprintf(`# Objective

Work through the open issues and the task backlog below, one concrete
step per session. Use the tools to inspect state before deciding what
to do.

At the end of your response, describe what you accomplished this
session. If you learned something durable about the project, add it
under a "Learnings" heading as bullet points.

When every open issue is resolved and every task is done, end your
response with the following on a line of its own:

%s
`, session.CompletionMarker)

func runInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()

	files := []struct {
		path    string
		content []byte
	}{
		{cfg.Paths.Prompt, []byte(promptTemplate)},
		{cfg.Paths.Issues, []byte("[]\n")},
		{cfg.Paths.Tasks, []byte("[]\n")},
		{cfg.Paths.Progress, nil},
		{config.ProjectConfigName, starterConfig(cfg)},
	}

	for _, f := range files {
		if !initForce {
			if _, err := os.Stat(f.path); err == nil {
				fmt.Printf("  exists  %s\n", f.path)
				continue
			}
		}
		if err := os.WriteFile(f.path, f.content, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.path, err)
		}
		fmt.Printf("  created %s\n", f.path)
	}

	fmt.Println("\nSet ANTHROPIC_API_KEY (or configure Bedrock) and run 'coralph run'.")
	return nil
}

// starterConfig renders the default settings as a commented-out
// starting point, keyed the same way the loader reads them.
func starterConfig(cfg *config.Config) []byte {
	doc := map[string]any{
		"anthropic": map[string]any{
			"api_key":     "${ANTHROPIC_API_KEY}",
			"use_bedrock": cfg.Anthropic.UseBedrock,
		},
		"run": map[string]any{
			"model":          cfg.Run.Model,
			"max_iterations": cfg.Run.MaxIterations,
			"max_tokens":     cfg.Run.MaxTokens,
		},
		"paths": map[string]any{
			"prompt":   cfg.Paths.Prompt,
			"issues":   cfg.Paths.Issues,
			"tasks":    cfg.Paths.Tasks,
			"progress": cfg.Paths.Progress,
		},
		"display": map[string]any{
			"show_reasoning": cfg.Display.ShowReasoning,
			"color":          cfg.Display.Color,
		},
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil
	}
	return data
}
