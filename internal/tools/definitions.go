package tools

import (
	"github.com/anthropics/anthropic-sdk-go"
)

// Definitions returns the tool schemas advertised to the model. The
// names here must stay in sync with kindNames; TestDefinitionsMatchKinds
// enforces that.
func Definitions() []anthropic.ToolUnionParam {
	return []anthropic.ToolUnionParam{
		{
			OfTool: &anthropic.ToolParam{
				Name:        KindListOpenIssues.Name(),
				Description: anthropic.String("List the open issues from the local tracker snapshot."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"label": map[string]interface{}{
							"type":        "string",
							"description": "Only return issues carrying this label (optional)",
						},
					},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        KindListTasks.Name(),
				Description: anthropic.String("List the generated task backlog."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"status": map[string]interface{}{
							"type":        "string",
							"description": "Only return tasks with this status: pending, in-progress, or done (optional)",
						},
					},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        KindProgressSummary.Name(),
				Description: anthropic.String("Summarize the most recent progress journal entries."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{},
				},
			},
		},
		{
			OfTool: &anthropic.ToolParam{
				Name:        KindSearchProgress.Name(),
				Description: anthropic.String("Search past progress entries by substring across summaries and learnings."),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: map[string]interface{}{
						"query": map[string]interface{}{
							"type":        "string",
							"description": "Substring to search for (case-insensitive)",
						},
						"limit": map[string]interface{}{
							"type":        "integer",
							"description": "Maximum matches to return (optional, default 5, cap 20)",
						},
					},
					Required: []string{"query"},
				},
			},
		},
	}
}
