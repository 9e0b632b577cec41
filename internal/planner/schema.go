package planner

import "planloom/internal/provider"

func planSchema() provider.Schema {
	return provider.Schema{
		Name: "task_plan",
		JSON: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"subtasks": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"description": map[string]any{
								"type":        "string",
								"description": "One concrete, independently actionable task",
							},
							"effort": map[string]any{
								"type": "string",
								"enum": []any{"low", "medium", "high"},
							},
						},
						"required": []any{"description", "effort"},
					},
				},
			},
			"required": []any{"subtasks"},
		},
	}
}

func effortSchema() provider.Schema {
	return provider.Schema{
		Name: "effort_estimate",
		JSON: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"effort": map[string]any{
					"type": "string",
					"enum": []any{"low", "medium", "high"},
				},
			},
			"required": []any{"effort"},
		},
	}
}
