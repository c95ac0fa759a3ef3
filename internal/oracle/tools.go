package oracle

import (
	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ShayCichocki/fractal/pkg/models"
)

// DelegateToolName is the tool an agent calls to split its task.
const DelegateToolName = "delegate_fractal_tasks"

// delegateInput is the argument payload of the delegate tool.
type delegateInput struct {
	Tasks  []models.Subtask `json:"tasks"`
	Reason string           `json:"reason"`
}

// delegateTool returns the schema of the delegate tool.
func delegateTool() anthropic.ToolUnionParam {
	return anthropic.ToolUnionParam{
		OfTool: &anthropic.ToolParam{
			Name:        DelegateToolName,
			Description: anthropic.String("Delegate complex tasks to multiple specialized agents in the fractal system"),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: map[string]interface{}{
					"tasks": map[string]interface{}{
						"type":        "array",
						"description": "Subtasks to hand to child agents",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"subtask": map[string]interface{}{
									"type":        "string",
									"description": "Specific subtask for a specialized agent",
								},
								"focus": map[string]interface{}{
									"type":        "string",
									"description": "What aspect this agent should focus on",
								},
							},
							"required": []string{"subtask", "focus"},
						},
					},
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "Why this task needs to be delegated",
					},
				},
				Required: []string{"tasks", "reason"},
			},
		},
	}
}

// toolChoice forces the delegate tool or leaves the choice to the model.
func toolChoice(force bool) anthropic.ToolChoiceUnionParam {
	if force {
		return anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: DelegateToolName},
		}
	}
	return anthropic.ToolChoiceUnionParam{
		OfAuto: &anthropic.ToolChoiceAutoParam{},
	}
}
