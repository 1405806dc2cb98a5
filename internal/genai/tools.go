package genai

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"
)

// CoachToolDefinitions returns the function tools the coach assistant may call
// during a thread run. They are attached only to runs whose message type can
// plausibly use them, since their presence consumes input budget even unused.
func CoachToolDefinitions() []openai.AssistantToolUnionParam {
	return []openai.AssistantToolUnionParam{
		{
			OfFunction: &openai.FunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        "get_user_memory",
					Description: openai.String("Retrieve stored user coaching memories and preferences"),
					Parameters: shared.FunctionParameters{
						"type": "object",
						"properties": map[string]interface{}{
							"user_id": map[string]interface{}{"type": "string"},
							"memory_types": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
						},
						"required": []string{"user_id"},
					},
				},
			},
		},
		{
			OfFunction: &openai.FunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        "store_user_memory",
					Description: openai.String("Store important coaching insights and user preferences"),
					Parameters: shared.FunctionParameters{
						"type": "object",
						"properties": map[string]interface{}{
							"user_id":     map[string]interface{}{"type": "string"},
							"memory_type": map[string]interface{}{"type": "string"},
							"title":       map[string]interface{}{"type": "string"},
							"content":     map[string]interface{}{"type": "string"},
							"importance":  map[string]interface{}{"type": "number"},
						},
						"required": []string{"user_id", "memory_type", "title", "content"},
					},
				},
			},
		},
		{
			OfFunction: &openai.FunctionToolParam{
				Function: shared.FunctionDefinitionParam{
					Name:        "analyze_conversation_pattern",
					Description: openai.String("Analyze recent conversation messages for coaching insights"),
					Parameters: shared.FunctionParameters{
						"type": "object",
						"properties": map[string]interface{}{
							"user_id": map[string]interface{}{"type": "string"},
							"recent_messages": map[string]interface{}{
								"type":  "array",
								"items": map[string]interface{}{"type": "string"},
							},
							"analysis_type": map[string]interface{}{"type": "string"},
						},
						"required": []string{"user_id", "recent_messages"},
					},
				},
			},
		},
	}
}
