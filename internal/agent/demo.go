package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"

	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

var (
	isoDateRe     = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	inlineDateRe  = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
	destinationRe = regexp.MustCompile(`to ([A-Za-z ]+)`)
)

// DemoAgent generates demo conversations under the active prompt artifact.
// With no API key configured it produces deterministic offline conversations,
// which keeps the full pipeline runnable without external services.
type DemoAgent struct {
	client    *openai.Client
	model     string
	artifacts *artifact.Store
}

func NewDemoAgent(apiKey, model string, artifacts *artifact.Store) *DemoAgent {
	if model == "" {
		model = openai.GPT4o
	}
	if artifacts == nil {
		artifacts = artifact.NewStore("")
	}
	a := &DemoAgent{model: model, artifacts: artifacts}
	if apiKey != "" {
		a.client = openai.NewClient(apiKey)
	}
	return a
}

// Generate produces a single-exchange conversation for the user message.
func (a *DemoAgent) Generate(ctx context.Context, userMessage string) (*domain.Conversation, error) {
	return a.generate(ctx, userMessage, false)
}

// GenerateFaulty injects a malformed tool-call date, useful for seeding
// failure data.
func (a *DemoAgent) GenerateFaulty(ctx context.Context, userMessage string) (*domain.Conversation, error) {
	return a.generate(ctx, userMessage, true)
}

func (a *DemoAgent) generate(ctx context.Context, userMessage string, forceError bool) (*domain.Conversation, error) {
	prompt, promptPath := a.artifacts.ActivePrompt()

	var assistantMessage string
	var toolCall *domain.ToolCall
	var err error

	if a.client == nil {
		assistantMessage, toolCall = a.mockResponse(userMessage, forceError)
	} else {
		assistantMessage, toolCall, err = a.callWithTools(ctx, prompt, userMessage, forceError)
		if err != nil {
			return nil, fmt.Errorf("demo agent completion: %w", err)
		}
	}

	now := time.Now().UTC()
	assistantTurn := domain.Turn{
		TurnID:    2,
		Role:      domain.RoleAssistant,
		Content:   assistantMessage,
		Timestamp: &now,
		LatencyMs: 120,
	}
	if toolCall != nil {
		assistantTurn.ToolCalls = []domain.ToolCall{*toolCall}
	}

	conv := domain.NewConversation("demo_"+uuid.New().String(), []domain.Turn{
		{TurnID: 1, Role: domain.RoleUser, Content: userMessage, Timestamp: &now},
		assistantTurn,
	})
	conv.Metadata["source"] = "demo_agent"
	conv.Metadata["prompt_path"] = promptPath
	return conv, nil
}

// mockResponse builds a deterministic offline exchange. A tool call is only
// emitted when a destination can be extracted from the user message.
func (a *DemoAgent) mockResponse(userMessage string, forceError bool) (string, *domain.ToolCall) {
	destination := extractDestination(userMessage)
	if destination == "" {
		return "Mock response: I can help with that. Let me check options.", nil
	}

	params := map[string]any{"destination": destination}
	if date := inlineDateRe.FindString(userMessage); date != "" {
		params["date"] = date
	}
	if forceError {
		params["date"] = "2024/01/22"
	}

	result := runTool("flight_search", params)
	return fmt.Sprintf("I found some options for your trip to %s.", destination), &domain.ToolCall{
		ToolName:        "flight_search",
		Parameters:      params,
		Result:          result,
		ExecutionTimeMs: 120,
	}
}

func (a *DemoAgent) callWithTools(ctx context.Context, prompt, userMessage string, forceError bool) (string, *domain.ToolCall, error) {
	tools := []openai.Tool{{
		Type: openai.ToolTypeFunction,
		Function: &openai.FunctionDefinition{
			Name:        "flight_search",
			Description: "Search for flights by destination and date.",
			Parameters: json.RawMessage(`{
				"type": "object",
				"properties": {
					"destination": {"type": "string"},
					"date": {"type": "string"},
					"origin": {"type": "string"},
					"passengers": {"type": "integer"},
					"class": {"type": "string"}
				},
				"required": ["destination", "date"]
			}`),
		},
	}}

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: prompt},
		{Role: openai.ChatMessageRoleUser, Content: userMessage},
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: 0.2,
	})
	if err != nil {
		return "", nil, fmt.Errorf("initial completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in response")
	}

	choice := resp.Choices[0].Message
	if len(choice.ToolCalls) == 0 {
		return choice.Content, nil, nil
	}

	call := choice.ToolCalls[0]
	var args map[string]any
	if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
		args = map[string]any{}
	}
	if forceError {
		if _, ok := args["date"]; ok {
			args["date"] = "2024/01/22"
		}
	}

	result := runTool(call.Function.Name, args)
	resultJSON, _ := json.Marshal(result)

	messages = append(messages,
		openai.ChatCompletionMessage{
			Role:      openai.ChatMessageRoleAssistant,
			Content:   choice.Content,
			ToolCalls: choice.ToolCalls,
		},
		openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: call.ID,
			Name:       call.Function.Name,
			Content:    string(resultJSON),
		},
	)

	followup, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    messages,
		Temperature: 0.2,
	})
	if err != nil {
		return "", nil, fmt.Errorf("followup completion: %w", err)
	}
	if len(followup.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices in followup")
	}

	return followup.Choices[0].Message.Content, &domain.ToolCall{
		ToolName:        call.Function.Name,
		Parameters:      args,
		Result:          result,
		ExecutionTimeMs: 120,
	}, nil
}

// runTool returns a mocked tool result for the demo.
func runTool(toolName string, params map[string]any) *domain.ToolResult {
	if toolName != "flight_search" {
		return &domain.ToolResult{
			Status: "error",
			Error:  fmt.Sprintf("Unknown tool: %s", toolName),
		}
	}

	date := fmt.Sprintf("%v", params["date"])
	if params["date"] != nil && !isoDateRe.MatchString(date) {
		return &domain.ToolResult{
			Status: "error",
			Error:  fmt.Sprintf("Invalid date format: %s. Expected YYYY-MM-DD.", date),
			Data:   map[string]any{"params": params},
		}
	}

	return &domain.ToolResult{
		Status: "success",
		Data: map[string]any{
			"flights": []any{"F123", "F456"},
			"params":  params,
		},
	}
}

func extractDestination(text string) string {
	match := destinationRe.FindStringSubmatch(text)
	if match == nil {
		return ""
	}
	return titleCase(strings.TrimSpace(match[1]))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
