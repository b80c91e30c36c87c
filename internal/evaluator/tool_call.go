package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// ToolSchema describes the expected shape of one tool's parameters.
type ToolSchema struct {
	RequiredParams []string          `json:"required_params"`
	OptionalParams []string          `json:"optional_params"`
	ParamPatterns  map[string]string `json:"param_patterns"`
}

const isoDatePattern = `^\d{4}-\d{2}-\d{2}$`

// DefaultToolSchemas covers the demo travel-assistant toolset. In production
// this would come from a tool registry.
var DefaultToolSchemas = map[string]ToolSchema{
	"flight_search": {
		RequiredParams: []string{"destination"},
		OptionalParams: []string{"date", "origin", "passengers", "class"},
		ParamPatterns:  map[string]string{"date": isoDatePattern},
	},
	"hotel_search": {
		RequiredParams: []string{"location", "check_in"},
		OptionalParams: []string{"check_out", "guests", "rooms"},
		ParamPatterns: map[string]string{
			"check_in":  isoDatePattern,
			"check_out": isoDatePattern,
		},
	},
	"calendar_create": {
		RequiredParams: []string{"title", "start_time"},
		OptionalParams: []string{"end_time", "location", "attendees"},
	},
	"web_search": {
		RequiredParams: []string{"query"},
		OptionalParams: []string{"num_results", "date_range"},
	},
	"send_email": {
		RequiredParams: []string{"to", "subject", "body"},
		OptionalParams: []string{"cc", "bcc", "attachments"},
		ParamPatterns:  map[string]string{"to": `^[^@]+@[^@]+\.[^@]+$`},
	},
}

// ToolCallEvaluator validates tool invocations against known schemas:
// required parameters, unknown parameters and tools (strict mode only),
// regex-validated formats, and execution results.
type ToolCallEvaluator struct {
	schemas    map[string]ToolSchema
	strictMode bool
}

// NewToolCallEvaluator builds the evaluator. A nil schemas map falls back to
// the active tool-schema artifact if one exists, then to DefaultToolSchemas.
func NewToolCallEvaluator(schemas map[string]ToolSchema, strictMode bool, artifacts *artifact.Store) *ToolCallEvaluator {
	if schemas == nil && artifacts != nil {
		schemas = loadActiveSchemas(artifacts)
	}
	if schemas == nil {
		schemas = DefaultToolSchemas
	}
	return &ToolCallEvaluator{schemas: schemas, strictMode: strictMode}
}

func loadActiveSchemas(artifacts *artifact.Store) map[string]ToolSchema {
	data, _ := artifacts.ActiveToolSchemaJSON()
	if data == nil {
		return nil
	}
	var schemas map[string]ToolSchema
	if err := json.Unmarshal(data, &schemas); err != nil {
		return nil
	}
	if len(schemas) == 0 {
		return nil
	}
	return schemas
}

func (e *ToolCallEvaluator) Name() string {
	return "tool_call"
}

func (e *ToolCallEvaluator) validateToolCall(tc *domain.ToolCall, turnID int) []domain.Issue {
	var issues []domain.Issue

	schema, known := e.schemas[tc.ToolName]
	if !known {
		if e.strictMode {
			knownTools := make([]string, 0, len(e.schemas))
			for name := range e.schemas {
				knownTools = append(knownTools, name)
			}
			id := turnID
			issues = append(issues, domain.Issue{
				Type:        domain.IssueToolHallucination,
				Severity:    domain.SeverityHigh,
				Description: fmt.Sprintf("Unknown tool '%s' - possible hallucination", tc.ToolName),
				TurnID:      &id,
				Details:     map[string]any{"tool": tc.ToolName, "known_tools": knownTools},
			})
		}
		return issues
	}

	knownParams := make(map[string]struct{}, len(schema.RequiredParams)+len(schema.OptionalParams))
	for _, p := range schema.RequiredParams {
		knownParams[p] = struct{}{}
	}
	for _, p := range schema.OptionalParams {
		knownParams[p] = struct{}{}
	}

	for _, param := range schema.RequiredParams {
		if _, ok := tc.Parameters[param]; !ok {
			id := turnID
			issues = append(issues, domain.Issue{
				Type:         domain.IssueMissingParam,
				Severity:     domain.SeverityHigh,
				Description:  fmt.Sprintf("Tool '%s' missing required parameter: %s", tc.ToolName, param),
				TurnID:       &id,
				Details:      map[string]any{"tool": tc.ToolName, "param": param},
				SuggestedFix: fmt.Sprintf("Add the '%s' parameter to the %s call", param, tc.ToolName),
			})
		}
	}

	if e.strictMode {
		for param := range tc.Parameters {
			if _, ok := knownParams[param]; !ok {
				id := turnID
				issues = append(issues, domain.Issue{
					Type:        domain.IssueInvalidParam,
					Severity:    domain.SeverityMedium,
					Description: fmt.Sprintf("Tool '%s' has unknown parameter: %s", tc.ToolName, param),
					TurnID:      &id,
					Details:     map[string]any{"tool": tc.ToolName, "param": param},
				})
			}
		}
	}

	for param, pattern := range schema.ParamPatterns {
		raw, ok := tc.Parameters[param]
		if !ok {
			continue
		}
		value := fmt.Sprintf("%v", raw)
		matched, err := regexp.MatchString(pattern, value)
		if err != nil || !matched {
			id := turnID
			issues = append(issues, domain.Issue{
				Type:        domain.IssueInvalidParam,
				Severity:    domain.SeverityHigh,
				Description: fmt.Sprintf("Tool '%s' parameter '%s' has invalid format: '%s'", tc.ToolName, param, value),
				TurnID:      &id,
				Details: map[string]any{
					"tool":             tc.ToolName,
					"param":            param,
					"value":            value,
					"expected_pattern": pattern,
				},
				SuggestedFix: fmt.Sprintf("Parameter '%s' should match pattern: %s", param, pattern),
			})
		}
	}

	return issues
}

func (e *ToolCallEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	var issues []domain.Issue

	totalToolCalls := 0
	selectionIssues := 0
	paramIssues := 0
	hallucinationIssues := 0
	executionFailures := 0

	for i := range conv.Turns {
		turn := &conv.Turns[i]
		if turn.Role != domain.RoleAssistant {
			continue
		}

		for j := range turn.ToolCalls {
			tc := &turn.ToolCalls[j]
			totalToolCalls++

			callIssues := e.validateToolCall(tc, turn.TurnID)
			issues = append(issues, callIssues...)

			for _, issue := range callIssues {
				switch issue.Type {
				case domain.IssueToolHallucination:
					hallucinationIssues++
				case domain.IssueInvalidTool:
					selectionIssues++
				case domain.IssueInvalidParam, domain.IssueMissingParam:
					paramIssues++
				}
			}

			if tc.Result != nil && tc.Result.Error != "" {
				id := turn.TurnID
				issues = append(issues, domain.Issue{
					Type:        domain.IssueExecutionFailed,
					Severity:    domain.SeverityHigh,
					Description: fmt.Sprintf("Tool '%s' execution failed", tc.ToolName),
					TurnID:      &id,
					Details:     map[string]any{"tool": tc.ToolName, "error": tc.Result.Error},
				})
				executionFailures++
			}
		}
	}

	if totalToolCalls == 0 {
		return &domain.EvaluatorResult{
			EvaluatorName: e.Name(),
			Scores: map[string]float64{
				"tool_selection":    1.0,
				"param_accuracy":    1.0,
				"no_hallucination":  1.0,
				"execution_success": 1.0,
			},
			Confidence: 1.0,
			Metadata:   map[string]any{"total_tool_calls": 0, "note": "No tool calls in conversation"},
		}, nil
	}

	total := float64(totalToolCalls)
	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores: map[string]float64{
			"tool_selection":    clampScore(1.0 - float64(selectionIssues)/total),
			"param_accuracy":    clampScore(1.0 - float64(paramIssues)/total),
			"no_hallucination":  clampScore(1.0 - float64(hallucinationIssues)/total),
			"execution_success": clampScore(1.0 - float64(executionFailures)/total),
		},
		Issues:     issues,
		Confidence: 0.95,
		Metadata: map[string]any{
			"total_tool_calls":     totalToolCalls,
			"selection_issues":     selectionIssues,
			"param_issues":         paramIssues,
			"hallucination_issues": hallucinationIssues,
			"execution_failures":   executionFailures,
		},
	}, nil
}
