package evaluator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
)

// Completer is the slice of the LLM client the judge needs.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// llmJudgeConfidence caps the judge below deterministic evaluators to
// reflect its non-determinism.
const llmJudgeConfidence = 0.85

// LLMJudgeEvaluator delegates scoring of helpfulness, factuality, and quality
// to an external reasoning model. With no client configured it falls back to
// a neutral mock result so the pipeline remains runnable offline.
type LLMJudgeEvaluator struct {
	client    Completer
	sanitizer *MessageSanitizer
}

func NewLLMJudgeEvaluator(client Completer) *LLMJudgeEvaluator {
	return &LLMJudgeEvaluator{
		client:    client,
		sanitizer: NewMessageSanitizer(),
	}
}

func (e *LLMJudgeEvaluator) Name() string {
	return "llm_judge"
}

func (e *LLMJudgeEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	if e.client == nil {
		return e.mockResult(), nil
	}

	prompt := e.buildPrompt(conv)

	resp, err := e.client.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "system", Content: "You are an expert conversation evaluator. Always respond in valid JSON."},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   1024,
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("llm completion: %w", err)
	}

	parsed, err := parseJudgeResponse(resp.Content)
	if err != nil {
		return nil, fmt.Errorf("parse judge response: %w", err)
	}

	result := e.processResponse(parsed)
	result.Metadata["model"] = resp.ModelName
	result.Metadata["total_tokens"] = resp.Usage.TotalTokens
	result.Metadata["cost_usd"] = llm.CalculateCost(resp.ModelName, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return result, nil
}

func (e *LLMJudgeEvaluator) buildPrompt(conv *domain.Conversation) string {
	var sb strings.Builder

	sb.WriteString("Evaluate the following conversation between a user and an AI assistant.\n\n")
	sb.WriteString("Your task is to assess the quality of the assistant's responses and identify any issues.\n\n")

	if len(conv.Metadata) > 0 {
		meta, _ := json.Marshal(conv.Metadata)
		sb.WriteString(fmt.Sprintf("Metadata: %s\n\n", meta))
	}

	for _, turn := range e.sanitizer.PrepareConversationForEval(conv.Turns) {
		sb.WriteString(fmt.Sprintf("[%s] (Turn %d):\n%s\n", strings.ToUpper(turn.Role), turn.TurnID, turn.Content))
		if len(turn.ToolCalls) > 0 {
			sb.WriteString("  Tool calls:\n")
			for _, tc := range turn.ToolCalls {
				params, _ := json.Marshal(tc.Parameters)
				sb.WriteString(fmt.Sprintf("    - %s(%s)\n", tc.ToolName, params))
				if tc.Result != nil {
					result, _ := json.Marshal(tc.Result)
					sb.WriteString(fmt.Sprintf("    - Result: %s\n", headRuneSafe(string(result), 200)))
				}
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString(`Return your evaluation as a JSON object with the following structure:
{
  "scores": {
    "helpfulness": <float 0-1>,
    "factuality": <float 0-1>,
    "quality": <float 0-1>
  },
  "reasoning": "<concise explanation for your scores>",
  "issues": [
    {
      "type": "low_helpfulness" | "low_factuality" | "low_quality",
      "severity": "low" | "medium" | "high",
      "description": "...",
      "turn_id": <int or null>,
      "suggested_fix": "..."
    }
  ]
}`)

	return sb.String()
}

type judgeIssue struct {
	Type         string `json:"type"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
	TurnID       *int   `json:"turn_id"`
	SuggestedFix string `json:"suggested_fix"`
}

type judgeResponse struct {
	Scores    map[string]float64 `json:"scores"`
	Reasoning string             `json:"reasoning"`
	Issues    []judgeIssue       `json:"issues"`
}

func parseJudgeResponse(content string) (*judgeResponse, error) {
	var parsed judgeResponse
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(parsed.Scores) == 0 {
		return nil, fmt.Errorf("judge response has no scores")
	}
	return &parsed, nil
}

func (e *LLMJudgeEvaluator) processResponse(resp *judgeResponse) *domain.EvaluatorResult {
	typeMapping := map[string]domain.IssueType{
		"low_helpfulness": domain.IssueLowHelpfulness,
		"low_factuality":  domain.IssueLowFactuality,
		"low_quality":     domain.IssueLowQuality,
	}
	severityMapping := map[string]domain.IssueSeverity{
		"low":    domain.SeverityLow,
		"medium": domain.SeverityMedium,
		"high":   domain.SeverityHigh,
	}

	var issues []domain.Issue
	for _, raw := range resp.Issues {
		issueType, ok := typeMapping[raw.Type]
		if !ok {
			issueType = domain.IssueLowQuality
		}
		severity, ok := severityMapping[raw.Severity]
		if !ok {
			severity = domain.SeverityMedium
		}
		issues = append(issues, domain.Issue{
			Type:         issueType,
			Severity:     severity,
			Description:  raw.Description,
			TurnID:       raw.TurnID,
			SuggestedFix: raw.SuggestedFix,
			Details:      map[string]any{"llm_detected": true},
		})
	}

	scores := make(map[string]float64, len(resp.Scores))
	for name, score := range resp.Scores {
		scores[name] = clampScore(score)
	}

	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores:        scores,
		Issues:        issues,
		Confidence:    llmJudgeConfidence,
		Metadata: map[string]any{
			"reasoning": resp.Reasoning,
			"mock":      false,
		},
	}
}

func (e *LLMJudgeEvaluator) mockResult() *domain.EvaluatorResult {
	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores: map[string]float64{
			"helpfulness": 0.8,
			"factuality":  0.85,
			"quality":     0.75,
		},
		Confidence: 0.0,
		Metadata: map[string]any{
			"reasoning": "Mock reasoning because no LLM client was configured.",
			"mock":      true,
		},
	}
}
