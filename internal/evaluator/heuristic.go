package evaluator

import (
	"context"
	"fmt"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

const (
	defaultMaxLatencyMs  = 5000
	defaultMaxTurnLength = 10000
)

// HeuristicEvaluator runs fast deterministic checks: empty or overlong turn
// content, missing required metadata fields, and assistant latency above a
// threshold.
type HeuristicEvaluator struct {
	maxLatencyMs           float64
	maxTurnLength          int
	requiredMetadataFields []string
}

func NewHeuristicEvaluator(maxLatencyMs float64, maxTurnLength int, requiredFields []string) *HeuristicEvaluator {
	if maxLatencyMs <= 0 {
		maxLatencyMs = defaultMaxLatencyMs
	}
	if maxTurnLength <= 0 {
		maxTurnLength = defaultMaxTurnLength
	}
	return &HeuristicEvaluator{
		maxLatencyMs:           maxLatencyMs,
		maxTurnLength:          maxTurnLength,
		requiredMetadataFields: requiredFields,
	}
}

func (e *HeuristicEvaluator) Name() string {
	return "heuristic"
}

func (e *HeuristicEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	var issues []domain.Issue

	formatIssues := 0
	fieldIssues := 0
	latencyIssues := 0
	assistantTurns := 0

	for _, field := range e.requiredMetadataFields {
		if _, ok := conv.Metadata[field]; !ok {
			issues = append(issues, domain.Issue{
				Type:        domain.IssueMissingField,
				Severity:    domain.SeverityMedium,
				Description: fmt.Sprintf("Missing required metadata field: %s", field),
				Details:     map[string]any{"field": field, "location": "metadata"},
			})
			fieldIssues++
		}
	}

	for i := range conv.Turns {
		turn := &conv.Turns[i]

		if strings.TrimSpace(turn.Content) == "" {
			turnID := turn.TurnID
			issues = append(issues, domain.Issue{
				Type:        domain.IssueFormatError,
				Severity:    domain.SeverityHigh,
				Description: fmt.Sprintf("Turn %d has empty content", turn.TurnID),
				TurnID:      &turnID,
				Details:     map[string]any{"role": turn.Role},
			})
			formatIssues++
		}

		if len(turn.Content) > e.maxTurnLength {
			turnID := turn.TurnID
			issues = append(issues, domain.Issue{
				Type:        domain.IssueFormatError,
				Severity:    domain.SeverityLow,
				Description: fmt.Sprintf("Turn %d exceeds maximum length (%d > %d)", turn.TurnID, len(turn.Content), e.maxTurnLength),
				TurnID:      &turnID,
				Details:     map[string]any{"length": len(turn.Content), "max": e.maxTurnLength},
			})
			formatIssues++
		}

		if turn.Role == domain.RoleAssistant {
			assistantTurns++

			if turn.LatencyMs > e.maxLatencyMs {
				turnID := turn.TurnID
				issues = append(issues, domain.Issue{
					Type:        domain.IssueLatencyExceeded,
					Severity:    domain.SeverityMedium,
					Description: fmt.Sprintf("Turn %d latency exceeded threshold (%.0fms > %.0fms)", turn.TurnID, turn.LatencyMs, e.maxLatencyMs),
					TurnID:      &turnID,
					Details:     map[string]any{"latency_ms": turn.LatencyMs, "threshold_ms": e.maxLatencyMs},
				})
				latencyIssues++
			}
		}
	}

	totalTurns := len(conv.Turns)

	formatScore := 1.0 - float64(formatIssues)/float64(max(totalTurns, 1))
	fieldScore := 1.0
	if len(e.requiredMetadataFields) > 0 {
		fieldScore = 1.0 - float64(fieldIssues)/float64(len(e.requiredMetadataFields))
	}
	latencyScore := 1.0
	if assistantTurns > 0 {
		latencyScore = 1.0 - float64(latencyIssues)/float64(assistantTurns)
	}

	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores: map[string]float64{
			"format_compliance": clampScore(formatScore),
			"required_fields":   clampScore(fieldScore),
			"latency_ok":        clampScore(latencyScore),
		},
		Issues:     issues,
		Confidence: 1.0,
		Metadata: map[string]any{
			"total_turns":     totalTurns,
			"assistant_turns": assistantTurns,
			"format_issues":   formatIssues,
			"field_issues":    fieldIssues,
			"latency_issues":  latencyIssues,
		},
	}, nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
