package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

var (
	wordPattern    = regexp.MustCompile(`\w+`)
	isoDateMatcher = regexp.MustCompile(isoDatePattern)
)

// ToolCausalityEvaluator verifies the provenance of tool parameters. A value
// is grounded if it, or a token/substring of it, appeared in an earlier turn's
// content or an earlier tool result. Ungrounded values are flagged as likely
// hallucinations. ISO dates get a loosened rule: year and day seen
// independently is accepted.
type ToolCausalityEvaluator struct{}

func NewToolCausalityEvaluator() *ToolCausalityEvaluator {
	return &ToolCausalityEvaluator{}
}

func (e *ToolCausalityEvaluator) Name() string {
	return "tool_causality"
}

func extractValues(obj any, values map[string]struct{}) {
	switch v := obj.(type) {
	case string:
		values[strings.ToLower(v)] = struct{}{}
	case int:
		values[strconv.Itoa(v)] = struct{}{}
	case int64:
		values[strconv.FormatInt(v, 10)] = struct{}{}
	case float64:
		values[formatNumber(v)] = struct{}{}
	case map[string]any:
		for _, item := range v {
			extractValues(item, values)
		}
	case []any:
		for _, item := range v {
			extractValues(item, values)
		}
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (e *ToolCausalityEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	var issues []domain.Issue

	seen := make(map[string]struct{})
	totalChecks := 0
	hallucinated := 0

	for i := range conv.Turns {
		turn := &conv.Turns[i]

		// Tokenize so values embedded in sentences still ground.
		lower := strings.ToLower(turn.Content)
		for _, token := range wordPattern.FindAllString(lower, -1) {
			seen[token] = struct{}{}
		}
		seen[lower] = struct{}{}

		if turn.Role != domain.RoleAssistant {
			continue
		}

		for j := range turn.ToolCalls {
			tc := &turn.ToolCalls[j]

			paramValues := make(map[string]struct{})
			extractValues(tc.Parameters, paramValues)

			var ungrounded []string
			for val := range paramValues {
				if len(val) < 2 {
					continue
				}
				totalChecks++

				if !isGrounded(val, seen) {
					hallucinated++
					ungrounded = append(ungrounded, val)
				}
			}

			if len(ungrounded) > 0 {
				id := turn.TurnID
				snippet := turn.Content
				if len(snippet) > 100 {
					snippet = snippet[:100]
				}
				joined := strings.Join(ungrounded, ", ")
				issues = append(issues, domain.Issue{
					Type:     domain.IssueToolHallucination,
					Severity: domain.SeverityHigh,
					Description: fmt.Sprintf(
						"Tool '%s' used non-grounded parameter values: %s. These values were never clearly mentioned in the conversation history.",
						tc.ToolName, joined),
					TurnID: &id,
					Details: map[string]any{
						"tool":                tc.ToolName,
						"hallucinated_params": ungrounded,
						"context_snippet":     snippet,
					},
					SuggestedFix: fmt.Sprintf(
						"Ensure that these specific values (%s) are either provided by the user or fetched from a previous tool before using them.",
						joined),
				})
			}

			// Tool results become grounding context for later turns.
			if tc.Result != nil {
				extractValues(tc.Result.Data, seen)
				if tc.Result.Error != "" {
					seen[strings.ToLower(tc.Result.Error)] = struct{}{}
				}
			}
		}
	}

	provenanceScore := 1.0
	if totalChecks > 0 {
		provenanceScore = 1.0 - float64(hallucinated)/float64(totalChecks)
	}

	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores: map[string]float64{
			"data_provenance": clampScore(provenanceScore),
		},
		Issues:     issues,
		Confidence: 0.9,
		Metadata: map[string]any{
			"total_params_checked":    totalChecks,
			"hallucinations_detected": hallucinated,
		},
	}, nil
}

func isGrounded(val string, seen map[string]struct{}) bool {
	if _, ok := seen[val]; ok {
		return true
	}
	for prev := range seen {
		if strings.Contains(prev, val) {
			return true
		}
	}

	// Loosened ISO-date rule: year and day tokens seen independently.
	if isoDateMatcher.MatchString(val) {
		parts := strings.Split(val, "-")
		year, day := parts[0], parts[2]

		yearSeen := contains(seen, year) || contains(seen, year[2:])
		dayTrimmed := strings.TrimLeft(day, "0")
		if dayTrimmed == "" {
			dayTrimmed = "0"
		}
		daySeen := contains(seen, day) || contains(seen, dayTrimmed)
		if yearSeen && daySeen {
			return true
		}
	}

	return false
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
