package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bthat\b`),
	regexp.MustCompile(`\bthose\b`),
	regexp.MustCompile(`\bthis\b`),
	regexp.MustCompile(`\bthese\b`),
	regexp.MustCompile(`\bit\b`),
	regexp.MustCompile(`\bthem\b`),
	regexp.MustCompile(`\bthe same\b`),
	regexp.MustCompile(`\bearlier\b`),
	regexp.MustCompile(`\bpreviously\b`),
	regexp.MustCompile(`\bbefore\b`),
	regexp.MustCompile(`\bmentioned\b`),
	regexp.MustCompile(`\bas i said\b`),
	regexp.MustCompile(`\bmy preference\b`),
	regexp.MustCompile(`\bwhat i asked\b`),
}

var contradictionPatterns = []struct {
	pos *regexp.Regexp
	neg *regexp.Regexp
}{
	{regexp.MustCompile(`\byes\b`), regexp.MustCompile(`\bno\b`)},
	{regexp.MustCompile(`\bcan\b`), regexp.MustCompile(`\bcannot\b`)},
	{regexp.MustCompile(`\bwill\b`), regexp.MustCompile(`\bwon't\b`)},
	{regexp.MustCompile(`\bis\b`), regexp.MustCompile(`\bisn't\b`)},
	{regexp.MustCompile(`\bare\b`), regexp.MustCompile(`\baren't\b`)},
}

var (
	properNounPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	quotedPattern     = regexp.MustCompile(`"([^"]+)"`)
	numberPattern     = regexp.MustCompile(`\b\d+(?:\.\d+)?\b`)
	datePattern       = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)
)

var contextLossPhrases = []string{
	"i don't have access to",
	"i cannot see",
	"you haven't told me",
	"could you remind me",
	"what was your",
	"i'm not sure what you",
}

var failedResolutionPhrases = []string{
	"not sure what you mean by",
	"unclear what",
	"which one do you mean",
	"can you clarify",
	"what do you mean by",
}

// CoherenceEvaluator checks context maintenance across turns: context
// retention, consistency between assistant turns, and reference resolution.
// Conversations below the minimum turn count get neutral scores with reduced
// confidence.
type CoherenceEvaluator struct {
	minTurnsForEval int
}

func NewCoherenceEvaluator(minTurns int) *CoherenceEvaluator {
	if minTurns <= 0 {
		minTurns = 3
	}
	return &CoherenceEvaluator{minTurnsForEval: minTurns}
}

func (e *CoherenceEvaluator) Name() string {
	return "coherence"
}

func extractKeyEntities(text string) map[string]struct{} {
	entities := make(map[string]struct{})
	for _, m := range properNounPattern.FindAllString(text, -1) {
		entities[m] = struct{}{}
	}
	for _, m := range quotedPattern.FindAllStringSubmatch(text, -1) {
		entities[m[1]] = struct{}{}
	}
	for _, m := range numberPattern.FindAllString(text, -1) {
		entities[m] = struct{}{}
	}
	for _, m := range datePattern.FindAllString(text, -1) {
		entities[m] = struct{}{}
	}
	return entities
}

func (e *CoherenceEvaluator) checkContextRetention(conv *domain.Conversation) (float64, []domain.Issue) {
	var issues []domain.Issue

	userEntities := make(map[int]map[string]struct{})
	for i := range conv.Turns {
		turn := &conv.Turns[i]
		if turn.Role == domain.RoleUser {
			entities := extractKeyEntities(turn.Content)
			if len(entities) > 0 {
				userEntities[turn.TurnID] = entities
			}
		}
	}

	assistantTurns := conv.AssistantTurns()

	contextHits := 0
	contextChecks := 0
	for i, turn := range assistantTurns {
		if i == 0 {
			continue
		}
		turnEntities := extractKeyEntities(turn.Content)

		for refTurnID, refEntities := range userEntities {
			if refTurnID >= turn.TurnID {
				continue
			}
			overlap := false
			for entity := range turnEntities {
				if _, ok := refEntities[entity]; ok {
					overlap = true
					break
				}
			}
			if overlap {
				contextHits++
			}
			contextChecks++
		}
	}

	for i, turn := range assistantTurns {
		if i == 0 {
			continue
		}
		contentLower := strings.ToLower(turn.Content)
		for _, phrase := range contextLossPhrases {
			if strings.Contains(contentLower, phrase) {
				id := turn.TurnID
				issues = append(issues, domain.Issue{
					Type:        domain.IssueContextLoss,
					Severity:    domain.SeverityMedium,
					Description: fmt.Sprintf("Possible context loss at turn %d: '%s'", turn.TurnID, phrase),
					TurnID:      &id,
					Details:     map[string]any{"phrase": phrase},
				})
			}
		}
	}

	if contextChecks == 0 {
		return 1.0, issues
	}
	return float64(contextHits) / float64(contextChecks), issues
}

func (e *CoherenceEvaluator) checkConsistency(conv *domain.Conversation) (float64, []domain.Issue) {
	var issues []domain.Issue
	inconsistencies := 0

	assistantTurns := conv.AssistantTurns()
	if len(assistantTurns) < 2 {
		return 1.0, nil
	}

	for i := 0; i < len(assistantTurns); i++ {
		for j := i + 1; j < len(assistantTurns); j++ {
			contentI := strings.ToLower(assistantTurns[i].Content)
			contentJ := strings.ToLower(assistantTurns[j].Content)

			for _, pair := range contradictionPatterns {
				posI := pair.pos.MatchString(contentI)
				negJ := pair.neg.MatchString(contentJ)
				negI := pair.neg.MatchString(contentI)
				posJ := pair.pos.MatchString(contentJ)

				if (posI && negJ) || (negI && posJ) {
					// Only flag when the turns share enough vocabulary to
					// plausibly be about the same topic.
					if wordOverlap(contentI, contentJ) > 5 {
						id := assistantTurns[j].TurnID
						issues = append(issues, domain.Issue{
							Type:     domain.IssueInconsistentResponse,
							Severity: domain.SeverityLow,
							Description: fmt.Sprintf("Potential inconsistency between turns %d and %d",
								assistantTurns[i].TurnID, assistantTurns[j].TurnID),
							TurnID: &id,
							Details: map[string]any{
								"turn_a": assistantTurns[i].TurnID,
								"turn_b": assistantTurns[j].TurnID,
							},
						})
						inconsistencies++
						break
					}
				}
			}
		}
	}

	totalPairs := len(assistantTurns) * (len(assistantTurns) - 1) / 2
	if totalPairs == 0 {
		return 1.0, issues
	}
	return clampScore(1.0 - float64(inconsistencies)/float64(totalPairs)), issues
}

func wordOverlap(a, b string) int {
	wordsA := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		wordsA[w] = struct{}{}
	}
	overlap := 0
	seen := make(map[string]struct{})
	for _, w := range strings.Fields(b) {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := wordsA[w]; ok {
			overlap++
		}
	}
	return overlap
}

func (e *CoherenceEvaluator) checkReferenceHandling(conv *domain.Conversation) (float64, []domain.Issue) {
	var issues []domain.Issue
	referenceCount := 0
	unresolvedCount := 0

	for _, turn := range conv.AssistantTurns() {
		content := strings.ToLower(turn.Content)

		for _, pattern := range referencePatterns {
			referenceCount += len(pattern.FindAllString(content, -1))
		}

		for _, phrase := range failedResolutionPhrases {
			if strings.Contains(content, phrase) {
				unresolvedCount++
				id := turn.TurnID
				issues = append(issues, domain.Issue{
					Type:        domain.IssueReferenceError,
					Severity:    domain.SeverityLow,
					Description: fmt.Sprintf("Reference resolution issue at turn %d", turn.TurnID),
					TurnID:      &id,
					Details:     map[string]any{"phrase": phrase},
				})
			}
		}
	}

	if referenceCount == 0 {
		return 1.0, issues
	}
	return clampScore(1.0 - float64(unresolvedCount)/float64(referenceCount)), issues
}

func (e *CoherenceEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	if len(conv.Turns) < e.minTurnsForEval {
		return &domain.EvaluatorResult{
			EvaluatorName: e.Name(),
			Scores: map[string]float64{
				"context_retention":  1.0,
				"consistency":        1.0,
				"reference_accuracy": 1.0,
			},
			Confidence: 0.5,
			Metadata: map[string]any{
				"note": fmt.Sprintf("Conversation too short for full coherence evaluation (%d < %d turns)",
					len(conv.Turns), e.minTurnsForEval),
			},
		}, nil
	}

	contextScore, contextIssues := e.checkContextRetention(conv)
	consistencyScore, consistencyIssues := e.checkConsistency(conv)
	referenceScore, referenceIssues := e.checkReferenceHandling(conv)

	var issues []domain.Issue
	issues = append(issues, contextIssues...)
	issues = append(issues, consistencyIssues...)
	issues = append(issues, referenceIssues...)

	return &domain.EvaluatorResult{
		EvaluatorName: e.Name(),
		Scores: map[string]float64{
			"context_retention":  contextScore,
			"consistency":        consistencyScore,
			"reference_accuracy": referenceScore,
		},
		Issues:     issues,
		Confidence: 0.75,
		Metadata: map[string]any{
			"total_turns":        len(conv.Turns),
			"context_issues":     len(contextIssues),
			"consistency_issues": len(consistencyIssues),
			"reference_issues":   len(referenceIssues),
		},
	}, nil
}
