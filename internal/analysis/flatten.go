package analysis

import (
	"fmt"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// Fingerprint builds the embedding string for an issue. It intentionally
// excludes volatile context (dates, names) so semantically identical failures
// fingerprint the same way regardless of instance-specific values.
func Fingerprint(issueType domain.IssueType, description string) string {
	return fmt.Sprintf("Type: %s | Issue: %s", issueType, description)
}

// FlattenIssues projects every issue in an evaluation into one occurrence,
// resolving the issue's turn id to the turn's content for context.
func FlattenIssues(eval *domain.EvaluationResult, conv *domain.Conversation) []domain.IssueOccurrence {
	occurrences := make([]domain.IssueOccurrence, 0, len(eval.Issues))

	for _, issue := range eval.Issues {
		contextContent := ""
		if issue.TurnID != nil {
			if turn := conv.TurnByID(*issue.TurnID); turn != nil {
				contextContent = turn.Content
				if len(turn.ToolCalls) > 0 {
					toolNames := make([]string, 0, len(turn.ToolCalls))
					for _, tc := range turn.ToolCalls {
						toolNames = append(toolNames, tc.ToolName)
					}
					contextContent += " | Tools used: " + strings.Join(toolNames, ", ")
				}
			}
		}

		occurrences = append(occurrences, domain.IssueOccurrence{
			IssueType:      issue.Type,
			Severity:       issue.Severity,
			Description:    issue.Description,
			TurnID:         issue.TurnID,
			ConversationID: eval.ConversationID,
			ContextContent: contextContent,
			SuggestedFix:   issue.SuggestedFix,
			Fingerprint:    Fingerprint(issue.Type, issue.Description),
		})
	}

	return occurrences
}

// PrepareBatch flattens issues across a batch of evaluations, pairing each
// with its conversation. Evaluations without a matching conversation are
// skipped.
func PrepareBatch(evals []*domain.EvaluationResult, convs []*domain.Conversation) []domain.IssueOccurrence {
	convMap := make(map[string]*domain.Conversation, len(convs))
	for _, conv := range convs {
		convMap[conv.ID] = conv
	}

	var all []domain.IssueOccurrence
	for _, eval := range evals {
		conv, ok := convMap[eval.ConversationID]
		if !ok {
			continue
		}
		all = append(all, FlattenIssues(eval, conv)...)
	}
	return all
}
