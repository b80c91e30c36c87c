package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func TestFingerprintFormat(t *testing.T) {
	fp := Fingerprint(domain.IssueMissingParam, "Tool 'flight_search' missing required parameter: destination")
	assert.Equal(t, "Type: missing_param | Issue: Tool 'flight_search' missing required parameter: destination", fp)
}

func TestFlattenIssuesResolvesTurnContext(t *testing.T) {
	conv := domain.NewConversation("c1", []domain.Turn{
		{TurnID: 0, Role: domain.RoleUser, Content: "Book a flight"},
		{TurnID: 1, Role: domain.RoleAssistant, Content: "Searching now", ToolCalls: []domain.ToolCall{
			{ToolName: "flight_search"},
			{ToolName: "web_search"},
		}},
	})

	turnID := 1
	eval := domain.NewEvaluationResult("c1")
	eval.Issues = []domain.Issue{
		{Type: domain.IssueMissingParam, Severity: domain.SeverityHigh, Description: "missing destination", TurnID: &turnID, SuggestedFix: "add destination"},
		{Type: domain.IssueFormatError, Severity: domain.SeverityLow, Description: "no turn attached"},
	}

	occurrences := FlattenIssues(eval, conv)
	require.Len(t, occurrences, 2)

	first := occurrences[0]
	assert.Equal(t, "c1", first.ConversationID)
	assert.Equal(t, "Searching now | Tools used: flight_search, web_search", first.ContextContent)
	assert.Equal(t, "add destination", first.SuggestedFix)
	assert.Equal(t, Fingerprint(domain.IssueMissingParam, "missing destination"), first.Fingerprint)

	// No turn id: no context content.
	assert.Empty(t, occurrences[1].ContextContent)
}

func TestPrepareBatchSkipsUnmatchedEvaluations(t *testing.T) {
	convA := domain.NewConversation("a", []domain.Turn{{TurnID: 0, Role: domain.RoleUser, Content: "hi"}})

	evalA := domain.NewEvaluationResult("a")
	evalA.Issues = []domain.Issue{{Type: domain.IssueFormatError, Description: "empty turn"}}
	evalOrphan := domain.NewEvaluationResult("orphan")
	evalOrphan.Issues = []domain.Issue{{Type: domain.IssueFormatError, Description: "never paired"}}

	occurrences := PrepareBatch(
		[]*domain.EvaluationResult{evalA, evalOrphan},
		[]*domain.Conversation{convA},
	)

	require.Len(t, occurrences, 1)
	assert.Equal(t, "a", occurrences[0].ConversationID)
}
