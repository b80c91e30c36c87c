package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func promptCluster() *domain.IssueCluster {
	cluster := domain.NewIssueCluster()
	cluster.Label = "Lost Context"
	cluster.Explanation = "Assistant forgets the destination mid-conversation."
	cluster.IssueTypes[domain.IssueContextLoss] = struct{}{}
	cluster.ConversationIDs = []string{"c1", "c2"}
	return cluster
}

func toolCluster() *domain.IssueCluster {
	cluster := domain.NewIssueCluster()
	cluster.Label = "Date Format Drift"
	cluster.Explanation = "Dates passed as YYYY/MM/DD instead of ISO."
	cluster.IssueTypes[domain.IssueInvalidParam] = struct{}{}
	cluster.ConversationIDs = []string{"c3"}
	return cluster
}

func TestClassifyByIssueType(t *testing.T) {
	e := NewSuggestionEngine(nil)
	assert.Equal(t, domain.ProposalTypeTool, e.classify(toolCluster()))
	assert.Equal(t, domain.ProposalTypePrompt, e.classify(promptCluster()))
}

func TestClassifyByKeyword(t *testing.T) {
	cluster := domain.NewIssueCluster()
	cluster.Label = "Weird Failures"
	cluster.Explanation = "The schema for the search API is too permissive."

	e := NewSuggestionEngine(nil)
	assert.Equal(t, domain.ProposalTypeTool, e.classify(cluster))
}

func TestProposeOfflineMockPrompt(t *testing.T) {
	e := NewSuggestionEngine(nil)
	cluster := promptCluster()

	proposal := e.Propose(context.Background(), cluster, "You are a helpful travel assistant.", "{}")

	assert.Equal(t, domain.ProposalTypePrompt, proposal.Type)
	assert.Equal(t, domain.ProposalDraft, proposal.Status)
	assert.Equal(t, cluster.ClusterID, proposal.ClusterID)
	assert.Equal(t, "You are a helpful travel assistant.", proposal.OriginalContent)
	assert.NotEqual(t, proposal.OriginalContent, proposal.ProposedContent)
	assert.Contains(t, proposal.ProposedContent, "YYYY-MM-DD")
	assert.Equal(t, []string{"c1", "c2"}, proposal.EvidenceIDs)
	assert.Equal(t, true, proposal.Metadata["mock"])
}

func TestProposeOfflineMockTool(t *testing.T) {
	e := NewSuggestionEngine(nil)

	proposal := e.Propose(context.Background(), toolCluster(), "prompt", `{"flight_search": {}}`)

	assert.Equal(t, domain.ProposalTypeTool, proposal.Type)
	assert.Equal(t, domain.ProposalDraft, proposal.Status)
	assert.Equal(t, `{"flight_search": {}}`, proposal.OriginalContent)
	assert.Contains(t, proposal.ProposedContent, "YYYY-MM-DD")
}

func TestProposePromptFixLive(t *testing.T) {
	completer := &fakeCompleter{response: `{
		"proposed_snippet": "You are a helpful travel assistant. Always confirm the destination before booking.",
		"rationale": "Pins the destination early so it cannot be lost.",
		"confidence": 0.8
	}`}

	e := NewSuggestionEngine(completer)
	proposal := e.Propose(context.Background(), promptCluster(), "You are a helpful travel assistant.", "{}")

	require.Equal(t, domain.ProposalTypePrompt, proposal.Type)
	assert.Equal(t, domain.ProposalDraft, proposal.Status)
	assert.Contains(t, proposal.ProposedContent, "confirm the destination")
	assert.Equal(t, "Pins the destination early so it cannot be lost.", proposal.Rationale)
	assert.Equal(t, 0.8, proposal.Metadata["confidence"])
	assert.Equal(t, 1, completer.calls)
}

func TestProposeToolFixLive(t *testing.T) {
	completer := &fakeCompleter{response: `{
		"proposed_schema": "{\"flight_search\": {\"param_patterns\": {\"date\": \"^\\\\d{4}-\\\\d{2}-\\\\d{2}$\"}}}",
		"rationale": "Enforce ISO dates at the schema level.",
		"tool_name": "flight_search",
		"fix_category": "param_patterns",
		"confidence": 0.9
	}`}

	e := NewSuggestionEngine(completer)
	proposal := e.Propose(context.Background(), toolCluster(), "prompt", "{}")

	require.Equal(t, domain.ProposalTypeTool, proposal.Type)
	assert.Equal(t, "flight_search", proposal.Metadata["tool_name"])
	assert.Equal(t, "param_patterns", proposal.Metadata["fix_category"])
	assert.Contains(t, proposal.ProposedContent, "flight_search")
}

func TestProposeCompleterFailureYieldsRejected(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("timeout")}

	e := NewSuggestionEngine(completer)
	proposal := e.Propose(context.Background(), promptCluster(), "base prompt", "{}")

	assert.Equal(t, domain.ProposalRejected, proposal.Status)
	assert.Contains(t, proposal.Rationale, "Failed to generate suggestion")
	assert.Contains(t, proposal.Rationale, "timeout")
	assert.Equal(t, "base prompt", proposal.OriginalContent)
	assert.Empty(t, proposal.ProposedContent)
}
