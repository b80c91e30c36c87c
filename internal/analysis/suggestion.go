package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
)

// toolKeywords classify a cluster as tool-related rather than prompt-related.
var toolKeywords = []string{"tool", "parameter", "param", "schema"}

var toolIssueTypes = map[domain.IssueType]struct{}{
	domain.IssueInvalidTool:       {},
	domain.IssueInvalidParam:      {},
	domain.IssueMissingParam:      {},
	domain.IssueToolHallucination: {},
	domain.IssueExecutionFailed:   {},
}

// SuggestionEngine generates localized fix proposals from failure clusters.
type SuggestionEngine struct {
	completer Completer
}

func NewSuggestionEngine(completer Completer) *SuggestionEngine {
	return &SuggestionEngine{completer: completer}
}

// classify decides whether a cluster calls for a prompt edit or a tool-schema
// edit, using a keyword heuristic over the explanation and issue categories.
func (e *SuggestionEngine) classify(cluster *domain.IssueCluster) domain.ProposalType {
	for issueType := range cluster.IssueTypes {
		if _, ok := toolIssueTypes[issueType]; ok {
			return domain.ProposalTypeTool
		}
	}

	text := strings.ToLower(cluster.Explanation + " " + cluster.Label)
	for _, keyword := range toolKeywords {
		if strings.Contains(text, keyword) {
			return domain.ProposalTypeTool
		}
	}

	return domain.ProposalTypePrompt
}

// Propose creates a fix proposal for the cluster. Reasoning failures yield a
// REJECTED proposal carrying the raw error as rationale; with no completer
// configured a deterministic canned proposal keeps the pipeline testable
// offline.
func (e *SuggestionEngine) Propose(ctx context.Context, cluster *domain.IssueCluster, currentPrompt, toolDefinitions string) *domain.ImprovementProposal {
	proposalType := e.classify(cluster)

	if e.completer == nil {
		return e.mockProposal(cluster, proposalType, currentPrompt, toolDefinitions)
	}

	var proposal *domain.ImprovementProposal
	var err error
	switch proposalType {
	case domain.ProposalTypeTool:
		proposal, err = e.proposeToolFix(ctx, cluster, toolDefinitions)
	default:
		proposal, err = e.proposePromptFix(ctx, cluster, currentPrompt)
	}

	if err != nil {
		log.Printf("proposal generation failed for cluster %s: %v", cluster.ClusterID, err)
		return e.errorProposal(cluster, proposalType, currentPrompt, toolDefinitions, err)
	}
	return proposal
}

type promptFixResponse struct {
	ProposedSnippet string  `json:"proposed_snippet"`
	Rationale       string  `json:"rationale"`
	Confidence      float64 `json:"confidence"`
}

func (e *SuggestionEngine) proposePromptFix(ctx context.Context, cluster *domain.IssueCluster, currentPrompt string) (*domain.ImprovementProposal, error) {
	prompt := fmt.Sprintf(`You are an expert Prompt Engineer.
Your task is to fix a systemic AI agent failure through a localized prompt modification.

Systemic Failure Pattern:
%s

Current System Prompt (or relevant snippet):
---
%s
---

Return a JSON response with:
- "proposed_snippet": The new, improved version of the prompt snippet.
- "rationale": Clear explanation of why this change fixes the pattern.
- "confidence": Float between 0 and 1.

Constraints:
- Keep changes localized.
- Do not break existing functionality.`, cluster.Explanation, currentPrompt)

	resp, err := e.completer.Complete(ctx, &llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("prompt fix completion: %w", err)
	}

	var parsed promptFixResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse prompt fix: %w", err)
	}

	proposal := domain.NewImprovementProposal(domain.ProposalTypePrompt)
	proposal.ClusterID = cluster.ClusterID
	proposal.FailurePattern = cluster.Explanation
	proposal.Rationale = parsed.Rationale
	proposal.OriginalContent = currentPrompt
	proposal.ProposedContent = parsed.ProposedSnippet
	proposal.EvidenceIDs = append([]string(nil), cluster.ConversationIDs...)
	proposal.Metadata["confidence"] = parsed.Confidence
	return proposal, nil
}

type toolFixResponse struct {
	ProposedSchema string  `json:"proposed_schema"`
	Rationale      string  `json:"rationale"`
	ToolName       string  `json:"tool_name"`
	FixCategory    string  `json:"fix_category"`
	Confidence     float64 `json:"confidence"`
}

func (e *SuggestionEngine) proposeToolFix(ctx context.Context, cluster *domain.IssueCluster, toolDefinitions string) (*domain.ImprovementProposal, error) {
	prompt := fmt.Sprintf(`You are an expert API Designer.
Your task is to fix a systemic AI agent failure through a localized tool-schema modification.

Systemic Failure Pattern:
%s

Current Tool Definitions (JSON):
---
%s
---

Return a JSON response with:
- "proposed_schema": The corrected tool definitions as a JSON string.
- "rationale": Clear explanation of why this change fixes the pattern.
- "tool_name": The specific tool being fixed.
- "fix_category": One of "required_params", "param_patterns", "description".
- "confidence": Float between 0 and 1.

Constraints:
- Keep changes localized to the affected tool.
- Do not break existing functionality.`, cluster.Explanation, toolDefinitions)

	resp, err := e.completer.Complete(ctx, &llm.CompletionRequest{
		Messages:    []llm.Message{{Role: "user", Content: prompt}},
		MaxTokens:   1024,
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("tool fix completion: %w", err)
	}

	var parsed toolFixResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		return nil, fmt.Errorf("parse tool fix: %w", err)
	}

	proposal := domain.NewImprovementProposal(domain.ProposalTypeTool)
	proposal.ClusterID = cluster.ClusterID
	proposal.FailurePattern = cluster.Explanation
	proposal.Rationale = parsed.Rationale
	proposal.OriginalContent = toolDefinitions
	proposal.ProposedContent = parsed.ProposedSchema
	proposal.EvidenceIDs = append([]string(nil), cluster.ConversationIDs...)
	proposal.Metadata["confidence"] = parsed.Confidence
	proposal.Metadata["tool_name"] = parsed.ToolName
	proposal.Metadata["fix_category"] = parsed.FixCategory
	return proposal, nil
}

func (e *SuggestionEngine) mockProposal(cluster *domain.IssueCluster, proposalType domain.ProposalType, currentPrompt, toolDefinitions string) *domain.ImprovementProposal {
	proposal := domain.NewImprovementProposal(proposalType)
	proposal.ClusterID = cluster.ClusterID
	proposal.FailurePattern = cluster.Explanation
	proposal.EvidenceIDs = append([]string(nil), cluster.ConversationIDs...)
	proposal.Metadata["mock"] = true

	switch proposalType {
	case domain.ProposalTypeTool:
		proposal.Rationale = "Mock rationale: Tightened date parameter formats on the affected tool."
		proposal.OriginalContent = toolDefinitions
		proposal.ProposedContent = toolDefinitions + "\n\nNote: Require YYYY-MM-DD format for all date parameters."
	default:
		proposal.Rationale = "Mock rationale: Added date format instructions."
		proposal.OriginalContent = currentPrompt
		proposal.ProposedContent = currentPrompt + "\n\nNote: Always use YYYY-MM-DD for dates."
	}
	return proposal
}

func (e *SuggestionEngine) errorProposal(cluster *domain.IssueCluster, proposalType domain.ProposalType, currentPrompt, toolDefinitions string, cause error) *domain.ImprovementProposal {
	proposal := domain.NewImprovementProposal(proposalType)
	proposal.ClusterID = cluster.ClusterID
	proposal.FailurePattern = cluster.Explanation
	proposal.Rationale = fmt.Sprintf("Failed to generate suggestion: %v", cause)
	if proposalType == domain.ProposalTypeTool {
		proposal.OriginalContent = toolDefinitions
	} else {
		proposal.OriginalContent = currentPrompt
	}
	proposal.Status = domain.ProposalRejected
	return proposal
}
