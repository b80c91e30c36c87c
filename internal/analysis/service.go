package analysis

import (
	"context"
	"fmt"
	"log"

	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

// Service sequences the analysis pipeline: flatten evaluated issues, cluster
// them, generate proposals, and separately verify and apply stored proposals.
type Service struct {
	repo        storage.Repository
	evaluations *evaluator.Service
	clustering  *ClusteringEngine
	suggestions *SuggestionEngine
	regression  *RegressionTester
	artifacts   *artifact.Store
}

func NewService(
	repo storage.Repository,
	evaluations *evaluator.Service,
	clustering *ClusteringEngine,
	suggestions *SuggestionEngine,
	regression *RegressionTester,
	artifacts *artifact.Store,
) *Service {
	return &Service{
		repo:        repo,
		evaluations: evaluations,
		clustering:  clustering,
		suggestions: suggestions,
		regression:  regression,
		artifacts:   artifacts,
	}
}

// RunAnalysisCycle runs one full discovery pass over recent evaluations:
// cluster the issues, then generate and persist one proposal per cluster.
func (s *Service) RunAnalysisCycle(ctx context.Context, limit int) ([]*domain.ImprovementProposal, error) {
	if limit <= 0 {
		limit = 100
	}

	evals, err := s.repo.ListEvaluations(ctx, limit, 0)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	var evalsWithIssues []*domain.EvaluationResult
	for _, eval := range evals {
		if len(eval.Issues) > 0 {
			evalsWithIssues = append(evalsWithIssues, eval)
		}
	}
	log.Printf("analysis discovery: %d of %d evaluations have issues", len(evalsWithIssues), len(evals))

	if len(evalsWithIssues) == 0 {
		return nil, nil
	}

	var convs []*domain.Conversation
	for _, eval := range evalsWithIssues {
		conv, err := s.repo.GetConversation(ctx, eval.ConversationID)
		if err != nil {
			log.Printf("skipping evaluation %s: %v", eval.RunID, err)
			continue
		}
		convs = append(convs, conv)
	}

	occurrences := PrepareBatch(evalsWithIssues, convs)
	log.Printf("clustering %d granular issues", len(occurrences))

	clusters := s.clustering.Cluster(ctx, occurrences)
	log.Printf("discovery identified %d distinct failure patterns", len(clusters))

	currentPrompt, promptPath := s.artifacts.ActivePrompt()
	toolDefinitions, schemaPath := s.artifacts.ActiveToolSchemaJSON()
	if toolDefinitions == nil {
		toolDefinitions = []byte("{}")
		schemaPath = s.artifacts.VersionedToolSchemaPath()
	}

	proposals := make([]*domain.ImprovementProposal, 0, len(clusters))
	for _, cluster := range clusters {
		log.Printf("generating proposal for pattern %q (significance %.1f)", cluster.Label, cluster.Significance())

		proposal := s.suggestions.Propose(ctx, cluster, currentPrompt, string(toolDefinitions))
		proposal.Metadata["prompt_path"] = promptPath
		proposal.Metadata["tool_schema_path"] = schemaPath
		proposal.Metadata["artifact_version_hint"] = "v1"

		if _, err := s.repo.SaveProposal(ctx, proposal); err != nil {
			return nil, fmt.Errorf("save proposal: %w", err)
		}
		proposals = append(proposals, proposal)
	}

	log.Printf("analysis cycle complete: %d proposals generated", len(proposals))
	return proposals, nil
}

// VerifyProposal runs a simulated regression for the proposal, attaches the
// report, and advances the proposal to TESTING. Re-verification replaces the
// attached report.
func (s *Service) VerifyProposal(ctx context.Context, proposalID string) (*domain.RegressionReport, error) {
	proposal, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	testSet, err := s.repo.ListConversations(ctx, 20, 0)
	if err != nil {
		return nil, fmt.Errorf("list test conversations: %w", err)
	}

	log.Printf("regression verification for proposal %s on %d test cases", proposalID, len(testSet))
	report := s.regression.RunRegression(ctx, proposal, testSet)

	proposal.RegressionReport = report
	proposal.Status = domain.ProposalTesting
	if _, err := s.repo.SaveProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	return report, nil
}

// ApplyProposal writes the proposed content to the active artifact location
// and advances the proposal to APPROVED. There is no automated gate on the
// regression outcome; applying is an operator decision.
func (s *Service) ApplyProposal(ctx context.Context, proposalID string) (map[string]string, error) {
	proposal, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	artifacts := make(map[string]string)
	switch proposal.Type {
	case domain.ProposalTypePrompt:
		path, err := s.artifacts.WritePrompt(proposal.ProposedContent)
		if err != nil {
			return nil, fmt.Errorf("apply prompt proposal: %w", err)
		}
		artifacts["prompt_path"] = path
	case domain.ProposalTypeTool:
		path, err := s.artifacts.WriteToolSchema(proposal.ProposedContent)
		if err != nil {
			return nil, fmt.Errorf("apply tool proposal: %w", err)
		}
		artifacts["tool_schema_path"] = path
	default:
		return nil, fmt.Errorf("unknown proposal type: %s", proposal.Type)
	}

	proposal.Status = domain.ProposalApproved
	for key, value := range artifacts {
		proposal.Metadata[key] = value
	}
	if _, err := s.repo.SaveProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	return artifacts, nil
}

// RunRealRegression re-generates conversations for the prompt list under both
// the baseline and the active artifact, attaches the resulting report, and
// persists the proposal.
func (s *Service) RunRealRegression(ctx context.Context, proposalID string, prompts []string) (*domain.RegressionReport, error) {
	proposal, err := s.repo.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, fmt.Errorf("get proposal %s: %w", proposalID, err)
	}

	report, err := s.regression.RunRealRegression(ctx, proposal, prompts, "v1")
	if err != nil {
		return nil, fmt.Errorf("real regression: %w", err)
	}

	proposal.RegressionReport = report
	proposal.Status = domain.ProposalTesting
	if _, err := s.repo.SaveProposal(ctx, proposal); err != nil {
		return nil, fmt.Errorf("save proposal: %w", err)
	}

	return report, nil
}

// ListProposals proxies to the repository.
func (s *Service) ListProposals(ctx context.Context, limit, offset int) ([]*domain.ImprovementProposal, error) {
	return s.repo.ListProposals(ctx, limit, offset)
}

// GetProposal proxies to the repository.
func (s *Service) GetProposal(ctx context.Context, proposalID string) (*domain.ImprovementProposal, error) {
	return s.repo.GetProposal(ctx, proposalID)
}
