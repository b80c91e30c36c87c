package evaluator

import (
	"context"
	"fmt"
	"log"

	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/config"
	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

// DefaultRegistry registers the standard evaluator set.
func DefaultRegistry(cfg config.EvaluationConfig, client *llm.Client, artifacts *artifact.Store) *Registry {
	var judge Completer
	if client != nil {
		judge = client
	}

	r := NewRegistry()
	r.Register("heuristic", func() Evaluator {
		return NewHeuristicEvaluator(cfg.MaxLatencyMs, cfg.MaxTurnLength, cfg.RequiredMetadataFields)
	})
	r.Register("tool_call", func() Evaluator {
		return NewToolCallEvaluator(nil, cfg.StrictToolMode, artifacts)
	})
	r.Register("tool_causality", func() Evaluator {
		return NewToolCausalityEvaluator()
	})
	r.Register("coherence", func() Evaluator {
		return NewCoherenceEvaluator(cfg.MinTurnsForCoherence)
	})
	r.Register("llm_judge", func() Evaluator {
		return NewLLMJudgeEvaluator(judge)
	})
	return r
}

// Service orchestrates the evaluation of conversations: it runs the enabled
// evaluators, aggregates their results into one verdict, and persists it.
type Service struct {
	repo     storage.Repository
	registry *Registry
	enabled  []string
}

func NewService(repo storage.Repository, registry *Registry, enabled []string) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		enabled:  enabled,
	}
}

func (s *Service) activeEvaluators() []Evaluator {
	evaluators := make([]Evaluator, 0, len(s.enabled))
	for _, name := range s.enabled {
		e, err := s.registry.Get(name)
		if err != nil {
			log.Printf("warning: configured evaluator %q not found in registry", name)
			continue
		}
		evaluators = append(evaluators, e)
	}
	return evaluators
}

// Evaluate resolves a conversation by ID and evaluates it.
func (s *Service) Evaluate(ctx context.Context, conversationID string) (*domain.EvaluationResult, error) {
	conv, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation %s: %w", conversationID, err)
	}
	return s.EvaluateConversation(ctx, conv)
}

// EvaluateConversation runs every enabled evaluator over the conversation,
// computes the aggregate score, unions all issues, and persists the result.
func (s *Service) EvaluateConversation(ctx context.Context, conv *domain.Conversation) (*domain.EvaluationResult, error) {
	result := domain.NewEvaluationResult(conv.ID)

	evaluators := s.activeEvaluators()
	if len(evaluators) == 0 {
		result.Status = domain.EvaluationCompleted
		result.AggregateScore = 0.0
		return result, nil
	}

	for _, e := range evaluators {
		result.Evaluations[e.Name()] = Run(ctx, e, conv)
	}

	result.ComputeAggregateScore()
	result.AggregateIssues()
	result.Status = domain.EvaluationCompleted

	if _, err := s.repo.SaveEvaluation(ctx, result); err != nil {
		return nil, fmt.Errorf("save evaluation: %w", err)
	}

	return result, nil
}

// EvaluateBatch evaluates conversations in sequence. A single failed item is
// logged and skipped rather than aborting the batch.
func (s *Service) EvaluateBatch(ctx context.Context, conversationIDs []string) ([]*domain.EvaluationResult, error) {
	results := make([]*domain.EvaluationResult, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		result, err := s.Evaluate(ctx, id)
		if err != nil {
			log.Printf("evaluate %s failed: %v", id, err)
			continue
		}
		results = append(results, result)
	}
	return results, nil
}

// EvaluatePending evaluates conversations that have no evaluation on record.
// With force set, the most recent conversations are re-evaluated instead.
func (s *Service) EvaluatePending(ctx context.Context, force bool) ([]*domain.EvaluationResult, error) {
	var pendingIDs []string

	if force {
		convs, err := s.repo.ListConversations(ctx, 100, 0)
		if err != nil {
			return nil, fmt.Errorf("list conversations: %w", err)
		}
		for _, conv := range convs {
			pendingIDs = append(pendingIDs, conv.ID)
		}
	} else {
		var err error
		pendingIDs, err = s.repo.GetPendingConversations(ctx)
		if err != nil {
			return nil, fmt.Errorf("get pending conversations: %w", err)
		}
	}

	return s.EvaluateBatch(ctx, pendingIDs)
}

func (s *Service) GetEvaluation(ctx context.Context, conversationID string) (*domain.EvaluationResult, error) {
	return s.repo.GetEvaluation(ctx, conversationID)
}

func (s *Service) ListEvaluations(ctx context.Context, limit, offset int) ([]*domain.EvaluationResult, error) {
	return s.repo.ListEvaluations(ctx, limit, offset)
}

// SummaryStats holds aggregate statistics across stored evaluations.
type SummaryStats struct {
	TotalEvaluations int            `json:"total_evaluations"`
	AverageScore     float64        `json:"average_score"`
	IssueCounts      map[string]int `json:"issue_counts"`
}

func (s *Service) GetSummaryStats(ctx context.Context) (*SummaryStats, error) {
	evals, err := s.repo.ListEvaluations(ctx, 1000, 0)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}

	stats := &SummaryStats{IssueCounts: make(map[string]int)}
	if len(evals) == 0 {
		return stats, nil
	}

	totalScore := 0.0
	for _, e := range evals {
		totalScore += e.AggregateScore
		for _, issue := range e.Issues {
			stats.IssueCounts[string(issue.Type)]++
		}
	}

	stats.TotalEvaluations = len(evals)
	stats.AverageScore = totalScore / float64(len(evals))
	return stats, nil
}
