package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

func fixedEvaluator(name string, scores map[string]float64) Factory {
	return func() Evaluator {
		return &stubEvaluator{
			name:   name,
			result: &domain.EvaluatorResult{Scores: scores, Confidence: 1.0},
		}
	}
}

func TestEvaluateConversationAggregatesAllSubScores(t *testing.T) {
	repo := storage.NewMemoryRepository()
	registry := NewRegistry()
	registry.Register("a", fixedEvaluator("a", map[string]float64{"m1": 1.0, "m2": 0.5}))
	registry.Register("b", fixedEvaluator("b", map[string]float64{"m3": 0.0}))

	svc := NewService(repo, registry, []string{"a", "b"})

	conv := domain.NewConversation("c1", []domain.Turn{
		{TurnID: 0, Role: domain.RoleUser, Content: "Hi"},
	})
	result, err := svc.EvaluateConversation(context.Background(), conv)
	require.NoError(t, err)

	// Mean over every sub-score across every evaluator: (1.0+0.5+0.0)/3.
	assert.InDelta(t, 0.5, result.AggregateScore, 1e-9)
	assert.Equal(t, domain.EvaluationCompleted, result.Status)
	assert.Len(t, result.Evaluations, 2)

	stored, err := repo.GetEvaluation(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, result.RunID, stored.RunID)
}

func TestEvaluateConversationNoEvaluators(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, NewRegistry(), nil)

	conv := domain.NewConversation("c1", nil)
	result, err := svc.EvaluateConversation(context.Background(), conv)
	require.NoError(t, err)

	assert.Equal(t, 0.0, result.AggregateScore)
	assert.Equal(t, domain.EvaluationCompleted, result.Status)
}

func TestEvaluateConversationFailingEvaluatorDegrades(t *testing.T) {
	repo := storage.NewMemoryRepository()
	registry := NewRegistry()
	registry.Register("ok", fixedEvaluator("ok", map[string]float64{"m": 1.0}))
	registry.Register("broken", func() Evaluator {
		return &stubEvaluator{name: "broken", err: errors.New("boom")}
	})

	svc := NewService(repo, registry, []string{"ok", "broken"})

	result, err := svc.EvaluateConversation(context.Background(), domain.NewConversation("c1", nil))
	require.NoError(t, err)

	// The broken evaluator contributes no scores, so only "ok" counts.
	assert.Equal(t, 1.0, result.AggregateScore)
	require.Contains(t, result.Evaluations, "broken")
	assert.Equal(t, 0.0, result.Evaluations["broken"].Confidence)
}

func TestEvaluateUnknownConversation(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo, NewRegistry(), nil)

	_, err := svc.Evaluate(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEvaluatePendingSkipsEvaluated(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	registry := NewRegistry()
	registry.Register("a", fixedEvaluator("a", map[string]float64{"m": 0.9}))
	svc := NewService(repo, registry, []string{"a"})

	for _, id := range []string{"c1", "c2"} {
		_, err := repo.SaveConversation(ctx, domain.NewConversation(id, []domain.Turn{
			{TurnID: 0, Role: domain.RoleUser, Content: "Hi"},
		}))
		require.NoError(t, err)
	}

	_, err := svc.Evaluate(ctx, "c1")
	require.NoError(t, err)

	results, err := svc.EvaluatePending(ctx, false)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c2", results[0].ConversationID)

	// Force re-evaluates everything.
	results, err = svc.EvaluatePending(ctx, true)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestGetSummaryStats(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	registry := NewRegistry()
	registry.Register("a", fixedEvaluator("a", map[string]float64{"m": 1.0}))
	registry.Register("b", fixedEvaluator("b", map[string]float64{"m": 0.0}))
	svc := NewService(repo, registry, []string{"a"})

	convA := domain.NewConversation("c1", nil)
	convB := domain.NewConversation("c2", nil)
	_, err := svc.EvaluateConversation(ctx, convA)
	require.NoError(t, err)

	svcB := NewService(repo, registry, []string{"b"})
	_, err = svcB.EvaluateConversation(ctx, convB)
	require.NoError(t, err)

	stats, err := svc.GetSummaryStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalEvaluations)
	assert.InDelta(t, 0.5, stats.AverageScore, 1e-9)
}
