package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

type stubEvaluator struct {
	name   string
	result *domain.EvaluatorResult
	err    error
}

func (s *stubEvaluator) Name() string { return s.name }

func (s *stubEvaluator) Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error) {
	return s.result, s.err
}

func TestRunSuccessStampsNameAndLatency(t *testing.T) {
	stub := &stubEvaluator{
		name: "stub",
		result: &domain.EvaluatorResult{
			Scores:     map[string]float64{"quality": 0.9},
			Confidence: 1.0,
		},
	}

	result := Run(context.Background(), stub, domain.NewConversation("c1", nil))

	assert.Equal(t, "stub", result.EvaluatorName)
	assert.Equal(t, 0.9, result.Scores["quality"])
	assert.GreaterOrEqual(t, result.LatencyMs, 0.0)
	assert.Contains(t, result.Metadata, "latency_ms")
}

func TestRunConvertsErrorToDegradedResult(t *testing.T) {
	stub := &stubEvaluator{name: "broken", err: errors.New("model unavailable")}

	result := Run(context.Background(), stub, domain.NewConversation("c1", nil))

	require.NotNil(t, result)
	assert.Equal(t, "broken", result.EvaluatorName)
	assert.Empty(t, result.Scores)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "model unavailable", result.Metadata["error"])
}

func TestRunConvertsNilResultToDegradedResult(t *testing.T) {
	stub := &stubEvaluator{name: "silent"}

	result := Run(context.Background(), stub, domain.NewConversation("c1", nil))

	require.NotNil(t, result)
	assert.Empty(t, result.Scores)
	assert.Equal(t, 0.0, result.Confidence)
	assert.Equal(t, "evaluator returned no result", result.Metadata["error"])
}

func TestRegistryGetUnknownName(t *testing.T) {
	r := NewRegistry()
	r.Register("heuristic", func() Evaluator { return NewHeuristicEvaluator(0, 0, nil) })

	_, err := r.Get("nonexistent")
	assert.Error(t, err)

	e, err := r.Get("heuristic")
	require.NoError(t, err)
	assert.Equal(t, "heuristic", e.Name())
	assert.ElementsMatch(t, []string{"heuristic"}, r.Names())
}

func TestRegistryReturnsFreshInstances(t *testing.T) {
	r := NewRegistry()
	r.Register("heuristic", func() Evaluator { return NewHeuristicEvaluator(0, 0, nil) })

	a, err := r.Get("heuristic")
	require.NoError(t, err)
	b, err := r.Get("heuristic")
	require.NoError(t, err)
	assert.NotSame(t, a, b)
}
