package evaluator

import (
	"context"
	"fmt"
	"time"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// Evaluator is one independent quality check over a conversation.
type Evaluator interface {
	Name() string
	Evaluate(ctx context.Context, conv *domain.Conversation) (*domain.EvaluatorResult, error)
}

// Run executes an evaluator with timing and error isolation. Any error from
// the evaluator is converted into a degraded result with confidence 0.0 and
// the error recorded in metadata; a failing evaluator never aborts a run.
func Run(ctx context.Context, e Evaluator, conv *domain.Conversation) *domain.EvaluatorResult {
	start := time.Now()

	result, err := e.Evaluate(ctx, conv)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil || result == nil {
		degraded := &domain.EvaluatorResult{
			EvaluatorName: e.Name(),
			Scores:        map[string]float64{},
			Issues:        nil,
			Confidence:    0.0,
			LatencyMs:     latencyMs,
			Metadata:      map[string]any{"latency_ms": latencyMs},
		}
		if err != nil {
			degraded.Metadata["error"] = err.Error()
		} else {
			degraded.Metadata["error"] = "evaluator returned no result"
		}
		return degraded
	}

	result.EvaluatorName = e.Name()
	result.LatencyMs = latencyMs
	if result.Metadata == nil {
		result.Metadata = map[string]any{}
	}
	result.Metadata["latency_ms"] = latencyMs
	return result
}

// Factory constructs a fresh evaluator instance.
type Factory func() Evaluator

// Registry maps evaluator names to factories. Registration happens explicitly
// at startup; there is no runtime discovery.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

func (r *Registry) Register(name string, factory Factory) {
	r.factories[name] = factory
}

// Get returns a fresh evaluator instance, or an error if the name is unknown.
func (r *Registry) Get(name string) (Evaluator, error) {
	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("evaluator not registered: %s", name)
	}
	return factory(), nil
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
