package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
)

// fakeEmbedder returns canned vectors keyed by input text.
type fakeEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors[text], nil
}

type fakeCompleter struct {
	response string
	err      error
	calls    int
}

func (f *fakeCompleter) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &llm.CompletionResponse{Content: f.response}, nil
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float64
		want float64
	}{
		{"identical", []float64{1, 0}, []float64{1, 0}, 1.0},
		{"orthogonal", []float64{1, 0}, []float64{0, 1}, 0.0},
		{"opposite", []float64{1, 0}, []float64{-1, 0}, -1.0},
		{"zero vector", []float64{0, 0}, []float64{1, 0}, 0.0},
		{"length mismatch", []float64{1, 0}, []float64{1, 0, 0}, 0.0},
		{"empty", nil, nil, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func occurrence(convID, issueType, description string) domain.IssueOccurrence {
	return domain.IssueOccurrence{
		IssueType:      domain.IssueType(issueType),
		Severity:       domain.SeverityHigh,
		Description:    description,
		ConversationID: convID,
		Fingerprint:    Fingerprint(domain.IssueType(issueType), description),
	}
}

func TestClusterGreedyFirstFit(t *testing.T) {
	occA1 := occurrence("c1", "invalid_param", "bad date format")
	occA2 := occurrence("c2", "invalid_param", "bad date string")
	occB := occurrence("c3", "context_loss", "forgot destination")

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		occA1.Fingerprint: {1, 0, 0},
		occA2.Fingerprint: {0.95, 0.05, 0},
		occB.Fingerprint:  {0, 1, 0},
	}}

	engine := NewClusteringEngine(embedder, nil, 0.70)
	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{occA1, occA2, occB})

	require.Len(t, clusters, 2)
	assert.Equal(t, []string{"c1", "c2"}, clusters[0].ConversationIDs)
	assert.Equal(t, []string{"c3"}, clusters[1].ConversationIDs)
	assert.Contains(t, clusters[0].IssueTypes, domain.IssueType("invalid_param"))
}

func TestClusterRunningMeanEmbedding(t *testing.T) {
	occ1 := occurrence("c1", "invalid_param", "one")
	occ2 := occurrence("c2", "invalid_param", "two")

	embedder := &fakeEmbedder{vectors: map[string][]float64{
		occ1.Fingerprint: {1, 0},
		occ2.Fingerprint: {0.8, 0.6},
	}}

	engine := NewClusteringEngine(embedder, nil, 0.70)
	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{occ1, occ2})

	// cos({1,0},{0.8,0.6}) = 0.8 >= 0.70, so they merge and the mean is
	// updated component-wise.
	require.Len(t, clusters, 1)
	require.Len(t, clusters[0].MeanEmbedding, 2)
	assert.InDelta(t, 0.9, clusters[0].MeanEmbedding[0], 1e-9)
	assert.InDelta(t, 0.3, clusters[0].MeanEmbedding[1], 1e-9)
}

func TestClusterZeroVectorsNeverMerge(t *testing.T) {
	occ1 := occurrence("c1", "invalid_param", "one")
	occ2 := occurrence("c2", "invalid_param", "two")

	// No embedder: every occurrence gets a zero vector and opens its own
	// cluster.
	engine := NewClusteringEngine(nil, nil, 0.70)
	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{occ1, occ2})

	require.Len(t, clusters, 2)
	assert.Len(t, clusters[0].MeanEmbedding, embeddingDim)
}

func TestClusterEmbedderFailureFallsBackToZeroVector(t *testing.T) {
	engine := NewClusteringEngine(&fakeEmbedder{err: errors.New("quota exceeded")}, nil, 0.70)
	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{
		occurrence("c1", "invalid_param", "one"),
	})

	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].MeanEmbedding, embeddingDim)
}

func TestClusterEmptyInput(t *testing.T) {
	engine := NewClusteringEngine(nil, nil, 0)
	assert.Nil(t, engine.Cluster(context.Background(), nil))
}

func TestClusterMockEnrichment(t *testing.T) {
	engine := NewClusteringEngine(nil, nil, 0.70)
	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{
		occurrence("c1", "invalid_param", "one"),
	})

	require.Len(t, clusters, 1)
	assert.Equal(t, "Potential Tool Error", clusters[0].Label)
	assert.Equal(t, "Mock: Found a pattern in conversation tools.", clusters[0].Explanation)
	assert.Equal(t, 5.0, clusters[0].Severity)
}

func TestClusterLiveEnrichment(t *testing.T) {
	completer := &fakeCompleter{response: `{"label": "Date Format Drift", "explanation": "Dates sent as YYYY/MM/DD.", "severity": 7.5}`}
	engine := NewClusteringEngine(nil, completer, 0.70)

	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{
		occurrence("c1", "invalid_param", "one"),
	})

	require.Len(t, clusters, 1)
	assert.Equal(t, "Date Format Drift", clusters[0].Label)
	assert.Equal(t, 7.5, clusters[0].Severity)
	assert.Empty(t, clusters[0].EnrichmentError)
}

func TestClusterEnrichmentFailureDegrades(t *testing.T) {
	completer := &fakeCompleter{err: errors.New("model offline")}
	engine := NewClusteringEngine(nil, completer, 0.70)

	clusters := engine.Cluster(context.Background(), []domain.IssueOccurrence{
		occurrence("c1", "invalid_param", "one"),
		occurrence("c2", "context_loss", "two"),
	})

	require.Len(t, clusters, 2)
	for _, cluster := range clusters {
		assert.Equal(t, "Analysis Failed", cluster.Label)
		assert.NotEmpty(t, cluster.EnrichmentError)
		// Membership survives enrichment failure.
		assert.Equal(t, 1, cluster.MemberCount())
	}
}

func TestClusterSignificance(t *testing.T) {
	cluster := domain.NewIssueCluster()
	cluster.ConversationIDs = []string{"a", "b", "c"}
	cluster.Severity = 7.0
	assert.Equal(t, 21.0, cluster.Significance())
}
