package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
)

// embeddingDim matches text-embedding-3-small; used for the zero-vector
// stand-in when no embedding capability is configured.
const embeddingDim = 1536

const defaultSimilarityThreshold = 0.70

// Embedder is the slice of the LLM client needed for clustering.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Completer is the slice of the LLM client needed for cluster enrichment and
// proposal generation.
type Completer interface {
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// CosineSimilarity between two vectors. A zero vector never matches anything:
// its similarity is defined as 0.0 to prevent spurious merges when embeddings
// are unavailable.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ClusteringEngine groups issue occurrences by embedding similarity using
// greedy single-pass incremental clustering: each occurrence joins the first
// cluster whose mean embedding is similar enough, else opens a new one.
// First-fit by input order is intentional; it biases toward larger,
// earlier-discovered clusters and no global optimum is sought.
type ClusteringEngine struct {
	embedder  Embedder
	completer Completer
	threshold float64
}

// NewClusteringEngine builds the engine. Either capability may be nil: a nil
// embedder yields zero vectors (occurrences never merge), a nil completer
// yields deterministic mock enrichment.
func NewClusteringEngine(embedder Embedder, completer Completer, threshold float64) *ClusteringEngine {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	return &ClusteringEngine{
		embedder:  embedder,
		completer: completer,
		threshold: threshold,
	}
}

// Cluster assigns occurrences to clusters and enriches each cluster once.
func (e *ClusteringEngine) Cluster(ctx context.Context, occurrences []domain.IssueOccurrence) []*domain.IssueCluster {
	if len(occurrences) == 0 {
		return nil
	}

	for i := range occurrences {
		if occurrences[i].Embedding == nil {
			occurrences[i].Embedding = e.embed(ctx, occurrences[i].Fingerprint)
		}
	}

	var clusters []*domain.IssueCluster

	for i := range occurrences {
		occ := &occurrences[i]

		assigned := false
		for _, cluster := range clusters {
			sim := CosineSimilarity(occ.Embedding, cluster.MeanEmbedding)
			if sim >= e.threshold {
				addToCluster(cluster, occ)
				assigned = true
				break
			}
		}

		if !assigned {
			cluster := domain.NewIssueCluster()
			cluster.ConversationIDs = []string{occ.ConversationID}
			cluster.IssueTypes[occ.IssueType] = struct{}{}
			cluster.Descriptions = []string{occ.Description}
			cluster.MeanEmbedding = append([]float64(nil), occ.Embedding...)
			clusters = append(clusters, cluster)
		}
	}

	for i, cluster := range clusters {
		log.Printf("enriching cluster %d/%d", i+1, len(clusters))
		e.enrichCluster(ctx, cluster)
	}

	return clusters
}

func (e *ClusteringEngine) embed(ctx context.Context, text string) []float64 {
	if e.embedder == nil {
		return make([]float64, embeddingDim)
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		if err != nil {
			log.Printf("embedding failed, using zero vector: %v", err)
		}
		return make([]float64, embeddingDim)
	}
	return vec
}

// addToCluster appends the occurrence and updates the running mean embedding:
// new_mean = (old_mean * (n-1) + v) / n, an exact running average.
func addToCluster(cluster *domain.IssueCluster, occ *domain.IssueOccurrence) {
	cluster.ConversationIDs = append(cluster.ConversationIDs, occ.ConversationID)
	cluster.Descriptions = append(cluster.Descriptions, occ.Description)
	cluster.IssueTypes[occ.IssueType] = struct{}{}

	n := float64(len(cluster.ConversationIDs))
	for i := range cluster.MeanEmbedding {
		cluster.MeanEmbedding[i] = (cluster.MeanEmbedding[i]*(n-1) + occ.Embedding[i]) / n
	}
}

type enrichmentResponse struct {
	Label       string  `json:"label"`
	Explanation string  `json:"explanation"`
	Severity    float64 `json:"severity"`
}

// enrichCluster asks the reasoning model for a label, explanation, and
// severity. Failures degrade the cluster but its membership remains valid.
func (e *ClusteringEngine) enrichCluster(ctx context.Context, cluster *domain.IssueCluster) {
	if e.completer == nil {
		cluster.Label = "Potential Tool Error"
		cluster.Explanation = "Mock: Found a pattern in conversation tools."
		cluster.Severity = 5.0
		return
	}

	descriptions := uniqueHead(cluster.Descriptions, 10)

	prompt := fmt.Sprintf(`Analyze this group of similar AI agent failures:

Reported Issues:
%s

Provide a JSON response with:
- "label": A short, punchy name for this pattern (max 5 words)
- "explanation": What is the core technical cause? (1-2 sentences)
- "severity": A score from 1.0 (low) to 10.0 (critical) based on the impact of this error.`,
		strings.Join(descriptions, "\n"))

	resp, err := e.completer.Complete(ctx, &llm.CompletionRequest{
		Messages: []llm.Message{
			{Role: "user", Content: prompt},
		},
		MaxTokens:   512,
		Temperature: 0.0,
		JSONMode:    true,
	})
	if err != nil {
		e.degradeCluster(cluster, err)
		return
	}

	var parsed enrichmentResponse
	if err := json.Unmarshal([]byte(resp.Content), &parsed); err != nil {
		e.degradeCluster(cluster, fmt.Errorf("parse enrichment: %w", err))
		return
	}

	cluster.Label = parsed.Label
	if cluster.Label == "" {
		cluster.Label = "Unknown Pattern"
	}
	cluster.Explanation = parsed.Explanation
	cluster.Severity = parsed.Severity
	if cluster.Severity == 0 {
		cluster.Severity = 5.0
	}
}

func (e *ClusteringEngine) degradeCluster(cluster *domain.IssueCluster, err error) {
	log.Printf("cluster enrichment failed: %v", err)
	cluster.Label = "Analysis Failed"
	cluster.EnrichmentError = err.Error()
}

func uniqueHead(items []string, limit int) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, limit)
	for _, item := range items {
		if _, dup := seen[item]; dup {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
		if len(out) == limit {
			break
		}
	}
	return out
}
