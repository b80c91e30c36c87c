package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/analysis"
	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/ingest"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

// newTestRouter wires the API against in-memory storage with no LLM client
// and no queue, exercising the offline paths end to end.
func newTestRouter(t *testing.T) (*Router, storage.Repository) {
	t.Helper()

	repo := storage.NewMemoryRepository()
	store := artifact.NewStore(t.TempDir())

	registry := evaluator.NewRegistry()
	registry.Register("heuristic", func() evaluator.Evaluator {
		return evaluator.NewHeuristicEvaluator(0, 0, nil)
	})
	registry.Register("tool_call", func() evaluator.Evaluator {
		return evaluator.NewToolCallEvaluator(nil, false, store)
	})
	evals := evaluator.NewService(repo, registry, []string{"heuristic", "tool_call"})

	analysisService := analysis.NewService(
		repo,
		evals,
		analysis.NewClusteringEngine(nil, nil, 0.70),
		analysis.NewSuggestionEngine(nil),
		analysis.NewRegressionTester(evals, nil, store),
		store,
	)

	router := NewRouter(Deps{
		Repo:        repo,
		Ingestion:   ingest.NewService(repo),
		Evaluations: evals,
		Analysis:    analysisService,
	})
	return router, repo
}

func doJSON(t *testing.T, router *Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.Engine().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestAndRetrieveConversation(t *testing.T) {
	router, _ := newTestRouter(t)

	body := map[string]any{
		"conversations": []any{
			map[string]any{
				"conversation_id": "conv_1",
				"turns": []any{
					map[string]any{"turn_id": 0, "role": "user", "content": "Book a flight to Paris"},
					map[string]any{"turn_id": 1, "role": "assistant", "content": "When do you want to go?"},
				},
			},
			map[string]any{"turns": []any{}},
		},
	}

	w := doJSON(t, router, http.MethodPost, "/api/v1/conversations", body)
	assert.Equal(t, http.StatusAccepted, w.Code)

	var result domain.IngestionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 1, result.Failed)

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/conv_1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIngestRejectsEmptyBatch(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/api/v1/conversations", map[string]any{"conversations": []any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestFromFileEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	path := filepath.Join(t.TempDir(), "convs.json")
	data := `[{"conversation_id": "conv_file", "turns": [{"turn_id": 0, "role": "user", "content": "hi"}]}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	w := doJSON(t, router, http.MethodPost, "/api/v1/ingest/file", map[string]any{"path": path})
	require.Equal(t, http.StatusOK, w.Code)

	var result domain.IngestionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.Success)

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/conv_file", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ingest/file", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/ingest/file", map[string]any{"path": "/does/not/exist.json"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestPendingEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	pendingDir := filepath.Join(t.TempDir(), "pending")
	require.NoError(t, os.MkdirAll(pendingDir, 0o755))
	data := `{"conversations": [{"conversation_id": "conv_pending", "turns": [{"turn_id": 0, "role": "user", "content": "hi"}]}]}`
	require.NoError(t, os.WriteFile(filepath.Join(pendingDir, "batch.json"), []byte(data), 0o644))

	w := doJSON(t, router, http.MethodPost, "/api/v1/ingest/pending?dir="+url.QueryEscape(pendingDir), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var result ingest.PendingResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, 1, result.FilesProcessed)
	assert.Equal(t, 1, result.SuccessCount)

	// The file moves to the sibling processed directory.
	_, err := os.Stat(filepath.Join(pendingDir, "batch.json"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(filepath.Dir(pendingDir), "processed", "batch.json"))
	assert.NoError(t, err)

	w = doJSON(t, router, http.MethodGet, "/api/v1/conversations/conv_pending", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerEvaluationAndFetch(t *testing.T) {
	router, _ := newTestRouter(t)

	body := map[string]any{
		"conversations": []any{
			map[string]any{
				"conversation_id": "conv_1",
				"turns": []any{
					map[string]any{"turn_id": 0, "role": "user", "content": "Hi"},
					map[string]any{"turn_id": 1, "role": "assistant", "content": "Hello"},
				},
			},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/conversations", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/evaluations/conv_1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/evaluations/conv_1/trigger", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var eval domain.EvaluationResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eval))
	assert.Equal(t, "conv_1", eval.ConversationID)
	assert.Equal(t, domain.EvaluationCompleted, eval.Status)

	w = doJSON(t, router, http.MethodGet, "/api/v1/evaluations/conv_1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestFeedbackEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)

	_, err := repo.SaveConversation(context.Background(), domain.NewConversation("conv_1", []domain.Turn{
		{TurnID: 0, Role: domain.RoleUser, Content: "hi"},
	}))
	require.NoError(t, err)

	w := doJSON(t, router, http.MethodPost, "/api/v1/conversations/conv_1/feedback", map[string]any{
		"source": "user", "rating": 1, "comment": "booked the wrong date",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/conversations/conv_1/feedback", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/conversations/unknown/feedback", map[string]any{"comment": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisProposalLifecycleOverHTTP(t *testing.T) {
	router, _ := newTestRouter(t)

	// Seed a failing conversation: the flight_search call is missing its
	// required destination and carries a malformed date.
	body := map[string]any{
		"conversations": []any{
			map[string]any{
				"conversation_id": "conv_1",
				"turns": []any{
					map[string]any{"turn_id": 0, "role": "user", "content": "Find me a flight"},
					map[string]any{
						"turn_id": 1, "role": "assistant", "content": "Searching",
						"tool_calls": []any{
							map[string]any{"tool_name": "flight_search", "parameters": map[string]any{"date": "2026/01/22"}},
						},
					},
				},
			},
		},
	}
	w := doJSON(t, router, http.MethodPost, "/api/v1/conversations", body)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/evaluations/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/analysis/run", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var runResp struct {
		Proposals []*domain.ImprovementProposal `json:"proposals"`
		Count     int                           `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &runResp))
	require.NotZero(t, runResp.Count)
	proposalID := runResp.Proposals[0].ProposalID

	w = doJSON(t, router, http.MethodGet, "/api/v1/analysis/proposals/"+proposalID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodPost, "/api/v1/analysis/proposals/"+proposalID+"/verify", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report domain.RegressionReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Len(t, report.ScoreDeltas, 1)

	w = doJSON(t, router, http.MethodPost, "/api/v1/analysis/proposals/"+proposalID+"/apply", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/api/v1/analysis/proposals/"+proposalID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var proposal domain.ImprovementProposal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &proposal))
	assert.Equal(t, domain.ProposalApproved, proposal.Status)

	w = doJSON(t, router, http.MethodGet, "/api/v1/analysis/proposals/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
