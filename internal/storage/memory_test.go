package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func TestMemoryRepositoryConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.GetConversation(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	conv := domain.NewConversation("c1", []domain.Turn{
		{TurnID: 0, Role: domain.RoleUser, Content: "Hi"},
	})
	id, err := repo.SaveConversation(ctx, conv)
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	got, err := repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestMemoryRepositoryGeneratesID(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	id, err := repo.SaveConversation(ctx, &domain.Conversation{})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestMemoryRepositoryListMostRecentFirst(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := repo.SaveConversation(ctx, domain.NewConversation(id, nil))
		require.NoError(t, err)
	}

	convs, err := repo.ListConversations(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, "c3", convs[0].ID)
	assert.Equal(t, "c2", convs[1].ID)

	convs, err = repo.ListConversations(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, convs, 1)
	assert.Equal(t, "c1", convs[0].ID)
}

func TestMemoryRepositoryFeedbackAppend(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.SaveConversation(ctx, domain.NewConversation("c1", nil))
	require.NoError(t, err)

	rating := 2
	err = repo.AddFeedback(ctx, "c1", domain.Feedback{Source: "user", Rating: &rating, Comment: "wrong date"})
	require.NoError(t, err)
	err = repo.AddFeedback(ctx, "c1", domain.Feedback{Source: "reviewer", Comment: "confirmed"})
	require.NoError(t, err)

	conv, err := repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, conv.Feedback, 2)
	assert.Equal(t, "user", conv.Feedback[0].Source)
	assert.False(t, conv.Feedback[0].CreatedAt.IsZero())

	err = repo.AddFeedback(ctx, "missing", domain.Feedback{Source: "user"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryPendingExcludesEvaluated(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	for _, id := range []string{"c1", "c2"} {
		_, err := repo.SaveConversation(ctx, domain.NewConversation(id, nil))
		require.NoError(t, err)
	}

	eval := domain.NewEvaluationResult("c1")
	_, err := repo.SaveEvaluation(ctx, eval)
	require.NoError(t, err)

	pending, err := repo.GetPendingConversations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, pending)
}

func TestMemoryRepositoryLatestEvaluationWins(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	first := domain.NewEvaluationResult("c1")
	first.AggregateScore = 0.4
	_, err := repo.SaveEvaluation(ctx, first)
	require.NoError(t, err)

	second := domain.NewEvaluationResult("c1")
	second.AggregateScore = 0.8
	_, err = repo.SaveEvaluation(ctx, second)
	require.NoError(t, err)

	got, err := repo.GetEvaluation(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, second.RunID, got.RunID)

	// Both runs remain listed, newest first.
	evals, err := repo.ListEvaluations(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, evals, 2)
	assert.Equal(t, second.RunID, evals[0].RunID)
}

func TestMemoryRepositoryProposalRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	p := domain.NewImprovementProposal(domain.ProposalTypePrompt)
	p.Rationale = "clarify date formats"
	id, err := repo.SaveProposal(ctx, p)
	require.NoError(t, err)

	got, err := repo.GetProposal(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.ProposalDraft, got.Status)

	got.Status = domain.ProposalTesting
	_, err = repo.SaveProposal(ctx, got)
	require.NoError(t, err)

	proposals, err := repo.ListProposals(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, proposals, 1)
	assert.Equal(t, domain.ProposalTesting, proposals[0].Status)

	_, err = repo.GetProposal(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositoryMarkProcessed(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	_, err := repo.SaveConversation(ctx, domain.NewConversation("c1", nil))
	require.NoError(t, err)

	require.NoError(t, repo.MarkProcessed(ctx, "c1"))

	conv, err := repo.GetConversation(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, conv.ProcessedAt)

	assert.ErrorIs(t, repo.MarkProcessed(ctx, "missing"), ErrNotFound)
}
