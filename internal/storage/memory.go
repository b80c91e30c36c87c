package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// MemoryRepository is an in-memory Repository for tests and offline demos.
type MemoryRepository struct {
	mu sync.RWMutex

	conversations     map[string]*domain.Conversation
	conversationOrder []string

	evaluations   []*domain.EvaluationResult
	latestEvals   map[string]*domain.EvaluationResult
	proposals     map[string]*domain.ImprovementProposal
	proposalOrder []string
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		conversations: make(map[string]*domain.Conversation),
		latestEvals:   make(map[string]*domain.EvaluationResult),
		proposals:     make(map[string]*domain.ImprovementProposal),
	}
}

func (r *MemoryRepository) SaveConversation(ctx context.Context, conv *domain.Conversation) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}
	if conv.Metadata == nil {
		conv.Metadata = make(map[string]any)
	}

	if _, exists := r.conversations[conv.ID]; !exists {
		r.conversationOrder = append(r.conversationOrder, conv.ID)
	}
	r.conversations[conv.ID] = conv

	return conv.ID, nil
}

func (r *MemoryRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv, nil
}

func (r *MemoryRepository) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	// Most recent first
	var convs []*domain.Conversation
	for i := len(r.conversationOrder) - 1 - offset; i >= 0 && len(convs) < limit; i-- {
		convs = append(convs, r.conversations[r.conversationOrder[i]])
	}
	return convs, nil
}

func (r *MemoryRepository) AddFeedback(ctx context.Context, id string, fb domain.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return ErrNotFound
	}

	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	conv.Feedback = append(conv.Feedback, fb)
	return nil
}

func (r *MemoryRepository) MarkProcessed(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.conversations[id]
	if !ok {
		return ErrNotFound
	}

	now := time.Now().UTC()
	conv.ProcessedAt = &now
	return nil
}

func (r *MemoryRepository) SaveEvaluation(ctx context.Context, eval *domain.EvaluationResult) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if eval.RunID == "" {
		eval.RunID = uuid.New().String()
	}

	r.evaluations = append(r.evaluations, eval)
	r.latestEvals[eval.ConversationID] = eval

	return eval.RunID, nil
}

func (r *MemoryRepository) GetEvaluation(ctx context.Context, conversationID string) (*domain.EvaluationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eval, ok := r.latestEvals[conversationID]
	if !ok {
		return nil, ErrNotFound
	}
	return eval, nil
}

func (r *MemoryRepository) ListEvaluations(ctx context.Context, limit, offset int) ([]*domain.EvaluationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var evals []*domain.EvaluationResult
	for i := len(r.evaluations) - 1 - offset; i >= 0 && len(evals) < limit; i-- {
		evals = append(evals, r.evaluations[i])
	}
	return evals, nil
}

func (r *MemoryRepository) GetPendingConversations(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for _, id := range r.conversationOrder {
		if _, evaluated := r.latestEvals[id]; !evaluated {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRepository) SaveProposal(ctx context.Context, p *domain.ImprovementProposal) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ProposalID == "" {
		p.ProposalID = uuid.New().String()
	}
	p.UpdatedAt = time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}

	if _, exists := r.proposals[p.ProposalID]; !exists {
		r.proposalOrder = append(r.proposalOrder, p.ProposalID)
	}
	r.proposals[p.ProposalID] = p

	return p.ProposalID, nil
}

func (r *MemoryRepository) GetProposal(ctx context.Context, id string) (*domain.ImprovementProposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.proposals[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepository) ListProposals(ctx context.Context, limit, offset int) ([]*domain.ImprovementProposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}

	var proposals []*domain.ImprovementProposal
	for i := len(r.proposalOrder) - 1 - offset; i >= 0 && len(proposals) < limit; i-- {
		proposals = append(proposals, r.proposals[r.proposalOrder[i]])
	}
	return proposals, nil
}
