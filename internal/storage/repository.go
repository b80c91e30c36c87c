package storage

import (
	"context"
	"errors"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

// ErrNotFound signals a lookup miss. API layers translate it to a 404.
var ErrNotFound = errors.New("not found")

// Repository is the persistence contract consumed by the evaluation and
// analysis services. Listings are most-recent-first.
type Repository interface {
	SaveConversation(ctx context.Context, conv *domain.Conversation) (string, error)
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error)
	AddFeedback(ctx context.Context, id string, fb domain.Feedback) error
	MarkProcessed(ctx context.Context, id string) error

	SaveEvaluation(ctx context.Context, eval *domain.EvaluationResult) (string, error)
	GetEvaluation(ctx context.Context, conversationID string) (*domain.EvaluationResult, error)
	ListEvaluations(ctx context.Context, limit, offset int) ([]*domain.EvaluationResult, error)
	GetPendingConversations(ctx context.Context) ([]string, error)

	SaveProposal(ctx context.Context, proposal *domain.ImprovementProposal) (string, error)
	GetProposal(ctx context.Context, id string) (*domain.ImprovementProposal, error)
	ListProposals(ctx context.Context, limit, offset int) ([]*domain.ImprovementProposal, error)
}
