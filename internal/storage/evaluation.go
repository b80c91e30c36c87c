package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func (r *PostgresRepository) SaveEvaluation(ctx context.Context, eval *domain.EvaluationResult) (string, error) {
	if eval.RunID == "" {
		eval.RunID = uuid.New().String()
	}

	evaluationsJSON, err := json.Marshal(eval.Evaluations)
	if err != nil {
		return "", fmt.Errorf("marshal evaluations: %w", err)
	}

	issuesJSON, err := json.Marshal(eval.Issues)
	if err != nil {
		return "", fmt.Errorf("marshal issues: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO evaluations (run_id, conversation_id, evaluations, aggregate_score, issues, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id) DO UPDATE SET
			evaluations = EXCLUDED.evaluations,
			aggregate_score = EXCLUDED.aggregate_score,
			issues = EXCLUDED.issues,
			status = EXCLUDED.status
	`, eval.RunID, eval.ConversationID, evaluationsJSON, eval.AggregateScore, issuesJSON, eval.Status, eval.CreatedAt)

	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	return eval.RunID, nil
}

// GetEvaluation returns the most recent evaluation run for a conversation.
func (r *PostgresRepository) GetEvaluation(ctx context.Context, conversationID string) (*domain.EvaluationResult, error) {
	row := r.db.Pool.QueryRow(ctx, `
		SELECT run_id, conversation_id, evaluations, aggregate_score, issues, status, created_at
		FROM evaluations
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, conversationID)

	eval, err := scanEvaluation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return eval, nil
}

func (r *PostgresRepository) ListEvaluations(ctx context.Context, limit, offset int) ([]*domain.EvaluationResult, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT run_id, conversation_id, evaluations, aggregate_score, issues, status, created_at
		FROM evaluations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var evals []*domain.EvaluationResult
	for rows.Next() {
		eval, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		evals = append(evals, eval)
	}

	return evals, nil
}

// GetPendingConversations returns ids of conversations with no evaluation
// on record, oldest first.
func (r *PostgresRepository) GetPendingConversations(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT c.id
		FROM conversations c
		LEFT JOIN evaluations e ON e.conversation_id = c.id
		WHERE e.run_id IS NULL
		ORDER BY c.created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, nil
}

func scanEvaluation(row pgx.Row) (*domain.EvaluationResult, error) {
	var eval domain.EvaluationResult
	var evaluationsJSON, issuesJSON []byte

	if err := row.Scan(&eval.RunID, &eval.ConversationID, &evaluationsJSON, &eval.AggregateScore, &issuesJSON, &eval.Status, &eval.CreatedAt); err != nil {
		return nil, err
	}

	eval.Evaluations = make(map[string]*domain.EvaluatorResult)
	if evaluationsJSON != nil {
		if err := json.Unmarshal(evaluationsJSON, &eval.Evaluations); err != nil {
			return nil, fmt.Errorf("unmarshal evaluations: %w", err)
		}
	}

	if issuesJSON != nil {
		if err := json.Unmarshal(issuesJSON, &eval.Issues); err != nil {
			return nil, fmt.Errorf("unmarshal issues: %w", err)
		}
	}

	return &eval, nil
}
