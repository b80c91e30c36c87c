package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
)

func (r *PostgresRepository) SaveConversation(ctx context.Context, conv *domain.Conversation) (string, error) {
	turnsJSON, err := json.Marshal(conv.Turns)
	if err != nil {
		return "", fmt.Errorf("marshal turns: %w", err)
	}

	var feedbackJSON []byte
	if conv.Feedback != nil {
		feedbackJSON, err = json.Marshal(conv.Feedback)
		if err != nil {
			return "", fmt.Errorf("marshal feedback: %w", err)
		}
	}

	metadataJSON := []byte("{}")
	if conv.Metadata != nil {
		metadataJSON, err = json.Marshal(conv.Metadata)
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
	}

	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO conversations (id, agent_version, turns, feedback, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			agent_version = EXCLUDED.agent_version,
			turns = EXCLUDED.turns,
			feedback = COALESCE(EXCLUDED.feedback, conversations.feedback),
			metadata = EXCLUDED.metadata
	`, conv.ID, conv.AgentVersion, turnsJSON, feedbackJSON, metadataJSON, conv.CreatedAt)

	if err != nil {
		return "", fmt.Errorf("insert: %w", err)
	}

	return conv.ID, nil
}

func (r *PostgresRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var conv domain.Conversation
	var turnsJSON, feedbackJSON, metadataJSON []byte

	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, agent_version, turns, feedback, metadata, created_at, processed_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(&conv.ID, &conv.AgentVersion, &turnsJSON, &feedbackJSON, &metadataJSON, &conv.CreatedAt, &conv.ProcessedAt)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query: %w", err)
	}

	if err := json.Unmarshal(turnsJSON, &conv.Turns); err != nil {
		return nil, fmt.Errorf("unmarshal turns: %w", err)
	}

	if feedbackJSON != nil {
		if err := json.Unmarshal(feedbackJSON, &conv.Feedback); err != nil {
			return nil, fmt.Errorf("unmarshal feedback: %w", err)
		}
	}

	conv.Metadata = make(map[string]any)
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &conv.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}

	return &conv, nil
}

func (r *PostgresRepository) ListConversations(ctx context.Context, limit, offset int) ([]*domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, agent_version, turns, feedback, metadata, created_at, processed_at
		FROM conversations
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var convs []*domain.Conversation
	for rows.Next() {
		var conv domain.Conversation
		var turnsJSON, feedbackJSON, metadataJSON []byte

		if err := rows.Scan(&conv.ID, &conv.AgentVersion, &turnsJSON, &feedbackJSON, &metadataJSON, &conv.CreatedAt, &conv.ProcessedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}

		if err := json.Unmarshal(turnsJSON, &conv.Turns); err != nil {
			return nil, fmt.Errorf("unmarshal turns: %w", err)
		}

		if feedbackJSON != nil {
			json.Unmarshal(feedbackJSON, &conv.Feedback)
		}

		conv.Metadata = make(map[string]any)
		if metadataJSON != nil {
			json.Unmarshal(metadataJSON, &conv.Metadata)
		}

		convs = append(convs, &conv)
	}

	return convs, nil
}

func (r *PostgresRepository) AddFeedback(ctx context.Context, id string, fb domain.Feedback) error {
	conv, err := r.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now().UTC()
	}
	conv.Feedback = append(conv.Feedback, fb)

	feedbackJSON, err := json.Marshal(conv.Feedback)
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	result, err := r.db.Pool.Exec(ctx, `
		UPDATE conversations SET feedback = $2 WHERE id = $1
	`, id, feedbackJSON)
	if err != nil {
		return fmt.Errorf("update: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) MarkProcessed(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `
		UPDATE conversations SET processed_at = NOW() WHERE id = $1
	`, id)
	return err
}
