package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

var validRoles = map[string]struct{}{
	domain.RoleUser:      {},
	domain.RoleAssistant: {},
	domain.RoleSystem:    {},
}

// Service validates and stores incoming conversations. Malformed items are
// rejected individually; a bad item never aborts a batch.
type Service struct {
	repo storage.Repository
}

func NewService(repo storage.Repository) *Service {
	return &Service{repo: repo}
}

// IngestSingle validates, normalizes, and stores one raw conversation.
func (s *Service) IngestSingle(ctx context.Context, data json.RawMessage) (*domain.Conversation, error) {
	conv, err := s.validateAndConvert(data)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest conversation: %w", err)
	}

	id, err := s.repo.SaveConversation(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to ingest conversation: %w", err)
	}
	conv.ID = id
	return conv, nil
}

// IngestBatch ingests conversations in sequence, reporting per-item outcomes.
func (s *Service) IngestBatch(ctx context.Context, items []json.RawMessage) *domain.IngestionResult {
	result := &domain.IngestionResult{Total: len(items)}

	for _, item := range items {
		conv, err := s.IngestSingle(ctx, item)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Success++
		result.ConversationIDs = append(result.ConversationIDs, conv.ID)
	}

	return result
}

// IngestFromFile reads a JSON file holding either a single conversation, a
// list, or an object with a "conversations" array.
func (s *Service) IngestFromFile(ctx context.Context, path string) (*domain.IngestionResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file %s: %w", path, err)
	}

	items, err := splitConversations(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return s.IngestBatch(ctx, items), nil
}

func splitConversations(data []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var wrapper struct {
		Conversations []json.RawMessage `json:"conversations"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Conversations != nil {
		return wrapper.Conversations, nil
	}

	return []json.RawMessage{json.RawMessage(data)}, nil
}

// PendingFileResult describes the processing of one pending file.
type PendingFileResult struct {
	File     string `json:"file"`
	Status   string `json:"status"`
	Ingested int    `json:"ingested,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PendingResult aggregates a pass over the pending directory.
type PendingResult struct {
	FilesProcessed     int                 `json:"files_processed"`
	TotalConversations int                 `json:"total_conversations"`
	SuccessCount       int                 `json:"success_count"`
	FailedCount        int                 `json:"failed_count"`
	Details            []PendingFileResult `json:"details"`
}

// IngestPending processes every JSON file in the pending directory, moving
// each to a sibling processed/ or error/ directory.
func (s *Service) IngestPending(ctx context.Context, pendingDir string) (*PendingResult, error) {
	if pendingDir == "" {
		pendingDir = filepath.Join("data", "pending")
	}
	parent := filepath.Dir(pendingDir)
	processedDir := filepath.Join(parent, "processed")
	errorDir := filepath.Join(parent, "error")

	for _, dir := range []string{pendingDir, processedDir, errorDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}

	paths, err := filepath.Glob(filepath.Join(pendingDir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan pending dir: %w", err)
	}

	result := &PendingResult{}
	for _, path := range paths {
		result.FilesProcessed++
		name := filepath.Base(path)

		ingestResult, err := s.IngestFromFile(ctx, path)
		if err != nil {
			_ = os.Rename(path, filepath.Join(errorDir, name))
			result.Details = append(result.Details, PendingFileResult{
				File:   name,
				Status: "error",
				Error:  err.Error(),
			})
			continue
		}

		result.TotalConversations += ingestResult.Total
		result.SuccessCount += ingestResult.Success
		result.FailedCount += ingestResult.Failed

		_ = os.Rename(path, filepath.Join(processedDir, name))
		result.Details = append(result.Details, PendingFileResult{
			File:     name,
			Status:   "success",
			Ingested: ingestResult.Success,
		})
	}

	return result, nil
}

func (s *Service) validateAndConvert(data json.RawMessage) (*domain.Conversation, error) {
	var conv domain.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("parse conversation: %w", err)
	}

	if len(conv.Turns) == 0 {
		return nil, fmt.Errorf("conversation must have at least one turn")
	}

	for i := range conv.Turns {
		turn := &conv.Turns[i]
		if turn.TurnID == 0 {
			turn.TurnID = i
		}
		turn.Role = strings.ToLower(turn.Role)
		if _, ok := validRoles[turn.Role]; !ok {
			return nil, fmt.Errorf("invalid role %q in turn %d", turn.Role, turn.TurnID)
		}
	}

	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	if conv.Metadata == nil {
		conv.Metadata = make(map[string]any)
	}
	conv.CreatedAt = time.Now().UTC()

	return &conv, nil
}
