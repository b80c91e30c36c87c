package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

const validConversation = `{
	"conversation_id": "conv_1",
	"turns": [
		{"turn_id": 0, "role": "user", "content": "Book a flight to Paris"},
		{"turn_id": 1, "role": "ASSISTANT", "content": "When would you like to travel?"}
	]
}`

func TestIngestSingleNormalizesRoles(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	conv, err := svc.IngestSingle(context.Background(), json.RawMessage(validConversation))
	require.NoError(t, err)

	assert.Equal(t, "conv_1", conv.ID)
	assert.Equal(t, "assistant", conv.Turns[1].Role)
	assert.NotNil(t, conv.Metadata)
	assert.False(t, conv.CreatedAt.IsZero())
}

func TestIngestSingleGeneratesID(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	conv, err := svc.IngestSingle(context.Background(), json.RawMessage(`{
		"turns": [{"role": "user", "content": "hi"}]
	}`))
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, 0, conv.Turns[0].TurnID)
}

func TestIngestSingleRejectsInvalidRole(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	_, err := svc.IngestSingle(context.Background(), json.RawMessage(`{
		"turns": [{"role": "narrator", "content": "once upon a time"}]
	}`))
	assert.ErrorContains(t, err, "invalid role")
}

func TestIngestSingleRequiresTurns(t *testing.T) {
	svc := NewService(storage.NewMemoryRepository())

	_, err := svc.IngestSingle(context.Background(), json.RawMessage(`{"turns": []}`))
	assert.ErrorContains(t, err, "at least one turn")
}

func TestIngestBatchCountsPerItemOutcomes(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewService(repo)

	result := svc.IngestBatch(context.Background(), []json.RawMessage{
		json.RawMessage(validConversation),
		json.RawMessage(`{"turns": [{"role": "robot", "content": "beep"}]}`),
		json.RawMessage(`not json at all`),
	})

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 1, result.Success)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
	assert.Equal(t, []string{"conv_1"}, result.ConversationIDs)

	// The valid one landed in storage.
	_, err := repo.GetConversation(context.Background(), "conv_1")
	assert.NoError(t, err)
}

func TestIngestFromFileArrayAndWrapper(t *testing.T) {
	dir := t.TempDir()
	svc := NewService(storage.NewMemoryRepository())

	arrayPath := filepath.Join(dir, "batch.json")
	require.NoError(t, os.WriteFile(arrayPath, []byte(`[`+validConversation+`]`), 0o644))

	result, err := svc.IngestFromFile(context.Background(), arrayPath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)

	wrapperPath := filepath.Join(dir, "wrapper.json")
	wrapper := `{"conversations": [{"conversation_id": "conv_2", "turns": [{"role": "user", "content": "hi"}]}]}`
	require.NoError(t, os.WriteFile(wrapperPath, []byte(wrapper), 0o644))

	result, err = svc.IngestFromFile(context.Background(), wrapperPath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Success)
}

func TestIngestPendingMovesFiles(t *testing.T) {
	base := t.TempDir()
	pendingDir := filepath.Join(base, "pending")
	require.NoError(t, os.MkdirAll(pendingDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(pendingDir, "good.json"), []byte(validConversation), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(pendingDir, "bad.json"), []byte(`[{"broken":`), 0o644))

	svc := NewService(storage.NewMemoryRepository())
	result, err := svc.IngestPending(context.Background(), pendingDir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 1, result.SuccessCount)

	_, err = os.Stat(filepath.Join(base, "processed", "good.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(base, "error", "bad.json"))
	assert.NoError(t, err)

	remaining, err := filepath.Glob(filepath.Join(pendingDir, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, remaining)
}
