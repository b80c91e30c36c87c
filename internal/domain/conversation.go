package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type Conversation struct {
	ID           string         `json:"conversation_id"`
	AgentVersion string         `json:"agent_version,omitempty"`
	Turns        []Turn         `json:"turns"`
	Feedback     []Feedback     `json:"feedback,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at,omitempty"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

type Turn struct {
	TurnID    int        `json:"turn_id"`
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	LatencyMs float64    `json:"latency_ms,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

type ToolCall struct {
	ToolName        string         `json:"tool_name"`
	Parameters      map[string]any `json:"parameters,omitempty"`
	Result          *ToolResult    `json:"result,omitempty"`
	ExecutionTimeMs float64        `json:"execution_time_ms,omitempty"`
}

type ToolResult struct {
	Status string         `json:"status,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Feedback is appended after ingestion; turns themselves stay immutable.
type Feedback struct {
	Source    string    `json:"source"`
	Rating    *int      `json:"rating,omitempty"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewConversation(id string, turns []Turn) *Conversation {
	if id == "" {
		id = uuid.New().String()
	}
	return &Conversation{
		ID:        id,
		Turns:     turns,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now().UTC(),
	}
}

// CloneMetadata returns an independently owned copy of the metadata map so
// derived conversations never alias the original's map.
func (c *Conversation) CloneMetadata() map[string]any {
	cloned := make(map[string]any, len(c.Metadata))
	for k, v := range c.Metadata {
		cloned[k] = v
	}
	return cloned
}

func (c *Conversation) AssistantTurns() []Turn {
	var turns []Turn
	for _, t := range c.Turns {
		if t.Role == RoleAssistant {
			turns = append(turns, t)
		}
	}
	return turns
}

func (c *Conversation) HasToolCalls() bool {
	for _, turn := range c.Turns {
		if len(turn.ToolCalls) > 0 {
			return true
		}
	}
	return false
}

func (c *Conversation) TurnByID(turnID int) *Turn {
	for i := range c.Turns {
		if c.Turns[i].TurnID == turnID {
			return &c.Turns[i]
		}
	}
	return nil
}

// IngestionResult reports the outcome of a batch ingest. Invalid items are
// counted and described, never allowed to abort the batch.
type IngestionResult struct {
	Total           int      `json:"total"`
	Success         int      `json:"success"`
	Failed          int      `json:"failed"`
	Errors          []string `json:"errors,omitempty"`
	ConversationIDs []string `json:"conversation_ids"`
}
