package domain

import (
	"time"

	"github.com/google/uuid"
)

// IssueOccurrence is a denormalized projection of one issue plus its
// conversation context. Transient: it exists only for one clustering pass.
type IssueOccurrence struct {
	IssueType      IssueType     `json:"issue_type"`
	Severity       IssueSeverity `json:"severity"`
	Description    string        `json:"description"`
	TurnID         *int          `json:"turn_id,omitempty"`
	ConversationID string        `json:"conversation_id"`
	ContextContent string        `json:"context_content,omitempty"`
	SuggestedFix   string        `json:"suggested_fix,omitempty"`
	Fingerprint    string        `json:"fingerprint"`
	Embedding      []float64     `json:"-"`
}

// IssueCluster groups occurrences that share a failure pattern. The mean
// embedding is maintained incrementally as members are assigned.
type IssueCluster struct {
	ClusterID       string
	Label           string
	ConversationIDs []string
	IssueTypes      map[IssueType]struct{}
	Descriptions    []string
	MeanEmbedding   []float64
	Explanation     string
	Severity        float64
	EnrichmentError string
}

func NewIssueCluster() *IssueCluster {
	return &IssueCluster{
		ClusterID:  uuid.New().String(),
		IssueTypes: make(map[IssueType]struct{}),
	}
}

func (c *IssueCluster) MemberCount() int {
	return len(c.ConversationIDs)
}

// Significance weights cluster size by assigned severity.
func (c *IssueCluster) Significance() float64 {
	return float64(c.MemberCount()) * c.Severity
}

type ProposalType string

const (
	ProposalTypePrompt ProposalType = "prompt"
	ProposalTypeTool   ProposalType = "tool"
)

type ProposalStatus string

const (
	ProposalDraft    ProposalStatus = "draft"
	ProposalTesting  ProposalStatus = "testing"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalDeployed ProposalStatus = "deployed"
)

// ImprovementProposal is a suggested localized edit to the system prompt or
// a tool schema, produced from one cluster per analysis cycle.
type ImprovementProposal struct {
	ProposalID       string            `json:"proposal_id"`
	Type             ProposalType      `json:"type"`
	ClusterID        string            `json:"cluster_id,omitempty"`
	FailurePattern   string            `json:"failure_pattern"`
	Rationale        string            `json:"rationale"`
	OriginalContent  string            `json:"original_content"`
	ProposedContent  string            `json:"proposed_content"`
	EvidenceIDs      []string          `json:"evidence_ids,omitempty"`
	Status           ProposalStatus    `json:"status"`
	RegressionReport *RegressionReport `json:"regression_report,omitempty"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func NewImprovementProposal(proposalType ProposalType) *ImprovementProposal {
	now := time.Now().UTC()
	return &ImprovementProposal{
		ProposalID: uuid.New().String(),
		Type:       proposalType,
		Status:     ProposalDraft,
		Metadata:   make(map[string]any),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// ScoreDelta compares one metric between baseline and shadow runs.
type ScoreDelta struct {
	MetricName    string  `json:"metric_name"`
	OldVal        float64 `json:"old_val"`
	NewVal        float64 `json:"new_val"`
	IsImprovement bool    `json:"is_improvement"`
}

// RegressionReport holds the before/after comparison for one regression run.
// Attached to exactly one proposal at a time.
type RegressionReport struct {
	RunID              string         `json:"run_id"`
	Timestamp          time.Time      `json:"timestamp"`
	TestCaseCount      int            `json:"test_case_count"`
	ScoreDeltas        []ScoreDelta   `json:"score_deltas"`
	OverallImprovement bool           `json:"overall_improvement"`
	Details            map[string]any `json:"details,omitempty"`
}

func NewRegressionReport(testCaseCount int) *RegressionReport {
	return &RegressionReport{
		RunID:         uuid.New().String(),
		Timestamp:     time.Now().UTC(),
		TestCaseCount: testCaseCount,
		Details:       make(map[string]any),
	}
}
