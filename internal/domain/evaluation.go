package domain

import (
	"time"

	"github.com/google/uuid"
)

type IssueSeverity string

const (
	SeverityLow      IssueSeverity = "low"
	SeverityMedium   IssueSeverity = "medium"
	SeverityHigh     IssueSeverity = "high"
	SeverityCritical IssueSeverity = "critical"
)

type IssueType string

const (
	IssueMissingField    IssueType = "missing_field"
	IssueFormatError     IssueType = "format_error"
	IssueLatencyExceeded IssueType = "latency_exceeded"

	IssueInvalidTool       IssueType = "invalid_tool"
	IssueInvalidParam      IssueType = "invalid_param"
	IssueMissingParam      IssueType = "missing_param"
	IssueToolHallucination IssueType = "tool_hallucination"
	IssueExecutionFailed   IssueType = "execution_failed"

	IssueContextLoss          IssueType = "context_loss"
	IssueInconsistentResponse IssueType = "inconsistent_response"
	IssueReferenceError       IssueType = "reference_error"

	IssueLowHelpfulness IssueType = "low_helpfulness"
	IssueLowFactuality  IssueType = "low_factuality"
	IssueLowQuality     IssueType = "low_quality"
)

// Issue is a single detected problem. Produced by exactly one evaluator and
// owned by the evaluation run that found it.
type Issue struct {
	Type         IssueType      `json:"type"`
	Severity     IssueSeverity  `json:"severity"`
	Description  string         `json:"description"`
	TurnID       *int           `json:"turn_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
	SuggestedFix string         `json:"suggested_fix,omitempty"`
}

// EvaluatorResult is one evaluator's verdict: named sub-scores in [0,1],
// the issues it found, and a confidence in [0,1].
type EvaluatorResult struct {
	EvaluatorName string             `json:"evaluator_name"`
	Scores        map[string]float64 `json:"scores"`
	Issues        []Issue            `json:"issues,omitempty"`
	Confidence    float64            `json:"confidence"`
	LatencyMs     float64            `json:"latency_ms"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
}

type EvaluationStatus string

const (
	EvaluationPending   EvaluationStatus = "pending"
	EvaluationCompleted EvaluationStatus = "completed"
	EvaluationFailed    EvaluationStatus = "failed"
)

// EvaluationResult aggregates all evaluator results for one conversation
// under one run id. Immutable once completed; re-evaluation creates a new run.
type EvaluationResult struct {
	ConversationID string                      `json:"conversation_id"`
	RunID          string                      `json:"run_id"`
	Evaluations    map[string]*EvaluatorResult `json:"evaluations"`
	AggregateScore float64                     `json:"aggregate_score"`
	Issues         []Issue                     `json:"issues"`
	Status         EvaluationStatus            `json:"status"`
	CreatedAt      time.Time                   `json:"created_at"`
}

func NewEvaluationResult(conversationID string) *EvaluationResult {
	return &EvaluationResult{
		ConversationID: conversationID,
		RunID:          uuid.New().String(),
		Evaluations:    make(map[string]*EvaluatorResult),
		Status:         EvaluationPending,
		CreatedAt:      time.Now().UTC(),
	}
}

// ComputeAggregateScore sets the aggregate to the mean of every sub-score
// across every evaluator that ran. No evaluators or no scores means 0.0.
func (r *EvaluationResult) ComputeAggregateScore() float64 {
	var sum float64
	var count int
	for _, er := range r.Evaluations {
		for _, s := range er.Scores {
			sum += s
			count++
		}
	}
	if count == 0 {
		r.AggregateScore = 0.0
		return 0.0
	}
	r.AggregateScore = sum / float64(count)
	return r.AggregateScore
}

// AggregateIssues unions the issues from all evaluators into r.Issues.
func (r *EvaluationResult) AggregateIssues() []Issue {
	r.Issues = nil
	for _, er := range r.Evaluations {
		r.Issues = append(r.Issues, er.Issues...)
	}
	return r.Issues
}
