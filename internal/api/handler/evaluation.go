package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

type EvaluationHandler struct {
	evaluations *evaluator.Service
}

func NewEvaluationHandler(evaluations *evaluator.Service) *EvaluationHandler {
	return &EvaluationHandler{evaluations: evaluations}
}

// GetByConversationID returns the most recent evaluation for a conversation.
func (h *EvaluationHandler) GetByConversationID(c *gin.Context) {
	id := c.Param("conversation_id")

	eval, err := h.evaluations.GetEvaluation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "evaluation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve evaluation"})
		return
	}

	c.JSON(http.StatusOK, eval)
}

// Trigger evaluates one conversation immediately.
func (h *EvaluationHandler) Trigger(c *gin.Context) {
	id := c.Param("conversation_id")

	result, err := h.evaluations.Evaluate(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "evaluation failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// EvaluatePending evaluates all conversations with no evaluation on record.
// ?force=true re-evaluates recent conversations instead.
func (h *EvaluationHandler) EvaluatePending(c *gin.Context) {
	force := c.Query("force") == "true"

	results, err := h.evaluations.EvaluatePending(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to evaluate pending conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evaluated": len(results), "results": results})
}

func (h *EvaluationHandler) List(c *gin.Context) {
	limit, offset := paging(c)

	evals, err := h.evaluations.ListEvaluations(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list evaluations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"evaluations": evals, "count": len(evals)})
}

func (h *EvaluationHandler) Stats(c *gin.Context) {
	stats, err := h.evaluations.GetSummaryStats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}
