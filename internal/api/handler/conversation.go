package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/anubhavtomargaya/agent-eval/internal/domain"
	"github.com/anubhavtomargaya/agent-eval/internal/ingest"
	"github.com/anubhavtomargaya/agent-eval/internal/queue"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

const MaxConversationsPerRequest = 30

type ConversationHandler struct {
	ingestion *ingest.Service
	repo      storage.Repository
	queue     *queue.RedisQueue
}

// NewConversationHandler builds the handler. The queue may be nil; ingestion
// then skips publishing and conversations are picked up by evaluate-pending.
func NewConversationHandler(ingestion *ingest.Service, repo storage.Repository, q *queue.RedisQueue) *ConversationHandler {
	return &ConversationHandler{ingestion: ingestion, repo: repo, queue: q}
}

type IngestRequest struct {
	Conversations []json.RawMessage `json:"conversations"`
}

func (h *ConversationHandler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if len(req.Conversations) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no conversations provided"})
		return
	}

	if len(req.Conversations) > MaxConversationsPerRequest {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exceeds maximum batch size of 30"})
		return
	}

	result := h.ingestion.IngestBatch(c.Request.Context(), req.Conversations)

	if h.queue != nil && len(result.ConversationIDs) > 0 {
		convs := make([]*domain.Conversation, 0, len(result.ConversationIDs))
		for _, id := range result.ConversationIDs {
			conv, err := h.repo.GetConversation(c.Request.Context(), id)
			if err != nil {
				continue
			}
			convs = append(convs, conv)
		}
		if err := h.queue.PublishBatch(c.Request.Context(), convs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to queue conversations"})
			return
		}
	}

	status := http.StatusAccepted
	if result.Success == 0 {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

type IngestFileRequest struct {
	Path string `json:"path"`
}

// IngestFile ingests conversations from a JSON file on disk.
func (h *ConversationHandler) IngestFile(c *gin.Context) {
	var req IngestFileRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	result, err := h.ingestion.IngestFromFile(c.Request.Context(), req.Path)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// IngestPending processes every JSON file in the pending directory. An
// optional ?dir= overrides the default data/pending location.
func (h *ConversationHandler) IngestPending(c *gin.Context) {
	result, err := h.ingestion.IngestPending(c.Request.Context(), c.Query("dir"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process pending files"})
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *ConversationHandler) GetByID(c *gin.Context) {
	id := c.Param("id")

	conv, err := h.repo.GetConversation(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve conversation"})
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	limit, offset := paging(c)

	convs, err := h.repo.ListConversations(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

type FeedbackRequest struct {
	Source  string `json:"source"`
	Rating  *int   `json:"rating"`
	Comment string `json:"comment"`
}

func (h *ConversationHandler) AddFeedback(c *gin.Context) {
	id := c.Param("id")

	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if req.Source == "" && req.Rating == nil && req.Comment == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "feedback is empty"})
		return
	}

	fb := domain.Feedback{
		Source:  req.Source,
		Rating:  req.Rating,
		Comment: req.Comment,
	}

	if err := h.repo.AddFeedback(c.Request.Context(), id, fb); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to add feedback"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func paging(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit <= 0 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
