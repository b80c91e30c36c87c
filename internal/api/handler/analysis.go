package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/anubhavtomargaya/agent-eval/internal/analysis"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

type AnalysisHandler struct {
	service *analysis.Service
}

func NewAnalysisHandler(service *analysis.Service) *AnalysisHandler {
	return &AnalysisHandler{service: service}
}

// RunCycle runs one discovery pass: cluster recent failures and generate
// improvement proposals.
func (h *AnalysisHandler) RunCycle(c *gin.Context) {
	limit, _ := paging(c)

	proposals, err := h.service.RunAnalysisCycle(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "analysis cycle failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"proposals": proposals, "count": len(proposals)})
}

func (h *AnalysisHandler) ListProposals(c *gin.Context) {
	limit, offset := paging(c)

	proposals, err := h.service.ListProposals(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list proposals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"proposals": proposals, "count": len(proposals)})
}

func (h *AnalysisHandler) GetProposal(c *gin.Context) {
	proposal, err := h.service.GetProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve proposal"})
		return
	}

	c.JSON(http.StatusOK, proposal)
}

// Verify runs a simulated regression and advances the proposal to TESTING.
func (h *AnalysisHandler) Verify(c *gin.Context) {
	report, err := h.service.VerifyProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

// Apply writes the proposal's content to the active artifact and advances it
// to APPROVED.
func (h *AnalysisHandler) Apply(c *gin.Context) {
	artifacts, err := h.service.ApplyProposal(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "apply failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "approved", "artifacts": artifacts})
}

type RealRegressionRequest struct {
	Prompts []string `json:"prompts"`
}

// RealRegression regenerates test conversations under baseline and active
// artifacts and compares scores.
func (h *AnalysisHandler) RealRegression(c *gin.Context) {
	var req RealRegressionRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Prompts) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "prompts are required"})
		return
	}

	report, err := h.service.RunRealRegression(c.Request.Context(), c.Param("id"), req.Prompts)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "proposal not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "real regression failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}
