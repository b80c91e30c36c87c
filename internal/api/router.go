package api

import (
	"github.com/gin-gonic/gin"

	"github.com/anubhavtomargaya/agent-eval/internal/analysis"
	"github.com/anubhavtomargaya/agent-eval/internal/api/handler"
	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/ingest"
	"github.com/anubhavtomargaya/agent-eval/internal/queue"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

type Router struct {
	engine *gin.Engine
}

// Deps holds the services the API exposes. The queue is optional; when nil,
// ingested conversations are not enqueued for async evaluation.
type Deps struct {
	Repo        storage.Repository
	Ingestion   *ingest.Service
	Evaluations *evaluator.Service
	Analysis    *analysis.Service
	Queue       *queue.RedisQueue
}

func NewRouter(deps Deps) *Router {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())

	convHandler := handler.NewConversationHandler(deps.Ingestion, deps.Repo, deps.Queue)
	evalHandler := handler.NewEvaluationHandler(deps.Evaluations)
	analysisHandler := handler.NewAnalysisHandler(deps.Analysis)

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := engine.Group("/api/v1")
	{
		conversations := v1.Group("/conversations")
		{
			conversations.POST("", convHandler.Ingest)
			conversations.GET("", convHandler.List)
			conversations.GET("/:id", convHandler.GetByID)
			conversations.POST("/:id/feedback", convHandler.AddFeedback)
		}

		ingestGroup := v1.Group("/ingest")
		{
			ingestGroup.POST("/file", convHandler.IngestFile)
			ingestGroup.POST("/pending", convHandler.IngestPending)
		}

		evaluations := v1.Group("/evaluations")
		{
			evaluations.GET("", evalHandler.List)
			evaluations.GET("/stats", evalHandler.Stats)
			evaluations.POST("/pending", evalHandler.EvaluatePending)
			evaluations.GET("/:conversation_id", evalHandler.GetByConversationID)
			evaluations.POST("/:conversation_id/trigger", evalHandler.Trigger)
		}

		analysisGroup := v1.Group("/analysis")
		{
			analysisGroup.POST("/run", analysisHandler.RunCycle)

			proposals := analysisGroup.Group("/proposals")
			{
				proposals.GET("", analysisHandler.ListProposals)
				proposals.GET("/:id", analysisHandler.GetProposal)
				proposals.POST("/:id/verify", analysisHandler.Verify)
				proposals.POST("/:id/apply", analysisHandler.Apply)
				proposals.POST("/:id/regression", analysisHandler.RealRegression)
			}
		}
	}

	return &Router{engine: engine}
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}
