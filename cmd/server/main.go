package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anubhavtomargaya/agent-eval/internal/agent"
	"github.com/anubhavtomargaya/agent-eval/internal/analysis"
	"github.com/anubhavtomargaya/agent-eval/internal/api"
	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/config"
	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/ingest"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
	"github.com/anubhavtomargaya/agent-eval/internal/queue"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Postgres when configured, in-memory otherwise so the pipeline can be
	// exercised without infrastructure.
	var repo storage.Repository
	db, err := storage.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Printf("Warning: Postgres unavailable, using in-memory storage: %v", err)
		repo = storage.NewMemoryRepository()
	} else {
		defer db.Close()
		repo = storage.NewPostgresRepository(db)
	}

	var q *queue.RedisQueue
	q, err = queue.NewRedisQueue(&cfg.Redis, &cfg.Worker)
	if err != nil {
		log.Printf("Warning: Redis unavailable, evaluations run inline: %v", err)
		q = nil
	} else {
		defer q.Close()
	}

	llmClient, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		log.Printf("Warning: no LLM providers configured, using offline mode: %v", err)
		llmClient = nil
	}

	artifacts := artifact.NewStore(cfg.Analysis.ArtifactsDir)

	registry := evaluator.DefaultRegistry(cfg.Evaluation, llmClient, artifacts)
	evalService := evaluator.NewService(repo, registry, cfg.Evaluation.EnabledEvaluators)

	var embedder analysis.Embedder
	var completer analysis.Completer
	if llmClient != nil {
		embedder = llmClient
		completer = llmClient
	}

	clustering := analysis.NewClusteringEngine(embedder, completer, cfg.Analysis.SimilarityThreshold)
	suggestions := analysis.NewSuggestionEngine(completer)
	demoAgent := agent.NewDemoAgent(cfg.LLM.OpenAIAPIKey, "", artifacts)
	regression := analysis.NewRegressionTester(evalService, demoAgent, artifacts)
	analysisService := analysis.NewService(repo, evalService, clustering, suggestions, regression, artifacts)

	ingestion := ingest.NewService(repo)

	router := api.NewRouter(api.Deps{
		Repo:        repo,
		Ingestion:   ingestion,
		Evaluations: evalService,
		Analysis:    analysisService,
		Queue:       q,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Printf("Server starting on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
