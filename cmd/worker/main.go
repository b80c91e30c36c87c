package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/anubhavtomargaya/agent-eval/internal/artifact"
	"github.com/anubhavtomargaya/agent-eval/internal/config"
	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/llm"
	"github.com/anubhavtomargaya/agent-eval/internal/queue"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
	"github.com/anubhavtomargaya/agent-eval/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	repo := storage.NewPostgresRepository(db)

	q, err := queue.NewRedisQueue(&cfg.Redis, &cfg.Worker)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer q.Close()

	llmClient, err := llm.NewClient(&cfg.LLM)
	if err != nil {
		log.Printf("Warning: no LLM providers configured, using offline mode: %v", err)
		llmClient = nil
	}

	artifacts := artifact.NewStore(cfg.Analysis.ArtifactsDir)

	registry := evaluator.DefaultRegistry(cfg.Evaluation, llmClient, artifacts)
	evalService := evaluator.NewService(repo, registry, cfg.Evaluation.EnabledEvaluators)

	w := worker.New(q, repo, evalService, cfg.Worker.Concurrency, cfg.Worker.BatchSize)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down worker...")
		cancel()
	}()

	log.Println("Worker starting...")
	if err := w.Start(ctx); err != nil {
		log.Fatalf("Worker error: %v", err)
	}

	log.Println("Worker stopped")
}
