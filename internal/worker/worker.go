package worker

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/anubhavtomargaya/agent-eval/internal/evaluator"
	"github.com/anubhavtomargaya/agent-eval/internal/queue"
	"github.com/anubhavtomargaya/agent-eval/internal/storage"
)

// Worker consumes ingested conversations from the queue and evaluates them.
type Worker struct {
	queue       *queue.RedisQueue
	repo        storage.Repository
	evaluations *evaluator.Service
	concurrency int
	batchSize   int
}

func New(
	q *queue.RedisQueue,
	repo storage.Repository,
	evaluations *evaluator.Service,
	concurrency int,
	batchSize int,
) *Worker {
	return &Worker{
		queue:       q,
		repo:        repo,
		evaluations: evaluations,
		concurrency: concurrency,
		batchSize:   batchSize,
	}
}

func (w *Worker) Start(ctx context.Context) error {
	log.Printf("starting worker with concurrency=%d, batchSize=%d", w.concurrency, w.batchSize)

	jobs := make(chan queue.Message, w.concurrency*2)
	var wg sync.WaitGroup

	for i := 0; i < w.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			w.processJobs(ctx, workerID, jobs)
		}(i)
	}

	go func() {
		defer close(jobs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				messages, err := w.queue.Consume(ctx, int64(w.batchSize), 5*time.Second)
				if err != nil {
					log.Printf("error consuming messages: %v", err)
					time.Sleep(time.Second)
					continue
				}

				for _, msg := range messages {
					select {
					case jobs <- msg:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	wg.Wait()
	return nil
}

func (w *Worker) processJobs(ctx context.Context, workerID int, jobs <-chan queue.Message) {
	for msg := range jobs {
		if err := w.processConversation(ctx, msg); err != nil {
			log.Printf("worker %d: error processing %s: %v", workerID, msg.Conversation.ID, err)
			continue
		}

		if err := w.queue.Ack(ctx, msg.ID); err != nil {
			log.Printf("worker %d: error acking %s: %v", workerID, msg.ID, err)
		}
	}
}

func (w *Worker) processConversation(ctx context.Context, msg queue.Message) error {
	conv := msg.Conversation
	log.Printf("processing conversation: %s", conv.ID)

	result, err := w.evaluations.EvaluateConversation(ctx, conv)
	if err != nil {
		return err
	}

	if err := w.repo.MarkProcessed(ctx, conv.ID); err != nil {
		return err
	}

	log.Printf("completed evaluation for %s: aggregate=%.2f, issues=%d",
		conv.ID, result.AggregateScore, len(result.Issues))

	return nil
}
