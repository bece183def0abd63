package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
	"github.com/parleyhq/parley/internal/chat"
	"github.com/parleyhq/parley/internal/config"
	"github.com/parleyhq/parley/internal/db"
	"github.com/parleyhq/parley/internal/keys"
	"github.com/parleyhq/parley/internal/store/rabbitmq"
)

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if len(cfg.CredentialKey) == 0 {
		log.Fatalf("CREDENTIAL_KEY is required")
	}

	gdb := db.Connect(cfg.DBDSN)

	sealer, err := keys.NewSealer(cfg.CredentialKey)
	if err != nil {
		log.Fatalf("sealer: %v", err)
	}
	repo := chat.NewRepo(gdb)
	svc := chat.NewService(repo, keys.NewResolver(keys.NewRepo(gdb), sealer),
		ai.Options{Timeout: cfg.ProviderTimeout, OllamaBaseURL: cfg.OllamaBaseURL})

	concurrency := workerConcurrency()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, concurrency)
	if err != nil {
		log.Fatalf("rabbit: %v", err)
	}
	defer consumer.Close()

	msgs, err := consumer.Deliveries()
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m rabbitmq.JobMessage
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				start := time.Now()
				if err := handleJob(ctx, svc, repo, m.JobID); err != nil {
					log.Printf("worker=%d job=%s failed cost=%s err=%v",
						workerID, m.JobID, time.Since(start), err)
					_ = d.Nack(false, false)
					continue
				}
				if err := d.Ack(false); err != nil {
					log.Printf("worker=%d ack failed job=%s err=%v", workerID, m.JobID, err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(time.Second)
				continue
			}
			jobs <- d
		}
	}
}

// handleJob runs one queued exchange. The job row is the source of truth;
// the queue message only carries the id.
func handleJob(ctx context.Context, svc *chat.Service, repo *chat.Repo, jobID string) error {
	j, err := repo.GetJobByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// job row gone, nothing to retry
			log.Printf("job=%s not found, dropping", jobID)
			return nil
		}
		return err
	}

	if err := repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}

	assistantMsgID, err := svc.CompleteJob(ctx, j)
	if err != nil {
		_ = repo.MarkJobFailed(ctx, jobID, err.Error())
		// client errors are terminal; retrying cannot fix them
		if errors.Is(err, chat.ErrChatNotFound) ||
			errors.Is(err, ai.ErrUnknownVendor) ||
			errors.Is(err, keys.ErrNoCredential) {
			return nil
		}
		return err
	}

	return repo.MarkJobSucceeded(ctx, jobID, assistantMsgID)
}
