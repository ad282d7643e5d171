package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"taskhub/core"
)

func main() {
	cfg, err := core.Load()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logCloser, err := core.SetupLogging(cfg, "worker.log")
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer logCloser.Close()

	db, err := core.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	redisClient, err := core.NewRedisClient(cfg.RedisURL)
	if err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer redisClient.Close()

	queue := core.NewRedisQueue(redisClient)
	taskRepo := core.NewPgTaskRepository(db)
	userRepo := core.NewPgUserRepository(db)
	processor := core.NewReminderProcessor(taskRepo, userRepo, core.LogNotifier{})
	scheduler := core.NewReminderScheduler(taskRepo, queue,
		time.Duration(cfg.ReminderLeadMinutes)*time.Minute)

	concurrency := cfg.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	workerID := core.NewWorkerID()
	hostname, _ := os.Hostname()
	log.Printf("reminder worker started. id=%s concurrency=%d queue=%s", workerID, concurrency, core.PendingRemindersKey)

	const pendingKey = core.PendingRemindersKey
	const processingKey = core.ProcessingRemindersKey
	visibility := core.DefaultVisibilityTimeout
	reclaimInterval := 15 * time.Second
	const maxRetries = 3

	state := core.NewHeartbeatState(workerID, hostname, concurrency)
	go state.Start(ctx, redisClient)

	go scheduler.Run(ctx)

	// requeue expired in-flight jobs periodically
	go func() {
		ticker := time.NewTicker(reclaimInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if jobs, err := queue.RequeueExpired(ctx, processingKey, pendingKey, time.Now()); err != nil {
					log.Printf("[reclaimer] requeue expired error: %v", err)
				} else if len(jobs) > 0 {
					log.Printf("[reclaimer] requeued %d expired jobs", len(jobs))
				}
			}
		}
	}()

	retries := make(map[string]int)
	var retriesMu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func(workerNum int) {
			defer wg.Done()
			for {
				job, err := queue.Reserve(ctx, pendingKey, processingKey, visibility)
				if err != nil {
					if errors.Is(err, redis.Nil) {
						// Queue is empty, wait before retrying to avoid CPU spinning
						select {
						case <-ctx.Done():
							return
						case <-time.After(100 * time.Millisecond):
							continue
						}
					}
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					log.Printf("[worker %d] dequeue error: %v", workerNum, err)
					time.Sleep(time.Second)
					continue
				}

				state.JobStarted(job)

				procErr := processor.Process(ctx, job)
				if procErr != nil {
					if errors.Is(procErr, core.ErrTaskAlreadyReminded) {
						log.Printf("[worker %d] skip job %s: already reminded", workerNum, job)
						_ = queue.Ack(ctx, processingKey, job)
						state.JobFinished(job, nil)
						continue
					}

					retriesMu.Lock()
					retries[job]++
					attempt := retries[job]
					retriesMu.Unlock()

					if attempt <= maxRetries {
						if err := queue.Enqueue(ctx, pendingKey, job); err != nil {
							log.Printf("[worker %d] re-enqueue job %s failed: %v", workerNum, job, err)
						} else {
							log.Printf("[worker %d] job %s retried (attempt=%d): %v", workerNum, job, attempt, procErr)
						}
					} else {
						log.Printf("[worker %d] job %s dropped after %d retries: %v", workerNum, job, maxRetries, procErr)
						retriesMu.Lock()
						delete(retries, job)
						retriesMu.Unlock()
					}
				} else {
					retriesMu.Lock()
					delete(retries, job)
					retriesMu.Unlock()
				}

				if err := queue.Ack(ctx, processingKey, job); err != nil {
					log.Printf("[worker %d] ack failed for job %s: %v", workerNum, job, err)
				}
				state.JobFinished(job, procErr)
			}
		}(i + 1)
	}

	wg.Wait()
}
