package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classtrack/internal/classroom"
	"classtrack/internal/config"
	"classtrack/internal/csvimport"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/store"
)

// Worker consumes bulk-mark jobs from a CSV upload and applies each one as
// an attendance mark.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	var st classroom.Store
	if cfg.StoreBackend == "memory" {
		st = store.NewMemory()
		log.Println("using in-memory store (jobs will not touch postgres)")
	} else {
		db, err := store.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect failed: %v", err)
		}
		defer db.Close()
		st, err = store.NewPostgres(db.Client)
		if err != nil {
			log.Fatalf("store init failed: %v", err)
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:bulk-marks")
	}

	att := classroom.NewService(st)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for bulk-mark jobs...")
	for msg := range messages {
		if msg.Type != csvimport.JobType {
			continue
		}

		var job csvimport.MarkJob
		if err := json.Unmarshal(msg.Body, &job); err != nil {
			log.Printf("bad job payload: %v", err)
			continue
		}

		err := att.RecordPresence(ctx, job.ClassID, job.SessionID, job.StudentID)
		if err != nil {
			log.Printf("mark %s (%s) on session %s failed: %v", job.Username, job.StudentID, job.SessionID, err)
			continue
		}
		metrics.BulkMarks.Inc()
		log.Printf("marked %s present on session %s", job.Username, job.SessionID)
	}

	log.Println("worker stopped")
}
