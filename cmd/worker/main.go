package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"rollcall/internal/config"
	"rollcall/internal/logging"
	"rollcall/internal/notify"
	"rollcall/internal/queue"
	"rollcall/internal/record"
	"rollcall/internal/store"
)

// The worker drains the commit queue and fans attendance events out into
// notifications. It only makes sense with the Redis queue backend; the
// in-memory queue is drained inside the API process itself.
func main() {
	cfg := config.Load()
	log := logging.New(cfg.Env)
	defer func() { _ = log.Sync() }()

	if cfg.QueueBackend == "memory" {
		log.Fatal("worker requires QUEUE_BACKEND=redis")
	}

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("database connect failed", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	redisClient := store.NewRedis(cfg.RedisAddr)
	q := queue.NewRedisQueue(redisClient.Client, cfg.CommitQueueKey)

	records := record.NewPostgresRepository(db.Client)
	dispatcher := notify.NewDispatcher(notify.NewPostgresStore(db.Client), records, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutting down")
		cancel()
	}()

	log.Info("worker consuming", zap.String("queue", cfg.CommitQueueKey))
	if err := dispatcher.Run(ctx, q); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal("worker stopped", zap.Error(err))
	}
	log.Info("worker exited")
}
