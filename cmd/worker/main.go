package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chatcore/internal/app"
	"github.com/suPer8Hu/chatcore/internal/chat"
	"github.com/suPer8Hu/chatcore/internal/config"
	"github.com/suPer8Hu/chatcore/internal/logging"
	"github.com/suPer8Hu/chatcore/internal/store/rabbitmq"
)

const maxRetries = 3

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.RabbitURL == "" {
		logger.Error("RABBIT_URL is required for the worker")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init", "err", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := run(ctx, a); err != nil {
		logger.Error("worker stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, a *app.App) error {
	cfg, logger := a.Cfg, a.Logger

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := rabbitmq.Declare(ch, cfg.RabbitQueue); err != nil {
		return err
	}

	//  strict concurrency control
	concurrency := cfg.WorkerConcurrency
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return err
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	logger.Info("worker started", "queue", cfg.RabbitQueue, "concurrency", concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	// retries share the consumer channel; keep publishes serialized
	var pubMu sync.Mutex

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				process(ctx, a.Chat, logger.With("worker", workerID), d, d.Acknowledger, func(d amqp.Delivery) error {
					pubMu.Lock()
					defer pubMu.Unlock()
					return rabbitmq.Retry(ctx, ch, cfg.RabbitQueue, d)
				})
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			logger.Info("worker shutting down")
			close(jobs)
			wg.Wait()
			return nil

		case d, ok := <-msgs:
			if !ok {
				close(jobs)
				wg.Wait()
				return errors.New("delivery channel closed")
			}
			jobs <- d
		}
	}
}

type namer interface {
	NameTopic(ctx context.Context, topicID string) error
}

func process(ctx context.Context, svc namer, logger *slog.Logger, d amqp.Delivery, ack amqp.Acknowledger, retry func(amqp.Delivery) error) {
	var job chat.TitleJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.TopicID == "" {
		logger.Warn("bad message", "err", err)
		_ = ack.Nack(d.DeliveryTag, false, false)
		return
	}

	start := time.Now()
	err := svc.NameTopic(ctx, job.TopicID)
	if err == nil {
		if err := ack.Ack(d.DeliveryTag, false); err != nil {
			logger.Warn("ack failed", "topic_id", job.TopicID, "err", err)
		}
		logger.Debug("topic named", "topic_id", job.TopicID, "cost", time.Since(start))
		return
	}

	// a missing topic will never succeed
	if errors.Is(err, chat.ErrNotFound) {
		logger.Info("topic gone, dropping job", "topic_id", job.TopicID)
		_ = ack.Ack(d.DeliveryTag, false)
		return
	}

	// shutting down: hand it back untouched
	if ctx.Err() != nil {
		_ = ack.Nack(d.DeliveryTag, false, true)
		return
	}

	n := rabbitmq.Retries(d)
	logger.Warn("naming failed", "topic_id", job.TopicID, "retries", n, "cost", time.Since(start), "err", err)
	if n < maxRetries {
		if rerr := retry(d); rerr == nil {
			_ = ack.Ack(d.DeliveryTag, false)
			return
		}
	}
	// dead-letters to the DLQ
	_ = ack.Nack(d.DeliveryTag, false, false)
}
