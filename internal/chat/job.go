package chat

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"
)

// TitleJob asks for a topic to be named from its recent messages.
type TitleJob struct {
	TopicID string `json:"topic_id"`
}

// Namer schedules title jobs off the completion path.
type Namer interface {
	Enqueue(ctx context.Context, job TitleJob) error
}

// LocalNamer runs title jobs in background goroutines, throttled so a burst
// of finished streams does not turn into a burst of summary calls.
type LocalNamer struct {
	svc     *Service
	limiter *rate.Limiter
	logger  *slog.Logger
	wg      sync.WaitGroup
}

func NewLocalNamer(svc *Service, perSecond float64, logger *slog.Logger) *LocalNamer {
	if perSecond <= 0 {
		perSecond = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalNamer{
		svc:     svc,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger,
	}
}

func (n *LocalNamer) Enqueue(ctx context.Context, job TitleJob) error {
	ctx = context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.limiter.Wait(ctx); err != nil {
			return
		}
		if err := n.svc.NameTopic(ctx, job.TopicID); err != nil {
			n.logger.Warn("topic naming failed", "topic_id", job.TopicID, "err", err)
		}
	}()
	return nil
}

// Wait blocks until every queued job has finished.
func (n *LocalNamer) Wait() {
	n.wg.Wait()
}
