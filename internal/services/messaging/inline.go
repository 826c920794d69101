package messaging

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrPublisherClosed = errors.New("publisher is closed")

// InlinePublisher runs jobs in-process on a bounded set of goroutines. It is
// used when no broker is configured; queued work is lost on restart.
type InlinePublisher struct {
	handler JobHandler
	sem     chan struct{}
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewInlinePublisher(handler JobHandler, workers int, timeout time.Duration, logger *zap.Logger) *InlinePublisher {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &InlinePublisher{
		handler: handler,
		sem:     make(chan struct{}, workers),
		timeout: timeout,
		logger:  logger,
	}
}

// Publish schedules job and returns immediately. The job runs detached from
// ctx so it outlives the request that triggered it.
func (p *InlinePublisher) Publish(_ context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPublisherClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.sem <- struct{}{}
		defer func() { <-p.sem }()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.handler.HandleJob(ctx, job); err != nil {
			p.logger.Error("Failed to process job",
				zap.Error(err),
				zap.String("job_id", job.ID),
				zap.String("kind", string(job.Kind)))
		}
	}()
	return nil
}

// Close stops accepting jobs and waits for running ones.
func (p *InlinePublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()
	return nil
}
