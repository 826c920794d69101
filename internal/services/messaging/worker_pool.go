package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
)

type delivery struct {
	body       []byte
	retryCount int
}

// WorkerPool consumes the job queue and hands every job to handler.
type WorkerPool struct {
	queueName   string
	workerCount int
	handler     JobHandler
	broker      *Broker
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	jobs        chan delivery
	stopOnce    sync.Once
}

func NewWorkerPool(queueName string, workerCount int, handler JobHandler, broker *Broker, logger *zap.Logger) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		queueName:   queueName,
		workerCount: workerCount,
		handler:     handler,
		broker:      broker,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		jobs:        make(chan delivery, workerCount*2),
	}
}

func (wp *WorkerPool) Start() error {
	if err := wp.broker.DeclareQueue(wp.queueName); err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	wp.wg.Add(1)
	go wp.consumer()

	var workers sync.WaitGroup
	for i := 0; i < wp.workerCount; i++ {
		workers.Add(1)
		go wp.worker(i, &workers)
	}
	wp.wg.Add(1)
	go func() {
		defer wp.wg.Done()
		workers.Wait()
	}()

	metrics.UpdateActiveWorkers(float64(wp.workerCount))
	wp.logger.Info("Worker pool started",
		zap.String("queue", wp.queueName),
		zap.Int("workers", wp.workerCount))

	return nil
}

// Stop stops consuming and waits for in-flight jobs.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Info("Stopping worker pool", zap.String("queue", wp.queueName))
		wp.cancel()
		wp.wg.Wait()
		metrics.UpdateActiveWorkers(0)
		wp.logger.Info("Worker pool stopped", zap.String("queue", wp.queueName))
	})
}

func (wp *WorkerPool) consumer() {
	defer wp.wg.Done()
	defer close(wp.jobs)

	channelID := "consumer_" + wp.queueName
	ch, err := wp.broker.Channel(channelID)
	if err != nil {
		wp.logger.Error("Failed to get channel for consumer", zap.Error(err))
		return
	}
	defer wp.broker.CloseChannel(channelID)

	// Limit unacknowledged messages to what the workers can hold
	if err := ch.Qos(wp.workerCount, 0, false); err != nil {
		wp.logger.Error("Failed to set QoS", zap.Error(err))
		return
	}

	msgs, err := ch.Consume(
		wp.queueName,
		channelID, // consumer tag
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,
	)
	if err != nil {
		wp.logger.Error("Failed to start consuming", zap.Error(err))
		return
	}

	for {
		select {
		case <-wp.ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				wp.logger.Warn("Delivery channel closed")
				return
			}
			wp.forward(msg)
		}
	}
}

func (wp *WorkerPool) forward(msg amqp.Delivery) {
	job := delivery{body: msg.Body, retryCount: retryCountOf(msg.Headers)}

	select {
	case wp.jobs <- job:
		msg.Ack(false)
	case <-wp.ctx.Done():
		msg.Nack(false, true)
	case <-time.After(5 * time.Second):
		wp.logger.Warn("Worker pool full, requeueing message")
		msg.Nack(false, true)
	}
}

func (wp *WorkerPool) worker(workerID int, workers *sync.WaitGroup) {
	defer workers.Done()

	wp.logger.Debug("Worker started", zap.Int("worker_id", workerID))

	for d := range wp.jobs {
		if err := wp.processMessage(wp.handler, d.body); err != nil {
			wp.logger.Error("Failed to process job",
				zap.Error(err),
				zap.Int("worker_id", workerID),
				zap.Int("retry_count", d.retryCount))

			if retryErr := wp.broker.Retry(wp.ctx, wp.queueName, d.body, d.retryCount); retryErr != nil {
				wp.logger.Error("Failed to reschedule job", zap.Error(retryErr))
			}
		}
	}

	wp.logger.Debug("Worker stopping", zap.Int("worker_id", workerID))
}

func (wp *WorkerPool) processMessage(handler JobHandler, data []byte) error {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		// A malformed job never succeeds on retry; log and drop it.
		wp.logger.Error("Discarding malformed job", zap.Error(err))
		return nil
	}

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}

	return handler.HandleJob(wp.ctx, job)
}

func (wp *WorkerPool) GetWorkerCount() int {
	return wp.workerCount
}

func (wp *WorkerPool) GetQueueName() string {
	return wp.queueName
}
