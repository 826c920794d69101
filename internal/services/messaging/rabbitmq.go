package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
)

const (
	JobQueue   = "confras.jobs"
	MaxRetries = 3

	retryHeader     = "x-retry-count"
	publishChannel  = "publish"
	dialAttempts    = 5
	reconnectPeriod = 5 * time.Second
)

var (
	ErrNotConnected = errors.New("rabbitmq: not connected")
	ErrNotConfirmed = errors.New("rabbitmq: broker did not confirm the message")
)

// Broker publishes jobs to RabbitMQ and hands out consumer channels. The
// publish channel runs in confirm mode, so Publish returns only once the
// broker has taken responsibility for the job.
type Broker struct {
	url    string
	logger *zap.Logger

	mutex    sync.Mutex
	conn     *amqp.Connection
	channels map[string]*amqp.Channel

	done      chan struct{}
	closeOnce sync.Once
}

func NewBroker(url string, logger *zap.Logger) *Broker {
	return &Broker{
		url:      url,
		logger:   logger,
		channels: make(map[string]*amqp.Channel),
		done:     make(chan struct{}),
	}
}

// Connect dials the broker, backing off linearly between attempts.
func (b *Broker) Connect(ctx context.Context) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.conn != nil && !b.conn.IsClosed() {
		return nil
	}

	var err error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(b.url); err == nil {
			b.conn = conn
			metrics.UpdateRabbitMQConnections("connected", 1)
			b.logger.Info("Connected to RabbitMQ")
			go b.watch(conn)
			return nil
		}

		b.logger.Warn("RabbitMQ dial failed", zap.Int("attempt", attempt), zap.Error(err))
		if attempt == dialAttempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	metrics.UpdateRabbitMQConnections("connected", 0)
	return fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", dialAttempts, err)
}

func (b *Broker) Close() error {
	b.closeOnce.Do(func() { close(b.done) })

	b.mutex.Lock()
	defer b.mutex.Unlock()

	b.dropChannels()
	metrics.UpdateRabbitMQConnections("connected", 0)

	if b.conn == nil || b.conn.IsClosed() {
		return nil
	}
	if err := b.conn.Close(); err != nil {
		return fmt.Errorf("failed to close RabbitMQ connection: %w", err)
	}
	b.logger.Info("RabbitMQ connection closed")
	return nil
}

func (b *Broker) IsConnected() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.conn != nil && !b.conn.IsClosed()
}

// Channel returns the open channel registered under name, opening one if
// needed. The publish channel is put in confirm mode.
func (b *Broker) Channel(name string) (*amqp.Channel, error) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		return nil, ErrNotConnected
	}
	if ch, ok := b.channels[name]; ok && !ch.IsClosed() {
		return ch, nil
	}

	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel %s: %w", name, err)
	}
	if name == publishChannel {
		if err := ch.Confirm(false); err != nil {
			ch.Close()
			return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
	}
	b.channels[name] = ch
	return ch, nil
}

func (b *Broker) CloseChannel(name string) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if ch, ok := b.channels[name]; ok {
		delete(b.channels, name)
		if !ch.IsClosed() {
			ch.Close()
		}
	}
}

// DeclareQueue declares a durable queue whose rejected messages are
// dead-lettered to DeadLetterQueue(queue).
func (b *Broker) DeclareQueue(queue string) error {
	ch, err := b.Channel("admin")
	if err != nil {
		return err
	}

	dlq := DeadLetterQueue(queue)
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare %s: %w", dlq, err)
	}
	_, err = ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	})
	if err != nil {
		return fmt.Errorf("failed to declare %s: %w", queue, err)
	}

	b.logger.Info("Job queue declared", zap.String("queue", queue), zap.String("dlq", dlq))
	return nil
}

// Publish enqueues job on JobQueue.
func (b *Broker) Publish(ctx context.Context, job Job) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := b.send(ctx, JobQueue, body, 0, job); err != nil {
		return err
	}
	b.logger.Debug("Job queued", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	return nil
}

// Retry schedules a failed delivery again after retryBackoff, or parks it
// in the dead letter queue once MaxRetries is reached.
func (b *Broker) Retry(ctx context.Context, queue string, body []byte, retryCount int) error {
	if retryCount >= MaxRetries {
		b.logger.Error("Job exhausted its retries, moving to DLQ",
			zap.String("queue", queue), zap.Int("retry_count", retryCount))
		return b.send(ctx, DeadLetterQueue(queue), body, retryCount, Job{})
	}

	select {
	case <-time.After(retryBackoff(retryCount)):
	case <-ctx.Done():
		return ctx.Err()
	}

	b.logger.Info("Retrying job", zap.String("queue", queue), zap.Int("retry_count", retryCount+1))
	return b.send(ctx, queue, body, retryCount+1, Job{})
}

func (b *Broker) send(ctx context.Context, queue string, body []byte, retryCount int, job Job) error {
	ch, err := b.Channel(publishChannel)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}

	confirm, err := ch.PublishWithDeferredConfirmWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.ID,
		Type:         string(job.Kind),
		Timestamp:    time.Now(),
		Headers:      amqp.Table{retryHeader: int32(retryCount)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	if confirm == nil {
		return nil
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", queue, err)
	}
	if !acked {
		return fmt.Errorf("failed to publish to %s: %w", queue, ErrNotConfirmed)
	}
	return nil
}

// watch redials after the broker drops conn, until Close is called.
func (b *Broker) watch(conn *amqp.Connection) {
	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	select {
	case <-b.done:
		return
	case amqpErr := <-closed:
		if amqpErr == nil {
			return
		}
		metrics.UpdateRabbitMQConnections("connected", 0)
		b.logger.Error("RabbitMQ connection lost", zap.Error(amqpErr))
	}

	b.mutex.Lock()
	b.conn = nil
	b.dropChannels()
	b.mutex.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		err := b.Connect(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		b.logger.Error("RabbitMQ reconnect failed", zap.Error(err))
		select {
		case <-time.After(reconnectPeriod):
		case <-b.done:
			return
		}
	}
}

// dropChannels forgets every channel. Callers hold the lock.
func (b *Broker) dropChannels() {
	for name, ch := range b.channels {
		if !ch.IsClosed() {
			ch.Close()
		}
		delete(b.channels, name)
	}
}

func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// retryBackoff is 1s, 2s, 4s for retries 0, 1, 2.
func retryBackoff(retryCount int) time.Duration {
	return time.Duration(1<<retryCount) * time.Second
}

func retryCountOf(headers amqp.Table) int {
	switch v := headers[retryHeader].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case int:
		return v
	}
	return 0
}
