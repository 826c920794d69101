package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/galihcitta/confras/internal/metrics"
)

type JobKind string

const (
	JobEmail           JobKind = "email"
	JobProvisionDomain JobKind = "provision_domain"
)

// Job is one unit of background work. Payload is decoded by the handler
// registered for Kind.
type Job struct {
	ID        string          `json:"id"`
	Kind      JobKind         `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewJob(kind JobKind, payload interface{}) (Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Job{}, fmt.Errorf("failed to encode %s payload: %w", kind, err)
	}
	return Job{
		ID:        uuid.NewString(),
		Kind:      kind,
		Payload:   data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

type JobHandler interface {
	HandleJob(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to JobHandler.
type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) HandleJob(ctx context.Context, job Job) error {
	return f(ctx, job)
}

type Publisher interface {
	Publish(ctx context.Context, job Job) error
}

// Dispatcher routes jobs to the handler registered for their kind.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[JobKind]JobHandler
	logger   *zap.Logger
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[JobKind]JobHandler),
		logger:   logger,
	}
}

func (d *Dispatcher) Register(kind JobKind, handler JobHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[kind] = handler
}

func (d *Dispatcher) HandleJob(ctx context.Context, job Job) error {
	d.mu.RLock()
	handler, ok := d.handlers[job.Kind]
	d.mu.RUnlock()

	if !ok {
		metrics.IncrementJobsProcessed(string(job.Kind), "unhandled")
		return fmt.Errorf("no handler registered for job kind %q", job.Kind)
	}

	start := time.Now()
	err := handler.HandleJob(ctx, job)
	metrics.RecordJobProcessingDuration(string(job.Kind), time.Since(start).Seconds())

	if err != nil {
		metrics.IncrementJobsProcessed(string(job.Kind), "failed")
		return err
	}

	metrics.IncrementJobsProcessed(string(job.Kind), "success")
	d.logger.Debug("Job processed", zap.String("job_id", job.ID), zap.String("kind", string(job.Kind)))
	return nil
}
