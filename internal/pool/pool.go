package pool

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
	"github.com/Harsh-BH/execrelay/internal/metrics"
)

var errPanic = errors.New("pool: record storer panicked")

// RecordStorer persists one execution record and reports duplicates.
type RecordStorer interface {
	Execute(ctx context.Context, rec *domain.ExecutionRecord) (bool, error)
}

// WorkerPool manages a fixed-size pool of goroutines that store records.
type WorkerPool struct {
	size     int
	messages <-chan *domain.RecordMessage
	storer   RecordStorer
	logger   *zap.Logger
	wg       sync.WaitGroup
}

// NewWorkerPool creates a new fixed-size worker pool.
func NewWorkerPool(size int, messages <-chan *domain.RecordMessage, storer RecordStorer, logger *zap.Logger) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:     size,
		messages: messages,
		storer:   storer,
		logger:   logger,
	}
}

// Start launches all worker goroutines. Call Stop to wait for them to finish.
func (p *WorkerPool) Start(ctx context.Context) {
	p.logger.Info("Starting worker pool", zap.Int("pool_size", p.size))

	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
}

// Stop waits for all workers to finish their current record and exit.
func (p *WorkerPool) Stop() {
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

func (p *WorkerPool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	p.logger.Debug("Worker started", zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			p.logger.Debug("Worker shutting down", zap.Int("worker_id", id))
			return
		case msg, ok := <-p.messages:
			if !ok {
				p.logger.Debug("Record channel closed", zap.Int("worker_id", id))
				return
			}
			p.handle(ctx, id, msg)
		}
	}
}

func (p *WorkerPool) handle(ctx context.Context, id int, msg *domain.RecordMessage) {
	rec := msg.Record
	log := p.logger.With(
		zap.Int("worker_id", id),
		zap.String("record_id", rec.RecordID.String()),
	)

	metrics.WorkersActive.Inc()
	defer metrics.WorkersActive.Dec()

	isDuplicate, err := p.store(ctx, rec)
	if err != nil {
		metrics.RecordsPersisted.WithLabelValues("error").Inc()
		log.Error("Failed to persist record", zap.Error(err))

		// Nack without requeue: failed records go to the DLQ.
		if nackErr := msg.Nack(false); nackErr != nil {
			log.Error("Failed to NACK message", zap.Error(nackErr))
		}
		return
	}

	result := "stored"
	if isDuplicate {
		result = "duplicate"
	}
	metrics.RecordsPersisted.WithLabelValues(result).Inc()

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error("Failed to ACK message", zap.String("result", result), zap.Error(ackErr))
	}
}

// store turns a panic in the storer into an error so the message is NACKed
// and the worker keeps running.
func (p *WorkerPool) store(ctx context.Context, rec *domain.ExecutionRecord) (dup bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Worker panic recovered", zap.Any("panic", r))
			err = errPanic
		}
	}()
	return p.storer.Execute(ctx, rec)
}
