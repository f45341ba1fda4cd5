package publisher

import (
	"context"

	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/domain"
)

type logPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher returns a Publisher that only logs records. It is used
// when record persistence is disabled.
func NewLogPublisher(logger *zap.Logger) Publisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(_ context.Context, rec *domain.ExecutionRecord) error {
	p.logger.Debug("Execution record",
		zap.String("record_id", rec.RecordID.String()),
		zap.String("request_id", rec.RequestID),
		zap.String("status", string(rec.Status)),
		zap.Int("attempts", rec.AttemptCount),
	)
	return nil
}

func (p *logPublisher) Close() error {
	return nil
}
