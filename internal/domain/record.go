package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionRecord is the audit entry emitted after every dispatched request.
// It never carries source code or program output, only their sizes.
type ExecutionRecord struct {
	RecordID        uuid.UUID       `json:"record_id"`
	RequestID       string          `json:"request_id"`
	RequestorID     string          `json:"requestor_id"`
	Language        string          `json:"language"`
	Status          ExecutionStatus `json:"status"`
	ProviderUsed    *string         `json:"provider_used,omitempty"`
	AttemptCount    int             `json:"attempt_count"`
	ExitCode        int             `json:"exit_code"`
	ExecutionTimeMs int64           `json:"execution_time_ms"`
	StdoutBytes     int             `json:"stdout_bytes"`
	StderrBytes     int             `json:"stderr_bytes"`
	Truncated       bool            `json:"truncated"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewExecutionRecord summarises a terminal result into a record with a fresh UUIDv7.
func NewExecutionRecord(req *ExecutionRequest, res *ExecutionResult) (*ExecutionRecord, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &ExecutionRecord{
		RecordID:        id,
		RequestID:       req.RequestID,
		RequestorID:     req.RequestorID,
		Language:        req.Language,
		Status:          res.Status,
		ProviderUsed:    res.ProviderUsed,
		AttemptCount:    len(res.Attempts),
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.ExecutionTimeMs,
		StdoutBytes:     len(res.Stdout),
		StderrBytes:     len(res.Stderr),
		Truncated:       res.Truncated,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// RecordMessage wraps a record received from the queue with its ACK callbacks.
type RecordMessage struct {
	Record *ExecutionRecord
	Ack    func() error
	Nack   func(requeue bool) error
}
