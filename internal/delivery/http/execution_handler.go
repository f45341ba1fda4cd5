package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/delivery/http/middleware"
	"github.com/Harsh-BH/execrelay/internal/domain"
)

// Executor runs one execution request end to end.
type Executor interface {
	Execute(ctx context.Context, req *domain.ExecutionRequest) (*domain.ExecutionResult, error)
}

// RecordReader looks up stored execution records for a requestor.
type RecordReader interface {
	Execute(ctx context.Context, requestorID string, id uuid.UUID) (*domain.ExecutionRecord, error)
	List(ctx context.Context, requestorID string, limit int) ([]*domain.ExecutionRecord, error)
}

// ExecutionHandler handles HTTP requests for code executions.
type ExecutionHandler struct {
	executor Executor
	records  RecordReader
	logger   *zap.Logger
}

// NewExecutionHandler creates a new ExecutionHandler. records may be nil when
// record keeping is disabled.
func NewExecutionHandler(executor Executor, records RecordReader, logger *zap.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		executor: executor,
		records:  records,
		logger:   logger,
	}
}

// Execute handles POST /api/v1/executions
func (h *ExecutionHandler) Execute(c *gin.Context) {
	var body domain.ExecuteRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, domain.ErrorResponse{
				Code:    domain.KindCodeTooLarge,
				Message: "request body too large",
			})
			return
		}
		badRequest(c, "invalid request body")
		return
	}

	req := toExecutionRequest(c, body)
	res, err := h.executor.Execute(c.Request.Context(), req)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toExecuteResponse(req, res))
}

// GetByID handles GET /api/v1/executions/:id
func (h *ExecutionHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid execution record id")
		return
	}

	rec, err := h.records.Execute(c.Request.Context(), c.GetString(middleware.RequestorKey), id)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, rec)
}

// List handles GET /api/v1/executions?limit=N
func (h *ExecutionHandler) List(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, "limit must be an integer")
			return
		}
		limit = n
	}

	recs, err := h.records.List(c.Request.Context(), c.GetString(middleware.RequestorKey), limit)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if recs == nil {
		recs = []*domain.ExecutionRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"executions": recs})
}

func toExecutionRequest(c *gin.Context, body domain.ExecuteRequest) *domain.ExecutionRequest {
	return &domain.ExecutionRequest{
		RequestID:   c.GetString(middleware.RequestIDKey),
		RequestorID: c.GetString(middleware.RequestorKey),
		Language:    body.Language,
		SourceCode:  body.Code,
		Stdin:       body.Input,
	}
}

func toExecuteResponse(req *domain.ExecutionRequest, res *domain.ExecutionResult) domain.ExecuteResponse {
	resp := domain.ExecuteResponse{
		Status:          res.Status,
		Output:          res.Stdout,
		Error:           res.Stderr,
		ExitCode:        res.ExitCode,
		ExecutionTimeMs: res.ExecutionTimeMs,
		Provider:        res.Provider(),
		Truncated:       res.Truncated,
	}
	if res.Status == domain.StatusClientSideDirective {
		resp.Language = req.Language
	}
	return resp
}
