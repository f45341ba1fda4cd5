package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/delivery/http/middleware"
	"github.com/Harsh-BH/execrelay/internal/domain"
)

const (
	streamIdleTimeout = 2 * time.Minute
	streamWriteWait   = 10 * time.Second
	streamCloseWait   = time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin is enforced by the auth gateway in front of the relay
	},
}

// streamRequest is one execution request frame; ID lets the client correlate replies.
type streamRequest struct {
	ID string `json:"id"`
	domain.ExecuteRequest
}

type streamResponse struct {
	ID     string                  `json:"id,omitempty"`
	Result *domain.ExecuteResponse `json:"result,omitempty"`
	Error  *domain.ErrorResponse   `json:"error,omitempty"`
}

// WebSocketHandler runs many executions over one connection, one frame per request.
type WebSocketHandler struct {
	executor     Executor
	maxFrameSize int64
	logger       *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(executor Executor, maxFrameSize int64, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		executor:     executor,
		maxFrameSize: maxFrameSize,
		logger:       logger,
	}
}

// Stream handles GET /api/v1/executions/stream (WebSocket upgrade).
// Frames are handled in order; each goes through validation, the user
// rate limit and dispatch exactly like POST /executions.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	requestorID := c.GetString(middleware.RequestorKey)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.String("requestor_id", requestorID))
	log.Debug("WebSocket connection opened")

	ctx := c.Request.Context()
	for {
		_ = conn.SetReadDeadline(time.Now().Add(streamIdleTimeout))
		data, err := h.readFrame(conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("WebSocket read failed", zap.Error(err))
			}
			return
		}
		if h.maxFrameSize > 0 && int64(len(data)) > h.maxFrameSize {
			h.rejectOversized(conn, log)
			return
		}

		resp := h.handleFrame(ctx, requestorID, data)

		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
		if err := conn.WriteJSON(resp); err != nil {
			log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}
	}
}

// readFrame reads one message, stopping one byte past the frame cap so an
// oversized frame is detected without buffering it.
func (h *WebSocketHandler) readFrame(conn *websocket.Conn) ([]byte, error) {
	_, r, err := conn.NextReader()
	if err != nil {
		return nil, err
	}
	if h.maxFrameSize > 0 {
		r = io.LimitReader(r, h.maxFrameSize+1)
	}
	return io.ReadAll(r)
}

// rejectOversized answers with the same body as an oversized POST, then closes.
func (h *WebSocketHandler) rejectOversized(conn *websocket.Conn, log *zap.Logger) {
	resp := streamResponse{Error: &domain.ErrorResponse{
		Code:    domain.KindCodeTooLarge,
		Message: "request body too large",
	}}
	deadline := time.Now().Add(streamWriteWait)
	_ = conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(resp); err != nil {
		log.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseMessageTooBig, "frame too large")
	if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		return
	}

	// Discard the unread remainder until the peer answers the close, so the
	// reply is not lost to a reset.
	_ = conn.SetReadDeadline(time.Now().Add(streamCloseWait))
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

func (h *WebSocketHandler) handleFrame(ctx context.Context, requestorID string, data []byte) streamResponse {
	var frame streamRequest
	if err := json.Unmarshal(data, &frame); err != nil {
		return streamResponse{Error: &domain.ErrorResponse{
			Code:    domain.KindMalformedRequest,
			Message: "invalid request frame",
		}}
	}

	req := &domain.ExecutionRequest{
		RequestorID: requestorID,
		Language:    frame.Language,
		SourceCode:  frame.Code,
		Stdin:       frame.Input,
	}
	res, err := h.executor.Execute(ctx, req)
	if err != nil {
		_, body := errorBody(err)
		return streamResponse{ID: frame.ID, Error: &body}
	}

	out := toExecuteResponse(req, res)
	return streamResponse{ID: frame.ID, Result: &out}
}
