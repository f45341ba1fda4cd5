package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/execrelay/internal/delivery/http/middleware"
	"github.com/Harsh-BH/execrelay/internal/domain"
)

// statusFor maps an error kind to the HTTP status of the failure response.
func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindCodeTooLarge:
		return http.StatusRequestEntityTooLarge
	case domain.KindUnsupportedLanguage, domain.KindMalformedRequest:
		return http.StatusBadRequest
	case domain.KindUserRateLimited:
		return http.StatusTooManyRequests
	case domain.KindAllProvidersExhausted, domain.KindProviderUnavailable,
		domain.KindProviderRateLimited, domain.KindMalformedProviderResponse:
		return http.StatusServiceUnavailable
	case domain.KindRecordNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// errorBody converts err into a status and {code, message} body. Provider
// details never leak to the caller; exhaustion is reported with a fixed message.
func errorBody(err error) (int, domain.ErrorResponse) {
	kind := domain.KindOf(err)
	if kind == domain.KindInternal && errors.Is(err, domain.ErrRecordNotFound) {
		kind = domain.KindRecordNotFound
	}
	status := statusFor(kind)

	msg := "internal server error"
	var execErr *domain.ExecError
	switch {
	case status == http.StatusServiceUnavailable:
		kind = domain.KindAllProvidersExhausted
		msg = domain.ErrAllProvidersExhausted.Error()
	case errors.As(err, &execErr):
		msg = execErr.Message
	case kind == domain.KindRecordNotFound:
		msg = domain.ErrRecordNotFound.Error()
	}
	return status, domain.ErrorResponse{Code: kind, Message: msg}
}

func writeError(c *gin.Context, logger *zap.Logger, err error) {
	status, body := errorBody(err)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			zap.String("request_id", c.GetString(middleware.RequestIDKey)),
			zap.String("code", string(body.Code)),
			zap.Error(err),
		)
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, domain.ErrorResponse{Code: domain.KindMalformedRequest, Message: msg})
}
