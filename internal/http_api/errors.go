package http_api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paykit-wallet/paykitd/internal/models"
)

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var paymentErr *models.PaymentError
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, models.ErrRequestExpired):
		return http.StatusGone
	case errors.Is(err, models.ErrNoIdentity):
		return http.StatusPreconditionFailed
	case errors.Is(err, models.ErrLimitExceeded):
		return http.StatusUnprocessableEntity
	case errors.As(err, &paymentErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (s *HTTPServer) respondError(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, "error", err, "path", c.FullPath())
	} else {
		s.logger.Debug(msg, "error", err, "path", c.FullPath())
	}

	body := gin.H{
		"success": false,
		"error":   msg + ": " + err.Error(),
	}
	var paymentErr *models.PaymentError
	if errors.As(err, &paymentErr) {
		body["kind"] = paymentErr.Kind
	}
	c.JSON(status, body)
}

func (s *HTTPServer) badRequest(c *gin.Context, msg string, err error) {
	s.logger.Debug(msg, "error", err)
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg + ": " + err.Error(),
	})
}
