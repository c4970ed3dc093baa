package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/oms/internal/order/domain"
)

type errorPayload struct {
	Type    string                   `json:"type"`
	Message string                   `json:"message"`
	Errors  []orderdomain.FieldError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	var vErr *orderdomain.ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Fields,
		}
	}

	switch {
	case errors.Is(err, orderdomain.ErrOrderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "order not found",
		}
	case errors.Is(err, orderdomain.ErrInvalidID):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: "invalid order id",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
