package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/trial-matching-mcp-server/internal/domain"
	"github.com/trial-matching-mcp-server/internal/llm"
	"github.com/trial-matching-mcp-server/internal/middleware"
)

// respondError maps an error onto an APIError response.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	requestID := c.GetString(middleware.CorrelationIDKey)

	var validation *domain.ValidationError
	switch {
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest,
			domain.NewAPIError(domain.CodeInvalidInput, validation.Message, validation.Field, requestID))
	case errors.Is(err, domain.ErrInvalidInput):
		c.AbortWithStatusJSON(http.StatusBadRequest,
			domain.NewAPIError(domain.CodeInvalidInput, "Invalid request", err.Error(), requestID))
	case errors.Is(err, domain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound,
			domain.NewAPIError(domain.CodeNotFound, "Resource not found", err.Error(), requestID))
	case errors.Is(err, llm.ErrUnavailable):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable,
			domain.NewAPIError(domain.CodeGenerationError, "Text generation is temporarily unavailable", "", requestID))
	case errors.Is(err, context.DeadlineExceeded):
		c.AbortWithStatusJSON(http.StatusGatewayTimeout,
			domain.NewAPIError(domain.CodeInternalServer, "Request timeout", "", requestID))
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError,
			domain.NewAPIError(domain.CodeInternalServer, "Internal server error", "", requestID))
	}
}

// respondGenerationError reports a failed assistant call. Validation and
// availability failures keep their usual mapping.
func respondGenerationError(c *gin.Context, err error) {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, llm.ErrUnavailable) {
		respondError(c, err)
		return
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadGateway, domain.NewAPIError(
		domain.CodeGenerationError, "Text generation failed", "", c.GetString(middleware.CorrelationIDKey)))
}

func respondBindError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(http.StatusBadRequest, domain.NewAPIError(
		domain.CodeInvalidInput, "Malformed request body", err.Error(), c.GetString(middleware.CorrelationIDKey)))
}
