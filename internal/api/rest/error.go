package rest

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-patronage-indexer/internal/api/shared/errors"
	"github.com/feral-file/ff-patronage-indexer/internal/logger"
)

// errorResponse represents a standardized error response
type errorResponse struct {
	Error *apierrors.APIError `json:"error"`
}

// respondWithError sends a standardized error response
func respondWithError(c *gin.Context, apiErr *apierrors.APIError) {
	c.JSON(apiErr.StatusCode(), errorResponse{Error: apiErr})
}

// respondBadRequest sends a 400 Bad Request response
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound sends a 404 Not Found response
func respondNotFound(c *gin.Context, message string, details ...string) {
	respondWithError(c, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError sends a 400 Bad Request with validation error
func respondValidationError(c *gin.Context, details string) {
	respondWithError(c, apierrors.NewValidationError(details))
}

// respondExecutorError sends the executor's API error, or a 500 for anything else, and logs it
func respondExecutorError(c *gin.Context, err error, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, fields...)

	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		respondWithError(c, apiErr)
		return
	}
	respondWithError(c, &apierrors.APIError{
		Code:    apierrors.ErrCodeInternalError,
		Message: http.StatusText(http.StatusInternalServerError),
	})
}
