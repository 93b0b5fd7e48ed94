package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/skimmer/models"
	"github.com/use-agent/skimmer/pipeline"
)

// Extract returns a handler for POST /api/v1/extract.
//
// The pipeline does the actual work; this handler only parses the request,
// maps pipeline errors to HTTP status codes, and serializes the response.
func Extract(p *pipeline.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ExtractRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ExtractResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}

		resp, err := p.Extract(c.Request.Context(), req)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a PipelineError to the correct HTTP status code and
// writes a structured JSON error response.
func respondError(c *gin.Context, err error) {
	var perr *models.PipelineError
	if !errors.As(err, &perr) {
		perr = models.NewPipelineError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(perr), models.ExtractResponse{
		Success: false,
		Error:   perr.ToDetail(),
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.PipelineError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeFetchFailed, models.ErrCodeAllStrategiesFailed:
		return http.StatusBadGateway // 502
	case models.ErrCodePoolExhausted, models.ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeExtractionTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
