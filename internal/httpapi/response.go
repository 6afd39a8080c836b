// ABOUTME: JSON response envelope and error-to-status mapping for the API
// ABOUTME: Sentinel errors from core and storage decide the HTTP status
package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/harper/sitjournal/internal/core"
	"github.com/harper/sitjournal/internal/logging"
	"github.com/harper/sitjournal/internal/storage"
)

var errTooLarge = errors.New("content exceeds 64KB")

func errUnknownSkill(id string) error {
	return fmt.Errorf("%w: unknown skill %q", core.ErrInvalidInput, id)
}

// APIError is the body of every failed request
type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope wraps APIError
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// RespondError writes err with the given status and code
func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: APIError{Message: msg, Code: code}})
}

// RespondOK writes payload as 200
func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// respondErr maps pipeline errors onto statuses
func respondErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, core.ErrInvalidInput), errors.Is(err, core.ErrUnknownLookup):
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
	case errors.Is(err, storage.ErrNotFound):
		RespondError(c, http.StatusNotFound, "not_found", err)
	case errors.Is(err, storage.ErrVersionConflict):
		RespondError(c, http.StatusConflict, "conflict", err)
	case errors.Is(err, core.ErrInferenceUnavailable):
		RespondError(c, http.StatusServiceUnavailable, "inference_unavailable", err)
	case errors.Is(err, core.ErrExtractionFailure), errors.Is(err, core.ErrSynthesisFailure):
		RespondError(c, http.StatusBadGateway, "inference_failed", err)
	default:
		RespondError(c, http.StatusInternalServerError, "internal", err)
	}
}

// RequestLogger logs one line per request, level by status class
func RequestLogger(log *logging.Logger) gin.HandlerFunc {
	log = log.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if user := c.Param("user"); user != "" {
			fields = append(fields, "user_id", user)
		}

		switch {
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
