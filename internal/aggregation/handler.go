package aggregation

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	v1 "github.com/kindling-app/kindling/internal/api/v1"
	httperr "github.com/kindling-app/kindling/internal/core/errors"
	"github.com/kindling-app/kindling/internal/core/storage"
)

const (
	msgReadBodyFailed  = "Failed to read request body"
	msgInvalidJSON     = "Invalid JSON body"
	msgUserNotFound    = "User not found"
	msgInternalFailure = "Internal failure"
)

// apiError carries the structured HTTP error shape from a helper back to the
// handler. Helpers return this instead of writing to gin.Context directly,
// keeping them decoupled from HTTP.
type apiError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *apiError) Error() string {
	return e.message
}

// RegisterRoutes registers the aggregation API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/users/:user_id/activities", s.SaveActivityHandler)
	r.GET("/v1/users/:user_id/activities", s.GetActivitiesHandler)
	r.GET("/v1/users/:user_id/activities/all", s.GetAllActivitiesHandler)
	r.GET("/v1/users/:user_id/streaks/current", s.GetCurrentStreakHandler)
	r.GET("/v1/users/:user_id/streaks/longest", s.GetLongestStreakHandler)
}

// SaveActivityHandler handles HTTP POST requests recording a day's check-in.
func (s *Service) SaveActivityHandler(c *gin.Context) {
	userID := c.Param("user_id")

	req, err := s.parseSaveRequest(c)
	if err != nil {
		writeError(c, err)
		return
	}

	day, validateErr := req.Validate(s.nowFn())
	if validateErr != nil {
		writeError(c, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    validateErr.Error(),
		})
		return
	}

	activity, saveErr := s.SaveActivity(c.Request.Context(), userID, day, req.Description)
	if saveErr != nil {
		writeError(c, mapServiceError(saveErr))
		return
	}

	slog.Info("Recorded activity",
		"user_id", userID,
		"date", day.Format(v1.DayFormat),
		"descriptions", len(activity.Descriptions))

	c.JSON(http.StatusCreated, activity)
}

// GetActivitiesHandler returns the recent-window activity listing.
func (s *Service) GetActivitiesHandler(c *gin.Context) {
	userID := c.Param("user_id")

	windowDays, err := intQuery(c, "window_days", defaultWindowDays)
	if err != nil {
		writeError(c, err)
		return
	}

	activities, svcErr := s.GetActivities(c.Request.Context(), userID, windowDays)
	if svcErr != nil {
		writeError(c, mapServiceError(svcErr))
		return
	}

	if activities == nil {
		activities = []*v1.Activity{}
	}
	c.JSON(http.StatusOK, gin.H{"activities": activities})
}

// GetAllActivitiesHandler returns one page of the full activity history.
func (s *Service) GetAllActivitiesHandler(c *gin.Context) {
	userID := c.Param("user_id")

	page, err := intQuery(c, "page", 1)
	if err != nil {
		writeError(c, err)
		return
	}
	limit, err := intQuery(c, "limit", 0)
	if err != nil {
		writeError(c, err)
		return
	}

	result, svcErr := s.GetAllActivities(c.Request.Context(), userID, page, limit)
	if svcErr != nil {
		writeError(c, mapServiceError(svcErr))
		return
	}

	if result.Activities == nil {
		result.Activities = []*v1.Activity{}
	}
	c.JSON(http.StatusOK, result)
}

// GetCurrentStreakHandler returns the current streak counter.
// ?fresh=true bypasses the cache.
func (s *Service) GetCurrentStreakHandler(c *gin.Context) {
	userID := c.Param("user_id")
	skipCache := c.Query("fresh") == "true"

	current, err := s.GetCurrentStreak(c.Request.Context(), userID, skipCache)
	if err != nil {
		writeError(c, mapServiceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"current_streak": current})
}

// GetLongestStreakHandler returns the longest streak counter.
// ?fresh=true bypasses the cache.
func (s *Service) GetLongestStreakHandler(c *gin.Context) {
	userID := c.Param("user_id")
	skipCache := c.Query("fresh") == "true"

	longest, err := s.GetLongestStreak(c.Request.Context(), userID, skipCache)
	if err != nil {
		writeError(c, mapServiceError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"longest_streak": longest})
}

// parseSaveRequest reads the raw body with a size cap and binds it into the
// request struct.
func (s *Service) parseSaveRequest(c *gin.Context) (*v1.SaveActivityRequest, *apiError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.opts.MaxBodySizeMB) * 1024 * 1024
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, &apiError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var req v1.SaveActivityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}
	return &req, nil
}

func intQuery(c *gin.Context, name string, fallback int) (int, *apiError) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    "query parameter " + name + " must be a non-negative integer",
		}
	}
	return value, nil
}

// mapServiceError translates engine errors into the HTTP error vocabulary.
func mapServiceError(err error) *apiError {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return &apiError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidRequestError,
			message:    err.Error(),
		}
	case errors.Is(err, storage.ErrUserNotFound):
		return &apiError{
			statusCode: http.StatusNotFound,
			errorType:  httperr.HttpUserNotFoundError,
			message:    msgUserNotFound,
		}
	default:
		slog.Error("Request failed with storage error", "error", err)
		return &apiError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgInternalFailure,
		}
	}
}

// writeError serializes an apiError as the JSON HTTP response.
func writeError(c *gin.Context, err *apiError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
