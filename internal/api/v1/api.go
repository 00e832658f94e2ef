// Package api exposes recorded sessions and snippets over a JSON API.
package api

import (
	"crypto/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nightsound/nightsound-go/internal/conf"
	"github.com/nightsound/nightsound-go/internal/datastore"
	"github.com/nightsound/nightsound-go/internal/errors"
	"github.com/nightsound/nightsound-go/internal/library"
	"github.com/nightsound/nightsound-go/internal/logger"
	"github.com/nightsound/nightsound-go/internal/recorder"
)

// StatusProvider reports the live recorder state.
type StatusProvider interface {
	Status() recorder.Status
}

// Controller manages the API routes and handlers
type Controller struct {
	Echo     *echo.Echo
	Group    *echo.Group
	Library  *library.Library
	Settings *conf.Settings

	status    StatusProvider
	startTime time.Time
	log       logger.Logger
}

// Option is a functional option for configuring the Controller.
type Option func(*Controller)

// WithStatusProvider attaches the running recorder.
func WithStatusProvider(p StatusProvider) Option {
	return func(c *Controller) {
		c.status = p
	}
}

// GetLogger returns the API logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("api")
}

// New creates the controller and registers its routes under /api/v1.
func New(e *echo.Echo, lib *library.Library, settings *conf.Settings, opts ...Option) *Controller {
	c := &Controller{
		Echo:      e,
		Group:     e.Group("/api/v1"),
		Library:   lib,
		Settings:  settings,
		startTime: time.Now(),
		log:       GetLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Group.GET("/health", c.HealthCheck)
	c.Group.GET("/status", c.GetStatus)

	c.initSessionRoutes()
	c.initSnippetRoutes()
}

// HealthCheck handles the API health check endpoint
func (c *Controller) HealthCheck(ctx echo.Context) error {
	uptime := time.Since(c.startTime)
	response := map[string]any{
		"status":         "healthy",
		"version":        c.Settings.Version,
		"build_date":     c.Settings.BuildDate,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	}

	dbStatus := "connected"
	if _, err := c.Library.Sessions(1, 0); err != nil {
		dbStatus = "disconnected"
		response["database_error"] = err.Error()
	}
	response["database_status"] = dbStatus

	return ctx.JSON(http.StatusOK, response)
}

// GetStatus returns the recorder status, or an idle status when this
// process is not recording.
func (c *Controller) GetStatus(ctx echo.Context) error {
	if c.status == nil {
		return ctx.JSON(http.StatusOK, recorder.Status{State: recorder.StateIdle.String()})
	}
	return ctx.JSON(http.StatusOK, c.status.Status())
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates a new API error response
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	if err != nil {
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 8

	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "ERR-RAND"
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	return string(b)
}

// HandleError logs err and writes an error response.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)

	fields := []logger.Field{
		logger.String("correlation_id", resp.CorrelationID),
		logger.String("message", message),
		logger.Int("code", code),
		logger.String("path", ctx.Request().URL.Path),
		logger.String("method", ctx.Request().Method),
		logger.String("ip", ctx.RealIP()),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	if code >= http.StatusInternalServerError {
		c.log.Error("API error", fields...)
	} else {
		c.log.Debug("API error", fields...)
	}

	return ctx.JSON(code, resp)
}

// statusFor maps library and datastore errors to HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.IsNotFound(err),
		errors.Is(err, datastore.ErrSessionNotFound),
		errors.Is(err, datastore.ErrSnippetNotFound):
		return http.StatusNotFound
	case errors.Is(err, datastore.ErrSessionActive),
		errors.Is(err, library.ErrRecording):
		return http.StatusConflict
	case errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func parseID(ctx echo.Context) (uint, error) {
	id, err := strconv.ParseUint(ctx.Param("id"), 10, 32)
	if err != nil || id == 0 {
		return 0, errors.ValidationError("id must be a positive integer")
	}
	return uint(id), nil
}

// queryInt reads a non-negative integer query parameter.
func queryInt(ctx echo.Context, name string, def int) (int, error) {
	raw := ctx.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, errors.ValidationError(name + " must be a non-negative integer")
	}
	return v, nil
}
