package actor

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/flightlink/copter-actor/internal/supervisor"
	"github.com/flightlink/copter-actor/pkg/coordinate"
	"github.com/flightlink/copter-actor/pkg/mission"
	"github.com/flightlink/copter-actor/pkg/mqtt"
)

// CallRequest is the body of POST /v1/module/call/:method.
type CallRequest struct {
	Args []interface{} `json:"args"`
}

// Router returns the local HTTP surface:
//
//	GET  /healthz                 aggregated health, 503 when unhealthy
//	GET  /v1/module               module spec
//	POST /v1/module/call/:method  invoke a method with {"args": [...]}
func (a *Actor) Router() *gin.Engine {
	router := gin.New()
	router.Use(recoveryMiddleware(a.logger), loggingMiddleware(a.logger))

	router.GET("/healthz", a.handleHealth)
	v1 := router.Group("/v1")
	v1.GET("/module", a.handleSpec)
	v1.POST("/module/call/:method", a.handleHTTPCall)
	return router
}

func (a *Actor) handleHealth(c *gin.Context) {
	result := a.health.CheckAll(c.Request.Context())
	status := http.StatusOK
	if result.IsUnhealthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, result)
}

func (a *Actor) handleSpec(c *gin.Context) {
	c.JSON(http.StatusOK, a.Spec())
}

func (a *Actor) handleHTTPCall(c *gin.Context) {
	var req CallRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		_ = c.Error(err)
		c.JSON(http.StatusBadRequest, mqtt.ResponseMessage{Error: "invalid request body: " + err.Error()})
		return
	}

	data, err := a.Call(c.Request.Context(), c.Param("method"), req.Args)
	if err != nil {
		_ = c.Error(err)
		c.JSON(statusFor(err), mqtt.ResponseMessage{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, mqtt.ResponseMessage{Success: true, Data: data})
}

// statusFor maps call errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnknownMethod):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, mission.ErrUnsupportedCommandType),
		errors.Is(err, mission.ErrMalformedField),
		errors.Is(err, coordinate.ErrMalformedCoordinate),
		errors.Is(err, supervisor.ErrUnsupportedTransport),
		errors.Is(err, supervisor.ErrMalformedAddress):
		return http.StatusBadRequest
	case errors.Is(err, supervisor.ErrUnknownVehicleType):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func loggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		switch status := c.Writer.Status(); {
		case status >= 500:
			logger.Error("Request failed", append(fields, zap.String("error", c.Errors.String()))...)
		case status >= 400:
			logger.Warn("Request returned client error", append(fields, zap.String("error", c.Errors.String()))...)
		default:
			logger.Debug("Request completed", fields...)
		}
	}
}

func recoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered in request handler",
					zap.Any("error", err),
					zap.String("path", c.Request.URL.Path))
				c.AbortWithStatusJSON(http.StatusInternalServerError, mqtt.ResponseMessage{Error: "internal server error"})
			}
		}()
		c.Next()
	}
}
