package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// webRecovery replaces gin.Recovery(): a panicking handler is still a
// WebInterfaceError per spec.md §7 ("HTTP plane failed to start or handle"
// -> "500 response"), so the client gets the same {"success":false,"error"}
// envelope every other failure path uses instead of gin's bare-status
// default body.
func webRecovery(log *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		err := &procexec.WebInterfaceError{Reason: "handler panic", Err: asError(recovered)}
		log.Error("recovered from panic", zap.String("route", c.FullPath()), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
	})
}

func asError(v any) error {
	if err, ok := v.(error); ok {
		return err
	}
	if s, ok := v.(string); ok {
		return errors.New(s)
	}
	return fmt.Errorf("unknown panic value: %v", v)
}

// zapLogger is the teacher's Gin access-log middleware, copied verbatim
// from cmd/zmux-server/main.go.
func zapLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}
