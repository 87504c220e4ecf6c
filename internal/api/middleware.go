package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"holidaysync/internal/auth"
	"holidaysync/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const callerKey = "caller"

// TokenParser turns a bearer token into a caller
type TokenParser interface {
	Parse(token string) (auth.Caller, error)
}

// optionalAuth attaches the caller named by a bearer token, if any. It only
// parses; every service operation decides for itself what the caller may do.
func optionalAuth(tokens TokenParser) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || tokens == nil {
			abortWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid authorization header")
			return
		}
		caller, err := tokens.Parse(strings.TrimSpace(token))
		if err != nil {
			util.GetLogger().Debug("Rejected bearer token", zap.Error(err))
			abortWithError(c, http.StatusUnauthorized, "UNAUTHENTICATED", "invalid or expired token")
			return
		}
		c.Set(callerKey, &caller)
		c.Next()
	}
}

// callerFrom returns the authenticated caller, or nil for anonymous requests
func callerFrom(c *gin.Context) *auth.Caller {
	v, ok := c.Get(callerKey)
	if !ok {
		return nil
	}
	caller, _ := v.(*auth.Caller)
	return caller
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		util.HTTPRequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		util.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// requestLogger logs one line per request through zap
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if caller := callerFrom(c); caller != nil {
			fields = append(fields, zap.String("user_id", caller.UserID))
		}

		logger := util.GetLogger()
		switch {
		case c.Writer.Status() >= http.StatusInternalServerError:
			logger.Error("HTTP request", fields...)
		case c.Writer.Status() >= http.StatusBadRequest:
			logger.Warn("HTTP request", fields...)
		default:
			logger.Info("HTTP request", fields...)
		}
	}
}
