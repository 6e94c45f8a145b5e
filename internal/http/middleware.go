package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/security"
	"go.uber.org/zap"
)

const (
	requestIDKey = "X-Request-ID"
	userIDKey    = "uid"
)

// RequestID keeps an incoming X-Request-ID or mints one, echoes it and puts
// it on the request context for logging and broker headers.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDKey)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDKey, id)
		c.Request = c.Request.WithContext(log.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.FromContext(c.Request.Context()).Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(requestIDKey)),
		)
	}
}

// RequireAuth verifies the session cookie and stores the user id under
// userIDKey for the handlers behind it.
func RequireAuth(sessions *security.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok, err := c.Cookie(cookieName)
		if err != nil || tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Message: "Unauthorized - no token provided"})
			return
		}
		claims, err := sessions.Parse(tok)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Message: "Unauthorized - invalid token"})
			return
		}
		c.Set(userIDKey, claims.UserID)
		c.Next()
	}
}
