package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	requestIDKey = "request_id"
	subjectKey   = "auth_subject"
)

// RequestID ensures every request has an id for logs and error bodies.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.Request.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// GetRequestID extracts the request id from the gin context when available.
func GetRequestID(c *gin.Context) string {
	if c == nil {
		return ""
	}
	return c.GetString(requestIDKey)
}

func Logger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logger.LogAttrs(c.Request.Context(), level, "http request",
			slog.String("request_id", GetRequestID(c)),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Float64("latency_ms", float64(time.Since(start).Microseconds())/1000.0),
			slog.String("ip", c.ClientIP()),
		)
	}
}

// Auth verifies HS256 bearer tokens issued by the auth provider and stores their subject.
// An empty secret disables the check.
func Auth(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	key := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (interface{}, error) {
			return key, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
		if err != nil || !token.Valid {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}
		sub, err := token.Claims.GetSubject()
		if err != nil || sub == "" {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "token has no subject")
			return
		}
		c.Set(subjectKey, sub)
		c.Next()
	}
}

// RequireOwner rejects requests whose :userId differs from the token subject. Without
// authentication every request passes.
func RequireOwner() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !ownedBy(c, c.Param("userId")) {
			abortJSON(c, http.StatusForbidden, "forbidden", "not allowed to access another user's bookings")
			return
		}
		c.Next()
	}
}

func ownedBy(c *gin.Context, userID string) bool {
	sub, ok := c.Get(subjectKey)
	if !ok {
		return true
	}
	return sub.(string) == userID
}

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: message, Code: code, RequestID: GetRequestID(c)})
}
