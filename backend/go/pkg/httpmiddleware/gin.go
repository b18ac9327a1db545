package httpmiddleware

import (
	"Jarvis_RAG/backend/go/pkg/logger"
	"Jarvis_RAG/backend/go/pkg/ratelimiter"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

const (
	// ContextKeyUserEmail 是认证后用户邮箱在 gin.Context 中的键。
	ContextKeyUserEmail = "userEmail"
	// ContextKeyTraceID 是请求 trace ID 在 gin.Context 中的键。
	ContextKeyTraceID = "traceID"
	// HeaderTraceID 用于透传调用方的 trace ID。
	HeaderTraceID = "X-Trace-Id"
)

// JWTAuth 创建一个 Gin 中间件，用于验证 JWT 并把 emailClaim 中的邮箱写入上下文。
func JWTAuth(jwtSecret, emailClaim string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请求未包含授权标头"})
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
			return
		}

		// 解析和验证 token
		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			// 确保 token 的签名方法是我们期望的
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "无效的 token claims"})
			return
		}
		email, _ := claims[emailClaim].(string)
		email = strings.ToLower(strings.TrimSpace(email))
		if email == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token 中缺少用户邮箱"})
			return
		}
		c.Set(ContextKeyUserEmail, email)
		c.Next()
	}
}

// UserEmail 返回 JWTAuth 写入的邮箱，未认证时为空。
func UserEmail(c *gin.Context) string {
	return c.GetString(ContextKeyUserEmail)
}

// TraceID 返回当前请求的 trace ID。
func TraceID(c *gin.Context) string {
	return c.GetString(ContextKeyTraceID)
}

// RateLimitByUser 按用户邮箱限流，未认证的请求按客户端 IP 限流。
func RateLimitByUser(limiter *ratelimiter.Keyed) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := UserEmail(c)
		if key == "" {
			key = "ip:" + c.ClientIP()
		}
		if ok, wait := limiter.Take(key); !ok {
			c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too Many Requests"})
			return
		}
		c.Next()
	}
}

// retryAfterSeconds 向上取整到秒，至少 1 秒。
func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// HTTPObserver 接收每个请求的耗时和状态码。
type HTTPObserver interface {
	ObserveHTTP(method, path string, status int, elapsed time.Duration)
}

// RequestLogger 为每个请求分配 trace ID，结束后记录一条结构化日志。observer 可以为 nil。
func RequestLogger(log *logger.Logger, observer HTTPObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set(ContextKeyTraceID, traceID)
		c.Header(HeaderTraceID, traceID)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		if observer != nil {
			observer.ObserveHTTP(c.Request.Method, route, status, elapsed)
		}

		entry := log.WithTrace(traceID, UserEmail(c)).WithPayload(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"status":      status,
			"elapsed_ms":  elapsed.Milliseconds(),
			"remote_addr": c.ClientIP(),
		})
		msg := fmt.Sprintf("%s %s -> %d", c.Request.Method, route, status)
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error(msg)
		case status >= http.StatusBadRequest:
			entry.Warn(msg)
		default:
			entry.Info(msg)
		}
	}
}
