package api

import (
	"Jarvis_RAG/backend/go/pkg/httpmiddleware"
	"Jarvis_RAG/backend/go/pkg/logger"
	"Jarvis_RAG/backend/go/pkg/ratelimiter"
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouterConfig 汇总路由需要的横切依赖。
type RouterConfig struct {
	JWTSecret  string
	EmailClaim string
	// Limiter 为 nil 时不限流。
	Limiter *ratelimiter.Keyed
	// Metrics 挂载在 /metrics，为 nil 时不暴露。
	Metrics  http.Handler
	Observer httpmiddleware.HTTPObserver
}

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, log *logger.Logger, rc RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), httpmiddleware.RequestLogger(log, rc.Observer))

	r.GET("/healthz", h.Healthz)
	if rc.Metrics != nil {
		r.GET("/metrics", gin.WrapH(rc.Metrics))
	}

	// 使用 v1 版本对 API 进行分组，组内所有路由都需要认证
	apiV1 := r.Group("/api/v1")
	apiV1.Use(httpmiddleware.JWTAuth(rc.JWTSecret, rc.EmailClaim))
	if rc.Limiter != nil {
		apiV1.Use(httpmiddleware.RateLimitByUser(rc.Limiter))
	}
	{
		apiV1.POST("/chat", h.Chat)
		apiV1.GET("/paths", h.Paths)
	}

	return r
}
