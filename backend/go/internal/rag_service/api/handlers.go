package api

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/stream"
	"Jarvis_RAG/backend/go/internal/rag_service/service"
	"Jarvis_RAG/backend/go/pkg/httpmiddleware"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ChatService 是 HTTP 层依赖的全部业务能力。
type ChatService interface {
	RunPipeline(ctx context.Context, req service.Request) *stream.Subscription
	Paths(ctx context.Context, userEmail string) ([]string, error)
}

// HealthCheck 检查一个依赖是否可用。
type HealthCheck func(ctx context.Context) error

// Handler 持有处理 HTTP 请求所需的依赖。
type Handler struct {
	svc    ChatService
	log    *logger.Logger
	checks map[string]HealthCheck
}

// NewHandler 创建一个新的 Handler 实例。checks 可以为 nil。
func NewHandler(svc ChatService, log *logger.Logger, checks map[string]HealthCheck) *Handler {
	return &Handler{svc: svc, log: log, checks: checks}
}

// ChatRequest 定义了问答请求的 JSON 结构。
type ChatRequest struct {
	Message     string   `json:"message" binding:"required"`
	SessionID   string   `json:"sessionId"`
	IsDeepThink bool     `json:"isDeepThink"`
	Keywords    []string `json:"keywords"`
}

// Chat 以 text/event-stream 的形式返回回答：若干 token 事件，最后是一个 done 或 error 事件。
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求体无效: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message 不能为空"})
		return
	}

	sub := h.svc.RunPipeline(c.Request.Context(), service.Request{
		Message:     req.Message,
		SessionID:   req.SessionID,
		UserEmail:   httpmiddleware.UserEmail(c),
		IsDeepThink: req.IsDeepThink,
		Keywords:    req.Keywords,
	})
	defer sub.Cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	for ev := range sub.Events() {
		switch ev.Kind {
		case stream.Token:
			c.SSEvent(ev.Kind.String(), gin.H{"text": ev.Text})
		case stream.Done:
			c.SSEvent(ev.Kind.String(), gin.H{})
		case stream.Error:
			h.log.WithTrace(httpmiddleware.TraceID(c), httpmiddleware.UserEmail(c)).
				WithError(ev.Err).Warn("chat stream ended with an error")
			c.SSEvent(ev.Kind.String(), gin.H{"error": ev.Err.Error(), "kind": ErrorKind(ev.Err)})
		}
		c.Writer.Flush()
	}
}

// Paths 返回当前用户可以浏览的文档路径。
func (h *Handler) Paths(c *gin.Context) {
	paths, err := h.svc.Paths(c.Request.Context(), httpmiddleware.UserEmail(c))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, schema.ErrPermission) {
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": err.Error(), "kind": ErrorKind(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"paths": paths})
}

// Healthz 依次运行所有健康检查，任何一个失败都返回 503。
func (h *Handler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	failed := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": failed})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ErrorKind 把错误映射为返回给客户端的类别名。
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, schema.ErrEmbedding):
		return "embedding"
	case errors.Is(err, schema.ErrSearchBackend):
		return "search_backend"
	case errors.Is(err, schema.ErrPermission):
		return "permission"
	case errors.Is(err, schema.ErrPipelineStep):
		return "pipeline_step"
	case errors.Is(err, schema.ErrLlmStream):
		return "llm_stream"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "internal"
	}
}
