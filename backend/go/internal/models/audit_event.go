package models

import "time"

// AuditStatus 定义了一次问答运行的结束状态。
type AuditStatus string

const (
	AuditCompleted AuditStatus = "COMPLETED"
	AuditFailed    AuditStatus = "FAILED"
	AuditCancelled AuditStatus = "CANCELLED"
)

// AuditEvent 定义了发送到 Kafka 的问答审计事件，每次运行一条。
type AuditEvent struct {
	TraceID       string      `json:"trace_id"`
	SessionID     string      `json:"session_id,omitempty"`
	UserEmail     string      `json:"user_email,omitempty"`
	Timestamp     time.Time   `json:"timestamp"`
	Status        AuditStatus `json:"status"`
	QueryType     string      `json:"query_type,omitempty"`
	Question      string      `json:"question"`
	ExecutedSteps []string    `json:"executed_steps"`
	Sources       []string    `json:"sources,omitempty"` // 进入上下文的结果 ID
	Tokens        int         `json:"tokens"`
	DurationMs    int64       `json:"duration_ms"`
	Error         string      `json:"error,omitempty"`
}
