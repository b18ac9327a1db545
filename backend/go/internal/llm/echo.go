package llm

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"context"
	"strings"
)

// Echo 不调用任何模型，按词流式返回提示词中 "Question:" 之后的内容，
// 便于在没有模型凭据时联调整个流水线。
type Echo struct{}

// NewEcho 创建 Echo 客户端。
func NewEcho() *Echo { return &Echo{} }

// StreamCompletion 逐词输出，每个词带一个尾随空格。
func (Echo) StreamCompletion(ctx context.Context, prompt string) (<-chan interfaces.StreamChunk, error) {
	text := prompt
	if i := strings.LastIndex(prompt, "Question:"); i >= 0 {
		text = prompt[i+len("Question:"):]
	}
	words := strings.Fields(text)
	ch := make(chan interfaces.StreamChunk)
	go func() {
		defer close(ch)
		for _, w := range words {
			if !send(ctx, ch, interfaces.StreamChunk{Text: w + " "}) {
				return
			}
		}
	}()
	return ch, nil
}
