package service

import (
	"Jarvis_RAG/backend/go/internal/models"
	"Jarvis_RAG/backend/go/internal/rag_service/history"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/pipeline"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/search"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/stream"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// persistTimeout bounds the best-effort writes after an answer.
const persistTimeout = 5 * time.Second

// Request is one chat question as it arrives from the HTTP or CLI layer.
type Request struct {
	Message     string   `json:"message"`
	SessionID   string   `json:"sessionId,omitempty"`
	UserEmail   string   `json:"-"`
	IsDeepThink bool     `json:"isDeepThink"`
	Keywords    []string `json:"keywords,omitempty"`
}

// AuditSink receives one event per run.
type AuditSink interface {
	Publish(ctx context.Context, event *models.AuditEvent) error
}

// StreamMetrics is notified about outbound stream events.
type StreamMetrics interface {
	StreamEvent(kind string)
	TokensDropped(n uint64)
}

// Options tune the outbound stream and history window.
type Options struct {
	BufferSize   int
	Policy       stream.Policy
	HistoryTurns int
}

// Option configures a Service.
type Option func(*Service)

// WithHistory loads and appends session turns.
func WithHistory(h history.Store) Option { return func(s *Service) { s.history = h } }

// WithAudit publishes an audit event for every run.
func WithAudit(a AuditSink) Option { return func(s *Service) { s.audit = a } }

// WithMetrics reports stream events.
func WithMetrics(m StreamMetrics) Option { return func(s *Service) { s.metrics = m } }

// Service is the only entry point the transport layers use.
type Service struct {
	log      *logger.Logger
	pipeline *pipeline.Pipeline
	llm      interfaces.LLM
	filter   interfaces.PermissionFilter
	paths    *search.PathEnumerator
	indexer  *pipeline.IndexingPipeline
	opts     Options

	history history.Store
	audit   AuditSink
	metrics StreamMetrics
}

// NewService wires the service from its collaborators.
func NewService(
	log *logger.Logger,
	p *pipeline.Pipeline,
	llm interfaces.LLM,
	filter interfaces.PermissionFilter,
	paths *search.PathEnumerator,
	indexer *pipeline.IndexingPipeline,
	opts Options,
	options ...Option,
) *Service {
	s := &Service{
		log:      log,
		pipeline: p,
		llm:      llm,
		filter:   filter,
		paths:    paths,
		indexer:  indexer,
		opts:     opts,
		history:  history.Nop{},
	}
	for _, o := range options {
		o(s)
	}
	return s
}

// RunPipeline answers one question as a token stream that ends with exactly one
// Done or Error event. Retrieval runs to completion even if ctx is cancelled;
// generation stops with ctx.
func (s *Service) RunPipeline(ctx context.Context, req Request) *stream.Subscription {
	b := stream.New(s.opts.BufferSize, s.opts.Policy)
	sub := b.Subscribe(ctx)
	go s.run(ctx, b, req)
	return sub
}

type runState struct {
	start   time.Time
	traceID string
	exec    pipeline.Execution
	answer  strings.Builder
	tokens  int
}

func (s *Service) run(ctx context.Context, b *stream.Broadcaster, req Request) {
	st := &runState{start: time.Now(), traceID: uuid.NewString()}
	log := s.log.WithTrace(st.traceID, req.UserEmail).WithField("session", req.SessionID)
	retrievalCtx := context.WithoutCancel(ctx)

	turns, err := s.history.Load(retrievalCtx, req.SessionID, s.opts.HistoryTurns)
	if err != nil {
		log.WithError(err).Warn("history unavailable, answering without it")
	}

	st.exec, err = s.pipeline.Execute(retrievalCtx, pipeline.UserInput{
		Message:     req.Message,
		SessionID:   req.SessionID,
		UserEmail:   req.UserEmail,
		IsDeepThink: req.IsDeepThink,
		Keywords:    req.Keywords,
		History:     turns,
	})
	if err != nil {
		s.fail(b, log, req, st, err)
		return
	}
	prompt, _ := st.exec.Context.Prompt()

	chunks, err := s.llm.StreamCompletion(ctx, prompt.Text)
	if err != nil {
		s.fail(b, log, req, st, schema.LlmStreamError("llm.start", err))
		return
	}
	for chunk := range chunks {
		if chunk.Err != nil {
			s.fail(b, log, req, st, schema.LlmStreamError("llm.stream", chunk.Err))
			return
		}
		if chunk.Text == "" {
			continue
		}
		if err := b.Publish(ctx, chunk.Text); err != nil {
			s.fail(b, log, req, st, schema.LlmStreamError("llm.stream", err))
			return
		}
		st.answer.WriteString(chunk.Text)
		st.tokens++
		s.streamEvent(stream.Token)
	}
	if err := ctx.Err(); err != nil {
		s.fail(b, log, req, st, schema.LlmStreamError("llm.stream", err))
		return
	}

	s.persist(ctx, log, req, st, nil)
	b.Finish()
	s.streamEvent(stream.Done)
	s.dropped(b)
	log.WithField("tokens", st.tokens).
		WithField("elapsed_ms", time.Since(st.start).Milliseconds()).
		Info("answer streamed")
}

func (s *Service) fail(b *stream.Broadcaster, log *logger.Logger, req Request, st *runState, err error) {
	log.WithError(err).WithField("pipeline", st.exec.String()).Error("run failed")
	s.persist(context.Background(), log, req, st, err)
	b.Fail(err)
	s.streamEvent(stream.Error)
	s.dropped(b)
}

// persist appends the turn on success and publishes the audit event. Both are best-effort.
func (s *Service) persist(ctx context.Context, log *logger.Logger, req Request, st *runState, runErr error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if runErr == nil {
		turn := schema.ChatTurn{Question: req.Message, Answer: strings.TrimSpace(st.answer.String())}
		if err := s.history.Append(ctx, req.SessionID, turn); err != nil {
			log.WithError(err).Warn("history append failed")
		}
	}
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, auditEvent(req, st, runErr)); err != nil {
		log.WithError(err).Warn("audit publish failed")
	}
}

func auditEvent(req Request, st *runState, runErr error) *models.AuditEvent {
	event := &models.AuditEvent{
		TraceID:       st.traceID,
		SessionID:     req.SessionID,
		UserEmail:     req.UserEmail,
		Timestamp:     st.start.UTC(),
		Status:        models.AuditCompleted,
		Question:      req.Message,
		ExecutedSteps: st.exec.Context.ExecutedSteps(),
		Tokens:        st.tokens,
		DurationMs:    time.Since(st.start).Milliseconds(),
	}
	if a, ok := st.exec.Context.Analysis(); ok {
		event.QueryType = string(a.QueryType)
	}
	if c, ok := st.exec.Context.Context(); ok {
		for _, p := range c.Passages {
			event.Sources = append(event.Sources, p.Result.ID)
		}
	}
	if runErr != nil {
		event.Status = models.AuditFailed
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			event.Status = models.AuditCancelled
		}
		event.Error = runErr.Error()
	}
	return event
}

func (s *Service) streamEvent(kind stream.EventKind) {
	if s.metrics != nil {
		s.metrics.StreamEvent(kind.String())
	}
}

func (s *Service) dropped(b *stream.Broadcaster) {
	if s.metrics != nil {
		if n := b.Dropped(); n > 0 {
			s.metrics.TokensDropped(n)
		}
	}
}

// Paths lists the distinct document paths the user may browse.
// Path patterns on grants hide paths exactly as they hide search results.
func (s *Service) Paths(ctx context.Context, userEmail string) ([]string, error) {
	scope, err := s.filter.AllowedScope(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	locs := s.paths.Locations(ctx, scope)
	candidates := make([]schema.SearchResult, len(locs))
	for i, loc := range locs {
		candidates[i] = schema.SearchResult{ID: loc.KnowledgeBaseID + "/" + loc.Path, KnowledgeBaseID: loc.KnowledgeBaseID, Path: loc.Path}
	}
	visible, err := s.filter.Filter(ctx, candidates, userEmail)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(visible))
	for _, r := range visible {
		if n := len(out); n > 0 && out[n-1] == r.Path {
			continue
		}
		out = append(out, r.Path)
	}
	return out, nil
}

// Index chunks, embeds and stores documents into one knowledge base.
func (s *Service) Index(ctx context.Context, knowledgeBaseID string, docs []*schema.Document, progress chan<- pipeline.Progress) (pipeline.IndexResult, error) {
	if s.indexer == nil {
		return pipeline.IndexResult{}, fmt.Errorf("indexing is not configured")
	}
	return s.indexer.Run(ctx, knowledgeBaseID, docs, progress)
}
