package search

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"time"
)

// Observer records the outcome of each strategy call.
type Observer interface {
	ObserveStrategy(kind string, elapsed time.Duration, results int, err error)
}

// loggingStrategy wraps a Strategy with structured logs and an optional observer.
type loggingStrategy struct {
	next     Strategy
	log      *logger.Logger
	observer Observer
}

// WithLogging decorates s. observer may be nil.
func WithLogging(s Strategy, log *logger.Logger, observer Observer) Strategy {
	return &loggingStrategy{next: s, log: log.WithField("strategy", s.Kind().String()), observer: observer}
}

func (l *loggingStrategy) Kind() schema.CriteriaKind { return l.next.Kind() }

func (l *loggingStrategy) Search(ctx context.Context, criteria schema.SearchCriteria, topK int) ([]schema.SearchResult, error) {
	start := time.Now()
	l.log.WithField("query", criteria.Text()).Debug(fmt.Sprintf("strategy search started, topK=%d", topK))

	res, err := l.next.Search(ctx, criteria, topK)
	elapsed := time.Since(start)
	if l.observer != nil {
		l.observer.ObserveStrategy(l.next.Kind().String(), elapsed, len(res), err)
	}
	if err != nil {
		l.log.WithError(err).WithField("elapsed_ms", elapsed.Milliseconds()).Error("strategy search failed")
		return nil, err
	}
	l.log.WithField("elapsed_ms", elapsed.Milliseconds()).Info(fmt.Sprintf("strategy search returned %d results", len(res)))
	return res, nil
}
