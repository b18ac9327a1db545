package permissions

import (
	"Jarvis_RAG/backend/go/internal/models"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gobwas/glob"
)

var errAnonymous = errors.New("no user email")

// Filter narrows search results to the knowledge bases and paths a user was granted.
// A user without grants, or an anonymous caller, sees nothing.
type Filter struct {
	source GrantSource
	log    *logger.Logger

	mu       sync.Mutex
	patterns map[string]glob.Glob
}

// NewFilter creates a Filter over the given grant source.
func NewFilter(source GrantSource, log *logger.Logger) *Filter {
	return &Filter{source: source, log: log, patterns: make(map[string]glob.Glob)}
}

// AllowedScope returns All when any grant names the "*" knowledge base,
// otherwise the subset of granted knowledge bases.
func (f *Filter) AllowedScope(ctx context.Context, userEmail string) (schema.AllowedScope, error) {
	grants, err := f.grants(ctx, userEmail)
	if err != nil {
		if errors.Is(err, errAnonymous) {
			return schema.ScopeSubset(), nil
		}
		return schema.ScopeSubset(), err
	}
	ids := make([]string, 0, len(grants))
	for _, g := range grants {
		if g.KnowledgeBaseID == models.KnowledgeBaseWildcard {
			return schema.ScopeAll(), nil
		}
		ids = append(ids, g.KnowledgeBaseID)
	}
	return schema.ScopeSubset(ids...), nil
}

// Filter keeps the results matched by at least one grant, preserving order.
func (f *Filter) Filter(ctx context.Context, results []schema.SearchResult, userEmail string) ([]schema.SearchResult, error) {
	out := make([]schema.SearchResult, 0, len(results))
	if len(results) == 0 {
		return out, nil
	}
	grants, err := f.grants(ctx, userEmail)
	if err != nil {
		if errors.Is(err, errAnonymous) {
			return out, nil
		}
		return nil, err
	}

	for _, r := range results {
		for _, g := range grants {
			if f.matches(g, r) {
				out = append(out, r)
				break
			}
		}
	}
	if dropped := len(results) - len(out); dropped > 0 {
		f.log.WithField("user_email", userEmail).Debug(fmt.Sprintf("权限过滤移除了 %d 条结果", dropped))
	}
	return out, nil
}

func (f *Filter) grants(ctx context.Context, userEmail string) ([]Grant, error) {
	email := NormalizeEmail(userEmail)
	if email == "" {
		return nil, errAnonymous
	}
	grants, err := f.source.GrantsFor(ctx, email)
	if err != nil {
		return nil, schema.PermissionError("permissions.grants", err)
	}
	return grants, nil
}

func (f *Filter) matches(g Grant, r schema.SearchResult) bool {
	if g.KnowledgeBaseID != models.KnowledgeBaseWildcard && g.KnowledgeBaseID != r.KnowledgeBaseID {
		return false
	}
	if g.PathPattern == "" {
		return true
	}
	p, ok := f.pattern(g.PathPattern)
	return ok && p.Match(r.Path)
}

// pattern compiles and caches a path glob; "/" separates path segments.
func (f *Filter) pattern(pattern string) (glob.Glob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.patterns[pattern]; ok {
		return p, p != nil
	}
	p, err := glob.Compile(pattern, '/')
	if err != nil {
		f.log.WithError(err).Warn(fmt.Sprintf("无效的路径模式 %q，该授权被忽略", pattern))
		f.patterns[pattern] = nil
		return nil, false
	}
	f.patterns[pattern] = p
	return p, true
}
