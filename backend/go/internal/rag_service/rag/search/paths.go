package search

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
	"sort"
	"strings"
)

// DefaultPageSize is the scan page size for path enumeration.
const DefaultPageSize = 200

// PathEnumerator lists the distinct document paths visible under a scope.
type PathEnumerator struct {
	backend  interfaces.SearchBackend
	log      *logger.Logger
	pageSize int
}

// NewPathEnumerator creates an enumerator; pageSize <= 0 uses DefaultPageSize.
func NewPathEnumerator(backend interfaces.SearchBackend, log *logger.Logger, pageSize int) *PathEnumerator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &PathEnumerator{backend: backend, log: log, pageSize: pageSize}
}

// Location is one indexed path within its knowledge base.
type Location struct {
	KnowledgeBaseID string
	Path            string
}

// Paths pages through the index until a short page and returns sorted distinct
// non-blank paths. A backend error is logged and yields an empty list.
func (p *PathEnumerator) Paths(ctx context.Context, scope schema.AllowedScope) []string {
	locs := p.Locations(ctx, scope)
	out := make([]string, 0, len(locs))
	for i, loc := range locs {
		if i > 0 && locs[i-1].Path == loc.Path {
			continue
		}
		out = append(out, loc.Path)
	}
	return out
}

// Locations is Paths keeping the knowledge base of every path, so callers can
// apply per-path grants. The result is sorted by path, then knowledge base.
func (p *PathEnumerator) Locations(ctx context.Context, scope schema.AllowedScope) []Location {
	if scope.IsEmpty() {
		return []Location{}
	}
	filter := schema.ScanFilter{Limit: p.pageSize}
	if !scope.IsAll() {
		filter.KnowledgeBaseIDs = scope.IDs()
	}

	seen := make(map[Location]struct{})
	token := ""
	for pages := 0; ; pages++ {
		hits, next, err := p.backend.ScanAll(ctx, filter, token)
		if err != nil {
			p.log.WithError(err).WithField("scope", scope.String()).Error("path enumeration failed")
			return []Location{}
		}
		for _, h := range hits {
			if h.Document == nil {
				continue
			}
			if path := strings.TrimSpace(h.Document.String(schema.MetadataKeyPath)); path != "" {
				seen[Location{KnowledgeBaseID: h.Document.String(schema.MetadataKeyKnowledgeBaseID), Path: path}] = struct{}{}
			}
		}
		if len(hits) < p.pageSize || next == "" || next == token {
			p.log.Debug(fmt.Sprintf("path enumeration scanned %d pages", pages+1))
			break
		}
		token = next
	}

	out := make([]Location, 0, len(seen))
	for loc := range seen {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].KnowledgeBaseID < out[j].KnowledgeBaseID
	})
	return out
}
