package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"fmt"
)

// StepSearch is the name of the document search step.
const StepSearch = "document_search"

// Searcher runs a multi-field search.
type Searcher interface {
	Search(ctx context.Context, criteria []schema.SearchCriteria, topK int) ([]schema.SearchResult, error)
}

// DocumentSearch retrieves, filters and links results for the analysed query.
type DocumentSearch struct {
	searcher Searcher
	filter   interfaces.PermissionFilter
	links    interfaces.LinkResolver
	log      *logger.Logger
}

// NewDocumentSearch wires the search step. links may be nil.
func NewDocumentSearch(searcher Searcher, filter interfaces.PermissionFilter, links interfaces.LinkResolver, log *logger.Logger) *DocumentSearch {
	return &DocumentSearch{searcher: searcher, filter: filter, links: links, log: log}
}

// Step returns the pipeline step; it is skipped when the analysis says no
// documents are needed.
func (s *DocumentSearch) Step() Step {
	return OrdinaryStep(StepSearch, func(c ChatContext) bool {
		a, ok := c.Analysis()
		return ok && a.RequiresDocuments()
	}, s.run)
}

// Criteria builds the per-field criteria for a message and its keywords.
func Criteria(message string, keywords []string) []schema.SearchCriteria {
	out := []schema.SearchCriteria{
		schema.Titles(message),
		schema.Contents(message),
		schema.Paths(message),
	}
	if kw := schema.Keywords(keywords); !kw.Empty() {
		out = append(out, kw)
	}
	return out
}

func (s *DocumentSearch) run(ctx context.Context, c ChatContext) (ChatContext, error) {
	a, ok := c.Analysis()
	if !ok {
		return c, schema.PipelineStepError(StepSearch, fmt.Errorf("analysis stage missing"))
	}
	in := c.UserInput()

	results, err := s.searcher.Search(ctx, Criteria(in.Message, a.Keywords), a.TopK)
	if err != nil {
		return c, err
	}
	found := len(results)

	results, err = s.filter.Filter(ctx, results, in.UserEmail)
	if err != nil {
		return c, schema.PermissionError(StepSearch, err)
	}
	s.resolveLinks(ctx, results)

	s.log.Info(fmt.Sprintf("检索到 %d 条结果，权限过滤后剩余 %d 条", found, len(results)))
	return c.WithSearch(SearchStage{Results: results})
}

// resolveLinks fills downloadUrl for results backed by a stored file.
// A failed link is logged and left empty.
func (s *DocumentSearch) resolveLinks(ctx context.Context, results []schema.SearchResult) {
	if s.links == nil {
		return
	}
	for i := range results {
		r := &results[i]
		if r.ObjectKey == "" || r.DownloadURL != "" {
			continue
		}
		u, err := s.links.DownloadURL(ctx, r.ObjectKey)
		if err != nil {
			s.log.WithError(err).WithField("object_key", r.ObjectKey).Warn("生成下载链接失败")
			continue
		}
		r.DownloadURL = u
	}
}
