package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"sort"
	"strings"
)

// StepContext is the name of the context building step.
const StepContext = "context_building"

// NewContextStep builds the passages step. It is skipped when search did not run.
func NewContextStep() Step {
	return OrdinaryStep(StepContext, func(c ChatContext) bool {
		_, ok := c.Search()
		return ok
	}, func(_ context.Context, c ChatContext) (ChatContext, error) {
		a, _ := c.Analysis()
		s, _ := c.Search()
		return c.WithContext(BuildPassages(s.Results, a.MaxPassages, a.MaxContextChars))
	})
}

// BuildPassages orders results by score, prefers the sentence window over the
// chunk text, drops repeated passages and stops at maxPassages or maxChars.
// A first passage longer than the budget is cut to fit.
func BuildPassages(results []schema.SearchResult, maxPassages, maxChars int) ContextStage {
	sorted := append([]schema.SearchResult(nil), results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].ID < sorted[j].ID
	})

	var stage ContextStage
	seen := make(map[string]bool)
	for _, r := range sorted {
		if maxPassages > 0 && len(stage.Passages) >= maxPassages {
			break
		}
		text := strings.TrimSpace(r.WindowContext)
		if text == "" {
			text = strings.TrimSpace(r.Content)
		}
		if text == "" || seen[text] {
			continue
		}
		n := len([]rune(text))
		if maxChars > 0 && stage.Chars+n > maxChars {
			if len(stage.Passages) > 0 {
				break
			}
			text = string([]rune(text)[:maxChars])
			n = maxChars
		}
		seen[text] = true
		stage.Passages = append(stage.Passages, Passage{
			Index:  len(stage.Passages) + 1,
			Title:  r.Title,
			Path:   r.Path,
			Text:   text,
			Score:  r.Score,
			Result: r,
		})
		stage.Chars += n
	}
	return stage
}
