package service

import (
	"Jarvis_RAG/backend/go/internal/config"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/interfaces"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/pipeline"
	"Jarvis_RAG/backend/go/internal/rag_service/rag/search"
	"Jarvis_RAG/backend/go/pkg/logger"
)

// Observer receives strategy and step timings.
type Observer interface {
	search.Observer
	pipeline.StepObserver
}

// BuildPipeline assembles the four chat steps over a backend. Every strategy is
// wrapped with the logging decorator. observer may be nil.
func BuildPipeline(
	log *logger.Logger,
	cfg *config.AppConfig,
	embedder interfaces.EmbeddingModel,
	backend interfaces.SearchBackend,
	filter interfaces.PermissionFilter,
	links interfaces.LinkResolver,
	observer Observer,
) (*pipeline.Pipeline, error) {
	strategies, err := search.NewStrategies(cfg.Search, embedder, backend)
	if err != nil {
		return nil, err
	}
	var searchObserver search.Observer
	var stepObserver pipeline.StepObserver
	if observer != nil {
		searchObserver, stepObserver = observer, observer
	}
	for i, s := range strategies {
		strategies[i] = search.WithLogging(s, log.WithField("component", "search"), searchObserver)
	}

	budgets := pipeline.Budgets{
		TopK:            cfg.Search.TopK,
		MaxPassages:     cfg.Pipeline.MaxPassages,
		MaxContextChars: cfg.Pipeline.MaxContextChars,
	}
	return pipeline.New(log.WithField("component", "pipeline"), stepObserver,
		pipeline.NewAnalysisStep(budgets),
		pipeline.NewDocumentSearch(search.NewFusion(strategies...), filter, links, log).Step(),
		pipeline.NewContextStep(),
		pipeline.NewPromptStep(),
	)
}
