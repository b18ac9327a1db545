package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"errors"
	"fmt"
)

// UserInput is the request as received; it is the only stage present at entry.
type UserInput struct {
	Message     string
	SessionID   string
	UserEmail   string
	IsDeepThink bool
	Keywords    []string
	History     []schema.ChatTurn
}

// QueryType is the coarse intent of a message.
type QueryType string

const (
	QueryGreeting        QueryType = "GREETING"
	QueryHowTo           QueryType = "HOW_TO"
	QueryTroubleshooting QueryType = "TROUBLESHOOTING"
	QueryFactual         QueryType = "FACTUAL"
	QueryGeneral         QueryType = "GENERAL"
)

// Analysis is produced by the query analysis step.
type Analysis struct {
	QueryType QueryType
	Keywords  []string
	// Budgets for the later steps; doubled in deep-think mode.
	TopK            int
	MaxPassages     int
	MaxContextChars int
}

// RequiresDocuments reports whether retrieval is worth running.
func (a Analysis) RequiresDocuments() bool {
	return a.QueryType != QueryGreeting
}

// SearchStage holds the permission-filtered ranked results.
type SearchStage struct {
	Results []schema.SearchResult
}

// Passage is one numbered source handed to the prompt.
type Passage struct {
	Index  int
	Title  string
	Path   string
	Text   string
	Score  float64
	Result schema.SearchResult
}

// ContextStage holds the passages that fit the budget.
type ContextStage struct {
	Passages []Passage
	Chars    int
}

// PromptStage is the final prompt text.
type PromptStage struct {
	Text string
}

var errStageSet = errors.New("stage already set")

// ChatContext accumulates stages. Values are never mutated in place: every
// setter returns a new context, and each stage can be set only once.
type ChatContext struct {
	input    UserInput
	analysis *Analysis
	search   *SearchStage
	context  *ContextStage
	prompt   *PromptStage
	executed []string
}

// NewChatContext starts a context from the request.
func NewChatContext(input UserInput) ChatContext {
	input.Keywords = append([]string(nil), input.Keywords...)
	input.History = append([]schema.ChatTurn(nil), input.History...)
	return ChatContext{input: input}
}

func (c ChatContext) UserInput() UserInput { return c.input }

func (c ChatContext) Analysis() (Analysis, bool) {
	if c.analysis == nil {
		return Analysis{}, false
	}
	return *c.analysis, true
}

func (c ChatContext) Search() (SearchStage, bool) {
	if c.search == nil {
		return SearchStage{}, false
	}
	return *c.search, true
}

func (c ChatContext) Context() (ContextStage, bool) {
	if c.context == nil {
		return ContextStage{}, false
	}
	return *c.context, true
}

func (c ChatContext) Prompt() (PromptStage, bool) {
	if c.prompt == nil {
		return PromptStage{}, false
	}
	return *c.prompt, true
}

// ExecutedSteps returns the names of the steps that ran, in order.
func (c ChatContext) ExecutedSteps() []string {
	return append([]string(nil), c.executed...)
}

// WithAnalysis returns a copy with the analysis stage set.
func (c ChatContext) WithAnalysis(a Analysis) (ChatContext, error) {
	if c.analysis != nil {
		return c, schema.PipelineStepError("context.analysis", errStageSet)
	}
	a.Keywords = append([]string(nil), a.Keywords...)
	c.analysis = &a
	return c, nil
}

// WithSearch returns a copy with the search stage set.
func (c ChatContext) WithSearch(s SearchStage) (ChatContext, error) {
	if c.search != nil {
		return c, schema.PipelineStepError("context.search", errStageSet)
	}
	s.Results = append([]schema.SearchResult(nil), s.Results...)
	c.search = &s
	return c, nil
}

// WithContext returns a copy with the built passages set.
func (c ChatContext) WithContext(s ContextStage) (ChatContext, error) {
	if c.context != nil {
		return c, schema.PipelineStepError("context.passages", errStageSet)
	}
	s.Passages = append([]Passage(nil), s.Passages...)
	c.context = &s
	return c, nil
}

// withPrompt is reserved to the orchestrator's terminal step handling.
func (c ChatContext) withPrompt(text string) (ChatContext, error) {
	if c.prompt != nil {
		return c, schema.PipelineStepError("context.prompt", errStageSet)
	}
	c.prompt = &PromptStage{Text: text}
	return c, nil
}

func (c ChatContext) withExecuted(name string) ChatContext {
	executed := make([]string, len(c.executed), len(c.executed)+1)
	copy(executed, c.executed)
	c.executed = append(executed, name)
	return c
}

func (c ChatContext) stages() int {
	n := 1
	for _, set := range []bool{c.analysis != nil, c.search != nil, c.context != nil, c.prompt != nil} {
		if set {
			n++
		}
	}
	return n
}

// CompleteContext is what the terminal step receives: analysis is guaranteed,
// search and passages are present only when their steps ran.
type CompleteContext struct {
	UserInput UserInput
	Analysis  Analysis
	Search    *SearchStage
	Context   *ContextStage
}

// Complete checks the stages a terminal step relies on.
func (c ChatContext) Complete() (CompleteContext, error) {
	if c.analysis == nil {
		return CompleteContext{}, schema.PipelineStepError("context.complete", errors.New("analysis stage missing"))
	}
	if c.prompt != nil {
		return CompleteContext{}, schema.PipelineStepError("context.complete", fmt.Errorf("prompt: %w", errStageSet))
	}
	return CompleteContext{
		UserInput: c.input,
		Analysis:  *c.analysis,
		Search:    c.search,
		Context:   c.context,
	}, nil
}
