package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"context"
	"strings"
	"text/template"
)

// StepPrompt is the name of the terminal prompt step.
const StepPrompt = "prompt_generation"

// guidance tells the model how to shape the answer for each query type.
var guidance = map[QueryType]string{
	QueryGreeting:        "The user is greeting you. Reply briefly and offer help with questions about the knowledge base.",
	QueryHowTo:           "The user wants to know how to do something. Answer with clear numbered steps and mention any prerequisites or approvals.",
	QueryTroubleshooting: "The user is troubleshooting a problem. Identify the likely cause first, then give the fix and how to verify it.",
	QueryFactual:         "The user is asking for a fact. Answer directly in one or two sentences before any detail.",
	QueryGeneral:         "Answer the question helpfully and concisely.",
}

// Guidance returns the answer guidance for a query type.
func Guidance(t QueryType) string {
	if g, ok := guidance[t]; ok {
		return g
	}
	return guidance[QueryGeneral]
}

var promptTemplate = template.Must(template.New("prompt").Parse(
	`You are Jarvis, an assistant that answers questions using the company knowledge base.
Query type: {{.QueryType}}
{{.Guidance}}
{{- if .History}}

Conversation so far:
{{- range .History}}
User: {{.Question}}
Assistant: {{.Answer}}
{{- end}}
{{- end}}
{{- if .Passages}}

Sources:
{{- range .Passages}}
[{{.Index}}] {{.Title}}{{if .Path}} ({{.Path}}){{end}}
{{.Text}}
{{- end}}

Cite sources by their number. If the sources do not contain the answer, say that you do not know.
{{- else if .Searched}}

No matching documents were found in the knowledge base. Say so instead of guessing.
{{- end}}

Question: {{.Question}}`))

type promptData struct {
	QueryType QueryType
	Guidance  string
	History   []schema.ChatTurn
	Passages  []Passage
	Searched  bool
	Question  string
}

// BuildPrompt renders the final prompt from a complete context.
func BuildPrompt(c CompleteContext) (string, error) {
	data := promptData{
		QueryType: c.Analysis.QueryType,
		Guidance:  Guidance(c.Analysis.QueryType),
		History:   c.UserInput.History,
		Searched:  c.Search != nil,
		Question:  strings.TrimSpace(c.UserInput.Message),
	}
	if c.Context != nil {
		data.Passages = c.Context.Passages
	}
	var sb strings.Builder
	if err := promptTemplate.Execute(&sb, data); err != nil {
		return "", schema.PipelineStepError(StepPrompt, err)
	}
	return sb.String(), nil
}

// NewPromptStep builds the terminal step.
func NewPromptStep() Step {
	return TerminalStep(StepPrompt, func(_ context.Context, c CompleteContext) (string, error) {
		return BuildPrompt(c)
	})
}
