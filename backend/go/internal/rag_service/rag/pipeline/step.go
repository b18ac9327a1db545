package pipeline

import "context"

// StepKind separates ordinary steps from the single terminal step.
type StepKind int

const (
	Ordinary StepKind = iota
	Terminal
)

func (k StepKind) String() string {
	if k == Terminal {
		return "terminal"
	}
	return "ordinary"
}

// Step describes one pipeline stage.
// Ordinary steps set Run and add exactly one stage; the terminal step sets
// Finish and returns the prompt text.
type Step struct {
	Name string
	Kind StepKind
	// ShouldExecute decides whether the step runs; nil means always.
	ShouldExecute func(ChatContext) bool
	Run           func(ctx context.Context, c ChatContext) (ChatContext, error)
	Finish        func(ctx context.Context, c CompleteContext) (string, error)
}

// OrdinaryStep builds a skippable step. should may be nil.
func OrdinaryStep(name string, should func(ChatContext) bool, run func(context.Context, ChatContext) (ChatContext, error)) Step {
	return Step{Name: name, Kind: Ordinary, ShouldExecute: should, Run: run}
}

// TerminalStep builds the step that produces the prompt.
func TerminalStep(name string, finish func(context.Context, CompleteContext) (string, error)) Step {
	return Step{Name: name, Kind: Terminal, Finish: finish}
}

func (s Step) shouldExecute(c ChatContext) bool {
	return s.ShouldExecute == nil || s.ShouldExecute(c)
}
