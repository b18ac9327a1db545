package pipeline

import (
	"Jarvis_RAG/backend/go/internal/rag_service/rag/schema"
	"Jarvis_RAG/backend/go/pkg/logger"
	"context"
	"errors"
	"fmt"
	"time"
)

// State is the orchestrator state of one execution.
type State int

const (
	NotStarted State = iota
	Running
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Running:
		return "Running"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Step outcomes reported to a StepObserver.
const (
	OutcomeExecuted = "executed"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// StepObserver records per-step outcomes.
type StepObserver interface {
	ObserveStep(step, outcome string, elapsed time.Duration)
}

// Execution is the trace of one pipeline run.
type Execution struct {
	State State
	// Step is the index of the running or failed step.
	Step    int
	Context ChatContext
}

func (e Execution) String() string {
	if e.State == Running || e.State == Failed {
		return fmt.Sprintf("%s(%d)", e.State, e.Step)
	}
	return e.State.String()
}

// Pipeline runs a fixed, validated list of steps. It holds no per-request
// state and can be shared by concurrent requests.
type Pipeline struct {
	steps    []Step
	log      *logger.Logger
	observer StepObserver
}

// New validates the step list: unique non-empty names, exactly one terminal
// step and it must be last. observer may be nil.
func New(log *logger.Logger, observer StepObserver, steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.New("pipeline needs at least one step")
	}
	names := make(map[string]bool, len(steps))
	for i, s := range steps {
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if names[s.Name] {
			return nil, fmt.Errorf("duplicate step name %q", s.Name)
		}
		names[s.Name] = true

		last := i == len(steps)-1
		switch s.Kind {
		case Terminal:
			if !last {
				return nil, fmt.Errorf("terminal step %q must be last", s.Name)
			}
			if s.Finish == nil {
				return nil, fmt.Errorf("terminal step %q has no Finish", s.Name)
			}
		case Ordinary:
			if last {
				return nil, fmt.Errorf("last step %q must be terminal", s.Name)
			}
			if s.Run == nil {
				return nil, fmt.Errorf("step %q has no Run", s.Name)
			}
		default:
			return nil, fmt.Errorf("step %q has unknown kind %d", s.Name, s.Kind)
		}
	}
	return &Pipeline{steps: append([]Step(nil), steps...), log: log, observer: observer}, nil
}

// Steps returns the configured step names in order.
func (p *Pipeline) Steps() []string {
	out := make([]string, len(p.steps))
	for i, s := range p.steps {
		out[i] = s.Name
	}
	return out
}

// Execute runs every step in order. A failing step halts the run; nothing is retried.
func (p *Pipeline) Execute(ctx context.Context, input UserInput) (Execution, error) {
	exec := Execution{State: NotStarted, Context: NewChatContext(input)}
	for i, step := range p.steps {
		p.transition(&exec, Running, i)
		log := p.log.WithField("step", step.Name)

		if step.Kind == Ordinary && !step.shouldExecute(exec.Context) {
			log.Debug("step skipped")
			p.observe(step.Name, OutcomeSkipped, 0)
			continue
		}

		start := time.Now()
		next, err := p.runStep(ctx, step, exec.Context)
		elapsed := time.Since(start)
		if err != nil {
			err = schema.Wrap(kindOf(err), "pipeline."+step.Name, err)
			log.WithError(err).WithField("elapsed_ms", elapsed.Milliseconds()).Error("step failed")
			p.observe(step.Name, OutcomeFailed, elapsed)
			p.transition(&exec, Failed, i)
			return exec, err
		}
		exec.Context = next.withExecuted(step.Name)
		log.WithField("elapsed_ms", elapsed.Milliseconds()).Info("step executed")
		p.observe(step.Name, OutcomeExecuted, elapsed)
	}
	p.transition(&exec, Completed, len(p.steps))
	return exec, nil
}

func (p *Pipeline) runStep(ctx context.Context, step Step, cur ChatContext) (ChatContext, error) {
	if err := ctx.Err(); err != nil {
		return cur, err
	}
	if step.Kind == Terminal {
		complete, err := cur.Complete()
		if err != nil {
			return cur, err
		}
		text, err := step.Finish(ctx, complete)
		if err != nil {
			return cur, err
		}
		return cur.withPrompt(text)
	}

	next, err := step.Run(ctx, cur)
	if err != nil {
		return cur, err
	}
	if next.prompt != nil {
		return cur, schema.PipelineStepError(step.Name, errors.New("only the terminal step may set the prompt"))
	}
	if next.stages() != cur.stages()+1 {
		return cur, schema.PipelineStepError(step.Name,
			fmt.Errorf("step must add exactly one stage, context went from %d to %d", cur.stages(), next.stages()))
	}
	if len(next.executed) != len(cur.executed) {
		return cur, schema.PipelineStepError(step.Name, errors.New("step rewrote the executed step log"))
	}
	return next, nil
}

// kindOf keeps the kind of a typed error; anything else becomes a step error.
func kindOf(err error) schema.ErrorKind {
	var typed *schema.Error
	if errors.As(err, &typed) {
		return typed.Kind
	}
	return schema.KindPipelineStep
}

func (p *Pipeline) transition(exec *Execution, to State, step int) {
	from := exec.String()
	exec.State = to
	exec.Step = step
	p.log.Debug(fmt.Sprintf("pipeline %s -> %s", from, exec.String()))
}

func (p *Pipeline) observe(step, outcome string, elapsed time.Duration) {
	if p.observer != nil {
		p.observer.ObserveStep(step, outcome, elapsed)
	}
}
