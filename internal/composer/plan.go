package composer

import (
	"fmt"

	"github.com/templui/piggybank/internal/apperr"
	"github.com/templui/piggybank/internal/ledger"
	"github.com/templui/piggybank/internal/refresh"
)

// Handle names a value produced by one step and consumed by a later step of the
// same submission.
type Handle string

type Step struct {
	Name    string         `json:"name"`
	Command ledger.Command `json:"command"`
}

// Consumes lists the handles the step reads.
func (s Step) Consumes() []Handle {
	var out []Handle
	for _, arg := range s.Command.Arguments {
		if arg.Kind == ledger.ArgResult {
			out = append(out, Handle(arg.Handle))
		}
	}
	return out
}

// Produces returns the step's output handle, empty when it has none.
func (s Step) Produces() Handle {
	return Handle(s.Command.Result)
}

// Plan is the ordered step list of one atomic submission.
type Plan struct {
	Kind  refresh.OperationKind `json:"operation"`
	Steps []Step                `json:"steps"`
}

func NewPlan(kind refresh.OperationKind) *Plan {
	return &Plan{Kind: kind}
}

func (p *Plan) Add(name string, cmd ledger.Command) *Plan {
	p.Steps = append(p.Steps, Step{Name: name, Command: cmd})
	return p
}

func (p *Plan) StepNames() []string {
	names := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		names[i] = s.Name
	}
	return names
}

// Validate checks the data flow between steps: every consumed handle was produced
// by an earlier step, no handle is produced twice, and every produced handle is
// consumed before the submission ends.
func (p *Plan) Validate() error {
	if len(p.Steps) == 0 {
		return compositionError(p.Kind, "plan has no steps")
	}

	producedAt := map[Handle]int{}
	consumed := map[Handle]bool{}

	for i, step := range p.Steps {
		for _, h := range step.Consumes() {
			if _, ok := producedAt[h]; !ok {
				return compositionError(p.Kind, fmt.Sprintf("step %d (%s) consumes %q before it is produced", i, step.Name, h))
			}
			consumed[h] = true
		}

		h := step.Produces()
		if h == "" {
			continue
		}
		if prev, ok := producedAt[h]; ok {
			return compositionError(p.Kind, fmt.Sprintf("step %d (%s) produces %q already produced by step %d", i, step.Name, h, prev))
		}
		producedAt[h] = i
	}

	for h, i := range producedAt {
		if !consumed[h] {
			return compositionError(p.Kind, fmt.Sprintf("value %q produced by step %d (%s) is never consumed", h, i, p.Steps[i].Name))
		}
	}

	return nil
}

func (p *Plan) Submission(sender string) ledger.Submission {
	cmds := make([]ledger.Command, len(p.Steps))
	for i, s := range p.Steps {
		cmds[i] = s.Command
	}
	return ledger.Submission{Sender: sender, Commands: cmds}
}

func compositionError(kind refresh.OperationKind, msg string) error {
	return apperr.New(apperr.KindInternal, "invalid composition").
		WithDetail("operation", string(kind)).
		WithDetail("reason", msg)
}
