package export

import (
	"context"
	"fmt"

	"github.com/japaniel/lexigraph/pkg/graph"
	"github.com/japaniel/lexigraph/pkg/store"
)

// State is the position of one sense in its write sequence.
type State int

const (
	Normalized State = iota
	LemmaSenseWritten
	OptionsWritten
	LinksWritten
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Normalized:
		return "normalized"
	case LemmaSenseWritten:
		return "lemma_sense_written"
	case OptionsWritten:
		return "options_written"
	case LinksWritten:
		return "links_written"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// UnitError is the failure of a single committed unit.
type UnitError struct {
	SenseID string
	Op      graph.Op
	RelType string
	Target  string
	Err     error
}

func (e *UnitError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s -[%s]-> %s: %v", e.Op, e.SenseID, e.RelType, e.Target, e.Err)
	}
	if e.RelType != "" {
		return fmt.Sprintf("%s %s [%s]: %v", e.Op, e.SenseID, e.RelType, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.SenseID, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

func unitError(m graph.Mutation, err error) *UnitError {
	ue := &UnitError{SenseID: m.SenseID, Op: m.Op, Err: err}
	switch m.Op {
	case graph.OpLemmaSense:
		ue.Target = m.Lemma
	case graph.OpSenseOption:
		ue.RelType = m.RelType
		ue.Target = m.Lemma
	case graph.OpSenseLink:
		ue.RelType = m.RelType
		ue.Target = m.Target.Name
	}
	return ue
}

// Result is the outcome of one sense's write sequence.
type Result struct {
	SenseID string
	State   State
	// FailedStep is the state the sequence was about to reach when the first unit failed.
	FailedStep State
	Attempts   int
	Errors     []*UnitError
}

// OK reports whether every unit committed.
func (r Result) OK() bool { return r.State == Done }

// Sequencer writes a plan's units in order: Lemma->Sense, then options, then links.
type Sequencer struct {
	Store store.Store
	// OnUnit, when set, is called after each unit attempt.
	OnUnit func(m graph.Mutation, err error)
}

// Run applies the plan. A failed Lemma->Sense unit ends the sequence; a failed
// option or link unit is recorded and the remaining units still run. Committed
// units are never undone.
func (s *Sequencer) Run(ctx context.Context, plan graph.Plan) Result {
	res := Result{SenseID: plan.SenseID, State: Normalized}

	fail := func(step State, m graph.Mutation, err error) {
		if res.State != Failed {
			res.FailedStep = step
		}
		res.State = Failed
		res.Errors = append(res.Errors, unitError(m, err))
	}
	apply := func(m graph.Mutation) error {
		res.Attempts++
		err := s.Store.Apply(ctx, m)
		if s.OnUnit != nil {
			s.OnUnit(m, err)
		}
		return err
	}
	advance := func(to State) {
		if res.State != Failed {
			res.State = to
		}
	}

	if err := apply(plan.LemmaSense); err != nil {
		fail(LemmaSenseWritten, plan.LemmaSense, err)
		return res
	}
	advance(LemmaSenseWritten)

	for _, m := range plan.Options {
		if err := apply(m); err != nil {
			fail(OptionsWritten, m, err)
		}
	}
	advance(OptionsWritten)

	for _, m := range plan.Links {
		if err := apply(m); err != nil {
			fail(LinksWritten, m, err)
		}
	}
	advance(LinksWritten)
	advance(Done)
	return res
}
