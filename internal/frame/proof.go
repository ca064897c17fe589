package frame

import (
	"context"

	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/term"
)

// Proof renders every current frontier lemma as a term — the discovered
// invariant conjunction.
func (f *Frame) Proof() []term.Term {
	frontier := f.Frontier()
	out := make([]term.Term, len(frontier))
	for i, l := range frontier {
		out[i] = l.ToTerm(f.Restricted)
	}
	return out
}

// MinimizedProof greedily drops lemmas from the proof whose removal still
// preserves implication of safety under the remaining conjunction,
// iterating once over the lemma list in frontier order.
func (f *Frame) MinimizedProof(ctx context.Context, safety term.Term) ([]term.Term, error) {
	lemmas := f.Proof()
	kept := make([]bool, len(lemmas))
	for i := range kept {
		kept[i] = true
	}
	for i := range lemmas {
		kept[i] = false
		_, failsWithout, err := f.Module.ImplicationCEX(ctx, subsetTerms(lemmas, kept), safety)
		if err != nil {
			return nil, err
		}
		if failsWithout {
			kept[i] = true
		}
	}
	return subsetTerms(lemmas, kept), nil
}

func subsetTerms(all []term.Term, kept []bool) []term.Term {
	out := make([]term.Term, 0, len(all))
	for i, t := range all {
		if kept[i] {
			out = append(out, t)
		}
	}
	return out
}

// ExtendTrace samples reachable states out to the configured extend depth,
// starting from start, weakening against any sample that falsifies a
// current weakest-set candidate. Only states that actually falsified
// something are carried into the next level, per spec.md §4.5's "only
// newly falsifying states are enqueued for further extension".
func (f *Frame) ExtendTrace(ctx context.Context, start *module.Model) error {
	if f.extend == nil || start == nil {
		return nil
	}
	sim := f.SimModule
	if sim == nil {
		sim = f.Module
	}
	level := []*module.Model{start}
	for d := 0; d < f.extend.Depth && len(level) > 0; d++ {
		var next []*module.Model
		for _, s := range level {
			succs, err := sim.SimulateFrom(ctx, s, f.extend.Width, 1)
			if err != nil {
				return err
			}
			for _, succ := range succs {
				falsified, err := f.anyFalsified(succ)
				if err != nil {
					return err
				}
				if !falsified {
					continue
				}
				if err := f.Weaken(succ); err != nil {
					return err
				}
				next = append(next, succ)
			}
		}
		level = next
	}
	return nil
}

func (f *Frame) anyFalsified(model *module.Model) (bool, error) {
	for _, l := range f.weakest.Snapshot() {
		ok, err := module.Evaluate(l.ToTerm(f.Restricted), model, module.Env{})
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
	return false, nil
}
