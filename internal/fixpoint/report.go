package fixpoint

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/term"
)

// Report logs "Fixpoint SAFE!" or "Fixpoint UNSAFE!" with size, runtime, and
// reference-invariant coverage, matching FoundFixpoint::report. Set
// printInvariant to also log every proof term at Debug level.
func (r *Result) Report(logger *log.Entry, printInvariant bool) {
	fields := log.Fields{
		"size":     r.Size,
		"domains":  r.Domains,
		"coverage": r.Coverage,
		"elapsed":  r.Elapsed,
	}
	if r.Safe {
		logger.WithFields(fields).Info("Fixpoint SAFE!")
	} else {
		logger.WithFields(fields).Warn("Fixpoint UNSAFE!")
	}
	if printInvariant {
		for i, t := range r.Proof {
			logger.WithField("lemma", i).Debug(t.String())
		}
	}
}

// MinimizeSafety re-derives the minimized proof against an explicit safety
// property with the same greedy-drop pass each frame implements: each proof
// term is dropped in turn unless ImplicationCEX then finds a counterexample
// to safety, and the kept terms are returned.
func (r *Result) MinimizeSafety(ctx context.Context, m *module.Module, safety term.Term) ([]term.Term, error) {
	kept := make([]bool, len(r.Proof))
	for i := range kept {
		kept[i] = true
	}
	for i := range r.Proof {
		kept[i] = false
		_, failsWithout, err := m.ImplicationCEX(ctx, subsetProof(r.Proof, kept), safety)
		if err != nil {
			return nil, err
		}
		if failsWithout {
			kept[i] = true
		}
	}
	return subsetProof(r.Proof, kept), nil
}

func subsetProof(all []term.Term, kept []bool) []term.Term {
	out := make([]term.Term, 0, len(all))
	for i, t := range all {
		if kept[i] {
			out = append(out, t)
		}
	}
	return out
}

// invariantCover reports the fraction of reference-invariant conjuncts that
// are syntactically present among the discovered proof's lemmas — a coarse
// but solver-free coverage signal for reporting only, not for correctness.
func invariantCover(reference []term.Term, proof []term.Term) float64 {
	if len(reference) == 0 {
		return 1
	}
	have := make(map[string]struct{}, len(proof))
	for _, t := range proof {
		have[t.String()] = struct{}{}
	}
	covered := 0
	for _, ref := range reference {
		if _, ok := have[ref.String()]; ok {
			covered++
		}
	}
	return float64(covered) / float64(len(reference))
}
