package smt

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
	"github.com/operator-framework/qalpha/internal/term"
)

// Interpretation is a dense row-major table over the cartesian product of a
// relation's argument universes, the only result sort this module supports
// (uninterpreted finite sorts plus booleans).
type Interpretation struct {
	Shape  []int
	Values []bool
}

// Index looks up the value at a given argument-index tuple.
func (in Interpretation) Index(args ...int) bool {
	idx := 0
	for i, a := range args {
		idx = idx*in.Shape[i] + a
	}
	return in.Values[idx]
}

// FOModel gives a cardinality to each universe and an interpretation
// (including primed copies) to each symbol, exactly as extracted from one
// get-model response covering every declared state.
type FOModel struct {
	Universe map[string]int
	Interp   map[string]Interpretation
}

// Signature declares every sort and relation of sig to proc, once per
// immutable relation and once per n_primes in [0, nStates) for each
// mutable relation, matching send_signature.
func (p *Proc) Signature(sig *term.Signature, nStates int) {
	for _, s := range sig.Sorts {
		p.sendNoReply(sexp.App("declare-sort", []sexp.Sexp{sexp.Atom(s.Name), sexp.Atom("0")}))
	}
	for _, r := range sig.Relations {
		argSorts := make([]sexp.Sexp, len(r.Args))
		for i, a := range r.Args {
			argSorts[i] = sortSexp(a)
		}
		if !r.Mutable {
			p.sendNoReply(sexp.App("declare-fun", []sexp.Sexp{
				sexp.Atom(r.Name), sexp.L(argSorts), sortSexp(r.Result),
			}))
			continue
		}
		for n := 0; n < nStates; n++ {
			name := r.Name + strings.Repeat("'", n)
			p.sendNoReply(sexp.App("declare-fun", []sexp.Sexp{
				sexp.Atom(name), sexp.L(argSorts), sortSexp(r.Result),
			}))
		}
	}
}

// GetModel extracts the FOModel after a Sat response to check-sat or
// check-sat-assuming, via the backend-specific parser (get-model's reply
// format is not part of SMT-LIB proper, so each backend parses its own
// shape).
func (p *Proc) GetModel(sig *term.Signature, nStates int, parse ModelParser) (FOModel, error) {
	reply, err := p.sendWithReply(sexp.App("get-model", nil))
	if err != nil {
		return FOModel{}, err
	}
	return parse(sig, nStates, p.indicators, reply)
}

// ModelParser turns one get-model response into a uniform FOModel. Each
// backend (z3, cvc5, cvc4) has its own reply shape.
type ModelParser func(sig *term.Signature, nStates int, indicators map[string]sexp.Atom, model sexp.Sexp) (FOModel, error)

// Trace slices an FOModel into one per-state Model snapshot, 0 <= n <
// nStates, pulling the unprimed copy of immutable relations and the
// n-times-primed copy of mutable ones.
func (m FOModel) Trace(sig *term.Signature, nStates int) ([]Model, error) {
	universe := make([]int, len(sig.Sorts))
	for i, s := range sig.Sorts {
		card, ok := m.Universe[s.Name]
		if !ok {
			return nil, fmt.Errorf("smt: unknown sort %q in model", s.Name)
		}
		universe[i] = card
	}
	states := make([]Model, 0, nStates)
	for n := 0; n < nStates; n++ {
		interp := make(map[string]Interpretation, len(sig.Relations))
		for _, r := range sig.Relations {
			primes := 0
			if r.Mutable {
				primes = n
			}
			name := r.Name + strings.Repeat("'", primes)
			in, ok := m.Interp[name]
			if !ok {
				return nil, fmt.Errorf("smt: model missing interpretation for %q", name)
			}
			interp[r.Name] = in
		}
		states = append(states, Model{Signature: sig, Universe: universe, Interp: interp})
	}
	return states, nil
}

// Model is one state's worth of interpretation, keyed by unprimed relation
// name regardless of which primed copy it was extracted from.
type Model struct {
	Signature *term.Signature
	Universe  []int
	Interp    map[string]Interpretation
}

// GetMinimalModel performs greedy universe-size minimization: find the
// smallest k such that every sort can be simultaneously bounded by k (an
// ascending linear search), then minimize each sort in signature order
// below k (a descending linear search per sort), each step adding one more
// indicator-guarded check-sat-assuming, and finally extracts the model
// with all discovered bounds in force. Backends that already return
// minimal models (returnsMinimal) short-circuit straight to GetModel.
func (p *Proc) GetMinimalModel(sig *term.Signature, nStates int, returnsMinimal bool, parse ModelParser) (FOModel, error) {
	if returnsMinimal {
		return p.GetModel(sig, nStates, parse)
	}

	assumptions := make(map[string]bool, len(p.lastAssumption))
	for k, v := range p.lastAssumption {
		assumptions[k] = v
	}

	maxCard, err := p.getMinMaxCard(sig, assumptions)
	if err != nil {
		return FOModel{}, err
	}
	for _, s := range sig.Sorts {
		if err := p.minimizeCard(s.Name, maxCard, assumptions); err != nil {
			return FOModel{}, err
		}
	}
	result, err := p.CheckSat(assumptions)
	if err != nil {
		return FOModel{}, err
	}
	if result.Kind != Sat {
		return FOModel{}, errors.Errorf("smt: minimized bounds are not satisfiable: %s", result.Reason)
	}
	return p.GetModel(sig, nStates, parse)
}

// setUniverseCard asserts, guarded by a fresh indicator, that sort univ has
// cardinality at most card, and returns the indicator's name.
func (p *Proc) setUniverseCard(univ string, card int) string {
	indName := fmt.Sprintf("%s_card_%d", univ, card)
	ind := p.Indicator(indName)

	xs := make([]sexp.Sexp, card)
	eqs := make([]sexp.Sexp, card)
	for i := 0; i < card; i++ {
		name := fmt.Sprintf("x%d", i)
		xs[i] = sexp.List{sexp.Atom(name), sexp.Atom(univ)}
		eqs[i] = sexp.App("=", []sexp.Sexp{sexp.Atom("x"), sexp.Atom(name)})
	}
	body := sexp.App("forall", []sexp.Sexp{
		sexp.L([]sexp.Sexp{sexp.List{sexp.Atom("x"), sexp.Atom(univ)}}),
		sexp.App("or", eqs),
	})
	cardTerm := sexp.App("exists", []sexp.Sexp{sexp.L(xs), body})
	p.Assert(sexp.App("=>", []sexp.Sexp{ind, cardTerm}))
	return indName
}

func (p *Proc) checkSatAssumingNames(assumptions map[string]bool) (SatResult, error) {
	return p.CheckSat(assumptions)
}

// minimizeCard finds the minimum cardinality for univ below maxCard via a
// descending linear search, adding the discovered bound's indicator to
// assumptions.
func (p *Proc) minimizeCard(univ string, maxCard int, assumptions map[string]bool) error {
	var prevInd string
	for card := maxCard - 1; card >= 1; card-- {
		ind := p.setUniverseCard(univ, card)
		trial := cloneAssumptions(assumptions)
		trial[ind] = true
		result, err := p.checkSatAssumingNames(trial)
		if err != nil {
			return err
		}
		switch result.Kind {
		case Sat:
			prevInd = ind
		case Unsat:
			if prevInd != "" {
				assumptions[prevInd] = true
			}
			return nil
		case Unknown:
			return errors.Errorf("smt: could not minimize cardinality of %s: %s", univ, result.Reason)
		}
	}
	if prevInd != "" {
		assumptions[prevInd] = true
	}
	return nil
}

// isValidMaxCard tries bounding every sort at card simultaneously.
func (p *Proc) isValidMaxCard(sig *term.Signature, card int, assumptions map[string]bool) (bool, error) {
	trial := cloneAssumptions(assumptions)
	newInds := make([]string, 0, len(sig.Sorts))
	for _, s := range sig.Sorts {
		ind := p.setUniverseCard(s.Name, card)
		trial[ind] = true
		newInds = append(newInds, ind)
	}
	result, err := p.checkSatAssumingNames(trial)
	if err != nil {
		return false, err
	}
	switch result.Kind {
	case Sat:
		for _, ind := range newInds {
			assumptions[ind] = true
		}
		return true, nil
	case Unsat:
		return false, nil
	default:
		return false, errors.Errorf("smt: could not minimize: %s", result.Reason)
	}
}

// getMinMaxCard ascending-searches 1..99 for the smallest cardinality
// simultaneously satisfiable across every sort.
func (p *Proc) getMinMaxCard(sig *term.Signature, assumptions map[string]bool) (int, error) {
	if len(sig.Sorts) == 0 {
		return 0, nil
	}
	for card := 1; card < 100; card++ {
		ok, err := p.isValidMaxCard(sig, card, assumptions)
		if err != nil {
			return 0, err
		}
		if ok {
			return card, nil
		}
	}
	return 0, errors.New("smt: max cardinality search exceeded 100 without finding a satisfiable bound")
}

func cloneAssumptions(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
