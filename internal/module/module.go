// Package module wraps a typed transition-system module with the
// counterexample queries the induction frame needs: init-CEX, trans-CEX,
// implication-CEX, and bounded simulation, each built on top of
// internal/smt's subprocess driver and run through a smt.Solver so the
// caller decides whether a single backend, a timeout fallback chain, or a
// parallel race of backends answers the query.
//
// Grounded on the reference implementation's solver::imp::Solver<B> (the
// declare/assert/check-sat plumbing) together with inference::fixpoint's
// use of fo.init_cex / fo.trans_cex / fo.implication_cex / fo.simulate_from.
package module

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/smt"
	"github.com/operator-framework/qalpha/internal/term"
)

// Module wraps a read-only typed module (axioms, init, transitions,
// safety) and exposes the CEX queries the induction frame drives. Every
// query is discharged through a smt.Solver, so the same Module can be
// backed by a smt.Single, smt.Fallback, or smt.Parallel composition
// interchangeably.
type Module struct {
	Typed  *term.TypedModule
	Solver smt.Solver
	Log    *log.Entry
	Tee    string
}

// New builds a Module over a typed system description and a solver.
func New(typed *term.TypedModule, solver smt.Solver, logger *log.Entry, teeDir string) *Module {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Module{Typed: typed, Solver: solver, Log: logger, Tee: teeDir}
}

// Model is a single-state first-order model, re-exported from internal/smt
// for callers that only need one state (init-CEX, implication-CEX).
type Model = smt.Model

// InitCEX asks whether axioms ∧ init ∧ ¬candidate is satisfiable; on Sat it
// returns the minimized witness model.
func (m *Module) InitCEX(ctx context.Context, candidate term.Term) (*Model, error) {
	q := func(ctx context.Context, proc *smt.Proc) (smt.SatResult, any, error) {
		for _, a := range m.Typed.Axioms {
			proc.Assert(smt.TermSexp(a))
		}
		for _, i := range m.Typed.Init {
			proc.Assert(smt.TermSexp(i))
		}
		proc.Assert(smt.TermSexp(term.Not{X: candidate}))

		result, err := proc.CheckSat(nil)
		if err != nil || result.Kind != smt.Sat {
			return result, nil, err
		}
		backend := proc.Backend()
		fo, err := proc.GetMinimalModel(m.Typed.Signature, 1, backend.ReturnsMinimal(), backend.ParseModel)
		if err != nil {
			return smt.SatResult{}, nil, err
		}
		states, err := fo.Trace(m.Typed.Signature, 1)
		if err != nil {
			return smt.SatResult{}, nil, err
		}
		return result, &states[0], nil
	}

	result, payload, err := m.Solver.Run(ctx, m.Log, m.Typed.Signature, 1, m.Tee, q)
	if err != nil {
		return nil, err
	}
	switch result.Kind {
	case smt.Unsat:
		return nil, nil
	case smt.Unknown:
		return nil, &UnknownError{Reason: result.Reason}
	}
	model, _ := payload.(*Model)
	return model, nil
}

// TransCEXOptions controls the extraction strategy used by TransCEX.
type TransCEXOptions struct {
	Minimal bool
	Gradual bool
}

// TransCEXResult is the sum of outcomes TransCEX can produce.
type TransCEXResult struct {
	Kind      TransCEXKind
	Pre, Post *Model
	CoreIdx   []int // indices into the pre_terms slice forming the unsat core
	Reason    string
}

type TransCEXKind int

const (
	CTI TransCEXKind = iota
	UnsatCoreResult
	Cancelled
	UnknownResult
)

// transPayload carries TransCEX's query result across the smt.Solver
// boundary, since a Query returns only an untyped payload.
type transPayload struct {
	pre, post *Model
	coreIdx   []int
}

// TransCEX asks whether axioms ∧ (∧ pre) ∧ transitions ∧ ¬post is
// satisfiable, with each pre[i] guarded by an indicator so that an Unsat
// result's core can be translated back to indices into pre. ctx is polled
// before the query starts and watched for the duration of the query; an
// in-flight subprocess is killed by pid if ctx is cancelled.
func (m *Module) TransCEX(ctx context.Context, pre []term.Term, post term.Term, opts TransCEXOptions) (TransCEXResult, error) {
	if ctx.Err() != nil {
		return TransCEXResult{Kind: Cancelled}, nil
	}

	names := make([]string, len(pre))
	for i := range pre {
		names[i] = indicatorName(i)
	}

	q := func(ctx context.Context, proc *smt.Proc) (smt.SatResult, any, error) {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-ctx.Done():
				proc.Pid().Kill()
			case <-stop:
			}
		}()

		for _, a := range m.Typed.Axioms {
			proc.Assert(smt.TermSexp(a))
			proc.Assert(smt.TermSexp(term.PrimeTerm(a, 1)))
		}
		for _, t := range m.Typed.Transitions {
			proc.Assert(smt.TermSexp(t))
		}
		proc.Assert(smt.TermSexp(term.Not{X: term.PrimeTerm(post, 1)}))

		assumptions := make(map[string]bool, len(pre))
		for i, p := range pre {
			ind := proc.Indicator(names[i])
			proc.Assert(smt.TermSexp(term.Implies{L: term.Ident{Name: string(ind)}, R: p}))
			assumptions[names[i]] = true
		}

		result, err := proc.CheckSat(assumptions)
		if err != nil {
			if errors.Is(err, smt.ErrKilled) {
				return smt.SatResult{Kind: smt.Unknown, Reason: "cancelled"}, transPayload{}, nil
			}
			return smt.SatResult{}, nil, err
		}

		switch result.Kind {
		case smt.Sat:
			backend := proc.Backend()
			var fo smt.FOModel
			if opts.Minimal {
				fo, err = proc.GetMinimalModel(m.Typed.Signature, 2, backend.ReturnsMinimal(), backend.ParseModel)
			} else {
				fo, err = proc.GetModel(m.Typed.Signature, 2, backend.ParseModel)
			}
			if err != nil {
				return smt.SatResult{}, nil, err
			}
			states, err := fo.Trace(m.Typed.Signature, 2)
			if err != nil {
				return smt.SatResult{}, nil, err
			}
			return result, transPayload{pre: &states[0], post: &states[1]}, nil
		case smt.Unsat:
			core, err := proc.GetUnsatCore()
			if err != nil {
				return smt.SatResult{}, nil, err
			}
			byName := make(map[string]int, len(names))
			for i, n := range names {
				byName[n] = i
			}
			var idx []int
			for name, positive := range core {
				if i, ok := byName[name]; ok && positive {
					idx = append(idx, i)
				}
			}
			sort.Ints(idx)
			return result, transPayload{coreIdx: idx}, nil
		default:
			return result, transPayload{}, nil
		}
	}

	result, payload, err := m.Solver.Run(ctx, m.Log, m.Typed.Signature, 2, m.Tee, q)
	if err != nil {
		if errors.Is(err, smt.ErrKilled) {
			return TransCEXResult{Kind: Cancelled}, nil
		}
		return TransCEXResult{Kind: UnknownResult, Reason: err.Error()}, nil
	}
	p, _ := payload.(transPayload)
	switch result.Kind {
	case smt.Sat:
		return TransCEXResult{Kind: CTI, Pre: p.pre, Post: p.post}, nil
	case smt.Unsat:
		return TransCEXResult{Kind: UnsatCoreResult, CoreIdx: p.coreIdx}, nil
	default:
		if result.Reason == "cancelled" {
			return TransCEXResult{Kind: Cancelled}, nil
		}
		return TransCEXResult{Kind: UnknownResult, Reason: result.Reason}, nil
	}
}

// ImplicationCEX asks whether hyps imply concl in a single state; a Sat
// result gives a counterexample model, Unsat means no counterexample.
func (m *Module) ImplicationCEX(ctx context.Context, hyps []term.Term, concl term.Term) (*Model, bool, error) {
	q := func(ctx context.Context, proc *smt.Proc) (smt.SatResult, any, error) {
		for _, a := range m.Typed.Axioms {
			proc.Assert(smt.TermSexp(a))
		}
		for _, h := range hyps {
			proc.Assert(smt.TermSexp(h))
		}
		proc.Assert(smt.TermSexp(term.Not{X: concl}))

		result, err := proc.CheckSat(nil)
		if err != nil || result.Kind != smt.Sat {
			return result, nil, err
		}
		backend := proc.Backend()
		fo, err := proc.GetMinimalModel(m.Typed.Signature, 1, backend.ReturnsMinimal(), backend.ParseModel)
		if err != nil {
			return smt.SatResult{}, nil, err
		}
		states, err := fo.Trace(m.Typed.Signature, 1)
		if err != nil {
			return smt.SatResult{}, nil, err
		}
		return result, &states[0], nil
	}

	result, payload, err := m.Solver.Run(ctx, m.Log, m.Typed.Signature, 1, m.Tee, q)
	if err != nil {
		return nil, false, err
	}
	switch result.Kind {
	case smt.Unsat:
		return nil, false, nil
	case smt.Unknown:
		return nil, false, &UnknownError{Reason: result.Reason}
	}
	model, _ := payload.(*Model)
	return model, true, nil
}

// SimulateFrom samples up to width distinct one-step successor models of a
// concrete pre-state, by repeated check-sat with blocking clauses ruling
// out previously-seen successors. depth only gates sampling (depth <= 0
// returns nothing); successors of successors are not explored by this call.
func (m *Module) SimulateFrom(ctx context.Context, state *Model, width, depth int) ([]*Model, error) {
	if depth <= 0 || width <= 0 {
		return nil, nil
	}

	q := func(ctx context.Context, proc *smt.Proc) (smt.SatResult, any, error) {
		for _, a := range m.Typed.Axioms {
			proc.Assert(smt.TermSexp(a))
			proc.Assert(smt.TermSexp(term.PrimeTerm(a, 1)))
		}
		for _, t := range m.Typed.Transitions {
			proc.Assert(smt.TermSexp(t))
		}
		proc.Assert(smt.TermSexp(stateConstraint(state)))

		var out []*Model
		var blocking []term.Term
		var last smt.SatResult
		for i := 0; i < width; i++ {
			if ctx.Err() != nil {
				break
			}
			if len(blocking) > 0 {
				// Exclude every previously-seen successor: the new sample
				// must match none of the accumulated patterns, not merely
				// fail to match all of them simultaneously.
				proc.Assert(smt.TermSexp(term.Not{X: term.Or{Xs: blocking}}))
			}
			result, err := proc.CheckSat(nil)
			if err != nil {
				return smt.SatResult{}, out, err
			}
			last = result
			if result.Kind != smt.Sat {
				break
			}
			fo, err := proc.GetModel(m.Typed.Signature, 2, proc.Backend().ParseModel)
			if err != nil {
				return smt.SatResult{}, out, err
			}
			states, err := fo.Trace(m.Typed.Signature, 2)
			if err != nil {
				return smt.SatResult{}, out, err
			}
			post := states[1]
			out = append(out, &post)
			blocking = append(blocking, primedStateConstraint(&post))
		}
		if len(out) == 0 {
			return last, out, nil
		}
		return smt.SatResult{Kind: smt.Sat}, out, nil
	}

	_, payload, err := m.Solver.Run(ctx, m.Log, m.Typed.Signature, 2, m.Tee, q)
	if err != nil {
		return nil, err
	}
	out, _ := payload.([]*Model)
	return out, nil
}

// stateConstraint pins a simulation query's pre-state to an exact
// reproduction of state, the only state the "starting from a concrete
// pre-state" contract permits the query to begin from.
func stateConstraint(state *Model) term.Term {
	return modelConstraint(state, 0)
}

// primedStateConstraint pins a sampled successor's primed image, used to
// build the blocking clause that excludes it from later samples.
func primedStateConstraint(post *Model) term.Term {
	return modelConstraint(post, 1)
}

// modelConstraint builds a formula pinning a concrete sampled state: fresh
// existentially-bound elements stand in for each sort's witnessed universe
// members, a per-sort totality clause fixes the sampled cardinality
// exactly (nothing outside the named witnesses), and one literal per atom
// enumerated over those witnesses (internal/atoms.Enumerate) fixes that
// atom's truth value against m's Interpretation tables — including the
// pairwise-distinct equality atoms atoms.Enumerate generates between
// same-sort witnesses, which are always negative since each witness
// stands for a distinct element by construction. primes selects which
// state level (0 = unprimed, 1 = once-primed) mutable relations are
// pinned at; immutable relations are always pinned unprimed, since they
// are declared to the solver only once.
func modelConstraint(m *Model, primes int) term.Term {
	if m == nil {
		return term.BoolLit{Value: true}
	}
	sig := m.Signature

	var binders []term.Binder
	elemIdx := make(map[string]int)
	bySort := make(map[string][]string, len(sig.Sorts))
	for i, s := range sig.Sorts {
		card := 0
		if i < len(m.Universe) {
			card = m.Universe[i]
		}
		names := make([]string, card)
		for e := 0; e < card; e++ {
			name := elemName(i, e)
			names[e] = name
			elemIdx[name] = e
			binders = append(binders, term.Binder{Sort: s, Name: name})
		}
		bySort[s.Name] = names
	}

	atomSet := atoms.Enumerate(sig, binders, 1)
	conjuncts := make([]term.Term, 0, len(atomSet.Atoms)+len(sig.Sorts))
	for _, a := range atomSet.Atoms {
		t, value := atomAgainstModel(sig, m, a, elemIdx, primes)
		conjuncts = append(conjuncts, polarize(t, a.IsEqualOf, value))
	}
	for _, s := range sig.Sorts {
		if names := bySort[s.Name]; len(names) > 0 {
			conjuncts = append(conjuncts, totality(s, names))
		}
	}

	if len(conjuncts) == 0 {
		return term.BoolLit{Value: true}
	}
	body := term.Term(term.And{Xs: conjuncts})
	if len(binders) == 0 {
		return body
	}
	return term.Quantified{Quantifier: term.Exists, Binders: binders, Body: body}
}

// atomAgainstModel evaluates an atom enumerated over witness elements
// against m, returning the atom's term — with a mutable relation's prime
// count rewritten to primes, immutable relations always left unprimed —
// and its truth value looked up in m's Interpretation tables.
func atomAgainstModel(sig *term.Signature, m *Model, a atoms.Atom, elemIdx map[string]int, primes int) (term.Term, bool) {
	if a.IsEqualOf {
		return a.Term, false
	}
	app, ok := a.Term.(term.App)
	if !ok {
		return a.Term, false
	}
	p := 0
	if rel, ok := sig.Relation(app.Relation); ok && rel.Mutable {
		p = primes
	}
	shifted := term.App{Relation: app.Relation, Primes: p, Args: app.Args}

	interp, ok := m.Interp[app.Relation]
	if !ok {
		return shifted, false
	}
	idx := make([]int, len(app.Args))
	for i, arg := range app.Args {
		id, ok := arg.(term.Ident)
		if !ok {
			return shifted, false
		}
		idx[i] = elemIdx[id.Name]
	}
	return shifted, interp.Index(idx...)
}

// polarize renders a literal given its truth value, using Neq rather than
// Not{Eq{...}} for equality atoms, matching the rendering
// internal/atoms.Set.ToTerm uses elsewhere.
func polarize(t term.Term, isEqualOf, value bool) term.Term {
	if value {
		return t
	}
	if isEqualOf {
		eq := t.(term.Eq)
		return term.Neq{L: eq.L, R: eq.R}
	}
	return term.Not{X: t}
}

// totality asserts that every element of sort s equals one of names,
// fixing the sort's cardinality at exactly len(names) rather than merely
// bounding it from below.
func totality(s term.Sort, names []string) term.Term {
	y := "qy_" + s.Name
	eqs := make([]term.Term, len(names))
	for i, n := range names {
		eqs[i] = term.Eq{L: term.Ident{Name: y}, R: term.Ident{Name: n}}
	}
	return term.Quantified{
		Quantifier: term.Forall,
		Binders:    []term.Binder{{Sort: s, Name: y}},
		Body:       term.Or{Xs: eqs},
	}
}

func elemName(sortIdx, elemIdx int) string {
	return fmt.Sprintf("qe%d_%d", sortIdx, elemIdx)
}

func indicatorName(i int) string {
	return "pre" + itoa(i)
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}

// UnknownError reports a solver Unknown response the module could not
// resolve into a CTI, unsat core, or cancellation.
type UnknownError struct{ Reason string }

func (e *UnknownError) Error() string { return "module: solver returned unknown: " + e.Reason }

// LoadTyped decodes a testdata-style JSON module fixture, standing in for
// "the core consumes a typed, sort-checked module" contract (the surface
// parser and sort checker are out of scope for this engine).
func LoadTyped(path string) (*term.TypedModule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "module: failed to read %s", path)
	}
	var raw jsonModule
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrapf(err, "module: failed to decode %s", path)
	}
	return raw.toTyped()
}
