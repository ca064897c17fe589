// Package atoms enumerates the finite set of candidate atomic formulas used
// as literals by the lemma-QF domains, and restricts that set by quantifier
// prefix (which bound variables an atom is allowed to mention).
package atoms

import (
	"fmt"

	"github.com/operator-framework/qalpha/internal/term"
)

// Literal is a (atom id, polarity) pair. Atom ids are dense integers
// assigned by the enumerator below; equality atoms carry a dedicated
// IsEqualOf marker so that negated-equality literals can be excluded from
// clauses where that is required by a domain's heuristics.
type Literal struct {
	AtomID   int
	Positive bool
}

// Negate returns the dual literal over the same atom.
func (l Literal) Negate() Literal { return Literal{AtomID: l.AtomID, Positive: !l.Positive} }

// Atom is one enumerated atomic formula: a relation application (or an
// equality between two terms of the same sort) over a fixed tuple of bound
// variable names.
type Atom struct {
	ID        int
	Term      term.Term
	Vars      []string // bound names this atom mentions, in order of first use
	IsEqualOf bool     // true for atoms of shape (x = y) — the dedicated equality marker
}

// Set is the dense, ordered enumeration of all candidate atoms for a
// signature, up to a given number of primed copies.
type Set struct {
	Atoms []Atom

	byTerm map[string]int
}

// Enumerate builds the atom set for sig over nStates-many state copies
// (0 = unprimed) using the supplied bound variable pool per sort — callers
// typically enumerate over one quantifier prefix's binders at a time.
func Enumerate(sig *term.Signature, binders []term.Binder, nStates int) *Set {
	s := &Set{byTerm: map[string]int{}}

	bySort := map[string][]string{}
	for _, b := range binders {
		bySort[b.Sort.Name] = append(bySort[b.Sort.Name], b.Name)
	}

	add := func(t term.Term, vars []string, isEq bool) {
		key := t.String()
		if _, dup := s.byTerm[key]; dup {
			return
		}
		id := len(s.Atoms)
		s.byTerm[key] = id
		s.Atoms = append(s.Atoms, Atom{ID: id, Term: t, Vars: vars, IsEqualOf: isEq})
	}

	for _, rel := range sig.Relations {
		if !rel.Result.IsBool() {
			continue
		}
		combos := cartesianNames(rel.Args, bySort)
		maxPrime := 0
		if rel.Mutable {
			maxPrime = nStates - 1
			if maxPrime < 0 {
				maxPrime = 0
			}
		}
		for prime := 0; prime <= maxPrime; prime++ {
			if !rel.Mutable && prime > 0 {
				break
			}
			for _, names := range combos {
				args := make([]term.Term, len(names))
				for i, n := range names {
					args[i] = term.Ident{Name: n}
				}
				add(term.App{Relation: rel.Name, Primes: prime, Args: args}, names, false)
			}
		}
	}

	for _, sortName := range sortedKeys(bySort) {
		names := bySort[sortName]
		for i := 0; i < len(names); i++ {
			for j := i + 1; j < len(names); j++ {
				lhs, rhs := names[i], names[j]
				add(term.Eq{L: term.Ident{Name: lhs}, R: term.Ident{Name: rhs}}, []string{lhs, rhs}, true)
			}
		}
	}

	return s
}

func cartesianNames(argSorts []term.Sort, bySort map[string][]string) [][]string {
	if len(argSorts) == 0 {
		return [][]string{{}}
	}
	rest := cartesianNames(argSorts[1:], bySort)
	var out [][]string
	for _, name := range bySort[argSorts[0].Name] {
		for _, tail := range rest {
			combo := append([]string{name}, tail...)
			out = append(out, combo)
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// deterministic order keeps atom ids stable across runs with the same module
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

// ToTerm renders a literal as a term, negating the underlying atom's term
// when the literal is negative. Equality-marked atoms render as Neq rather
// than Not{Eq{...}} for readability and canonical comparison.
func (s *Set) ToTerm(l Literal) term.Term {
	a := s.Atoms[l.AtomID]
	if l.Positive {
		return a.Term
	}
	if a.IsEqualOf {
		eq := a.Term.(term.Eq)
		return term.Neq{L: eq.L, R: eq.R}
	}
	return term.Not{X: a.Term}
}

// Restricted is a Set view that additionally tracks, per atom, whether the
// atom mentions at least one "non-universal" (existentially bound) variable
// — used by the pDNF domains' canonical-form requirement that every non-unit
// cube mentions a non-universal variable.
type Restricted struct {
	*Set
	NonUniversal map[string]struct{} // variable names bound existentially
}

// MentionsNonUniversal reports whether atom a mentions any variable in r's
// non-universal set.
func (r *Restricted) MentionsNonUniversal(a Atom) bool {
	for _, v := range a.Vars {
		if _, ok := r.NonUniversal[v]; ok {
			return true
		}
	}
	return false
}

// Substitute rewrites a literal's underlying atom term to use renamed bound
// variables and returns the literal over the renamed atom, with the same
// polarity; ok is false when the renamed term is not an enumerated atom.
func (r *Restricted) Substitute(l Literal, sub term.Substitution) (Literal, bool) {
	a := r.Atoms[l.AtomID]
	renamed := term.Substitute(a.Term, sub)
	id, ok := r.byTerm[renamed.String()]
	if !ok {
		return Literal{}, false
	}
	return Literal{AtomID: id, Positive: l.Positive}, true
}

func (a Atom) String() string {
	return fmt.Sprintf("#%d:%s", a.ID, a.Term)
}
