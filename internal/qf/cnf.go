package qf

import (
	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/term"
)

// CNFDomain is the CNF lemma-QF family: a multiset of clauses, each a
// multiset of literals, bounded by MaxClauses and MaxClauseSize.
//
// Grounded on inference/src/lemma.rs's LemmaCnf and on spec.md §4.3's CNF
// weakening law.
type CNFDomain struct {
	MaxClauses    int
	MaxClauseSize int
}

func (d *CNFDomain) Kind() Kind { return KindCNF }

func (d *CNFDomain) BaseFromClause(clause []atoms.Literal) any {
	return CNFBase{Clause(cloneLiterals(clause))}
}

func (d *CNFDomain) Strongest() any { return CNFBase{} } // ⊥: the empty clause set

func (d *CNFDomain) Substitute(base any, r *atoms.Restricted, sub term.Substitution) (any, bool) {
	b := base.(CNFBase)
	out := make(CNFBase, len(b))
	for i, clause := range b {
		newClause := make(Clause, len(clause))
		for j, lit := range clause {
			nl, ok := r.Substitute(lit, sub)
			if !ok {
				return nil, false
			}
			newClause[j] = nl
		}
		out[i] = newClause
	}
	return out, true
}

func (d *CNFDomain) BaseToTerm(base any, r *atoms.Restricted) term.Term {
	b := base.(CNFBase)
	if len(b) == 0 {
		// the strongest base: an empty And would render as truth, and an
		// empty (and) is not valid SMT-LIB either
		return term.BoolLit{Value: false}
	}
	clauses := make([]term.Term, len(b))
	for i, clause := range b {
		lits := make([]term.Term, len(clause))
		for j, lit := range clause {
			lits[j] = r.ToTerm(lit)
		}
		clauses[i] = term.Or{Xs: lits}
	}
	return term.And{Xs: clauses}
}

// Weaken implements spec.md §4.3's CNF law: from the strongest (empty)
// base, emit all subsets of cube of size min(MaxClauses, |cube|), each as a
// unit clause; otherwise, add exactly one literal from cube to each
// existing clause independently (Cartesian product over clauses), leaving
// a clause already containing some l in cube unchanged, and collapsing to
// bottom (dropped) any clause at MaxClauseSize that cannot absorb a
// literal from cube. Equality-inequality literals are forbidden in
// non-empty clauses, a heuristic against useless invariants, and a literal
// whose dual the clause already contains is never added (the clause would
// become a tautology).
func (d *CNFDomain) Weaken(base any, r *atoms.Restricted, cube []atoms.Literal, ignore func(any) bool) []any {
	b := base.(CNFBase)

	if len(b) == 0 {
		n := len(cube)
		if d.MaxClauses < n {
			n = d.MaxClauses
		}
		var out []any
		forEachSubsetOfSize(cube, n, func(subset []atoms.Literal) {
			units := make(CNFBase, len(subset))
			for i, lit := range subset {
				units[i] = Clause{lit}
			}
			if !ignore(units) {
				out = append(out, units)
			}
		})
		return out
	}

	perClause := make([][]Clause, len(b))
	for i, clause := range b {
		alreadyAdmits := false
		for _, lit := range cube {
			if containsLiteral(clause, lit) {
				alreadyAdmits = true
				break
			}
		}
		if alreadyAdmits {
			perClause[i] = []Clause{clause}
			continue
		}
		var options []Clause
		for _, lit := range cube {
			if lit.AtomID < len(r.Atoms) && r.Atoms[lit.AtomID].IsEqualOf && !lit.Positive {
				continue // equality-inequality forbidden in non-empty clauses
			}
			if containsLiteral(clause, lit.Negate()) {
				continue // would make the clause a tautology
			}
			if len(clause) >= d.MaxClauseSize {
				continue // collapses to bottom: dropped from options
			}
			extended := append(cloneLiterals(clause), lit)
			options = append(options, Clause(extended))
		}
		perClause[i] = options
	}

	var out []any
	var product func(i int, acc CNFBase)
	product = func(i int, acc CNFBase) {
		if i == len(perClause) {
			if !ignore(acc) {
				copied := make(CNFBase, len(acc))
				copy(copied, acc)
				out = append(out, copied)
			}
			return
		}
		for _, clause := range perClause[i] {
			product(i+1, append(acc, clause))
		}
	}
	product(0, CNFBase{})
	return out
}

func (d *CNFDomain) Contains(smaller, larger any) bool {
	s, l := smaller.(CNFBase), larger.(CNFBase)
	// s ⊨ l (s is stronger) iff every clause of l is implied by some
	// clause of s, i.e. some clause of s is a subset of that clause of l.
	for _, lc := range l {
		found := false
		for _, sc := range s {
			if isSubsetClause(sc, lc) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isSubsetClause(small, big Clause) bool {
	for _, lit := range small {
		if !containsLiteral(big, lit) {
			return false
		}
	}
	return true
}

func (d *CNFDomain) ApproxSpaceSize() int {
	return pow(2*d.MaxClauseSize, d.MaxClauses)
}

func (d *CNFDomain) SubSpaces() []Domain {
	var out []Domain
	for clauses := d.MaxClauses; clauses >= 1; clauses-- {
		for size := d.MaxClauseSize; size >= 1; size-- {
			if clauses == d.MaxClauses && size == d.MaxClauseSize {
				continue
			}
			out = append(out, &CNFDomain{MaxClauses: clauses, MaxClauseSize: size})
		}
	}
	return out
}

func pow(base, exp int) int {
	if exp <= 0 {
		return 1
	}
	p := 1
	for i := 0; i < exp; i++ {
		p *= base
	}
	return p
}

func forEachSubsetOfSize(xs []atoms.Literal, size int, f func([]atoms.Literal)) {
	if size > len(xs) {
		return
	}
	var rec func(start int, acc []atoms.Literal)
	rec = func(start int, acc []atoms.Literal) {
		if len(acc) == size {
			f(append([]atoms.Literal{}, acc...))
			return
		}
		for i := start; i < len(xs); i++ {
			rec(i+1, append(acc, xs[i]))
		}
	}
	rec(0, nil)
}
