package qf

import (
	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/term"
)

// Kind tags which of the three domain families a Domain value is, a closed,
// statically-enumerable union compared directly rather than through
// reflection (lemmaset's subsumption check only relates lemmas of the same
// Kind).
type Kind int

const (
	KindCNF Kind = iota
	KindPDnf
	KindPDnfNaive
)

func (k Kind) String() string {
	switch k {
	case KindCNF:
		return "cnf"
	case KindPDnf:
		return "pdnf"
	default:
		return "pdnf_naive"
	}
}

// Domain is the common capability set every lemma-QF family implements:
// base construction, substitution, rendering to a term, the strongest
// (most restrictive) base, weakening against a counterexample cube,
// approximate lattice size, and sub-space enumeration for the fixpoint
// driver's domain-growth schedule.
type Domain interface {
	Kind() Kind
	// BaseFromClause builds the simplest base containing exactly clause
	// (a single CNF clause, the unit cube for pDNF).
	BaseFromClause(clause []atoms.Literal) any
	// Substitute renames every literal of base via sub, returning ok=false
	// if any literal's atom does not survive the renaming (i.e. no
	// matching atom exists under the renamed variables).
	Substitute(base any, r *atoms.Restricted, sub term.Substitution) (any, bool)
	// BaseToTerm lowers a base value to its quantifier-free term.
	BaseToTerm(base any, r *atoms.Restricted) term.Term
	// Strongest is the single most restrictive base in the domain (⊥ for
	// CNF, the empty cube set for pDNF).
	Strongest() any
	// Weaken returns every minimal weakening of base that admits cube,
	// i.e. each result is implied by base and conjoined with cube is
	// satisfiable, subject to the domain's size bounds. ignore prunes
	// candidates already known subsumed.
	Weaken(base any, r *atoms.Restricted, cube []atoms.Literal, ignore func(any) bool) []any
	// Contains reports whether smaller (as a base, same domain) implies
	// larger — the QF-level subsumption oracle.
	Contains(smaller, larger any) bool
	// ApproxSpaceSize estimates the number of distinct bases up to this
	// domain's configured bounds, used to order sub-spaces by cost.
	ApproxSpaceSize() int
	// SubSpaces enumerates bound-tightenings of this domain (fewer
	// clauses, smaller cubes, ...) in a fixed order.
	SubSpaces() []Domain
}

// Clause is a CNF clause: a set of literals (no duplicate atom ids).
type Clause []atoms.Literal

// CNFBase is the quantifier-free matrix of a CNF lemma: a set of clauses.
type CNFBase []Clause

// Cube is a pDNF cube: a conjunction of literals.
type Cube []atoms.Literal

// PDnfBase is the canonical pDNF matrix: unit literals plus non-unit cubes,
// normalized so every non-unit cube has length > 1 and mentions at least
// one non-universal variable.
type PDnfBase struct {
	Units     []atoms.Literal
	NonUnits  []Cube
}

// containsLiteral reports whether lit appears in clause.
func containsLiteral(lits []atoms.Literal, lit atoms.Literal) bool {
	for _, l := range lits {
		if l == lit {
			return true
		}
	}
	return false
}

// containsDual reports whether the negation of lit appears in lits.
func containsDual(lits []atoms.Literal, lit atoms.Literal) bool {
	return containsLiteral(lits, lit.Negate())
}

func removeLiteral(lits []atoms.Literal, lit atoms.Literal) []atoms.Literal {
	out := make([]atoms.Literal, 0, len(lits))
	for _, l := range lits {
		if l != lit {
			out = append(out, l)
		}
	}
	return out
}

func cloneLiterals(lits []atoms.Literal) []atoms.Literal {
	out := make([]atoms.Literal, len(lits))
	copy(out, lits)
	return out
}
