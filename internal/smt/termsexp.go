package smt

import (
	"strings"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
	"github.com/operator-framework/qalpha/internal/term"
)

// sortSexp renders a sort as its SMT-LIB type name.
func sortSexp(s term.Sort) sexp.Sexp {
	if s.IsBool() {
		return sexp.Atom("Bool")
	}
	return sexp.Atom(s.Name)
}

// TermSexp lowers a term.Term into the s-expression sent to the solver.
func TermSexp(t term.Term) sexp.Sexp {
	switch t := t.(type) {
	case term.BoolLit:
		if t.Value {
			return sexp.Atom("true")
		}
		return sexp.Atom("false")
	case term.Ident:
		return sexp.Atom(t.Name)
	case term.App:
		name := t.Relation + strings.Repeat("'", t.Primes)
		args := make([]sexp.Sexp, len(t.Args))
		for i, a := range t.Args {
			args[i] = TermSexp(a)
		}
		return sexp.App(name, args)
	case term.Not:
		return sexp.App("not", []sexp.Sexp{TermSexp(t.X)})
	case term.Always:
		return sexp.App("always", []sexp.Sexp{TermSexp(t.X)}) // out of scope for quantifier-free queries; kept for completeness
	case term.Eventually:
		return sexp.App("eventually", []sexp.Sexp{TermSexp(t.X)})
	case term.Prime:
		return TermSexp(term.PrimeTerm(t.X, 1))
	case term.Eq:
		return sexp.App("=", []sexp.Sexp{TermSexp(t.L), TermSexp(t.R)})
	case term.Neq:
		return sexp.App("not", []sexp.Sexp{sexp.App("=", []sexp.Sexp{TermSexp(t.L), TermSexp(t.R)})})
	case term.Implies:
		return sexp.App("=>", []sexp.Sexp{TermSexp(t.L), TermSexp(t.R)})
	case term.Iff:
		return sexp.App("=", []sexp.Sexp{TermSexp(t.L), TermSexp(t.R)})
	case term.And:
		if len(t.Xs) == 0 {
			return sexp.Atom("true")
		}
		return sexp.App("and", TermSexpAll(t.Xs))
	case term.Or:
		if len(t.Xs) == 0 {
			return sexp.Atom("false")
		}
		return sexp.App("or", TermSexpAll(t.Xs))
	case term.IfThenElse:
		return sexp.App("ite", []sexp.Sexp{TermSexp(t.Cond), TermSexp(t.Then), TermSexp(t.Else)})
	case term.Quantified:
		binders := make([]sexp.Sexp, len(t.Binders))
		for i, b := range t.Binders {
			binders[i] = sexp.List{sexp.Atom(b.Name), sortSexp(b.Sort)}
		}
		head := "forall"
		if t.Quantifier == term.Exists {
			head = "exists"
		}
		return sexp.App(head, []sexp.Sexp{sexp.L(binders), TermSexp(t.Body)})
	default:
		return sexp.Atom("true")
	}
}

// TermSexpAll lowers each term in order. Empty and/or never reach it from
// TermSexp, which renders them as their identity element (true/false), as
// SMT-LIB's and/or take at least one argument.
func TermSexpAll(xs []term.Term) []sexp.Sexp {
	out := make([]sexp.Sexp, len(xs))
	for i, x := range xs {
		out[i] = TermSexp(x)
	}
	return out
}
