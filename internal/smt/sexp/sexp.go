// Package sexp implements the small s-expression representation used to
// build and parse SMT-LIB 2 commands and responses.
package sexp

import (
	"fmt"
	"strings"
)

// Sexp is either an atom, a list of sexps, or a tee-only comment (never
// written to the solver, only to a saved query file).
type Sexp interface {
	isSexp()
	String() string
}

// Atom is a bare symbol, string literal, or numeral.
type Atom string

func (Atom) isSexp()         {}
func (a Atom) String() string { return string(a) }

// List is a parenthesized sequence of sexps.
type List []Sexp

func (List) isSexp() {}
func (l List) String() string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = s.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// Comment is tee-only: rendered with a ";;" prefix in saved query files and
// never sent to the solver process.
type Comment string

func (Comment) isSexp() {}
func (c Comment) String() string {
	if c == "" {
		return ""
	}
	return ";; " + string(c)
}

// AtomS wraps a string as a bare, unquoted atom, matching atom_s in the
// reference implementation (used for strings such as option names and values).
func AtomS(s string) Atom { return Atom(s) }

// App builds `(head arg1 arg2 ...)`. An empty args list renders as a bare
// atom `head` rather than `(head)`, matching SMT-LIB's nullary application
// convention for things like `check-sat`.
func App(head string, args []Sexp) Sexp {
	if len(args) == 0 {
		return Atom(head)
	}
	l := make(List, 0, len(args)+1)
	l = append(l, Atom(head))
	l = append(l, args...)
	return l
}

// L builds a bare list (used for e.g. the assumptions list of
// check-sat-assuming).
func L(items []Sexp) Sexp { return List(items) }

// QuotedAtom renders s as a double-quoted string literal atom.
func QuotedAtom(s string) Atom { return Atom(fmt.Sprintf("%q", s)) }
