package module

import (
	"fmt"

	"github.com/operator-framework/qalpha/internal/term"
)

// jsonModule is the on-disk shape of a testdata fixture: an already-typed
// module, expressed as tagged-JSON terms rather than surface syntax (the
// surface-syntax parser and sort checker are explicitly out of scope for
// this engine; fixtures stand in for "the core consumes a typed,
// sort-checked module").
type jsonModule struct {
	Sorts      []string       `json:"sorts"`
	Relations  []jsonRelation `json:"relations"`
	Axioms     []jsonTerm     `json:"axioms"`
	Init       []jsonTerm     `json:"init"`
	Transition []jsonTerm     `json:"transitions"`
	Invariants []jsonTerm     `json:"invariants"`
	Safety     jsonTerm       `json:"safety"`
}

type jsonRelation struct {
	Name    string   `json:"name"`
	Args    []string `json:"args"`
	Result  string   `json:"result"` // "" or "Bool" for boolean-sorted relations
	Mutable bool     `json:"mutable"`
}

// jsonTerm is a tagged-union JSON encoding of term.Term.
type jsonTerm struct {
	Op      string       `json:"op"`
	Value   bool         `json:"value,omitempty"`
	Name    string       `json:"name,omitempty"`
	Primes  int          `json:"primes,omitempty"`
	Args    []jsonTerm   `json:"args,omitempty"`
	L       *jsonTerm    `json:"l,omitempty"`
	R       *jsonTerm    `json:"r,omitempty"`
	X       *jsonTerm    `json:"x,omitempty"`
	Cond    *jsonTerm    `json:"cond,omitempty"`
	Then    *jsonTerm    `json:"then,omitempty"`
	Else    *jsonTerm    `json:"else,omitempty"`
	Binders []jsonBinder `json:"binders,omitempty"`
	Body    *jsonTerm    `json:"body,omitempty"`
}

type jsonBinder struct {
	Sort string `json:"sort"`
	Name string `json:"name"`
}

func (jt jsonTerm) toTerm() (term.Term, error) {
	switch jt.Op {
	case "bool":
		return term.BoolLit{Value: jt.Value}, nil
	case "id":
		return term.Ident{Name: jt.Name}, nil
	case "app":
		args, err := toTermSlice(jt.Args)
		if err != nil {
			return nil, err
		}
		return term.App{Relation: jt.Name, Primes: jt.Primes, Args: args}, nil
	case "not":
		x, err := jt.X.toTerm()
		if err != nil {
			return nil, err
		}
		return term.Not{X: x}, nil
	case "prime":
		x, err := jt.X.toTerm()
		if err != nil {
			return nil, err
		}
		return term.Prime{X: x}, nil
	case "eq":
		l, r, err := jt.lr()
		if err != nil {
			return nil, err
		}
		return term.Eq{L: l, R: r}, nil
	case "neq":
		l, r, err := jt.lr()
		if err != nil {
			return nil, err
		}
		return term.Neq{L: l, R: r}, nil
	case "implies":
		l, r, err := jt.lr()
		if err != nil {
			return nil, err
		}
		return term.Implies{L: l, R: r}, nil
	case "iff":
		l, r, err := jt.lr()
		if err != nil {
			return nil, err
		}
		return term.Iff{L: l, R: r}, nil
	case "and":
		args, err := toTermSlice(jt.Args)
		if err != nil {
			return nil, err
		}
		return term.And{Xs: args}, nil
	case "or":
		args, err := toTermSlice(jt.Args)
		if err != nil {
			return nil, err
		}
		return term.Or{Xs: args}, nil
	case "ite":
		cond, err := jt.Cond.toTerm()
		if err != nil {
			return nil, err
		}
		then, err := jt.Then.toTerm()
		if err != nil {
			return nil, err
		}
		els, err := jt.Else.toTerm()
		if err != nil {
			return nil, err
		}
		return term.IfThenElse{Cond: cond, Then: then, Else: els}, nil
	case "forall", "exists":
		body, err := jt.Body.toTerm()
		if err != nil {
			return nil, err
		}
		binders := make([]term.Binder, len(jt.Binders))
		for i, b := range jt.Binders {
			binders[i] = term.Binder{Sort: sortOf(b.Sort), Name: b.Name}
		}
		q := term.Forall
		if jt.Op == "exists" {
			q = term.Exists
		}
		return term.Quantified{Quantifier: q, Binders: binders, Body: body}, nil
	default:
		return nil, fmt.Errorf("module: unknown term op %q", jt.Op)
	}
}

func (jt jsonTerm) lr() (term.Term, term.Term, error) {
	if jt.L == nil || jt.R == nil {
		return nil, nil, fmt.Errorf("module: op %q missing l/r", jt.Op)
	}
	l, err := jt.L.toTerm()
	if err != nil {
		return nil, nil, err
	}
	r, err := jt.R.toTerm()
	if err != nil {
		return nil, nil, err
	}
	return l, r, nil
}

func toTermSlice(jts []jsonTerm) ([]term.Term, error) {
	out := make([]term.Term, len(jts))
	for i, jt := range jts {
		t, err := jt.toTerm()
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func sortOf(name string) term.Sort {
	if name == "" || name == "Bool" {
		return term.Bool
	}
	return term.Sort{Name: name}
}

func (m jsonModule) toTyped() (*term.TypedModule, error) {
	sorts := make([]term.Sort, len(m.Sorts))
	for i, s := range m.Sorts {
		sorts[i] = sortOf(s)
	}
	relations := make([]term.Relation, len(m.Relations))
	for i, r := range m.Relations {
		args := make([]term.Sort, len(r.Args))
		for j, a := range r.Args {
			args[j] = sortOf(a)
		}
		relations[i] = term.Relation{Name: r.Name, Args: args, Result: sortOf(r.Result), Mutable: r.Mutable}
	}
	sig, err := term.NewSignature(sorts, relations)
	if err != nil {
		return nil, err
	}

	axioms, err := toTermSlice(m.Axioms)
	if err != nil {
		return nil, err
	}
	init, err := toTermSlice(m.Init)
	if err != nil {
		return nil, err
	}
	trans, err := toTermSlice(m.Transition)
	if err != nil {
		return nil, err
	}
	invs, err := toTermSlice(m.Invariants)
	if err != nil {
		return nil, err
	}
	safety, err := m.Safety.toTerm()
	if err != nil {
		return nil, err
	}

	return &term.TypedModule{
		Signature:   sig,
		Axioms:      axioms,
		Init:        init,
		Transitions: trans,
		Invariants:  invs,
		Safety:      safety,
	}, nil
}
