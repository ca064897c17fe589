package module

import (
	"github.com/pkg/errors"

	"github.com/operator-framework/qalpha/internal/term"
)

// Env maps bound variable names to a concrete element index within their
// sort's universe, as extracted by Model.
type Env map[string]int

// Evaluate interprets a boolean-sorted term against a concrete finite model
// and variable environment — the ground-truth oracle the induction frame
// uses to decide which weakest-set candidates a counterexample falsifies.
func Evaluate(t term.Term, model *Model, env Env) (bool, error) {
	switch v := t.(type) {
	case term.BoolLit:
		return v.Value, nil
	case term.Ident:
		return false, errors.Errorf("module: identifier %q used in boolean position", v.Name)
	case term.App:
		in, ok := model.Interp[v.Relation]
		if !ok {
			return false, errors.Errorf("module: model has no interpretation for %q", v.Relation)
		}
		args := make([]int, len(v.Args))
		for i, a := range v.Args {
			idx, err := evalArg(a, env)
			if err != nil {
				return false, err
			}
			args[i] = idx
		}
		return in.Index(args...), nil
	case term.Not:
		x, err := Evaluate(v.X, model, env)
		return !x, err
	case term.And:
		for _, x := range v.Xs {
			ok, err := Evaluate(x, model, env)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	case term.Or:
		for _, x := range v.Xs {
			ok, err := Evaluate(x, model, env)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case term.Implies:
		l, err := Evaluate(v.L, model, env)
		if err != nil {
			return false, err
		}
		if !l {
			return true, nil
		}
		return Evaluate(v.R, model, env)
	case term.Iff:
		l, err := Evaluate(v.L, model, env)
		if err != nil {
			return false, err
		}
		r, err := Evaluate(v.R, model, env)
		if err != nil {
			return false, err
		}
		return l == r, nil
	case term.Eq:
		l, err := evalArg(v.L, env)
		if err != nil {
			return false, err
		}
		r, err := evalArg(v.R, env)
		if err != nil {
			return false, err
		}
		return l == r, nil
	case term.Neq:
		l, err := evalArg(v.L, env)
		if err != nil {
			return false, err
		}
		r, err := evalArg(v.R, env)
		if err != nil {
			return false, err
		}
		return l != r, nil
	case term.IfThenElse:
		c, err := Evaluate(v.Cond, model, env)
		if err != nil {
			return false, err
		}
		if c {
			return Evaluate(v.Then, model, env)
		}
		return Evaluate(v.Else, model, env)
	case term.Quantified:
		return evaluateQuantified(v, model, env)
	case term.Always:
		return Evaluate(v.X, model, env)
	case term.Eventually:
		return Evaluate(v.X, model, env)
	case term.Prime:
		return Evaluate(v.X, model, env)
	default:
		return false, errors.Errorf("module: cannot evaluate term of type %T", t)
	}
}

func evalArg(t term.Term, env Env) (int, error) {
	id, ok := t.(term.Ident)
	if !ok {
		return 0, errors.Errorf("module: non-variable argument term %q not supported by the evaluator", t.String())
	}
	idx, ok := env[id.Name]
	if !ok {
		return 0, errors.Errorf("module: unbound variable %q", id.Name)
	}
	return idx, nil
}

func evaluateQuantified(q term.Quantified, model *Model, env Env) (bool, error) {
	return evaluateBinders(q.Binders, q.Quantifier, q.Body, model, env)
}

func evaluateBinders(binders []term.Binder, quant term.Quantifier, body term.Term, model *Model, env Env) (bool, error) {
	if len(binders) == 0 {
		return Evaluate(body, model, env)
	}
	b := binders[0]
	card, err := sortCard(model, b.Sort.Name)
	if err != nil {
		return false, err
	}
	universal := quant == term.Forall
	for i := 0; i < card; i++ {
		child := make(Env, len(env)+1)
		for k, v := range env {
			child[k] = v
		}
		child[b.Name] = i
		ok, err := evaluateBinders(binders[1:], quant, body, model, child)
		if err != nil {
			return false, err
		}
		if universal && !ok {
			return false, nil
		}
		if !universal && ok {
			return true, nil
		}
	}
	return universal, nil
}

func sortCard(model *Model, sortName string) (int, error) {
	for i, s := range model.Signature.Sorts {
		if s.Name == sortName {
			return model.Universe[i], nil
		}
	}
	return 0, errors.Errorf("module: unknown sort %q in model", sortName)
}
