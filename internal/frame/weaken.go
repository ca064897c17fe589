package frame

import (
	"github.com/pkg/errors"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/lemmaset"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/qf"
	"github.com/operator-framework/qalpha/internal/term"
)

// Weaken removes every weakest-set candidate falsified by model and
// re-inserts, minimized, every weakening the domain admits — the
// "weaken(model)" operation of spec.md §4.5. Each replaced candidate
// records its children in parentToChildren for AdvanceFrontier's Gradual
// policy to consult later.
func (f *Frame) Weaken(model *module.Model) error {
	for _, l := range f.weakest.Snapshot() {
		falsified, err := isFalsified(l, f.Restricted, model)
		if err != nil {
			return err
		}
		if !falsified {
			continue
		}

		children, err := weakenQuantified(f.Prefix, f.Domain, l.Body, model, f.Restricted)
		if err != nil {
			return err
		}
		f.weakest.Remove(l.ID)
		delete(f.confirmedInitial, l.ID)

		var childIDs []int
		for _, childBody := range children {
			id, inserted := f.weakest.InsertMinimized(f.Prefix, f.Domain, childBody)
			if inserted {
				childIDs = append(childIDs, id)
			}
		}
		f.parentToChildren[l.ID] = childIDs
	}
	return nil
}

func isFalsified(l lemmaset.Lemma, r *atoms.Restricted, model *module.Model) (bool, error) {
	ok, err := module.Evaluate(l.ToTerm(r), model, module.Env{})
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// weakenQuantified expands the universal/existential assignment grid
// implied by prefix, recursing on quantifier depth: for a universal block
// the candidate set at that level is the intersection of every
// assignment's child candidates (the new lemma must hold under all of
// them); for an existential block it is the union (any assignment
// suffices). At full assignment it derives the ground cube true in model
// and delegates to the domain's own Weaken.
//
// Candidate bases are deduplicated/intersected by their rendered term
// string, an approximation of structural equality that is exact whenever
// a domain's BaseToTerm renders literals in a stable order (true for
// every Weaken move implemented in internal/qf).
func weakenQuantified(prefix *qf.Prefix, domain qf.Domain, body any, model *module.Model, r *atoms.Restricted) ([]any, error) {
	noIgnore := func(any) bool { return false }

	var rec func(blockIdx int, env module.Env) ([]any, error)
	rec = func(blockIdx int, env module.Env) ([]any, error) {
		if blockIdx == len(prefix.Blocks) {
			cube, err := cubeFromEnv(r, model, env)
			if err != nil {
				return nil, err
			}
			return domain.Weaken(body, r, cube, noIgnore), nil
		}

		block := prefix.Blocks[blockIdx]
		card, err := sortCard(model, block.Sort.Name)
		if err != nil {
			return nil, err
		}

		var acc []any
		accKeys := map[string]struct{}{}
		first := true
		for _, combo := range combinations(len(block.Vars), card) {
			child := extendEnv(env, block.Vars, combo)
			candidates, err := rec(blockIdx+1, child)
			if err != nil {
				return nil, err
			}
			if block.Quantifier == term.Forall {
				if first {
					acc = candidates
					accKeys = keySetOf(domain, r, candidates)
					first = false
					continue
				}
				keys := keySetOf(domain, r, candidates)
				var kept []any
				for _, c := range acc {
					if _, ok := keys[canonicalKey(domain, r, c)]; ok {
						kept = append(kept, c)
					}
				}
				acc = kept
			} else {
				for _, c := range candidates {
					k := canonicalKey(domain, r, c)
					if _, dup := accKeys[k]; !dup {
						accKeys[k] = struct{}{}
						acc = append(acc, c)
					}
				}
			}
		}
		return acc, nil
	}

	return rec(0, module.Env{})
}

func cubeFromEnv(r *atoms.Restricted, model *module.Model, env module.Env) ([]atoms.Literal, error) {
	var cube []atoms.Literal
	for _, a := range r.Atoms {
		bound := true
		for _, v := range a.Vars {
			if _, ok := env[v]; !ok {
				bound = false
				break
			}
		}
		if !bound {
			continue
		}
		val, err := module.Evaluate(a.Term, model, env)
		if err != nil {
			return nil, err
		}
		cube = append(cube, atoms.Literal{AtomID: a.ID, Positive: val})
	}
	return cube, nil
}

func sortCard(model *module.Model, sortName string) (int, error) {
	for i, s := range model.Signature.Sorts {
		if s.Name == sortName {
			return model.Universe[i], nil
		}
	}
	return 0, errors.Errorf("frame: unknown sort %q in model", sortName)
}

func extendEnv(env module.Env, names []string, combo []int) module.Env {
	out := make(module.Env, len(env)+len(names))
	for k, v := range env {
		out[k] = v
	}
	for i, n := range names {
		out[n] = combo[i]
	}
	return out
}

// combinations enumerates every tuple of n indices each in [0, card).
func combinations(n, card int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	if card == 0 {
		return nil
	}
	var out [][]int
	var rec func(pos int, acc []int)
	rec = func(pos int, acc []int) {
		if pos == n {
			out = append(out, append([]int{}, acc...))
			return
		}
		for i := 0; i < card; i++ {
			rec(pos+1, append(acc, i))
		}
	}
	rec(0, nil)
	return out
}

func canonicalKey(domain qf.Domain, r *atoms.Restricted, base any) string {
	return domain.BaseToTerm(base, r).String()
}

func keySetOf(domain qf.Domain, r *atoms.Restricted, bases []any) map[string]struct{} {
	out := make(map[string]struct{}, len(bases))
	for _, b := range bases {
		out[canonicalKey(domain, r, b)] = struct{}{}
	}
	return out
}
