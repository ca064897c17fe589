// Package qf implements the quantifier-prefix and lemma-quantifier-free-body
// domains (CNF, canonical pDNF, naive pDNF) that form the qalpha search
// lattice: weakening, substitution, subsumption, sub-space enumeration, and
// approximate space sizing.
//
// Grounded on inference/src/lemma.rs's LemmaCnf/LemmaPDnf/LemmaPDnfNaive and
// on spec.md §4.3's prose description of the weakening laws (the Rust
// LemmaQf trait itself was filtered out of the retrieval pack, but its
// method set is pinned down exactly by these call sites).
package qf

import "github.com/operator-framework/qalpha/internal/term"

// Block is one quantifier-prefix block: a quantifier, the sort it ranges
// over, and the ordered bound variable names it introduces.
type Block struct {
	Quantifier term.Quantifier
	Sort       term.Sort
	Vars       []string
}

// Prefix is an ordered sequence of quantifier blocks. Two prefixes are
// comparable by the universality-strengthening order: replacing any
// existential block with a universal block of the same sort and arity
// strengthens the prefix.
type Prefix struct {
	Blocks []Block
}

// Binders flattens the prefix into the ordered binder list atoms.Enumerate
// expects.
func (p *Prefix) Binders() []term.Binder {
	var out []term.Binder
	for _, b := range p.Blocks {
		for _, name := range b.Vars {
			out = append(out, term.Binder{Sort: b.Sort, Name: name})
		}
	}
	return out
}

// NonUniversalVars returns the set of variable names bound by existential
// blocks.
func (p *Prefix) NonUniversalVars() map[string]struct{} {
	out := map[string]struct{}{}
	for _, b := range p.Blocks {
		if b.Quantifier == term.Exists {
			for _, name := range b.Vars {
				out[name] = struct{}{}
			}
		}
	}
	return out
}

// Stronger reports whether p is at least as strong as other under the
// universality-strengthening order: same block shape (sort and arity),
// each block in p is Forall whenever the corresponding block in other is
// Forall (p may additionally strengthen some Exists blocks to Forall).
func (p *Prefix) Stronger(other *Prefix) bool {
	if len(p.Blocks) != len(other.Blocks) {
		return false
	}
	for i, b := range p.Blocks {
		ob := other.Blocks[i]
		if b.Sort != ob.Sort || len(b.Vars) != len(ob.Vars) {
			return false
		}
		if ob.Quantifier == term.Forall && b.Quantifier != term.Forall {
			return false
		}
	}
	return true
}

// ToQuantified wraps a quantifier-free body term in p's blocks, outermost
// first.
func (p *Prefix) ToQuantified(body term.Term) term.Term {
	t := body
	for i := len(p.Blocks) - 1; i >= 0; i-- {
		b := p.Blocks[i]
		binders := make([]term.Binder, len(b.Vars))
		for j, name := range b.Vars {
			binders[j] = term.Binder{Sort: b.Sort, Name: name}
		}
		t = term.Quantified{Quantifier: b.Quantifier, Binders: binders, Body: t}
	}
	return t
}

// permuteBlock enumerates every bijection between lNames and mNames,
// recording each candidate in sub and invoking cont for each; it returns
// false as soon as cont does, to propagate early stopping outward.
func permuteBlock(lNames, mNames []string, sub term.Substitution, cont func() bool) bool {
	used := make([]bool, len(mNames))
	var rec func(i int) bool
	rec = func(i int) bool {
		if i == len(lNames) {
			return cont()
		}
		for j, name := range mNames {
			if used[j] {
				continue
			}
			used[j] = true
			sub[lNames[i]] = term.Ident{Name: name}
			if !rec(i + 1) {
				used[j] = false
				delete(sub, lNames[i])
				return false
			}
			used[j] = false
			delete(sub, lNames[i])
		}
		return true
	}
	return rec(0)
}

// Permutations streams every per-block permutation of l's bound names onto
// m's, stopping early when the caller's yield function returns false — the
// Go 1.23 range-over-func iterator form the "quantified-lemma subsumption
// search" design note calls for, to keep the Cartesian product from ever
// being materialized in memory.
func Permutations(l, m *Prefix) func(yield func(term.Substitution) bool) {
	return func(yield func(term.Substitution) bool) {
		if len(l.Blocks) != len(m.Blocks) {
			return
		}
		sub := term.Substitution{}
		var rec func(i int) bool
		rec = func(i int) bool {
			if i == len(l.Blocks) {
				copied := make(term.Substitution, len(sub))
				for k, v := range sub {
					copied[k] = v
				}
				return yield(copied)
			}
			lb, mb := l.Blocks[i], m.Blocks[i]
			if len(lb.Vars) != len(mb.Vars) {
				return true
			}
			return permuteBlock(lb.Vars, mb.Vars, sub, func() bool { return rec(i + 1) })
		}
		rec(0)
	}
}
