package qf

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/smt"
	"github.com/operator-framework/qalpha/internal/term"
)

// assignment fixes a truth value for every enumerated atom — one concrete
// model of the quantifier-free atom space, as seen through a fixed variable
// binding.
type assignment map[int]bool

func (a assignment) key() string {
	ids := make([]int, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	s := ""
	for _, id := range ids {
		s += fmt.Sprintf("%d=%v;", id, a[id])
	}
	return s
}

func propertyFixture(t *testing.T) (*term.Signature, *atoms.Restricted) {
	t.Helper()
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "p", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: false}},
	)
	require.NoError(t, err)
	binders := []term.Binder{
		{Sort: term.Sort{Name: "Node"}, Name: "x"},
		{Sort: term.Sort{Name: "Node"}, Name: "y"},
	}
	set := atoms.Enumerate(sig, binders, 1)
	return sig, &atoms.Restricted{Set: set, NonUniversal: map[string]struct{}{"y": {}}}
}

// modelAssignments derives every consistent assignment over the atom space
// from concrete finite models (universe cardinality 1 and 2, every
// interpretation of p, every binding of x and y), so that equality atoms
// stay consistent with the relation atoms they share variables with.
func modelAssignments(t *testing.T, sig *term.Signature, r *atoms.Restricted) []assignment {
	t.Helper()
	var out []assignment
	seen := map[string]struct{}{}
	for card := 1; card <= 2; card++ {
		for table := 0; table < 1<<card; table++ {
			values := make([]bool, card)
			for i := range values {
				values[i] = table&(1<<i) != 0
			}
			m := &module.Model{
				Signature: sig,
				Universe:  []int{card},
				Interp:    map[string]smt.Interpretation{"p": {Shape: []int{card}, Values: values}},
			}
			for x := 0; x < card; x++ {
				for y := 0; y < card; y++ {
					env := module.Env{"x": x, "y": y}
					a := assignment{}
					for _, atom := range r.Atoms {
						v, err := module.Evaluate(atom.Term, m, env)
						require.NoError(t, err)
						a[atom.ID] = v
					}
					if _, dup := seen[a.key()]; dup {
						continue
					}
					seen[a.key()] = struct{}{}
					out = append(out, a)
				}
			}
		}
	}
	return out
}

func cubeOf(a assignment) []atoms.Literal {
	ids := make([]int, 0, len(a))
	for id := range a {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	cube := make([]atoms.Literal, len(ids))
	for i, id := range ids {
		cube[i] = atoms.Literal{AtomID: id, Positive: a[id]}
	}
	return cube
}

func litHolds(a assignment, l atoms.Literal) bool { return a[l.AtomID] == l.Positive }

// evalBase interprets a base under an assignment. The strongest base of
// each family (the empty clause set, the empty disjunction) evaluates to
// false, matching its role as bottom in the weakening lattice.
func evalBase(base any, a assignment) bool {
	switch b := base.(type) {
	case CNFBase:
		if len(b) == 0 {
			return false
		}
		for _, clause := range b {
			ok := false
			for _, lit := range clause {
				if litHolds(a, lit) {
					ok = true
					break
				}
			}
			if !ok {
				return false
			}
		}
		return true
	case PDnfBase:
		for _, lit := range b.Units {
			if litHolds(a, lit) {
				return true
			}
		}
		for _, cube := range b.NonUnits {
			all := true
			for _, lit := range cube {
				if !litHolds(a, lit) {
					all = false
					break
				}
			}
			if all {
				return true
			}
		}
		return false
	default:
		panic(fmt.Sprintf("unexpected base type %T", base))
	}
}

func semImplies(stronger, weaker any, asgs []assignment) bool {
	for _, a := range asgs {
		if evalBase(stronger, a) && !evalBase(weaker, a) {
			return false
		}
	}
	return true
}

func propertyDomains() []Domain {
	return []Domain{
		&CNFDomain{MaxClauses: 2, MaxClauseSize: 2},
		&PDnfDomain{MaxCubes: 2, MaxCubeSize: 2, MaxNonUnit: 1},
		&PDnfNaiveDomain{MaxCubes: 2, MaxCubeSize: 2},
	}
}

// TestWeakenAdmitsCounterexampleAndIsImplied checks the weakening law over
// the reachable portion of every domain: each result of weaken(b, c) must
// hold in the model c was derived from, and must be implied by b, across
// every consistent assignment of the atom space.
func TestWeakenAdmitsCounterexampleAndIsImplied(t *testing.T) {
	sig, r := propertyFixture(t)
	asgs := modelAssignments(t, sig, r)
	noIgnore := func(any) bool { return false }

	for _, d := range propertyDomains() {
		t.Run(d.Kind().String(), func(t *testing.T) {
			frontier := []any{d.Strongest()}
			seen := map[string]struct{}{canonicalBaseKey(d, r, d.Strongest()): {}}
			for len(frontier) > 0 && len(seen) < 300 {
				var next []any
				for _, b := range frontier {
					for _, a := range asgs {
						for _, w := range d.Weaken(b, r, cubeOf(a), noIgnore) {
							require.True(t, evalBase(w, a),
								"weakening %v of %v must admit the counterexample %v",
								w, b, a)
							require.True(t, semImplies(b, w, asgs),
								"weakening %v must be implied by its parent %v", w, b)
							k := canonicalBaseKey(d, r, w)
							if _, dup := seen[k]; dup {
								continue
							}
							seen[k] = struct{}{}
							next = append(next, w)
						}
					}
				}
				frontier = next
			}
		})
	}
}

func canonicalBaseKey(d Domain, r *atoms.Restricted, base any) string {
	return d.BaseToTerm(base, r).String()
}

// enumerateBases lists every base of d over the fixture's literal space,
// excluding the strongest base (which admits everything by convention and
// would only add noise to the completeness sweep).
func enumerateBases(d Domain, r *atoms.Restricted) []any {
	var lits []atoms.Literal
	for _, a := range r.Atoms {
		lits = append(lits, atoms.Literal{AtomID: a.ID, Positive: true}, atoms.Literal{AtomID: a.ID, Positive: false})
	}

	switch dom := d.(type) {
	case *CNFDomain:
		var clauses []Clause
		for size := 1; size <= dom.MaxClauseSize; size++ {
			forEachSubsetOfSize(lits, size, func(subset []atoms.Literal) {
				clauses = append(clauses, Clause(cloneLiterals(subset)))
			})
		}
		var out []any
		var rec func(start int, acc CNFBase)
		rec = func(start int, acc CNFBase) {
			if len(acc) > 0 {
				copied := make(CNFBase, len(acc))
				copy(copied, acc)
				out = append(out, copied)
			}
			if len(acc) == dom.MaxClauses {
				return
			}
			for i := start; i < len(clauses); i++ {
				rec(i+1, append(acc, clauses[i]))
			}
		}
		rec(0, nil)
		return out
	default:
		maxCubes, maxCubeSize, maxNonUnit := pdnfBounds(d)
		var nonUniversal []atoms.Literal
		for _, lit := range lits {
			if r.MentionsNonUniversal(r.Atoms[lit.AtomID]) {
				nonUniversal = append(nonUniversal, lit)
			}
		}
		var cubes []Cube
		for size := 2; size <= maxCubeSize; size++ {
			forEachSubsetOfSize(nonUniversal, size, func(subset []atoms.Literal) {
				cubes = append(cubes, Cube(cloneLiterals(subset)))
			})
		}
		var out []any
		var unitSets [][]atoms.Literal
		for size := 0; size <= maxCubes; size++ {
			forEachSubsetOfSize(lits, size, func(subset []atoms.Literal) {
				unitSets = append(unitSets, cloneLiterals(subset))
			})
		}
		for _, units := range unitSets {
			if len(units) > 0 {
				out = append(out, PDnfBase{Units: units})
			}
			for n := 1; n <= maxNonUnit; n++ {
				if len(units)+n > maxCubes || n > len(cubes) {
					continue
				}
				forEachCubeSubset(cubes, n, func(nonUnits []Cube) {
					out = append(out, PDnfBase{Units: cloneLiterals(units), NonUnits: nonUnits})
				})
			}
		}
		return out
	}
}

func pdnfBounds(d Domain) (maxCubes, maxCubeSize, maxNonUnit int) {
	switch dom := d.(type) {
	case *PDnfDomain:
		return dom.MaxCubes, dom.MaxCubeSize, dom.MaxNonUnit
	case *PDnfNaiveDomain:
		return dom.MaxCubes, dom.MaxCubeSize, 1
	default:
		panic(fmt.Sprintf("unexpected domain type %T", d))
	}
}

func forEachCubeSubset(cubes []Cube, size int, f func([]Cube)) {
	var rec func(start int, acc []Cube)
	rec = func(start int, acc []Cube) {
		if len(acc) == size {
			out := make([]Cube, size)
			copy(out, acc)
			f(out)
			return
		}
		for i := start; i < len(cubes); i++ {
			rec(i+1, append(acc, cubes[i]))
		}
	}
	rec(0, nil)
}

// TestWeakenRelativeCompleteness sweeps every (base, counterexample) pair of
// each domain and flags — via the test log, not a failure — any weaker base
// admitting the counterexample that no weakening result implies. Whether
// every family fully satisfies relative completeness (in particular the
// naive pDNF composition, which fixes non_unit <= 1) is an open property of
// the search strategy: counterexamples here are reported for inspection
// rather than silently accepted or treated as regressions.
func TestWeakenRelativeCompleteness(t *testing.T) {
	sig, r := propertyFixture(t)
	asgs := modelAssignments(t, sig, r)
	noIgnore := func(any) bool { return false }

	for _, d := range propertyDomains() {
		t.Run(d.Kind().String(), func(t *testing.T) {
			bases := enumerateBases(d, r)
			gaps := 0
			for _, b := range bases {
				for _, a := range asgs {
					if evalBase(b, a) {
						continue // already admits the model, weakening not needed
					}
					results := d.Weaken(b, r, cubeOf(a), noIgnore)
					for _, target := range bases {
						if !semImplies(b, target, asgs) || !evalBase(target, a) {
							continue
						}
						reached := false
						for _, w := range results {
							if semImplies(w, target, asgs) {
								reached = true
								break
							}
						}
						if !reached {
							gaps++
							if gaps <= 5 {
								t.Logf("weakening of %v against %v misses admissible base %v",
									b, cubeOf(a), target)
							}
						}
					}
				}
			}
			if gaps > 0 {
				t.Logf("%s: %d relative-completeness gaps over %d bases",
					d.Kind(), gaps, len(bases))
			}
		})
	}
}
