package qf

import (
	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/term"
)

// PDnfDomain is the canonical pDNF lemma-QF family: a pair of (unit
// literals, non-unit cubes), bounded by MaxCubes, MaxCubeSize, and
// MaxNonUnit, normalized so every non-unit cube has length > 1 and
// mentions at least one non-universal variable.
//
// Grounded on inference/src/lemma.rs's LemmaPDnf and spec.md §4.3's three
// independent, unioned weakening moves.
type PDnfDomain struct {
	MaxCubes    int
	MaxCubeSize int
	MaxNonUnit  int
}

func (d *PDnfDomain) Kind() Kind { return KindPDnf }

func (d *PDnfDomain) BaseFromClause(clause []atoms.Literal) any {
	if len(clause) <= 1 {
		return PDnfBase{Units: cloneLiterals(clause)}
	}
	return PDnfBase{NonUnits: []Cube{Cube(cloneLiterals(clause))}}
}

func (d *PDnfDomain) Strongest() any { return PDnfBase{} } // the empty disjunction: ⊥

func (d *PDnfDomain) Substitute(base any, r *atoms.Restricted, sub term.Substitution) (any, bool) {
	b := base.(PDnfBase)
	units := make([]atoms.Literal, len(b.Units))
	for i, lit := range b.Units {
		nl, ok := r.Substitute(lit, sub)
		if !ok {
			return nil, false
		}
		units[i] = nl
	}
	nonUnits := make([]Cube, len(b.NonUnits))
	for i, cube := range b.NonUnits {
		newCube := make(Cube, len(cube))
		for j, lit := range cube {
			nl, ok := r.Substitute(lit, sub)
			if !ok {
				return nil, false
			}
			newCube[j] = nl
		}
		nonUnits[i] = newCube
	}
	return PDnfBase{Units: units, NonUnits: nonUnits}, true
}

func (d *PDnfDomain) BaseToTerm(base any, r *atoms.Restricted) term.Term {
	b := base.(PDnfBase)
	var disjuncts []term.Term
	for _, lit := range b.Units {
		disjuncts = append(disjuncts, r.ToTerm(lit))
	}
	for _, cube := range b.NonUnits {
		lits := make([]term.Term, len(cube))
		for i, lit := range cube {
			lits[i] = r.ToTerm(lit)
		}
		disjuncts = append(disjuncts, term.And{Xs: lits})
	}
	if len(disjuncts) == 0 {
		// the strongest base: an empty (or) is not valid SMT-LIB
		return term.BoolLit{Value: false}
	}
	return term.Or{Xs: disjuncts}
}

// Weaken applies the three moves of spec.md §4.3, independently, and
// unions the results:
//  1. Add unit literal l from cube (never a negated equality, and never
//     when l's dual is already a unit, which would make the disjunction a
//     tautology): any non-unit cube containing l itself is absorbed by the
//     new unit and removed; l's dual is dropped from the remaining cubes;
//     l joins the units — only if the total cube count stays within
//     MaxCubes and every remaining non-unit cube keeps length >= 2 (a cube
//     that would shrink below 2 disallows the move).
//  2. Intersect an existing non-unit cube with cube, when the result has
//     length >= 2.
//  3. Add a new non-unit cube drawn from cube (size exactly
//     min(MaxCubeSize, len(cube))), restricted to atoms mentioning a
//     non-universal variable, subject to the MaxNonUnit and MaxCubes caps.
func (d *PDnfDomain) Weaken(base any, r *atoms.Restricted, cube []atoms.Literal, ignore func(any) bool) []any {
	b := base.(PDnfBase)
	var out []any
	add := func(cand PDnfBase) {
		if !ignore(cand) {
			out = append(out, cand)
		}
	}

	// Move 1: add unit literal.
	for _, lit := range cube {
		if r.Atoms[lit.AtomID].IsEqualOf && !lit.Positive {
			continue // negated equality never becomes a unit
		}
		dual := lit.Negate()
		if containsLiteral(b.Units, dual) {
			continue // would make the unit set a tautology
		}
		admissible := true
		var survivors []Cube
		for _, nc := range b.NonUnits {
			if containsLiteral(nc, lit) {
				continue // absorbed by the new unit
			}
			trimmed := removeLiteral(nc, dual)
			if len(trimmed) < 2 {
				admissible = false
				break
			}
			survivors = append(survivors, Cube(trimmed))
		}
		if !admissible {
			continue
		}
		newUnits := dedupLiterals(append(cloneLiterals(b.Units), lit))
		if len(newUnits)+len(survivors) <= d.MaxCubes {
			add(PDnfBase{Units: newUnits, NonUnits: survivors})
		}
	}

	// Move 2: intersect an existing non-unit cube with cube.
	for i, nc := range b.NonUnits {
		inter := intersectCube(nc, cube)
		if len(inter) < 2 {
			continue
		}
		newNonUnits := make([]Cube, len(b.NonUnits))
		copy(newNonUnits, b.NonUnits)
		newNonUnits[i] = inter
		add(PDnfBase{Units: cloneLiterals(b.Units), NonUnits: newNonUnits})
	}

	// Move 3: add a brand new non-unit cube drawn from cube.
	if len(b.NonUnits) < d.MaxNonUnit && len(b.Units)+len(b.NonUnits)+1 <= d.MaxCubes {
		size := d.MaxCubeSize
		if len(cube) < size {
			size = len(cube)
		}
		if size >= 2 {
			var restricted []atoms.Literal
			for _, lit := range cube {
				if r.MentionsNonUniversal(r.Atoms[lit.AtomID]) {
					restricted = append(restricted, lit)
				}
			}
			if len(restricted) >= size {
				forEachSubsetOfSize(restricted, size, func(subset []atoms.Literal) {
					newNonUnits := append(append([]Cube{}, b.NonUnits...), Cube(subset))
					add(PDnfBase{Units: cloneLiterals(b.Units), NonUnits: newNonUnits})
				})
			}
		}
	}

	return out
}

func intersectCube(a Cube, b []atoms.Literal) Cube {
	var out Cube
	for _, lit := range a {
		if containsLiteral(b, lit) {
			out = append(out, lit)
		}
	}
	return out
}

func dedupLiterals(lits []atoms.Literal) []atoms.Literal {
	seen := map[atoms.Literal]struct{}{}
	var out []atoms.Literal
	for _, l := range lits {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Contains reports whether smaller (as a disjunction) implies larger: every
// disjunct of smaller must imply some disjunct of larger, i.e. be a
// superset of it (a stronger conjunction implies a weaker one).
func (d *PDnfDomain) Contains(smaller, larger any) bool {
	s, l := smaller.(PDnfBase), larger.(PDnfBase)
	sDisjuncts := disjunctsOf(s)
	lDisjuncts := disjunctsOf(l)
	for _, sd := range sDisjuncts {
		found := false
		for _, ld := range lDisjuncts {
			if isSupersetLits(sd, ld) {
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

func disjunctsOf(b PDnfBase) [][]atoms.Literal {
	out := make([][]atoms.Literal, 0, len(b.Units)+len(b.NonUnits))
	for _, u := range b.Units {
		out = append(out, []atoms.Literal{u})
	}
	for _, nc := range b.NonUnits {
		out = append(out, []atoms.Literal(nc))
	}
	return out
}

func isSupersetLits(big, small []atoms.Literal) bool {
	for _, lit := range small {
		if !containsLiteral(big, lit) {
			return false
		}
	}
	return true
}

func (d *PDnfDomain) ApproxSpaceSize() int {
	return pow(d.MaxCubeSize, d.MaxNonUnit) * (d.MaxCubes + 1)
}

func (d *PDnfDomain) SubSpaces() []Domain {
	var out []Domain
	for cubes := d.MaxCubes; cubes >= 1; cubes-- {
		for size := d.MaxCubeSize; size >= 2; size-- {
			for nonUnit := d.MaxNonUnit; nonUnit >= 0; nonUnit-- {
				if cubes == d.MaxCubes && size == d.MaxCubeSize && nonUnit == d.MaxNonUnit {
					continue
				}
				out = append(out, &PDnfDomain{MaxCubes: cubes, MaxCubeSize: size, MaxNonUnit: nonUnit})
			}
		}
	}
	return out
}
