package qf

import (
	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/term"
)

// PDnfNaiveDomain is the restricted pDNF family (non_unit <= 1), grounded
// on spec.md §4.3's "pDNF naive" description: weakening first
// unit-normalizes the base, then applies the canonical family's three
// moves with the non-unit cube count capped at 1.
type PDnfNaiveDomain struct {
	MaxCubes    int
	MaxCubeSize int
}

func (d *PDnfNaiveDomain) Kind() Kind { return KindPDnfNaive }

func (d *PDnfNaiveDomain) canonical() *PDnfDomain {
	return &PDnfDomain{MaxCubes: d.MaxCubes, MaxCubeSize: d.MaxCubeSize, MaxNonUnit: 1}
}

func (d *PDnfNaiveDomain) BaseFromClause(clause []atoms.Literal) any {
	return d.canonical().BaseFromClause(clause)
}

func (d *PDnfNaiveDomain) Strongest() any { return PDnfBase{} }

func (d *PDnfNaiveDomain) Substitute(base any, r *atoms.Restricted, sub term.Substitution) (any, bool) {
	return d.canonical().Substitute(base, r, sub)
}

func (d *PDnfNaiveDomain) BaseToTerm(base any, r *atoms.Restricted) term.Term {
	return d.canonical().BaseToTerm(base, r)
}

// unitNormalize iteratively extracts singleton cubes (cubes of length 1)
// into the unit literal set, the first step of the naive composition.
func unitNormalize(b PDnfBase) PDnfBase {
	units := cloneLiterals(b.Units)
	var nonUnits []Cube
	changed := true
	for changed {
		changed = false
		for _, nc := range b.NonUnits {
			if len(nc) == 1 {
				units = append(units, nc[0])
				changed = true
			} else {
				nonUnits = append(nonUnits, nc)
			}
		}
		b = PDnfBase{Units: units, NonUnits: nonUnits}
		nonUnits = nil
	}
	return PDnfBase{Units: dedupLiterals(units), NonUnits: b.NonUnits}
}

// Weaken unit-normalizes base (singleton cubes become units), then runs
// the canonical domain's Weaken (add-unit, intersect-cube and add-cube
// moves, with MaxNonUnit fixed at 1) over the result, dropping duplicate
// weakenings.
func (d *PDnfNaiveDomain) Weaken(base any, r *atoms.Restricted, cube []atoms.Literal, ignore func(any) bool) []any {
	b := unitNormalize(base.(PDnfBase))
	inner := d.canonical()

	var results []any
	seen := func(cand any) bool {
		for _, existing := range results {
			if basesEqual(existing.(PDnfBase), cand.(PDnfBase)) {
				return true
			}
		}
		return ignore(cand)
	}

	for _, cand := range inner.Weaken(b, r, cube, seen) {
		results = append(results, cand)
	}
	return results
}

func basesEqual(a, b PDnfBase) bool {
	if len(a.Units) != len(b.Units) || len(a.NonUnits) != len(b.NonUnits) {
		return false
	}
	for i := range a.Units {
		if a.Units[i] != b.Units[i] {
			return false
		}
	}
	for i := range a.NonUnits {
		if len(a.NonUnits[i]) != len(b.NonUnits[i]) {
			return false
		}
		for j := range a.NonUnits[i] {
			if a.NonUnits[i][j] != b.NonUnits[i][j] {
				return false
			}
		}
	}
	return true
}

func (d *PDnfNaiveDomain) Contains(smaller, larger any) bool {
	return d.canonical().Contains(smaller, larger)
}

func (d *PDnfNaiveDomain) ApproxSpaceSize() int {
	return d.canonical().ApproxSpaceSize()
}

func (d *PDnfNaiveDomain) SubSpaces() []Domain {
	var out []Domain
	for cubes := d.MaxCubes; cubes >= 1; cubes-- {
		for size := d.MaxCubeSize; size >= 2; size-- {
			if cubes == d.MaxCubes && size == d.MaxCubeSize {
				continue
			}
			out = append(out, &PDnfNaiveDomain{MaxCubes: cubes, MaxCubeSize: size})
		}
	}
	return out
}
