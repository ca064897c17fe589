package atoms

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/operator-framework/qalpha/internal/term"
)

func lockSignature(t *testing.T) *term.Signature {
	t.Helper()
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "lock", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: true}},
	)
	require.NoError(t, err)
	return sig
}

func TestEnumerateBuildsRelationAtomsAcrossStates(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{{Sort: term.Sort{Name: "Node"}, Name: "x"}}
	set := Enumerate(sig, binders, 2)

	var sawUnprimed, sawPrimed bool
	for _, a := range set.Atoms {
		app, ok := a.Term.(term.App)
		if !ok {
			continue
		}
		require.Equal(t, "lock", app.Relation)
		switch app.Primes {
		case 0:
			sawUnprimed = true
		case 1:
			sawPrimed = true
		}
	}
	require.True(t, sawUnprimed)
	require.True(t, sawPrimed)
}

func TestEnumerateImmutableRelationHasNoPrimedCopy(t *testing.T) {
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "frozen", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: false}},
	)
	require.NoError(t, err)
	binders := []term.Binder{{Sort: term.Sort{Name: "Node"}, Name: "x"}}
	set := Enumerate(sig, binders, 3)
	for _, a := range set.Atoms {
		app := a.Term.(term.App)
		require.Zero(t, app.Primes)
	}
}

func TestEnumerateAddsEqualityAtomsBetweenDistinctSameSortVars(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{
		{Sort: term.Sort{Name: "Node"}, Name: "x"},
		{Sort: term.Sort{Name: "Node"}, Name: "y"},
	}
	set := Enumerate(sig, binders, 1)

	var eqCount int
	for _, a := range set.Atoms {
		if a.IsEqualOf {
			eqCount++
			require.ElementsMatch(t, []string{"x", "y"}, a.Vars)
		}
	}
	require.Equal(t, 1, eqCount)
}

func TestEnumerateDeduplicatesByRenderedTerm(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{{Sort: term.Sort{Name: "Node"}, Name: "x"}}
	set := Enumerate(sig, binders, 1)
	seen := map[string]bool{}
	for _, a := range set.Atoms {
		key := a.Term.String()
		require.False(t, seen[key], "duplicate atom term %s", key)
		seen[key] = true
	}
}

func TestToTermNegatesPlainAtomWithNot(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{{Sort: term.Sort{Name: "Node"}, Name: "x"}}
	set := Enumerate(sig, binders, 1)
	lit := Literal{AtomID: set.Atoms[0].ID, Positive: false}
	out := set.ToTerm(lit)
	_, ok := out.(term.Not)
	require.True(t, ok)
}

func TestToTermNegatesEqualityWithNeq(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{
		{Sort: term.Sort{Name: "Node"}, Name: "x"},
		{Sort: term.Sort{Name: "Node"}, Name: "y"},
	}
	set := Enumerate(sig, binders, 1)
	var eqID int
	for _, a := range set.Atoms {
		if a.IsEqualOf {
			eqID = a.ID
		}
	}
	out := set.ToTerm(Literal{AtomID: eqID, Positive: false})
	_, ok := out.(term.Neq)
	require.True(t, ok)
}

func TestLiteralNegateFlipsPolarityOnly(t *testing.T) {
	l := Literal{AtomID: 4, Positive: true}
	n := l.Negate()
	require.Equal(t, 4, n.AtomID)
	require.False(t, n.Positive)
}

func TestRestrictedMentionsNonUniversal(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{
		{Sort: term.Sort{Name: "Node"}, Name: "x"},
		{Sort: term.Sort{Name: "Node"}, Name: "y"},
	}
	set := Enumerate(sig, binders, 1)
	r := &Restricted{Set: set, NonUniversal: map[string]struct{}{"y": {}}}

	var withY, withoutY Atom
	for _, a := range set.Atoms {
		if !a.IsEqualOf {
			if contains(a.Vars, "y") {
				withY = a
			} else {
				withoutY = a
			}
		}
	}
	require.True(t, r.MentionsNonUniversal(withY))
	require.False(t, r.MentionsNonUniversal(withoutY))
}

func TestRestrictedSubstituteRenamesToExistingAtom(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{
		{Sort: term.Sort{Name: "Node"}, Name: "x"},
		{Sort: term.Sort{Name: "Node"}, Name: "y"},
	}
	set := Enumerate(sig, binders, 1)
	r := &Restricted{Set: set, NonUniversal: map[string]struct{}{}}

	var withX Atom
	for _, a := range set.Atoms {
		if !a.IsEqualOf && contains(a.Vars, "x") {
			withX = a
			break
		}
	}
	lit := Literal{AtomID: withX.ID, Positive: true}
	renamed, ok := r.Substitute(lit, term.Substitution{"x": term.Ident{Name: "y"}})
	require.True(t, ok)
	require.NotEqual(t, lit.AtomID, renamed.AtomID)
}

func TestRestrictedSubstituteFailsWhenTargetAtomUndeclared(t *testing.T) {
	sig := lockSignature(t)
	binders := []term.Binder{{Sort: term.Sort{Name: "Node"}, Name: "x"}}
	set := Enumerate(sig, binders, 1)
	r := &Restricted{Set: set, NonUniversal: map[string]struct{}{}}
	lit := Literal{AtomID: set.Atoms[0].ID, Positive: true}
	_, ok := r.Substitute(lit, term.Substitution{"x": term.Ident{Name: "unknown-var"}})
	require.False(t, ok)
}

func contains(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}
