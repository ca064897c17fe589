package lemmaset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/qf"
	"github.com/operator-framework/qalpha/internal/smt"
	"github.com/operator-framework/qalpha/internal/term"
)

func testRestricted(t *testing.T) (*atoms.Restricted, term.Binder) {
	t.Helper()
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "lock", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: true}},
	)
	require.NoError(t, err)
	binder := term.Binder{Sort: term.Sort{Name: "Node"}, Name: "n"}
	set := atoms.Enumerate(sig, []term.Binder{binder}, 1)
	return &atoms.Restricted{Set: set, NonUniversal: map[string]struct{}{}}, binder
}

func lockLiteral(t *testing.T, r *atoms.Restricted, positive bool) atoms.Literal {
	t.Helper()
	for _, a := range r.Atoms {
		if !a.IsEqualOf {
			return atoms.Literal{AtomID: a.ID, Positive: positive}
		}
	}
	t.Fatal("no relation atom found")
	return atoms.Literal{}
}

func forallPrefix(b term.Binder) *qf.Prefix {
	return &qf.Prefix{Blocks: []qf.Block{{Quantifier: term.Forall, Sort: b.Sort, Vars: []string{b.Name}}}}
}

func TestInsertAndGet(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)
	body := domain.BaseFromClause([]atoms.Literal{lit})

	id := s.Insert(forallPrefix(b), domain, body)
	got, ok := s.Get(id)
	require.True(t, ok)
	require.Equal(t, body, got.Body)
	require.Equal(t, 1, s.Len())
}

func TestRemoveClearsEntryAndIndex(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)
	id := s.Insert(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit}))

	s.Remove(id)
	_, ok := s.Get(id)
	require.False(t, ok)
	require.Equal(t, 0, s.Len())
	require.Empty(t, s.GetSubsuming(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit})))
}

func TestGetSubsumingFindsStrongerStoredLemma(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)

	// The two-clause body {lit} /\ {dual} implies the unit clause {lit};
	// store the stronger body and look for it as a subsumer of the weaker
	// candidate.
	strongBody := qf.CNFBase{qf.Clause{lit}, qf.Clause{lit.Negate()}}
	s.Insert(forallPrefix(b), domain, strongBody)

	weakBody := domain.BaseFromClause([]atoms.Literal{lit})
	subsuming := s.GetSubsuming(forallPrefix(b), domain, weakBody)
	require.Len(t, subsuming, 1)
	require.Empty(t, s.GetSubsumed(forallPrefix(b), domain, weakBody))
}

func TestInsertMinimizedSkipsWhenAlreadySubsumed(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)
	strongBody := qf.CNFBase{qf.Clause{lit}, qf.Clause{lit.Negate()}}
	s.Insert(forallPrefix(b), domain, strongBody)

	weakBody := domain.BaseFromClause([]atoms.Literal{lit})
	id, inserted := s.InsertMinimized(forallPrefix(b), domain, weakBody)
	require.False(t, inserted)
	require.Equal(t, -1, id)
	require.Equal(t, 1, s.Len())
}

func TestInsertMinimizedEvictsSubsumedEntries(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)

	weakBody := domain.BaseFromClause([]atoms.Literal{lit})
	s.Insert(forallPrefix(b), domain, weakBody)
	require.Equal(t, 1, s.Len())

	strongBody := qf.CNFBase{qf.Clause{lit}, qf.Clause{lit.Negate()}}
	id, inserted := s.InsertMinimized(forallPrefix(b), domain, strongBody)
	require.True(t, inserted)
	require.Equal(t, 1, s.Len(), "the new lemma evicts the strictly weaker one it subsumes")
	_, ok := s.Get(id)
	require.True(t, ok)
}

// TestSubsumptionImpliesSemanticEntailment sweeps every single-clause lemma
// over a two-variable atom space under both a universal and an existential
// prefix, and checks that whenever the store reports L subsumes M, every
// finite model satisfying L also satisfies M — the soundness half of the
// structural subsumption test (incompleteness is permitted, unsoundness is
// not).
func TestSubsumptionImpliesSemanticEntailment(t *testing.T) {
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "p", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: false}},
	)
	require.NoError(t, err)
	node := term.Sort{Name: "Node"}
	binders := []term.Binder{{Sort: node, Name: "x"}, {Sort: node, Name: "y"}}
	set := atoms.Enumerate(sig, binders, 1)
	r := &atoms.Restricted{Set: set, NonUniversal: map[string]struct{}{}}
	domain := &qf.CNFDomain{MaxClauses: 1, MaxClauseSize: 2}

	var lits []atoms.Literal
	for _, a := range set.Atoms {
		lits = append(lits,
			atoms.Literal{AtomID: a.ID, Positive: true},
			atoms.Literal{AtomID: a.ID, Positive: false})
	}
	var bodies []qf.CNFBase
	for i, l1 := range lits {
		bodies = append(bodies, qf.CNFBase{qf.Clause{l1}})
		for _, l2 := range lits[i+1:] {
			bodies = append(bodies, qf.CNFBase{qf.Clause{l1, l2}})
		}
	}
	prefixes := []*qf.Prefix{
		{Blocks: []qf.Block{{Quantifier: term.Forall, Sort: node, Vars: []string{"x", "y"}}}},
		{Blocks: []qf.Block{{Quantifier: term.Exists, Sort: node, Vars: []string{"x", "y"}}}},
	}

	var models []*module.Model
	for card := 1; card <= 2; card++ {
		for table := 0; table < 1<<card; table++ {
			values := make([]bool, card)
			for i := range values {
				values[i] = table&(1<<i) != 0
			}
			models = append(models, &module.Model{
				Signature: sig,
				Universe:  []int{card},
				Interp:    map[string]smt.Interpretation{"p": {Shape: []int{card}, Values: values}},
			})
		}
	}

	s := New(r)
	for _, p := range prefixes {
		for _, body := range bodies {
			s.Insert(p, domain, body)
		}
	}

	for _, p := range prefixes {
		for _, body := range bodies {
			candidate := p.ToQuantified(domain.BaseToTerm(body, r))
			for _, stored := range s.GetSubsuming(p, domain, body) {
				storedTerm := stored.ToTerm(r)
				for _, m := range models {
					lv, err := module.Evaluate(storedTerm, m, module.Env{})
					require.NoError(t, err)
					if !lv {
						continue
					}
					mv, err := module.Evaluate(candidate, m, module.Env{})
					require.NoError(t, err)
					require.True(t, mv,
						"%s subsumes %s but model %v satisfies only the subsumer",
						storedTerm, candidate, m.Interp["p"].Values)
				}
			}
		}
	}
}

func TestAllReturnsEveryStoredLemma(t *testing.T) {
	r, b := testRestricted(t)
	s := New(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)
	s.Insert(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit}))
	s.Insert(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit.Negate()}))
	require.Len(t, s.All(), 2)
}

func TestWeakenSetSnapshotIsIndependentOfSet(t *testing.T) {
	r, b := testRestricted(t)
	w := NewWeakenSet(r)
	domain := &qf.CNFDomain{MaxClauses: 4, MaxClauseSize: 4}
	lit := lockLiteral(t, r, true)
	w.Insert(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit}))

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	w.Insert(forallPrefix(b), domain, domain.BaseFromClause([]atoms.Literal{lit.Negate()}))
	require.Len(t, snap, 1, "snapshot must not observe later mutation")
	require.Len(t, w.Snapshot(), 2)
}
