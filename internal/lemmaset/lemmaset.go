// Package lemmaset implements the associative lemma store and its
// subsumption index: insert, insert-minimized, get-subsuming,
// get-subsumed, each keyed by (prefix, body) pairs with a stable integer
// id per entry.
//
// Grounded on spec.md §3's LemmaSet data model and §4.4's algorithm, using
// the "translation table keyed by a dense id" idiom the teacher's
// pkg/controller/registry/resolver/solver/lit_mapping.go applies to SAT
// literals — here applied to atom-occurrence-based subsumption pruning.
package lemmaset

import (
	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/qf"
	"github.com/operator-framework/qalpha/internal/term"
)

// Lemma is a pair (prefix, body); Body holds one of qf.CNFBase,
// qf.PDnfBase depending on which Domain produced it.
type Lemma struct {
	ID     int
	Prefix *qf.Prefix
	Domain qf.Domain
	Body   any
}

// ToTerm renders the lemma as a fully quantified term.
func (l Lemma) ToTerm(r *atoms.Restricted) term.Term {
	return l.Prefix.ToQuantified(l.Domain.BaseToTerm(l.Body, r))
}

// Set is the associative store: id -> lemma, plus an inverted index from
// atom id to the lemma ids whose body mentions it, narrowing
// GetSubsuming/GetSubsumed candidate search the way a SAT solver's
// literal-to-constraint map narrows unit propagation.
type Set struct {
	Restricted *atoms.Restricted

	byID             map[int]Lemma
	nextID           int
	byAtomOccurrence map[int][]int
}

// New builds an empty Set over the given restricted atom space.
func New(r *atoms.Restricted) *Set {
	return &Set{Restricted: r, byID: map[int]Lemma{}, byAtomOccurrence: map[int][]int{}}
}

// Get looks up a lemma by id.
func (s *Set) Get(id int) (Lemma, bool) {
	l, ok := s.byID[id]
	return l, ok
}

// All returns every stored lemma, in unspecified order.
func (s *Set) All() []Lemma {
	out := make([]Lemma, 0, len(s.byID))
	for _, l := range s.byID {
		out = append(out, l)
	}
	return out
}

// Len returns the number of stored lemmas.
func (s *Set) Len() int { return len(s.byID) }

// Insert assigns a fresh monotone id to (prefix, domain, body) and stores
// it unconditionally.
func (s *Set) Insert(prefix *qf.Prefix, domain qf.Domain, body any) int {
	id := s.nextID
	s.nextID++
	l := Lemma{ID: id, Prefix: prefix, Domain: domain, Body: body}
	s.byID[id] = l
	for _, atomID := range atomsMentioned(domain, body) {
		s.byAtomOccurrence[atomID] = append(s.byAtomOccurrence[atomID], id)
	}
	return id
}

// Remove deletes a lemma by id, updating the inverted index.
func (s *Set) Remove(id int) {
	l, ok := s.byID[id]
	if !ok {
		return
	}
	for _, atomID := range atomsMentioned(l.Domain, l.Body) {
		ids := s.byAtomOccurrence[atomID]
		for i, other := range ids {
			if other == id {
				s.byAtomOccurrence[atomID] = append(ids[:i], ids[i+1:]...)
				break
			}
		}
	}
	delete(s.byID, id)
}

// InsertMinimized first checks GetSubsuming; if any existing lemma already
// subsumes the candidate, insertion is a no-op. Otherwise it inserts the
// candidate and removes every stored lemma the candidate subsumes.
func (s *Set) InsertMinimized(prefix *qf.Prefix, domain qf.Domain, body any) (id int, inserted bool) {
	if len(s.GetSubsuming(prefix, domain, body)) > 0 {
		return -1, false
	}
	id = s.Insert(prefix, domain, body)
	for _, subsumed := range s.GetSubsumed(prefix, domain, body) {
		if subsumed.ID != id {
			s.Remove(subsumed.ID)
		}
	}
	return id, true
}

// GetSubsuming returns every stored lemma L such that L subsumes
// (prefix, body): L is at least as strong a prefix and its body implies
// the candidate's body under some bound-name permutation.
func (s *Set) GetSubsuming(prefix *qf.Prefix, domain qf.Domain, body any) []Lemma {
	return s.search(prefix, domain, body, func(stored, candidate Lemma) bool {
		return subsumes(s.Restricted, stored, candidate)
	})
}

// GetSubsumed is the dual of GetSubsuming: stored lemmas subsumed by the
// candidate.
func (s *Set) GetSubsumed(prefix *qf.Prefix, domain qf.Domain, body any) []Lemma {
	return s.search(prefix, domain, body, func(stored, candidate Lemma) bool {
		return subsumes(s.Restricted, candidate, stored)
	})
}

func (s *Set) search(prefix *qf.Prefix, domain qf.Domain, body any, rel func(stored, candidate Lemma) bool) []Lemma {
	candidate := Lemma{ID: -1, Prefix: prefix, Domain: domain, Body: body}
	candidateIDs := candidateSet(s, domain, body)
	var out []Lemma
	for id := range candidateIDs {
		stored := s.byID[id]
		if rel(stored, candidate) {
			out = append(out, stored)
		}
	}
	return out
}

// candidateSet narrows the search to lemmas sharing at least one atom with
// body, falling back to a full scan when the body mentions no atoms (the
// trivial lemma, which every prefix-compatible lemma might subsume or be
// subsumed by).
func candidateSet(s *Set, domain qf.Domain, body any) map[int]struct{} {
	atomIDs := atomsMentioned(domain, body)
	out := map[int]struct{}{}
	if len(atomIDs) == 0 {
		for id := range s.byID {
			out[id] = struct{}{}
		}
		return out
	}
	for _, atomID := range atomIDs {
		for _, id := range s.byAtomOccurrence[atomID] {
			out[id] = struct{}{}
		}
	}
	return out
}

func atomsMentioned(domain qf.Domain, body any) []int {
	seen := map[int]struct{}{}
	var add func(lit atoms.Literal)
	add = func(lit atoms.Literal) { seen[lit.AtomID] = struct{}{} }
	switch b := body.(type) {
	case qf.CNFBase:
		for _, clause := range b {
			for _, lit := range clause {
				add(lit)
			}
		}
	case qf.PDnfBase:
		for _, lit := range b.Units {
			add(lit)
		}
		for _, cube := range b.NonUnits {
			for _, lit := range cube {
				add(lit)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

// subsumes implements spec.md §4.4's quantified subsumption test: L
// subsumes M iff their prefixes have identical block shape (L may
// strengthen any existential block of M to universal) and there exists a
// per-block bound-name permutation under which L's substituted body
// subsumes M's body at the QF level. The search streams permutations and
// stops at the first success, per the §9 design note.
func subsumes(r *atoms.Restricted, l, m Lemma) bool {
	if l.Domain.Kind() != m.Domain.Kind() {
		return false
	}
	if !l.Prefix.Stronger(m.Prefix) {
		return false
	}
	found := false
	for sub := range qf.Permutations(l.Prefix, m.Prefix) {
		renamed, ok := l.Domain.Substitute(l.Body, r, sub)
		if !ok {
			continue
		}
		if l.Domain.Contains(renamed, m.Body) {
			found = true
			break
		}
	}
	return found
}

// WeakenSet is the "currently weakest candidates" store the induction
// frame mutates during a weakening round. It wraps Set with a Snapshot
// method returning a read-only copy consumed by parallel worker
// goroutines, mirroring the teacher's evolver.go
// Generation.Operators().Snapshot() idiom for exactly the same "don't
// mutate shared state mid-batch" reason.
type WeakenSet struct {
	*Set
}

// NewWeakenSet builds an empty WeakenSet.
func NewWeakenSet(r *atoms.Restricted) *WeakenSet {
	return &WeakenSet{Set: New(r)}
}

// Snapshot returns a read-only copy of the currently stored lemmas, safe
// for concurrent readers while the set is mutated by the owning goroutine.
func (w *WeakenSet) Snapshot() []Lemma {
	return w.All()
}
