// Package frame implements the induction frame: the fixpoint search's
// per-domain working state — a weakest-candidate set, the set of lemmas
// confirmed to hold initially, a blocked-lemma table with its supporting
// cores, and the frontier-advancement policy that turns "no more
// transition counterexamples" into a stronger invariant.
//
// Grounded on spec.md §4.5's prose description of InductionFrame
// (init_cycle / weaken / trans_cycle / frontier advancement / trace
// extension), since the Rust InductionFrame source itself was filtered
// from the retrieval pack; its construction signature is still visible at
// inference/src/fixpoint.rs's call site.
package frame

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/lemmaset"
	"github.com/operator-framework/qalpha/internal/metrics"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/qf"
)

// Extend configures trace-extension sampling: after each CTI, sample up
// to width^depth reachable states via simulate_from and weaken against any
// that falsify a weakest-set candidate.
type Extend struct {
	Width int
	Depth int
}

// Frame is one domain's induction search state.
type Frame struct {
	Prefix     *qf.Prefix
	Domain     qf.Domain
	Restricted *atoms.Restricted
	Module     *module.Module
	// SimModule drives ExtendTrace's simulate_from sampling; it may run a
	// different, cheaper solver configuration than Module's induction
	// queries. Defaults to Module when nil.
	SimModule *module.Module
	Log       *log.Entry

	weakest *lemmaset.WeakenSet
	blocked *lemmaset.Set

	// confirmedInitial marks weakest ids already known to hold in every
	// initial state, so a subsequent InitCycle does not re-query them.
	confirmedInitial map[int]struct{}

	// blockedCore maps a blocked lemma id to the set of frontier (weakest)
	// lemma ids whose conjunction formed its unsat core.
	blockedCore map[int]map[int]struct{}
	// coreToBlocked is the inverse: a frontier lemma id to the blocked ids
	// whose core mentions it. Kept as two parallel maps, not pointer
	// cycles, so eviction on frontier shrink is a plain map walk.
	coreToBlocked map[int]map[int]struct{}
	// blockedByWeakestID finds the blocked-set id standing for a given
	// weakest candidate, so repeated trans_cycle scans skip it.
	blockedByWeakestID map[int]int

	// frontier holds the weakest ids currently forming the hypothesis set
	// trans_cycle assumes; it is seeded once init_cycle converges and only
	// changes via AdvanceFrontier.
	frontier []int
	// parentToChildren records, for a weakest id removed by Weaken, the
	// ids of the weakenings that replaced it — the parent/child graph
	// AdvanceFrontier's Gradual policy walks.
	parentToChildren map[int][]int

	gradualAdvance bool
	extend         *Extend
}

// New builds an empty frame over one lemma-QF domain. simModule may be nil,
// in which case ExtendTrace simulates using m itself.
func New(prefix *qf.Prefix, domain qf.Domain, restricted *atoms.Restricted, m, simModule *module.Module, logger *log.Entry, gradualAdvance bool, extend *Extend) *Frame {
	return &Frame{
		Prefix:             prefix,
		Domain:             domain,
		Restricted:         restricted,
		Module:             m,
		SimModule:          simModule,
		Log:                logger,
		weakest:            lemmaset.NewWeakenSet(restricted),
		blocked:            lemmaset.New(restricted),
		confirmedInitial:   map[int]struct{}{},
		blockedCore:        map[int]map[int]struct{}{},
		coreToBlocked:      map[int]map[int]struct{}{},
		blockedByWeakestID: map[int]int{},
		parentToChildren:   map[int][]int{},
		gradualAdvance:     gradualAdvance,
		extend:             extend,
	}
}

// Seed inserts the domain's strongest base (⊥, under the configured
// prefix) as the sole initial candidate of the weakest set.
func (f *Frame) Seed() {
	f.weakest.Insert(f.Prefix, f.Domain, f.Domain.Strongest())
}

// Weakest exposes a read-only snapshot of the currently weakest candidates.
func (f *Frame) Weakest() []lemmaset.Lemma { return f.weakest.Snapshot() }

// Frontier returns the weakest-set lemmas currently forming the frontier,
// in ascending id order for deterministic reporting.
func (f *Frame) Frontier() []lemmaset.Lemma {
	out := make([]lemmaset.Lemma, 0, len(f.frontier))
	for _, id := range f.frontier {
		if l, ok := f.weakest.Get(id); ok {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// IsSafe reports whether the frame has a non-empty, fully-converged
// frontier: every frontier lemma has been proven relatively inductive and
// none remain pending in the blocked-eviction cycle.
func (f *Frame) IsSafe() bool { return len(f.frontier) > 0 && f.weakest.Len() == len(f.frontier) }

// LogInfo logs the frame's current size at Info level and refreshes its
// prometheus gauges, the Go analogue of the reference implementation's
// informal frame.log_info call.
func (f *Frame) LogInfo() {
	metrics.FrameWeakestSize.Set(float64(f.weakest.Len()))
	metrics.FrameFrontierSize.Set(float64(len(f.frontier)))
	metrics.FrameBlockedSize.Set(float64(f.blocked.Len()))

	if f.Log == nil {
		return
	}
	f.Log.WithFields(log.Fields{
		"weakest":  f.weakest.Len(),
		"initial":  len(f.confirmedInitial),
		"blocked":  f.blocked.Len(),
		"frontier": len(f.frontier),
	}).Info("frame: state")
}
