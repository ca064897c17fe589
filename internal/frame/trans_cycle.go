package frame

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/operator-framework/qalpha/internal/metrics"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/term"
)

// CTI is a counterexample to induction: a pre/post state pair witnessing
// that candidate (a weakest-set id) is not implied by the transition
// relation assuming the current frontier.
type CTI struct {
	CandidateID int
	Pre, Post   *module.Model
}

// TransCycle scans every weakest-set candidate not already cached in
// blocked, querying trans_cex with the current frontier as guarded
// hypotheses. On the first Sat it cancels the rest of the batch and
// returns that CTI; with no Sat in the batch, an Unknown answer for any
// candidate is returned as a *module.UnknownError; on Unsat for every
// candidate in the batch it caches each as blocked with its translated
// core and returns (nil, nil) — meaning the frontier cannot currently be
// refuted.
func (f *Frame) TransCycle(ctx context.Context, opts module.TransCEXOptions) (*CTI, error) {
	all := f.weakest.Snapshot()
	var todo []int
	byID := map[int]int{} // weakest id -> index into `all`
	for i, l := range all {
		byID[l.ID] = i
		if _, blocked := f.blockedByWeakestID[l.ID]; !blocked {
			todo = append(todo, l.ID)
		}
	}
	if len(todo) == 0 {
		return nil, nil
	}

	frontierIDs := make([]int, 0, len(f.frontier))
	preTerms := make([]term.Term, 0, len(f.frontier))
	for _, id := range f.frontier {
		l, ok := f.weakest.Get(id)
		if !ok {
			continue
		}
		frontierIDs = append(frontierIDs, id)
		preTerms = append(preTerms, l.ToTerm(f.Restricted))
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		candidateID int
		result      module.TransCEXResult
		err         error
	}
	results := make(chan outcome, len(todo))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(len(todo))
	for _, id := range todo {
		id := id
		post := all[byID[id]].ToTerm(f.Restricted)
		g.Go(func() error {
			res, err := f.Module.TransCEX(gctx, preTerms, post, opts)
			results <- outcome{candidateID: id, result: res, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var found *CTI
	var firstErr error
	var unsatOutcomes []outcome
	var unknown *module.UnknownError
	for o := range results {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		switch o.result.Kind {
		case module.CTI:
			if found == nil {
				found = &CTI{CandidateID: o.candidateID, Pre: o.result.Pre, Post: o.result.Post}
				cancel()
			}
		case module.UnsatCoreResult:
			unsatOutcomes = append(unsatOutcomes, o)
		case module.UnknownResult:
			if unknown == nil {
				unknown = &module.UnknownError{Reason: o.result.Reason}
			}
		}
	}
	if found != nil {
		metrics.CTIsFound.Inc()
		return found, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if unknown != nil {
		return nil, unknown
	}

	for _, o := range unsatOutcomes {
		coreIDs := make([]int, 0, len(o.result.CoreIdx))
		for _, idx := range o.result.CoreIdx {
			if idx >= 0 && idx < len(frontierIDs) {
				coreIDs = append(coreIDs, frontierIDs[idx])
			}
		}
		sort.Ints(coreIDs)
		f.recordBlocked(o.candidateID, coreIDs)
	}
	return nil, nil
}

// recordBlocked caches candidateID as blocked with the given supporting
// frontier core, updating both directions of the bipartite index.
func (f *Frame) recordBlocked(candidateID int, coreIDs []int) {
	l, ok := f.weakest.Get(candidateID)
	if !ok {
		return
	}
	blockedID, inserted := f.blocked.InsertMinimized(l.Prefix, l.Domain, l.Body)
	if !inserted {
		return
	}
	f.blockedByWeakestID[candidateID] = blockedID
	core := map[int]struct{}{}
	for _, id := range coreIDs {
		core[id] = struct{}{}
		if f.coreToBlocked[id] == nil {
			f.coreToBlocked[id] = map[int]struct{}{}
		}
		f.coreToBlocked[id][blockedID] = struct{}{}
	}
	f.blockedCore[blockedID] = core
}

// evictBlocked removes every blocked entry whose core mentioned
// frontierID, making its candidate eligible for re-testing.
func (f *Frame) evictBlocked(frontierID int) {
	for blockedID := range f.coreToBlocked[frontierID] {
		f.blocked.Remove(blockedID)
		// A blocked entry's core can span several frontier ids; clean up
		// every co-core's reverse edge, not just frontierID's, so the
		// blocked<->core bijection stays exact.
		for otherID := range f.blockedCore[blockedID] {
			if otherID == frontierID {
				continue
			}
			delete(f.coreToBlocked[otherID], blockedID)
			if len(f.coreToBlocked[otherID]) == 0 {
				delete(f.coreToBlocked, otherID)
			}
		}
		delete(f.blockedCore, blockedID)
		for weakestID, bid := range f.blockedByWeakestID {
			if bid == blockedID {
				delete(f.blockedByWeakestID, weakestID)
			}
		}
	}
	delete(f.coreToBlocked, frontierID)
}
