package frame

import "sort"

// SeedFrontier installs the current weakest set as the frontier — called
// once init_cycle converges (no init-CEX found for any candidate) and the
// frame is ready to begin trans_cycle.
func (f *Frame) SeedFrontier() {
	ids := make([]int, 0, f.weakest.Len())
	for _, l := range f.weakest.Snapshot() {
		ids = append(ids, l.ID)
	}
	sort.Ints(ids)
	f.frontier = ids
}

// AdvanceFrontier compares the frontier to the current weakest set once
// trans_cycle can no longer find a CTI. grow enables the Gradual policy's
// forced single-parent drop when no parent has zero unique children on its
// own. Returns false when no frontier lemma was weakened. Otherwise, under
// the Eager policy it returns true; under the Gradual policy it returns
// true only when a dropped parent had participated in some blocking core.
func (f *Frame) AdvanceFrontier(grow bool) bool {
	var weakened []int
	for _, id := range f.frontier {
		if _, ok := f.weakest.Get(id); !ok {
			weakened = append(weakened, id)
		}
	}
	if len(weakened) == 0 {
		return false
	}
	if !f.gradualAdvance {
		return f.advanceEager(weakened)
	}
	return f.advanceGradual(weakened, grow)
}

// advanceEager drops every weakened parent and installs every surviving
// child not already present.
func (f *Frame) advanceEager(weakened []int) bool {
	weakenedSet := make(map[int]struct{}, len(weakened))
	for _, id := range weakened {
		weakenedSet[id] = struct{}{}
	}
	var newFrontier []int
	seen := map[int]struct{}{}
	for _, id := range f.frontier {
		if _, w := weakenedSet[id]; w {
			continue
		}
		newFrontier = append(newFrontier, id)
		seen[id] = struct{}{}
	}
	for _, id := range weakened {
		f.evictBlocked(id)
		for _, childID := range f.parentToChildren[id] {
			if _, ok := f.weakest.Get(childID); !ok {
				continue
			}
			if _, dup := seen[childID]; dup {
				continue
			}
			seen[childID] = struct{}{}
			newFrontier = append(newFrontier, childID)
		}
		delete(f.parentToChildren, id)
	}
	sort.Ints(newFrontier)
	f.frontier = newFrontier
	return true
}

// advanceGradual implements the bipartite parent/child drop policy: a
// parent with no unique (unshared) live child is dropped for free so long
// as it contributed to some blocking core; if no such parent exists and
// grow is enabled, the participating parent with the fewest unique
// children is force-dropped and its children installed.
func (f *Frame) advanceGradual(weakened []int, grow bool) bool {
	live := make(map[int]struct{}, len(weakened))
	for _, id := range weakened {
		live[id] = struct{}{}
	}

	childrenOf := func(p int) []int {
		var out []int
		for _, c := range f.parentToChildren[p] {
			if _, ok := f.weakest.Get(c); ok {
				out = append(out, c)
			}
		}
		return out
	}
	uniqueChildren := func(p int) []int {
		var out []int
		for _, c := range childrenOf(p) {
			shared := false
			for other := range live {
				if other == p {
					continue
				}
				for _, oc := range childrenOf(other) {
					if oc == c {
						shared = true
						break
					}
				}
				if shared {
					break
				}
			}
			if !shared {
				out = append(out, c)
			}
		}
		return out
	}
	participated := func(p int) bool { return len(f.coreToBlocked[p]) > 0 }

	dropped := map[int]struct{}{}
	var toInsert []int
	changed := false
	for {
		progressed := false
		for p := range live {
			if len(uniqueChildren(p)) == 0 && participated(p) {
				dropped[p] = struct{}{}
				delete(live, p)
				changed = true
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}

	if !changed && grow {
		best, bestCount := -1, -1
		for p := range live {
			if !participated(p) {
				continue
			}
			n := len(uniqueChildren(p))
			if bestCount == -1 || n < bestCount {
				best, bestCount = p, n
			}
		}
		if best != -1 {
			toInsert = append(toInsert, uniqueChildren(best)...)
			dropped[best] = struct{}{}
			delete(live, best)
			changed = true
		}
	}

	if !changed {
		return false
	}

	for p := range dropped {
		f.evictBlocked(p)
		delete(f.parentToChildren, p)
	}

	var newFrontier []int
	seen := map[int]struct{}{}
	for _, id := range f.frontier {
		if _, w := dropped[id]; w {
			continue
		}
		if _, stillWeakened := live[id]; stillWeakened {
			continue
		}
		if _, ok := f.weakest.Get(id); !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		newFrontier = append(newFrontier, id)
	}
	for _, c := range toInsert {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		newFrontier = append(newFrontier, c)
	}
	sort.Ints(newFrontier)
	f.frontier = newFrontier
	return true
}
