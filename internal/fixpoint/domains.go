package fixpoint

import (
	"github.com/operator-framework/qalpha/internal/config"
	"github.com/operator-framework/qalpha/internal/qf"
	"github.com/operator-framework/qalpha/internal/term"
)

// domainCandidate is one quantifier-prefix × QF-body-sub-space pairing the
// growth schedule can activate.
type domainCandidate struct {
	Prefix          *qf.Prefix
	Domain          qf.Domain
	NumExistentials int
}

// buildTopDomain constructs the widest (least restrictive) domain the
// configured QF body and size bounds admit.
func buildTopDomain(cfg config.Config) qf.Domain {
	switch cfg.QFBody {
	case config.CNF:
		return &qf.CNFDomain{MaxClauses: cfg.Clauses, MaxClauseSize: cfg.ClauseSize}
	case config.PDnfNaive:
		return &qf.PDnfNaiveDomain{MaxCubes: cfg.Cubes, MaxCubeSize: cfg.CubeSize}
	default:
		return &qf.PDnfDomain{MaxCubes: cfg.Cubes, MaxCubeSize: cfg.CubeSize, MaxNonUnit: cfg.NonUnit}
	}
}

// sortCounts is one assignment of forall/exists bound-variable counts per
// sort, used by enumeratePrefixes to build a candidate Prefix.
type sortCounts struct {
	sort          term.Sort
	forall, exist int
}

// enumeratePrefixes builds every prenex prefix (universal blocks outermost,
// existential blocks innermost, one block of each kind per sort) whose
// total bound-variable count is within cfg.MaxQuant, whose existential
// count is within cfg.MaxExistentials, and whose per-sort count is within
// cfg.MaxSameSort.
func enumeratePrefixes(sig *term.Signature, cfg config.Config) []*qf.Prefix {
	var combos [][]sortCounts
	var rec func(i int, acc []sortCounts, total, exist int)
	rec = func(i int, acc []sortCounts, total, exist int) {
		if i == len(sig.Sorts) {
			combos = append(combos, append([]sortCounts{}, acc...))
			return
		}
		s := sig.Sorts[i]
		for same := 0; same <= cfg.MaxSameSort && total+same <= cfg.MaxQuant; same++ {
			for f := 0; f <= same; f++ {
				e := same - f
				if exist+e > cfg.MaxExistentials {
					continue
				}
				rec(i+1, append(acc, sortCounts{sort: s, forall: f, exist: e}), total+same, exist+e)
			}
		}
	}
	rec(0, nil, 0, 0)

	out := make([]*qf.Prefix, 0, len(combos))
	for _, combo := range combos {
		var forallBlocks, existBlocks []qf.Block
		for _, sc := range combo {
			idx := 0
			if sc.forall > 0 {
				vars := make([]string, sc.forall)
				for j := range vars {
					vars[j] = varName(sc.sort, idx)
					idx++
				}
				forallBlocks = append(forallBlocks, qf.Block{Quantifier: term.Forall, Sort: sc.sort, Vars: vars})
			}
			if sc.exist > 0 {
				vars := make([]string, sc.exist)
				for j := range vars {
					vars[j] = varName(sc.sort, idx)
					idx++
				}
				existBlocks = append(existBlocks, qf.Block{Quantifier: term.Exists, Sort: sc.sort, Vars: vars})
			}
		}
		out = append(out, &qf.Prefix{Blocks: append(forallBlocks, existBlocks...)})
	}
	return out
}

func varName(s term.Sort, i int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz"
	suffix := string(letters[i%len(letters)])
	for n := i / len(letters); n > 0; n /= len(letters) {
		suffix += string(letters[(n-1)%len(letters)])
		n = 0
	}
	return s.Name + "_" + suffix
}

func numExistentials(p *qf.Prefix) int {
	n := 0
	for _, b := range p.Blocks {
		if b.Quantifier == term.Exists {
			n += len(b.Vars)
		}
	}
	return n
}

// buildSchedule enumerates every (prefix, domain) candidate and orders it
// by approximate space size, then by existential count, per spec.md §4.6.
// In no-search mode the schedule is a single candidate: the top domain over
// the widest prefix the bounds admit.
func buildSchedule(sig *term.Signature, cfg config.Config) []domainCandidate {
	top := buildTopDomain(cfg)
	prefixes := enumeratePrefixes(sig, cfg)

	if cfg.NoSearch {
		widest := widestPrefix(prefixes)
		if widest == nil {
			widest = &qf.Prefix{}
		}
		return []domainCandidate{{Prefix: widest, Domain: top, NumExistentials: numExistentials(widest)}}
	}

	var out []domainCandidate
	for _, p := range prefixes {
		ne := numExistentials(p)
		subspaces := append([]qf.Domain{top}, top.SubSpaces()...)
		for _, d := range subspaces {
			if cfg.MaxSize > 0 && d.ApproxSpaceSize() > cfg.MaxSize {
				continue
			}
			out = append(out, domainCandidate{Prefix: p, Domain: d, NumExistentials: ne})
		}
	}

	sortCandidates(out)
	return out
}

func widestPrefix(prefixes []*qf.Prefix) *qf.Prefix {
	var best *qf.Prefix
	bestCount := -1
	for _, p := range prefixes {
		count := 0
		for _, b := range p.Blocks {
			count += len(b.Vars)
		}
		if count > bestCount {
			best, bestCount = p, count
		}
	}
	return best
}

func sortCandidates(cands []domainCandidate) {
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0; j-- {
			a, b := cands[j-1], cands[j]
			inOrder := a.Domain.ApproxSpaceSize() < b.Domain.ApproxSpaceSize() ||
				(a.Domain.ApproxSpaceSize() == b.Domain.ApproxSpaceSize() && a.NumExistentials <= b.NumExistentials)
			if inOrder {
				break
			}
			cands[j-1], cands[j] = cands[j], cands[j-1]
		}
	}
}
