package fixpoint

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/operator-framework/qalpha/internal/atoms"
	"github.com/operator-framework/qalpha/internal/config"
	"github.com/operator-framework/qalpha/internal/frame"
	"github.com/operator-framework/qalpha/internal/metrics"
	"github.com/operator-framework/qalpha/internal/module"
	"github.com/operator-framework/qalpha/internal/qf"
	"github.com/operator-framework/qalpha/internal/term"
)

// Defaults returns the qalpha defaults block (FoundFixpoint's `defaults`).
func Defaults() config.Config { return config.Defaults() }

// Result is the outcome of one call to Run: whether the discovered
// invariant is safe, its minimized proof, and reporting metadata.
type Result struct {
	Safe     bool
	Proof    []term.Term
	Size     int
	Domains  int
	Coverage float64
	Elapsed  time.Duration
	Unsafe   *frame.CTI
}

// Run grows the active lemma-QF domain set geometrically (starting at
// cfg.MinDomainSize, multiplying by cfg.GrowthFactor), running every active
// frame to a fixpoint each round. It stops after a safe round when
// cfg.UntilSafe is set, after an unsafe round when cfg.AbortUnsafe is set,
// or once the schedule of candidate domains is exhausted — mirroring inference/src/fixpoint.rs's
// qalpha / qalpha_dynamic / run_qalpha.
func Run(ctx context.Context, cfg *config.Config, m, simModule *module.Module, logger *log.Entry) (*Result, error) {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	start := timeNow()

	schedule := buildSchedule(m.Typed.Signature, *cfg)
	if len(schedule) == 0 {
		return &Result{Safe: true, Proof: nil}, nil
	}

	opts := module.TransCEXOptions{Minimal: cfg.MinimalSMT, Gradual: cfg.GradualSMT}
	var extend *frame.Extend
	if cfg.ExtendWidth > 0 && cfg.ExtendDepth > 0 {
		extend = &frame.Extend{Width: cfg.ExtendWidth, Depth: cfg.ExtendDepth}
	}

	threshold := cfg.MinDomainSize
	var active []domainCandidate
	idx := 0
	var last *Result

	for {
		activeSize := approxSum(active)
		for idx < len(schedule) && (len(active) == 0 || activeSize < threshold) {
			active = append(active, schedule[idx])
			activeSize += schedule[idx].Domain.ApproxSpaceSize()
			idx++
		}
		if len(active) == 0 {
			break
		}

		frames := make([]*frame.Frame, len(active))
		for i, c := range active {
			restricted := restrictedAtoms(m.Typed, c.Prefix)
			frames[i] = frame.New(c.Prefix, c.Domain, restricted, m, simModule, logger, cfg.GradualSMT, extend)
			frames[i].Seed()
		}

		var cti *frame.CTI
		for _, fr := range frames {
			c, err := runFrame(ctx, fr, opts)
			if err != nil {
				return nil, err
			}
			if c != nil {
				cti = c
				if cfg.AbortUnsafe {
					break
				}
			}
		}

		safe := cti == nil
		for _, fr := range frames {
			safe = safe && fr.IsSafe()
		}

		var proof []term.Term
		for _, fr := range frames {
			proof = append(proof, fr.Proof()...)
		}

		result := &Result{
			Safe:    safe,
			Proof:   proof,
			Size:    len(proof),
			Domains: len(active),
			Unsafe:  cti,
			Elapsed: timeNow().Sub(start),
		}
		result.Coverage = invariantCover(m.Typed.Invariants, proof)
		last = result
		metrics.DomainsExplored.Add(float64(len(active)))
		result.Report(logger, false)

		if !safe && cfg.AbortUnsafe {
			break
		}
		if (safe && cfg.UntilSafe) || idx >= len(schedule) {
			break
		}
		threshold *= cfg.GrowthFactor
	}

	return last, nil
}

// runFrame drives one induction frame to a local fixpoint: drain
// init-CEXes, seed the frontier, then alternate trans-CEX draining with
// frontier advancement until neither makes progress. A CTI surviving both
// phases (the frontier cannot advance past it) is returned as the frame's
// counterexample to safety.
func runFrame(ctx context.Context, fr *frame.Frame, opts module.TransCEXOptions) (*frame.CTI, error) {
	for {
		before := weakestIDs(fr)

		for {
			cex, err := fr.InitCycle(ctx)
			if err != nil {
				return nil, err
			}
			if cex == nil {
				break
			}
			if err := fr.Weaken(cex); err != nil {
				return nil, err
			}
		}
		fr.SeedFrontier()
		fr.LogInfo()

		var lastCTI *frame.CTI
		progressed := true
		for progressed {
			progressed = false
			for {
				cti, err := fr.TransCycle(ctx, opts)
				if err != nil {
					return nil, err
				}
				if cti == nil {
					break
				}
				lastCTI = cti
				if err := fr.Weaken(cti.Post); err != nil {
					return nil, err
				}
				if err := fr.ExtendTrace(ctx, cti.Post); err != nil {
					return nil, err
				}
				progressed = true
			}
			if fr.AdvanceFrontier(true) {
				progressed = true
			}
		}

		after := weakestIDs(fr)
		if sameIDs(before, after) {
			if fr.IsSafe() {
				return nil, nil
			}
			return lastCTI, nil
		}
	}
}

func weakestIDs(fr *frame.Frame) map[int]struct{} {
	out := map[int]struct{}{}
	for _, l := range fr.Weakest() {
		out[l.ID] = struct{}{}
	}
	return out
}

func sameIDs(a, b map[int]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if _, ok := b[id]; !ok {
			return false
		}
	}
	return true
}

func approxSum(cands []domainCandidate) int {
	total := 0
	for _, c := range cands {
		total += c.Domain.ApproxSpaceSize()
	}
	return total
}

// restrictedAtoms enumerates the atom set over prefix's binders and marks
// existentially bound variables as non-universal, the input every
// lemma-QF domain needs.
func restrictedAtoms(typed *term.TypedModule, prefix *qf.Prefix) *atoms.Restricted {
	set := atoms.Enumerate(typed.Signature, prefix.Binders(), 1)
	return &atoms.Restricted{Set: set, NonUniversal: prefix.NonUniversalVars()}
}

func timeNow() time.Time { return time.Now() }
