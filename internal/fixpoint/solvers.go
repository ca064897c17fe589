// Package fixpoint drives the induction frame through a growing sequence
// of lemma-QF domains until a fixpoint is reached or the domain schedule is
// exhausted, reporting the result the way the reference implementation's
// qalpha / qalpha_dynamic / run_qalpha / FoundFixpoint did.
package fixpoint

import (
	"github.com/operator-framework/qalpha/internal/config"
	"github.com/operator-framework/qalpha/internal/smt"
)

// backendFor resolves a config.Solver choice to its smt.Backend, defaulting
// to plain model-completion settings; finite-model-finding is enabled for
// CVC since qalpha's domains are always over finite uninterpreted sorts.
func backendFor(s config.Solver) smt.Backend {
	switch s {
	case config.CVC5:
		return smt.CvcBackend{Version5: true, FiniteModels: true}
	case config.CVC4:
		return smt.CvcBackend{Version5: false, FiniteModels: true}
	default:
		return smt.Z3Backend{}
	}
}

func binaryFor(s config.Solver) string {
	switch s {
	case config.CVC5:
		return "cvc5"
	case config.CVC4:
		return "cvc4"
	default:
		return "z3"
	}
}

// baseConf builds the Conf for cfg's configured backend, unmodified.
func baseConf(cfg config.Config) smt.Conf {
	return smt.Conf{
		Backend:   backendFor(cfg.Solver),
		Path:      binaryFor(cfg.Solver),
		TimeoutMS: cfg.Timeout,
		Seed:      cfg.Seed,
	}
}

// otherConf builds a Conf for the "other" backend in the z3/cvc5
// alternation a Parallel race draws on: cvc5 when cfg chose z3, z3
// otherwise. cvc4 is never raced since cvc5 already supersedes it.
func otherConf(cfg config.Config) smt.Conf {
	other := config.CVC5
	if cfg.Solver == config.CVC5 || cfg.Solver == config.CVC4 {
		other = config.Z3
	}
	return smt.Conf{
		Backend:   backendFor(other),
		Path:      binaryFor(other),
		TimeoutMS: cfg.Timeout,
		Seed:      cfg.Seed,
	}
}

// MainSolver builds the composed Solver driving init_cex / trans_cex /
// implication_cex queries: by default a Parallel race between the
// configured backend and its alternate (the induction queries are rare
// enough, and the cost of a wrong backend stalling on Unknown high enough,
// that racing two backends pays for itself), or a Fallback chain through
// an escalating timeout when cfg.Fallback asks for the cheaper strategy.
func MainSolver(cfg config.Config) (smt.Solver, error) {
	if cfg.Fallback {
		bounded := baseConf(cfg)
		if bounded.TimeoutMS == 0 {
			bounded.TimeoutMS = 10000
		}
		unbounded := baseConf(cfg)
		unbounded.TimeoutMS = 0
		return smt.NewFallback([]smt.Conf{bounded, unbounded})
	}
	return &smt.Parallel{Confs: []smt.Conf{baseConf(cfg), otherConf(cfg)}}, nil
}

// SimSolver builds the solver driving simulate_from's trace-extension
// sampling. Simulation queries are cheaper and far more numerous than
// induction queries, so this is always a Single over the configured
// backend with its timeout capped at 5000ms (a lower configured timeout is
// kept; an unlimited one becomes 5000ms), to keep one stuck sample from
// stalling an entire extension round.
func SimSolver(cfg config.Config) smt.Solver {
	c := baseConf(cfg)
	if c.TimeoutMS == 0 || c.TimeoutMS > 5000 {
		c.TimeoutMS = 5000
	}
	return smt.Single{Conf: c}
}
