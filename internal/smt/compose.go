package smt

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/operator-framework/qalpha/internal/term"
)

// Conf is one solver configuration: which backend, at what binary path,
// under what per-query timeout and seed. Confs are small immutable values
// that multiple workers hold by reference; each worker materializes its own
// Proc from one, per the "never share a live subprocess handle" resource
// policy.
type Conf struct {
	Backend   Backend
	Path      string
	TimeoutMS int
	Seed      int
}

// Start launches a fresh Proc from c, declaring sig over nStates states.
func (c Conf) Start(logger *log.Entry, sig *term.Signature, nStates int, teeDir string) (*Proc, error) {
	cmd := c.Backend.Command(c.Path, c.TimeoutMS, c.Seed)
	proc, err := NewProc(logger, c.Backend, cmd, teeDir)
	if err != nil {
		return nil, err
	}
	proc.Signature(sig, nStates)
	return proc, nil
}

// Query is the one piece of work every combinator ultimately runs: given a
// freshly-started Proc, perform some sequence of asserts/check-sat calls
// and return a SatResult plus whatever payload the caller cares about. The
// payload is returned as `any` because callers vary (a model, an unsat
// core, nothing).
type Query func(ctx context.Context, proc *Proc) (SatResult, any, error)

// Solver is the common contract the fixpoint driver and induction frame
// hold: "run this query to completion, using whatever composition strategy
// this value was built with."
type Solver interface {
	Run(ctx context.Context, logger *log.Entry, sig *term.Signature, nStates int, teeDir string, q Query) (SatResult, any, error)
}

// Single forwards every query to one backend configuration.
type Single struct{ Conf Conf }

func (s Single) Run(ctx context.Context, logger *log.Entry, sig *term.Signature, nStates int, teeDir string, q Query) (SatResult, any, error) {
	proc, err := s.Conf.Start(logger, sig, nStates, teeDir)
	if err != nil {
		return SatResult{}, nil, err
	}
	defer proc.Close()
	return q(ctx, proc)
}

// Fallback attempts configurations in order; an Unknown result or a
// context deadline advances to the next. The last configuration must carry
// no timeout (TimeoutMS == 0), enforced at construction rather than
// discovered mid-run.
type Fallback struct{ Confs []Conf }

// NewFallback validates that only the final Conf may be unbounded.
func NewFallback(confs []Conf) (*Fallback, error) {
	if len(confs) == 0 {
		return nil, errors.New("smt: Fallback requires at least one Conf")
	}
	for i, c := range confs[:len(confs)-1] {
		if c.TimeoutMS == 0 {
			return nil, errors.Errorf("smt: Fallback Conf %d has no timeout but is not last", i)
		}
	}
	return &Fallback{Confs: confs}, nil
}

func (f *Fallback) Run(ctx context.Context, logger *log.Entry, sig *term.Signature, nStates int, teeDir string, q Query) (SatResult, any, error) {
	var lastErr error
	for i, c := range f.Confs {
		result, payload, err := (Single{Conf: c}).Run(ctx, logger, sig, nStates, teeDir, q)
		if err != nil {
			lastErr = err
			continue
		}
		if result.Kind == Unknown && i < len(f.Confs)-1 {
			logger.WithField("backend", i).WithField("reason", result.Reason).Debug("smt: falling back to next configuration")
			continue
		}
		return result, payload, nil
	}
	if lastErr != nil {
		return SatResult{}, nil, lastErr
	}
	return SatResult{Kind: Unknown}, nil, nil
}

// Parallel runs every configuration concurrently via errgroup and returns
// the first non-Unknown result, cancelling the rest both cooperatively
// (closing ctx) and by SIGKILL (CancelHandle.Kill on every loser), per the
// two cancellation mechanisms this package composes.
type Parallel struct{ Confs []Conf }

type parallelOutcome struct {
	result  SatResult
	payload any
	err     error
}

func (p *Parallel) Run(ctx context.Context, logger *log.Entry, sig *term.Signature, nStates int, teeDir string, q Query) (SatResult, any, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan parallelOutcome, len(p.Confs))
	handles := make([]CancelHandle, len(p.Confs))
	var handlesMu chan struct{} = make(chan struct{}, 1)
	handlesMu <- struct{}{}

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(len(p.Confs))
	for i, c := range p.Confs {
		i, c := i, c
		g.Go(func() error {
			proc, err := c.Start(logger, sig, nStates, teeDir)
			if err != nil {
				outcomes <- parallelOutcome{err: err}
				return nil
			}
			defer proc.Close()

			<-handlesMu
			handles[i] = proc.Pid()
			handlesMu <- struct{}{}

			result, payload, err := q(gctx, proc)
			outcomes <- parallelOutcome{result: result, payload: payload, err: err}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(outcomes)
	}()

	killOthers := func(except int) {
		<-handlesMu
		for i, h := range handles {
			if i != except && h != (CancelHandle{}) {
				h.Kill()
			}
		}
		handlesMu <- struct{}{}
	}

	var lastErr error
	seen := 0
	for outcome := range outcomes {
		seen++
		if outcome.err != nil {
			lastErr = outcome.err
			continue
		}
		if outcome.result.Kind != Unknown {
			cancel()
			killOthers(-1)
			return outcome.result, outcome.payload, nil
		}
		if seen == len(p.Confs) {
			return SatResult{Kind: Unknown}, nil, nil
		}
	}
	if lastErr != nil {
		return SatResult{}, nil, lastErr
	}
	return SatResult{Kind: Unknown}, nil, nil
}
