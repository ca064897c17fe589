package smt

import (
	"context"
	"os/exec"
	"sync/atomic"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
	"github.com/operator-framework/qalpha/internal/term"
)

// catBackend drives /bin/cat as a stand-in solver subprocess. cat accepts
// anything on stdin and never speaks SMT-LIB, which is all the combinator
// tests need: their queries decide results themselves and never read from
// the process.
type catBackend struct{}

func (catBackend) Command(path string, timeoutMS, seed int) Command { return Command{Path: path} }
func (catBackend) ReturnsMinimal() bool                            { return false }
func (catBackend) ParseModel(sig *term.Signature, nStates int, indicators map[string]sexp.Atom, model sexp.Sexp) (FOModel, error) {
	return FOModel{}, nil
}

func catConf(t *testing.T) Conf {
	t.Helper()
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat binary not available")
	}
	return Conf{Backend: catBackend{}, Path: "cat"}
}

func combinatorSig(t *testing.T) *term.Signature {
	t.Helper()
	sig, err := term.NewSignature(
		[]term.Sort{{Name: "Node"}},
		[]term.Relation{{Name: "p", Args: []term.Sort{{Name: "Node"}}, Result: term.Bool, Mutable: true}},
	)
	require.NoError(t, err)
	return sig
}

func TestCancelHandleKillIsIdempotent(t *testing.T) {
	conf := catConf(t)
	proc, err := conf.Start(log.NewEntry(log.New()), combinatorSig(t), 1, "")
	require.NoError(t, err)

	h := proc.Pid()
	h.Kill()
	h.Kill() // second invocation must be a no-op
	_ = proc.Close()
}

func TestCancelHandleKillAfterCloseIsNoop(t *testing.T) {
	conf := catConf(t)
	proc, err := conf.Start(log.NewEntry(log.New()), combinatorSig(t), 1, "")
	require.NoError(t, err)

	h := proc.Pid()
	require.NoError(t, proc.Close())
	h.Kill() // the process is already reaped; the handle must not signal it again
}

func TestParallelFirstSatWinsAndCancelsPeers(t *testing.T) {
	conf := catConf(t)
	var started, cancelled int32
	q := func(ctx context.Context, proc *Proc) (SatResult, any, error) {
		if atomic.AddInt32(&started, 1) == 1 {
			return SatResult{Kind: Sat}, "winner", nil
		}
		<-ctx.Done()
		atomic.AddInt32(&cancelled, 1)
		return SatResult{Kind: Unknown, Reason: "cancelled"}, nil, nil
	}

	p := &Parallel{Confs: []Conf{conf, conf, conf, conf}}
	result, payload, err := p.Run(context.Background(), log.NewEntry(log.New()), combinatorSig(t), 1, "", q)
	require.NoError(t, err)
	require.Equal(t, Sat, result.Kind)
	require.Equal(t, "winner", payload)

	// Every losing worker observes cancellation; none of them ever produced
	// an answer of its own.
	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&cancelled) == 3
	}, 5*time.Second, 10*time.Millisecond)
	require.Equal(t, int32(4), atomic.LoadInt32(&started))
}

func TestParallelAllUnknownReturnsUnknown(t *testing.T) {
	conf := catConf(t)
	q := func(ctx context.Context, proc *Proc) (SatResult, any, error) {
		return SatResult{Kind: Unknown, Reason: "incomplete"}, nil, nil
	}
	p := &Parallel{Confs: []Conf{conf, conf}}
	result, _, err := p.Run(context.Background(), log.NewEntry(log.New()), combinatorSig(t), 1, "", q)
	require.NoError(t, err)
	require.Equal(t, Unknown, result.Kind)
}

func TestFallbackAdvancesPastUnknown(t *testing.T) {
	conf := catConf(t)
	bounded := conf
	bounded.TimeoutMS = 100

	var calls int32
	q := func(ctx context.Context, proc *Proc) (SatResult, any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return SatResult{Kind: Unknown, Reason: "timeout"}, nil, nil
		}
		return SatResult{Kind: Unsat}, nil, nil
	}

	f, err := NewFallback([]Conf{bounded, conf})
	require.NoError(t, err)
	result, _, err := f.Run(context.Background(), log.NewEntry(log.New()), combinatorSig(t), 1, "", q)
	require.NoError(t, err)
	require.Equal(t, Unsat, result.Kind)
	require.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
