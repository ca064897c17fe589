// Package smt drives an external SMT solver subprocess (z3, cvc5, cvc4)
// over its SMT-LIB 2 stdin/stdout protocol: process lifecycle, command
// serialization, check-sat family queries, minimal-model extraction,
// unsat-core extraction, and the Single/Fallback/Parallel composition
// combinators.
//
// Grounded on the reference implementation's smtlib::proc module, adapted
// to Go idiom: explicit error returns instead of panics, context.Context
// for cooperative cancellation alongside the pid-kill handle, os/exec
// instead of a raw libc process handle.
package smt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
)

// done is the sentinel line the driver waits for after every command that
// expects a reply. Solvers differ on whether they quote echoed strings, so
// both forms are accepted.
const done = "<<DONE>>"

// ErrKilled is returned when a query's pipe closed because the subprocess
// was SIGKILLed (by us or by the OS), and is the cancellation signal
// callers should treat as "no answer, try again or give up" rather than an
// unexpected crash.
var ErrKilled = errors.New("smt: solver was killed")

// UnexpectedCloseError reports a solver closing its side of the protocol
// with an embedded SMT-LIB `(error "...")` response, mirroring the typed
// SolverError::UnexpectedClose(String) variant of the reference driver.
type UnexpectedCloseError struct{ Message string }

func (e *UnexpectedCloseError) Error() string {
	return fmt.Sprintf("smt: solver returned an error: %s", e.Message)
}

// SatResult is a check-sat family response: Sat, Unsat, or Unknown with the
// solver-reported reason. Represented as an enum-plus-payload rather than
// an interface since callers switch on it constantly.
type SatResult struct {
	Kind   SatKind
	Reason string // only meaningful when Kind == Unknown
}

type SatKind int

const (
	Sat SatKind = iota
	Unsat
	Unknown
)

func (r SatResult) String() string {
	switch r.Kind {
	case Sat:
		return "sat"
	case Unsat:
		return "unsat"
	default:
		return fmt.Sprintf("unknown(%s)", r.Reason)
	}
}

// CancelHandle lets a caller SIGKILL a running query's subprocess from a
// different goroutine than the one blocked reading its stdout. Kill is
// idempotent: invoking it twice, or invoking it on an already-terminated
// process, is a safe no-op.
type CancelHandle struct {
	cmd        *exec.Cmd
	terminated *atomic.Bool
}

// Kill sends SIGKILL to the process, unless it has already been marked
// terminated by a prior Kill or by the driver's own teardown.
func (h CancelHandle) Kill() {
	if h.terminated.Swap(true) {
		return
	}
	if h.cmd.Process != nil {
		_ = h.cmd.Process.Kill()
	}
}

// Proc wraps one running solver subprocess. It is owned exclusively by one
// goroutine from creation to Close: never share a live Proc across workers.
type Proc struct {
	log *log.Entry

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader

	tee *tee

	terminated *atomic.Bool

	indicators     map[string]sexp.Atom
	lastAssumption map[string]bool // support for get_minimal_model-style incremental guards

	backend Backend
}

// Backend reports which backend family started this process, so callers
// that only hold a Proc (e.g. a Query run by a Solver combinator) can still
// reach ReturnsMinimal/ParseModel without threading a Conf through.
func (p *Proc) Backend() Backend { return p.backend }

// NewProc spawns a solver subprocess per cmd, wires its stdio, and sends
// the standard startup options (produce-models, produce-unsat-assumptions,
// every option in cmd.Options, then `set-logic UFNIA`), exactly as the
// reference SmtProc::new does.
func NewProc(logger *log.Entry, backend Backend, cmd Command, teeDir string) (*Proc, error) {
	ecmd := exec.Command(cmd.Path, cmd.Args...)
	stdin, err := ecmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "smt: failed to open stdin pipe")
	}
	stdoutPipe, err := ecmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "smt: failed to open stdout pipe")
	}
	ecmd.Stderr = os.Stderr

	if err := ecmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "smt: failed to start %s", cmd.Path)
	}

	var t *tee
	if teeDir != "" {
		t = newTee(teeDir)
		t.append(sexp.Comment(cmd.CmdLine()))
	}

	p := &Proc{
		log:            logger,
		cmd:            ecmd,
		stdin:          stdin,
		stdout:         bufio.NewReader(stdoutPipe),
		tee:            t,
		terminated:     &atomic.Bool{},
		indicators:     map[string]sexp.Atom{},
		lastAssumption: map[string]bool{},
		backend:        backend,
	}

	p.sendNoReply(optionSexp("produce-models", "true"))
	p.sendNoReply(optionSexp("produce-unsat-assumptions", "true"))
	for _, opt := range cmd.Options {
		p.sendNoReply(optionSexp(opt[0], opt[1]))
	}
	p.sendNoReply(sexp.App("set-logic", []sexp.Sexp{sexp.AtomS("UFNIA")}))

	return p, nil
}

// Pid returns a cancellation handle usable from another goroutine.
func (p *Proc) Pid() CancelHandle {
	return CancelHandle{cmd: p.cmd, terminated: p.terminated}
}

// SaveTee flushes the tee buffer to a hash-named file, logging (but not
// failing the query on) any I/O error, matching save_tee's "not fatal"
// contract.
func (p *Proc) SaveTee() string {
	if p.tee == nil {
		return ""
	}
	name, err := p.tee.save()
	if err != nil {
		p.log.WithError(err).Warn("smt: failed to save tee file")
		return ""
	}
	return name
}

// sendNoReply writes a command that does not expect a response.
func (p *Proc) sendNoReply(s sexp.Sexp) {
	fmt.Fprintln(p.stdin, s.String())
	if p.tee != nil {
		p.tee.append(s)
	}
}

// Assert appends a term (already lowered to an s-expression) to the
// assertion stack.
func (p *Proc) Assert(a sexp.Sexp) {
	p.sendNoReply(sexp.App("assert", []sexp.Sexp{a}))
}

// Push saves a checkpoint of the assertion stack.
func (p *Proc) Push() {
	p.sendNoReply(sexp.Atom("push"))
	p.lastAssumption = map[string]bool{}
}

// Pop restores the assertion stack to its last Push checkpoint, and
// invalidates any cached "last assumptions" used by minimal-model support.
func (p *Proc) Pop() {
	p.sendNoReply(sexp.Atom("pop"))
	p.lastAssumption = map[string]bool{}
}

// Indicator lazily declares a fresh boolean `__ind@<name>` exactly once per
// solver and returns it, for use as both check-sat-assuming assumptions and
// minimization guards.
func (p *Proc) Indicator(name string) sexp.Atom {
	if a, ok := p.indicators[name]; ok {
		return a
	}
	symbol := sexp.Atom("__ind@" + name)
	p.sendNoReply(sexp.App("declare-const", []sexp.Sexp{symbol, sexp.AtomS("Bool")}))
	p.indicators[name] = symbol
	return symbol
}

// CheckSat issues check-sat, or check-sat-assuming when assumptions is
// non-empty, mapping each indicator name to a positive or negated use of
// its declared symbol.
func (p *Proc) CheckSat(assumptions map[string]bool) (SatResult, error) {
	p.lastAssumption = assumptions
	var cmd sexp.Sexp
	if len(assumptions) == 0 {
		cmd = sexp.App("check-sat", nil)
	} else {
		lits := make([]sexp.Sexp, 0, len(assumptions))
		for name, positive := range assumptions {
			ind := p.Indicator(name)
			if positive {
				lits = append(lits, ind)
			} else {
				lits = append(lits, sexp.App("not", []sexp.Sexp{ind}))
			}
		}
		cmd = sexp.App("check-sat-assuming", []sexp.Sexp{sexp.L(lits)})
	}
	p.sendNoReply(cmd)
	resp, err := p.getResponse()
	if err != nil {
		return SatResult{}, err
	}
	result, err := p.parseSat(resp)
	if err != nil {
		return SatResult{}, err
	}
	if result.Kind == Unknown {
		if name := p.SaveTee(); name != "" {
			p.log.WithField("query", name).Warn("smt: unknown response")
		}
	}
	return result, nil
}

func (p *Proc) parseSat(resp string) (SatResult, error) {
	switch resp {
	case "unsat":
		return SatResult{Kind: Unsat}, nil
	case "sat":
		return SatResult{Kind: Sat}, nil
	case "unknown":
		reason, err := p.getInfo(":reason-unknown")
		if err != nil {
			return SatResult{}, errors.Wrap(err, "smt: could not get :reason-unknown")
		}
		return SatResult{Kind: Unknown, Reason: reason}, nil
	}
	if err := p.checkKilled(); err != nil {
		return SatResult{}, err
	}
	msg := parseErrorMessage(resp)
	return SatResult{}, &UnexpectedCloseError{Message: msg}
}

func (p *Proc) getInfo(attribute string) (string, error) {
	reply, err := p.sendWithReply(sexp.App("get-info", []sexp.Sexp{sexp.AtomS(attribute)}))
	if err != nil {
		return "", err
	}
	l, ok := reply.(sexp.List)
	if !ok || len(l) != 2 {
		return "", fmt.Errorf("smt: unexpected get-info response %s", reply)
	}
	return l[1].String(), nil
}

// GetUnsatCore runs get-unsat-assumptions after an Unsat result, returning
// the map of indicator name to the polarity that appeared in the core.
func (p *Proc) GetUnsatCore() (map[string]bool, error) {
	reply, err := p.sendWithReply(sexp.App("get-unsat-assumptions", nil))
	if err != nil {
		return nil, err
	}
	l, ok := reply.(sexp.List)
	if !ok {
		return nil, fmt.Errorf("smt: malformed get-unsat-assumptions response %s", reply)
	}
	core := make(map[string]bool, len(l))
	for _, item := range l {
		name, positive, ok := indicatorNameOf(item)
		if !ok {
			continue
		}
		core[name] = positive
	}
	return core, nil
}

func indicatorNameOf(s sexp.Sexp) (name string, positive bool, ok bool) {
	const prefix = "__ind@"
	if head, args, isApp := sexp.AppParts(s); isApp && head == "not" && len(args) == 1 {
		if a, isAtom := args[0].(sexp.Atom); isAtom {
			text := string(a)
			if len(text) > len(prefix) && text[:len(prefix)] == prefix {
				return text[len(prefix):], false, true
			}
		}
		return "", false, false
	}
	if a, isAtom := s.(sexp.Atom); isAtom {
		text := string(a)
		if len(text) > len(prefix) && text[:len(prefix)] == prefix {
			return text[len(prefix):], true, true
		}
	}
	return "", false, false
}

func (p *Proc) checkKilled() error {
	if p.terminated.Load() {
		return ErrKilled
	}
	if p.cmd.ProcessState != nil {
		p.terminated.Store(true)
		if ws, ok := exitedBySignal(p.cmd.ProcessState); ok && ws {
			return ErrKilled
		}
	}
	return nil
}

// sendWithReply writes a command, then reads back exactly one sexp reply.
func (p *Proc) sendWithReply(cmd sexp.Sexp) (sexp.Sexp, error) {
	p.sendNoReply(cmd)
	resp, err := p.getResponse()
	if err != nil {
		return nil, err
	}
	parsed, err := sexp.Parse(resp)
	if err != nil {
		return nil, errors.Wrap(err, "smt: could not parse solver response")
	}
	return parsed, nil
}

// getResponse sends the `(echo "<<DONE>>")` sentinel and reads lines until
// one equals the sentinel in either quoted or bare form, returning
// everything read before it. This mirrors the reference driver's framing
// exactly, since solvers differ on whether echo quotes its argument.
func (p *Proc) getResponse() (string, error) {
	if _, err := fmt.Fprintf(p.stdin, "(echo %q)\n", done); err != nil {
		if errors.Is(err, io.ErrClosedPipe) {
			if kerr := p.checkKilled(); kerr != nil {
				return "", kerr
			}
		}
		return "", errors.Wrap(ErrSolverIO, err.Error())
	}

	var buf []byte
	for {
		line, err := p.stdout.ReadString('\n')
		if err != nil && len(line) == 0 {
			if kerr := p.checkKilled(); kerr != nil {
				return "", kerr
			}
			msg := parseErrorMessage(string(buf))
			return "", &UnexpectedCloseError{Message: msg}
		}
		trimmed := trimRight(line)
		if trimmed == done || trimmed == `"`+done+`"` {
			return string(buf), nil
		}
		buf = append(buf, []byte(line)...)
	}
}

func trimRight(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

// parseErrorMessage scans a mixed response for an embedded `(error "...")`
// form, the way Z3 prefixes an error sexp before a sat/unsat line.
func parseErrorMessage(resp string) string {
	sexps, err := sexp.ParseMany(resp)
	if err != nil {
		return resp
	}
	for _, s := range sexps {
		if head, args, ok := sexp.AppParts(s); ok && head == "error" && len(args) == 1 {
			if msg, ok := sexp.AsString(args[0]); ok {
				return msg
			}
		}
	}
	return resp
}

// Close sends (exit), flushes, kills, and reaps the subprocess, matching
// the reference driver's drop/kill behavior: the process is guaranteed not
// to linger as a zombie once Close returns.
func (p *Proc) Close() error {
	fmt.Fprintln(p.stdin, "(exit)")
	_ = p.stdin.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	err := p.cmd.Wait()
	p.terminated.Store(true)
	if err != nil && !isBenignWaitError(err) {
		return errors.Wrap(err, "smt: error reaping solver process")
	}
	return nil
}

func isBenignWaitError(err error) bool {
	_, ok := err.(*exec.ExitError)
	return ok
}

var globalTeeDirMu sync.Mutex

// EnsureTeeDir clears any stale tee files from dir each time it is called, per the
// "only one piece of process-wide state" design note — a fresh process run
// starts with a clean log directory.
func EnsureTeeDir(dir string) error {
	if dir == "" {
		return nil
	}
	globalTeeDirMu.Lock()
	defer globalTeeDirMu.Unlock()
	return clearTeeDir(dir)
}
