package smt

import (
	"fmt"

	"github.com/operator-framework/qalpha/internal/smt/sexp"
)

// Command is the full invocation of a solver binary: the path, its args,
// and the SMT options to send on startup, matching the SolverCmd builder
// family this package's backends construct.
type Command struct {
	Path    string
	Args    []string
	Options [][2]string
}

func (c *Command) option(name, val string) {
	c.Options = append(c.Options, [2]string{name, val})
}

// CmdLine renders the invocation the way a shell would see it, quoting any
// argument containing a space — used only for the tee comment header.
func (c *Command) CmdLine() string {
	s := c.Path
	for _, a := range c.Args {
		for _, r := range a {
			if r == ' ' {
				s += fmt.Sprintf(" %q", a)
				goto next
			}
		}
		s += " " + a
	next:
	}
	return s
}

// Z3Builder configures the invocation of a Z3 binary.
type Z3Builder struct{ cmd Command }

// NewZ3Command begins a Z3 Command builder rooted at the given binary path,
// matching Z3Conf::new's defaults: interactive smt2 mode, model completion,
// and a generous (effectively unlimited) default timeout.
func NewZ3Command(path string) *Z3Builder {
	b := &Z3Builder{cmd: Command{Path: path, Args: []string{"-in", "-smt2"}}}
	b.cmd.option("model.completion", "true")
	b.TimeoutMS(0)
	return b
}

// ModelCompact enables Z3's model.compact option.
func (b *Z3Builder) ModelCompact() *Z3Builder {
	b.cmd.option("model.compact", "true")
	return b
}

// TimeoutMS sets the per-query timeout; zero means effectively unlimited
// (Z3's own maximum timeout value).
func (b *Z3Builder) TimeoutMS(ms int) *Z3Builder {
	if ms == 0 {
		ms = 4294967295
	}
	b.cmd.option("timeout", fmt.Sprintf("%d", ms))
	return b
}

// Options exposes the raw Command for callers that need a non-standard
// option.
func (b *Z3Builder) Options() *Command { return &b.cmd }

// Done finalizes the builder.
func (b *Z3Builder) Done() Command { return b.cmd }

// CvcBuilder configures the invocation of a CVC4 or CVC5 binary.
type CvcBuilder struct {
	version5 bool
	cmd      Command
}

// NewCvcCommand begins a CVC4/CVC5 Command builder. version5 selects CVC5's
// flag names where they differ from CVC4's.
func NewCvcCommand(path string, version5 bool) *CvcBuilder {
	b := &CvcBuilder{version5: version5, cmd: Command{Path: path, Args: []string{"-q", "--lang", "smt2"}}}
	b.cmd.option("interactive", "false")
	b.cmd.option("incremental", "true")
	b.cmd.option("seed", "1")
	return b
}

// FiniteModels enables finite model finding with mbqi.
func (b *CvcBuilder) FiniteModels() *CvcBuilder {
	b.cmd.option("finite-model-find", "true")
	if b.version5 {
		b.cmd.option("mbqi", "true")
		b.cmd.option("fmf-mbqi", "fmc")
	} else {
		b.cmd.option("mbqi", "fmc")
	}
	return b
}

// InterleaveEnumerativeInstantiation enables interleaving enumerative
// instantiation with other quantifier-instantiation techniques.
func (b *CvcBuilder) InterleaveEnumerativeInstantiation() *CvcBuilder {
	if b.version5 {
		b.cmd.option("enum-inst-interleave", "true")
	} else {
		b.cmd.option("fs-interleave", "true")
	}
	return b
}

// TimeoutMS sets a per-query time limit; zero sets no limit.
func (b *CvcBuilder) TimeoutMS(ms int) *CvcBuilder {
	b.cmd.option("tlimit-per", fmt.Sprintf("%d", ms))
	return b
}

// Options exposes the raw Command for callers that need a non-standard
// option.
func (b *CvcBuilder) Options() *Command { return &b.cmd }

// Done finalizes the builder.
func (b *CvcBuilder) Done() Command { return b.cmd }

func optionSexp(name, val string) sexp.Sexp {
	return sexp.App("set-option", []sexp.Sexp{sexp.AtomS(":" + name), sexp.AtomS(val)})
}
