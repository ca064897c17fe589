package smt

import "github.com/pkg/errors"

// ErrSolverIO is wrapped around any I/O failure talking to a solver
// subprocess (broken pipe, write failure) that isn't attributable to a
// deliberate kill — fatal to the query in flight, not to the run.
var ErrSolverIO = errors.New("smt: solver I/O error")
