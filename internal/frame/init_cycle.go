package frame

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/operator-framework/qalpha/internal/lemmaset"
	"github.com/operator-framework/qalpha/internal/module"
)

// InitCycle scans the weakest set in parallel, querying init_cex for every
// candidate not already known initially implied. On the first Sat it
// cancels the rest of the batch and returns that counterexample model; the
// outer driver is expected to call Weaken(model) and retry. Once every
// candidate is confirmed implied by axioms ∧ init, it returns (nil, nil).
func (f *Frame) InitCycle(ctx context.Context) (*module.Model, error) {
	all := f.weakest.Snapshot()
	var todo []lemmaset.Lemma
	for _, l := range all {
		if _, ok := f.confirmedInitial[l.ID]; !ok {
			todo = append(todo, l)
		}
	}
	if len(todo) == 0 {
		return nil, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		model *module.Model
		err   error
	}
	results := make(chan outcome, len(todo))
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(len(todo))
	for _, l := range todo {
		l := l
		g.Go(func() error {
			m, err := f.Module.InitCEX(gctx, l.ToTerm(f.Restricted))
			results <- outcome{model: m, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(results)
	}()

	var found *module.Model
	var firstErr error
	for o := range results {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		if o.model != nil && found == nil {
			found = o.model
			cancel()
		}
	}
	if found != nil {
		return found, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}

	for _, l := range todo {
		f.confirmedInitial[l.ID] = struct{}{}
	}
	return nil, nil
}
