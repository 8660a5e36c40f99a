// Package stage runs one enrichment pass: build a request per entity, fetch
// them through the batch executor, and merge each success back into a copy of
// its entity.
package stage

import (
	"context"

	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/pkg/pipeline/batch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/correlate"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
	"github.com/shpitdev/couch-xray/pkg/pipeline/worker"
)

// Stage describes one enrichment pass.
type Stage interface {
	Name() string
	// Strategy picks how results find their entity, and so the delivery mode.
	Strategy() correlate.Strategy
	// URL is the resource fetched for e.
	URL(e core.Entity) string
	// Merge folds a successful payload into e. An error aborts the run.
	Merge(e *core.Entity, res core.Result) error
}

// Executor is the part of batch.Executor a stage needs.
type Executor interface {
	Run(ctx context.Context, title string, reqs []core.Request, delivery worker.Delivery, onResult func(core.Result) error) (batch.Summary, error)
}

// Run applies st to entities and returns a new collection holding only the
// entities the stage fetched successfully, in input order. The input slice and
// its attribute maps are left untouched.
func Run(ctx context.Context, exec Executor, st Stage, entities []core.Entity) ([]core.Entity, core.StageOutcome, error) {
	outcome := core.StageOutcome{Stage: st.Name(), Submitted: len(entities)}

	work := make([]core.Entity, len(entities))
	reqs := make([]core.Request, len(entities))
	for i, e := range entities {
		work[i] = e.Clone()
		reqs[i] = core.Request{ID: e.ID(), URL: st.URL(e)}
	}

	corr, err := correlate.New(st.Strategy(), work)
	if err != nil {
		return nil, outcome, err
	}

	kept := make([]bool, len(work))
	sum, err := exec.Run(ctx, st.Name(), reqs, st.Strategy().Delivery(), func(res core.Result) error {
		i, err := corr.Resolve(res)
		if err != nil {
			return err
		}
		if res.Outcome != core.OutcomeSuccess {
			return nil
		}
		if err := st.Merge(&work[i], res); err != nil {
			return &core.FatalError{URL: redact.URL(res.URL), StatusCode: res.StatusCode, Err: err}
		}
		kept[i] = true
		return nil
	})
	outcome.Succeeded = sum.Succeeded
	outcome.Gone = sum.Gone
	outcome.ServerErrors = sum.ServerErrors
	if err != nil {
		return nil, outcome, errors.Wrapf(err, "%s stage", st.Name())
	}

	out := make([]core.Entity, 0, sum.Succeeded)
	for i, e := range work {
		if kept[i] {
			out = append(out, e)
		}
	}
	return out, outcome, nil
}
