// Package batch issues a fixed set of GET requests with bounded concurrency and
// classifies every response.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
	"github.com/shpitdev/couch-xray/pkg/pipeline/worker"
)

var errInvalidJSON = errors.New("response body is not valid JSON")

// Progress observes batch completion. Calls come from a single goroutine
// and never block result delivery.
type Progress interface {
	Start(title string, total int)
	Update(done, total int)
	Stop()
}

type Options struct {
	// Workers caps requests in flight. Defaults to worker.DefaultWorkers.
	Workers int
	// RateLimitRPS is a global request rate limit. <=0 disables it.
	RateLimitRPS float64

	Progress Progress
	Logger   *zap.SugaredLogger
}

// Summary counts outcomes of one Run. Fatal results never appear here: they
// end the run with an error instead.
type Summary struct {
	Submitted    int
	Succeeded    int
	Gone         int
	ServerErrors int
	// ServerErrorURLs are redacted.
	ServerErrorURLs []string
	Elapsed         time.Duration
}

// Executor is safe for sequential reuse across stages; it holds no per-run state.
type Executor struct {
	getter core.Getter
	opts   Options
	log    *zap.SugaredLogger
}

func New(getter core.Getter, opts Options) *Executor {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{getter: getter, opts: opts, log: log}
}

// Workers reports the effective concurrency cap.
func (e *Executor) Workers() int {
	if e.opts.Workers <= 0 {
		return worker.DefaultWorkers
	}
	return e.opts.Workers
}

// Run submits reqs and calls onResult once per non-fatal result, in the order
// selected by delivery. The first fatal result (or onResult error) stops
// submission; requests already in flight drain and their results are dropped.
func (e *Executor) Run(
	ctx context.Context,
	title string,
	reqs []core.Request,
	delivery worker.Delivery,
	onResult func(core.Result) error,
) (Summary, error) {
	start := time.Now()
	sum := Summary{Submitted: len(reqs)}

	pump := newProgressPump(e.opts.Progress, title, len(reqs))
	defer pump.stop()

	process := func(ctx context.Context, req core.Request) (core.Result, error) {
		resp, err := e.getter.Get(ctx, req.URL, req.ID)
		res := Classify(req, resp, err)
		if res.Outcome == core.OutcomeFatal {
			return res, res.Err
		}
		return res, nil
	}

	var done atomic.Int64
	handle := func(r worker.Result[core.Request, core.Result]) error {
		res := r.Output
		res.Index = r.Index

		switch res.Outcome {
		case core.OutcomeSuccess:
			sum.Succeeded++
		case core.OutcomeGone:
			sum.Gone++
			e.log.Debugw("resource gone", "url", redact.URL(res.URL))
		case core.OutcomeServerError:
			sum.ServerErrors++
			sum.ServerErrorURLs = append(sum.ServerErrorURLs, redact.URL(res.URL))
			e.log.Warnw("server error, continuing", "url", redact.URL(res.URL), "status", res.StatusCode)
		}

		pump.update(int(done.Add(1)))

		if onResult == nil {
			return nil
		}
		return onResult(res)
	}

	_, err := worker.ProcessAllWithCallback(ctx, reqs, process, handle, worker.Options{
		Workers:       e.opts.Workers,
		RateLimitRPS:  e.opts.RateLimitRPS,
		FailurePolicy: worker.FailurePolicyFailFast,
		Delivery:      delivery,
	})
	sum.Elapsed = time.Since(start)
	if err != nil {
		return sum, err
	}
	e.log.Debugw("batch complete",
		"title", title,
		"count", sum.Submitted,
		"succeeded", sum.Succeeded,
		"gone", sum.Gone,
		"server_errors", sum.ServerErrors,
		"duration", sum.Elapsed,
	)
	return sum, nil
}

// Classify maps one response onto an Outcome. Status codes are compared by
// value: 200 success, 404 gone, 500 server error, anything else fatal.
func Classify(req core.Request, resp core.Response, err error) core.Result {
	res := core.Result{
		ID:         req.ID,
		URL:        req.URL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
	}
	if resp.Tag != "" {
		res.ID = resp.Tag
	}
	if err != nil {
		res.Outcome = core.OutcomeFatal
		res.Err = &core.FatalError{URL: redact.URL(req.URL), Err: err}
		return res
	}

	switch resp.StatusCode {
	case http.StatusOK:
		if !json.Valid(resp.Body) {
			res.Outcome = core.OutcomeFatal
			res.Err = &core.FatalError{URL: redact.URL(req.URL), StatusCode: resp.StatusCode, Err: errInvalidJSON}
			return res
		}
		res.Outcome = core.OutcomeSuccess
		res.Payload = json.RawMessage(resp.Body)
	case http.StatusNotFound:
		res.Outcome = core.OutcomeGone
	case http.StatusInternalServerError:
		res.Outcome = core.OutcomeServerError
	default:
		res.Outcome = core.OutcomeFatal
		res.Err = &core.FatalError{URL: redact.URL(req.URL), StatusCode: resp.StatusCode}
	}
	return res
}
