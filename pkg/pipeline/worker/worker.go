package worker

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultWorkers is the concurrency cap used when Options.Workers is unset.
const DefaultWorkers = 100

type FailurePolicy int

const (
	FailurePolicyPartialOutput FailurePolicy = iota
	FailurePolicyFailFast
)

// Delivery controls the order in which results reach the callback.
type Delivery int

const (
	// DeliveryCompletion hands results over as soon as they finish.
	DeliveryCompletion Delivery = iota
	// DeliverySubmission buffers early finishers so results arrive in input order.
	DeliverySubmission
)

func (d Delivery) String() string {
	if d == DeliverySubmission {
		return "ordered"
	}
	return "unordered"
}

type Options struct {
	// Workers caps the number of items in flight. Values above len(items) behave
	// like full parallelism.
	Workers int

	// RateLimitRPS is a global limit across all workers. Set to <=0 to disable.
	RateLimitRPS float64

	FailurePolicy FailurePolicy
	Delivery      Delivery
}

// Result holds the output for one input item.
type Result[In any, Out any] struct {
	// Index is the position of Input in the submitted slice.
	Index  int
	Input  In
	Output Out
	Err    error
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// ProcessAll runs the processor over all input items. The returned slice is
// indexed like items regardless of delivery mode.
func ProcessAll[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	opts Options,
) ([]Result[In, Out], error) {
	return ProcessAllWithCallback(ctx, items, processor, nil, opts)
}

// ProcessAllWithCallback runs the processor over all input items and invokes onResult
// once per item, from a single goroutine, in the order selected by opts.Delivery.
//
// Under FailurePolicyFailFast the first processor error (or any callback error) stops
// submission of further items. Items already in flight run to completion but their
// results are discarded, and the error is returned.
func ProcessAllWithCallback[In any, Out any](
	ctx context.Context,
	items []In,
	processor func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]) error,
	opts Options,
) ([]Result[In, Out], error) {
	opts = opts.withDefaults()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var limiter *rate.Limiter
	if opts.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), 1)
	}

	out := make([]Result[In, Out], len(items))
	if len(items) == 0 {
		return out, ctx.Err()
	}

	workers := min(opts.Workers, len(items))

	type job struct {
		idx int
		in  In
	}

	jobs := make(chan job)
	done := make(chan Result[In, Out], workers)

	var wg sync.WaitGroup

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	workerFn := func() {
		defer wg.Done()
		for j := range jobs {
			if runCtx.Err() != nil {
				return
			}
			if limiter != nil {
				if err := limiter.Wait(runCtx); err != nil {
					return
				}
			}
			// The processor sees the caller's context, not runCtx: a fail-fast stop
			// halts submission but lets requests already on the wire drain.
			res, err := processor(ctx, j.in)
			r := Result[In, Out]{Index: j.idx, Input: j.in, Output: res, Err: err}
			if err != nil && opts.FailurePolicy == FailurePolicyFailFast {
				fail(err)
				return
			}
			done <- r
		}
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go workerFn()
	}

	go func() {
		defer close(jobs)
		for i, item := range items {
			select {
			case jobs <- job{idx: i, in: item}:
			case <-runCtx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(done)
	}()

	deliver := func(r Result[In, Out]) {
		out[r.Index] = r
		if onResult == nil || failed() {
			return
		}
		if err := onResult(r); err != nil {
			fail(err)
		}
	}

	// Reorder buffer for DeliverySubmission: holds finished results whose
	// predecessors are still in flight.
	pending := make(map[int]Result[In, Out])
	next := 0

	for r := range done {
		if opts.Delivery != DeliverySubmission {
			deliver(r)
			continue
		}
		pending[r.Index] = r
		for {
			head, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			deliver(head)
		}
	}

	mu.Lock()
	err := firstErr
	mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
