// Package pipeline drives a full inspection run: discover databases, fetch
// base info, sort and limit, then run the optional shard and index stages.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/internal/logger"
	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
	"github.com/shpitdev/couch-xray/pkg/pipeline/stage"
)

type State int

const (
	StateDiscover State = iota
	StateBaseInfo
	StateShards
	StateIndexes
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDiscover:
		return "discover"
	case StateBaseInfo:
		return "base_info"
	case StateShards:
		return "shards"
	case StateIndexes:
		return "indexes"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Discoverer finds the databases behind a configured URL.
type Discoverer interface {
	Probe(ctx context.Context, rawURL string) (couch.Target, error)
	ListDatabases(ctx context.Context, host string) ([]string, error)
}

type Options struct {
	Hosts []string
	// Limit caps the entities kept after sorting. 0 keeps all.
	Limit   int
	Shards  bool
	Indexes bool

	DocsPerShard  int64
	BytesPerShard int64

	// OnState observes every transition, including the one into StateFailed.
	OnState func(from, to State)
	Logger  *zap.SugaredLogger
}

// Report is the outcome of a run.
type Report struct {
	State    State
	Entities []core.Entity
	Stages   []core.StageOutcome
	// ServerErrors sums 500 responses across all stages.
	ServerErrors int
	// Discovered counts entities before limiting.
	Discovered int
	// Hosts are the de-duplicated server roots in configuration order.
	Hosts   []string
	Elapsed time.Duration
}

// MultiHost reports whether entities came from more than one server.
func (r Report) MultiHost() bool {
	return len(r.Hosts) > 1
}

// StageOutcome returns the outcome recorded for name.
func (r Report) StageOutcome(name string) (core.StageOutcome, bool) {
	for _, s := range r.Stages {
		if s.Stage == name {
			return s, true
		}
	}
	return core.StageOutcome{}, false
}

// Orchestrator is single-use per Run call but holds no state between runs.
type Orchestrator struct {
	disc Discoverer
	exec stage.Executor
	opts Options
	log  *zap.SugaredLogger
}

func New(disc Discoverer, exec stage.Executor, opts Options) *Orchestrator {
	log := opts.Logger
	if log == nil {
		log = logger.Named("pipeline")
	}
	return &Orchestrator{disc: disc, exec: exec, opts: opts, log: log}
}

// Run executes the state machine. A fatal response anywhere moves the run to
// StateFailed and returns the error with an empty report.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	rep := Report{State: StateDiscover}

	fail := func(err error) (Report, error) {
		from := rep.State
		o.notify(from, StateFailed)
		o.log.Errorw("run failed", logger.FieldStage, from.String(), "error", redact.Secrets(err.Error()))
		return Report{State: StateFailed, Hosts: rep.Hosts, Elapsed: time.Since(start)}, err
	}

	hosts := normalizeHosts(o.opts.Hosts)
	if len(hosts) == 0 {
		return fail(errors.ErrNoHosts)
	}

	entities, roots, err := o.discover(ctx, hosts)
	if err != nil {
		return fail(err)
	}
	rep.Hosts = roots
	rep.Discovered = len(entities)
	o.log.Infow("discovered databases", logger.FieldCount, len(entities), "hosts", len(roots))

	o.transition(&rep, StateBaseInfo)
	entities, err = o.runStage(ctx, &rep, stage.BaseInfo{}, entities)
	if err != nil {
		return fail(err)
	}

	entities = SortAndLimit(entities, o.opts.Limit)

	if o.opts.Shards {
		o.transition(&rep, StateShards)
		st := stage.Shards{DocsPerShard: o.opts.DocsPerShard, BytesPerShard: o.opts.BytesPerShard}
		entities, err = o.runStage(ctx, &rep, st, entities)
		if err != nil {
			return fail(err)
		}
	}

	if o.opts.Indexes {
		o.transition(&rep, StateIndexes)
		entities, err = o.runStage(ctx, &rep, stage.Indexes{}, entities)
		if err != nil {
			return fail(err)
		}
	}

	o.transition(&rep, StateDone)
	rep.Entities = entities
	rep.Elapsed = time.Since(start)
	if rep.ServerErrors > 0 {
		o.log.Warnw("some requests failed with server errors", logger.FieldCount, rep.ServerErrors)
	}
	return rep, nil
}

func (o *Orchestrator) transition(rep *Report, to State) {
	from := rep.State
	rep.State = to
	o.notify(from, to)
}

func (o *Orchestrator) notify(from, to State) {
	o.log.Debugw("state", "from", from.String(), "to", to.String())
	if o.opts.OnState != nil {
		o.opts.OnState(from, to)
	}
}

func (o *Orchestrator) runStage(ctx context.Context, rep *Report, st stage.Stage, in []core.Entity) ([]core.Entity, error) {
	started := time.Now()
	out, outcome, err := stage.Run(ctx, o.exec, st, in)
	rep.Stages = append(rep.Stages, outcome)
	if err != nil {
		return nil, err
	}
	rep.ServerErrors += outcome.ServerErrors
	o.log.Infow("stage complete",
		logger.FieldStage, outcome.Stage,
		logger.FieldCount, outcome.Submitted,
		"succeeded", outcome.Succeeded,
		"gone", outcome.Gone,
		"server_errors", outcome.ServerErrors,
		logger.FieldDuration, time.Since(started),
	)
	return out, nil
}

// discover probes every host concurrently and keeps host order, then
// listing order, in the result.
func (o *Orchestrator) discover(ctx context.Context, hosts []string) ([]core.Entity, []string, error) {
	perHost := make([][]core.Entity, len(hosts))
	roots := make([]string, len(hosts))

	g, gctx := errgroup.WithContext(ctx)
	for i, h := range hosts {
		g.Go(func() error {
			target, err := o.disc.Probe(gctx, h)
			if err != nil {
				return errors.Wrapf(err, "probe %s", redact.URL(h))
			}
			roots[i] = target.Host
			if target.Database != "" {
				perHost[i] = []core.Entity{core.NewEntity(target.Host, target.Database)}
				return nil
			}
			names, err := o.disc.ListDatabases(gctx, target.Host)
			if err != nil {
				return errors.Wrapf(err, "list databases on %s", redact.URL(target.Host))
			}
			ents := make([]core.Entity, len(names))
			for j, name := range names {
				ents[j] = core.NewEntity(target.Host, name)
			}
			perHost[i] = ents
			o.log.Debugw("listed databases", logger.FieldHost, redact.URL(target.Host), logger.FieldCount, len(names))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	// Two database URLs on one server share a root; keep each entity once.
	seen := make(map[string]struct{})
	var out []core.Entity
	for _, ents := range perHost {
		for _, e := range ents {
			if _, dup := seen[e.ID()]; dup {
				continue
			}
			seen[e.ID()] = struct{}{}
			out = append(out, e)
		}
	}
	return out, normalizeHosts(roots), nil
}

// SortAndLimit orders entities by total documents, largest first (ties by
// ID), and keeps the first limit. limit <= 0 keeps all. The input is not
// reordered.
func SortAndLimit(entities []core.Entity, limit int) []core.Entity {
	out := make([]core.Entity, len(entities))
	copy(out, entities)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := reduce.TotalDocs(out[i].Attrs), reduce.TotalDocs(out[j].Attrs)
		if a != b {
			return a > b
		}
		return out[i].ID() < out[j].ID()
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func normalizeHosts(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.TrimRight(strings.TrimSpace(h), "/")
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
