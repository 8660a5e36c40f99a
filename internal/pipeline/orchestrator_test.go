package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/mockcouch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/batch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
	"github.com/shpitdev/couch-xray/pkg/pipeline/stage"
)

func startCouch(t *testing.T, dbs ...mockcouch.Database) (*mockcouch.Server, string) {
	t.Helper()
	srv := mockcouch.New()
	for _, db := range dbs {
		srv.AddDatabase(db)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts.URL
}

func newOrchestrator(t *testing.T, opts Options) *Orchestrator {
	t.Helper()
	client, err := couch.NewClient(couch.Options{MaxConnsPerHost: 8})
	require.NoError(t, err)
	return New(client, batch.New(client, batch.Options{Workers: 8}), opts)
}

func names(entities []core.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.Name
	}
	return out
}

func TestRunDropsDatabasesDeletedAfterListing(t *testing.T) {
	t.Parallel()

	srv, host := startCouch(t,
		mockcouch.Database{Name: "a", DocCount: 5, DataSize: 1024},
		mockcouch.Database{Name: "b", DocCount: 9},
	)
	// b is listed but gone by the time its info is fetched.
	srv.FailPath("/b", http.StatusNotFound)

	rep, err := newOrchestrator(t, Options{Hosts: []string{host}}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, 2, rep.Discovered)
	require.Equal(t, []string{"a"}, names(rep.Entities))

	a := rep.Entities[0]
	docs, ok := a.Attrs.Int64(reduce.AttrDocCount)
	require.True(t, ok)
	assert.Equal(t, int64(5), docs)
	assert.Equal(t, int64(1024), reduce.DataSize(a.Attrs))

	info, ok := rep.StageOutcome(stage.NameBaseInfo)
	require.True(t, ok)
	assert.Equal(t, 1, info.Gone)
	assert.False(t, rep.MultiHost())
}

func TestRunKeepsSameNameOnSeveralHosts(t *testing.T) {
	t.Parallel()

	_, hostA := startCouch(t, mockcouch.Database{Name: "users", DocCount: 10})
	_, hostB := startCouch(t, mockcouch.Database{Name: "users", DocCount: 20})

	rep, err := newOrchestrator(t, Options{Hosts: []string{hostA, hostB + "/", hostA}}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, rep.MultiHost())
	assert.Equal(t, []string{hostA, hostB}, rep.Hosts)
	require.Len(t, rep.Entities, 2)
	assert.Equal(t, hostB, rep.Entities[0].Host, "larger database sorts first")
	assert.Equal(t, hostA, rep.Entities[1].Host)
}

func TestFatalStatusFailsRunAndSkipsLaterStages(t *testing.T) {
	t.Parallel()

	srv, host := startCouch(t, mockcouch.Database{Name: "a"}, mockcouch.Database{Name: "b"})
	srv.FailPath("/b", http.StatusServiceUnavailable)

	var (
		mu     sync.Mutex
		states []State
	)
	opts := Options{
		Hosts:   []string{host},
		Shards:  true,
		Indexes: true,
		OnState: func(_, to State) {
			mu.Lock()
			states = append(states, to)
			mu.Unlock()
		},
	}
	rep, err := newOrchestrator(t, opts).Run(context.Background())
	require.Error(t, err)

	assert.Equal(t, StateFailed, rep.State)
	assert.Empty(t, rep.Entities)
	assert.Equal(t, []State{StateBaseInfo, StateFailed}, states)
	assert.Zero(t, srv.CallsTo("/a/_shards"))
	assert.Zero(t, srv.CallsTo("/a/_all_docs"))

	var fe *core.FatalError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusServiceUnavailable, fe.StatusCode)
}

func TestServerErrorsAreSummedAcrossStages(t *testing.T) {
	t.Parallel()

	srv, host := startCouch(t,
		mockcouch.Database{Name: "a", DocCount: 3},
		mockcouch.Database{Name: "b", DocCount: 2},
		mockcouch.Database{Name: "c", DocCount: 1},
	)
	srv.FailPath("/c", http.StatusInternalServerError)
	srv.FailPath("/b/_shards", http.StatusInternalServerError)

	rep, err := newOrchestrator(t, Options{Hosts: []string{host}, Shards: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, rep.ServerErrors)
	assert.Equal(t, []string{"a"}, names(rep.Entities))

	shards, ok := rep.StageOutcome(stage.NameShards)
	require.True(t, ok)
	assert.Equal(t, core.StageOutcome{Stage: stage.NameShards, Submitted: 2, Succeeded: 1, ServerErrors: 1}, shards)
}

func TestLimitAppliesBeforeOptionalStages(t *testing.T) {
	t.Parallel()

	srv, host := startCouch(t,
		mockcouch.Database{Name: "small", DocCount: 1},
		mockcouch.Database{Name: "big", DocCount: 100},
		mockcouch.Database{Name: "mid", DocCount: 50, DocDelCount: 10},
	)

	rep, err := newOrchestrator(t, Options{Hosts: []string{host}, Limit: 2, Shards: true, Indexes: true}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Discovered)
	assert.Equal(t, []string{"big", "mid"}, names(rep.Entities))
	assert.Equal(t, 1, srv.CallsTo("/big/_shards"))
	assert.Equal(t, 1, srv.CallsTo("/mid/_shards"))
	assert.Zero(t, srv.CallsTo("/small/_shards"))
	assert.Zero(t, srv.CallsTo("/small/_all_docs"))

	for _, e := range rep.Entities {
		assert.True(t, e.Attrs.Has(reduce.AttrShardCount))
		assert.True(t, e.Attrs.Has(reduce.AttrViews))
	}
}

func TestSingleDatabaseURL(t *testing.T) {
	t.Parallel()

	srv, host := startCouch(t, mockcouch.Database{Name: "a", DocCount: 1}, mockcouch.Database{Name: "b"})

	rep, err := newOrchestrator(t, Options{Hosts: []string{host + "/a"}}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{host}, rep.Hosts)
	require.Equal(t, []string{"a"}, names(rep.Entities))
	assert.Equal(t, host, rep.Entities[0].Host)
	assert.Zero(t, srv.CallsTo("/_all_dbs"))
}

func TestStateSequence(t *testing.T) {
	t.Parallel()

	_, host := startCouch(t, mockcouch.Database{Name: "a"})

	var seen []string
	opts := Options{
		Hosts:   []string{host},
		Shards:  true,
		Indexes: true,
		OnState: func(from, to State) { seen = append(seen, from.String()+">"+to.String()) },
	}
	rep, err := newOrchestrator(t, opts).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDone, rep.State)
	assert.Equal(t, []string{
		"discover>base_info",
		"base_info>shards",
		"shards>indexes",
		"indexes>done",
	}, seen)
	assert.Len(t, rep.Stages, 3)
}

func TestRunWithoutHosts(t *testing.T) {
	t.Parallel()

	rep, err := newOrchestrator(t, Options{Hosts: []string{" ", "/"}}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoHosts))
	assert.Equal(t, StateFailed, rep.State)
}

func TestDiscoveryFailureNamesRedactedHost(t *testing.T) {
	t.Parallel()

	srv := mockcouch.New()
	srv.RequireBasicAuth("admin", "pw")
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	withCreds := "http://admin:hunter2@" + ts.URL[len("http://"):]

	_, err := newOrchestrator(t, Options{Hosts: []string{withCreds}}).Run(context.Background())
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "probe")
}

func TestSortAndLimit(t *testing.T) {
	t.Parallel()

	mk := func(host, name string, docs, deleted int64) core.Entity {
		e := core.NewEntity(host, name)
		e.Attrs[reduce.AttrDocCount] = docs
		e.Attrs[reduce.AttrDocDelCount] = deleted
		return e
	}
	in := []core.Entity{
		mk("http://b", "x", 5, 0),
		mk("http://a", "y", 1, 1),
		mk("http://a", "x", 5, 0),
		mk("http://a", "z", 10, 0),
	}

	got := SortAndLimit(in, 0)
	ids := make([]string, len(got))
	for i, e := range got {
		ids[i] = e.ID()
	}
	assert.Equal(t, []string{"http://a/z", "http://a/x", "http://b/x", "http://a/y"}, ids)
	assert.Equal(t, "http://b", in[0].Host, "input order untouched")

	assert.Len(t, SortAndLimit(in, 2), 2)
	assert.Len(t, SortAndLimit(in, 10), 4)
	assert.Empty(t, SortAndLimit(nil, 3))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "base_info", StateBaseInfo.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
