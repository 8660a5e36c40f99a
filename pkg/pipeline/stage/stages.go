package stage

import (
	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/correlate"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
)

const (
	NameBaseInfo = "info"
	NameShards   = "shards"
	NameIndexes  = "indexes"
)

// BaseInfo fetches GET {host}/{db} and merges the whole body plus the
// Cloudant backend header. Results are matched by entity ID so the stage is
// safe for batches spanning several hosts.
type BaseInfo struct{}

func (BaseInfo) Name() string                 { return NameBaseInfo }
func (BaseInfo) Strategy() correlate.Strategy { return correlate.Tagged }

func (BaseInfo) URL(e core.Entity) string {
	return couch.DatabaseURL(e.Host, e.Name)
}

func (BaseInfo) Merge(e *core.Entity, res core.Result) error {
	body, err := core.DecodeObject(res.Payload)
	if err != nil {
		return err
	}
	e.Attrs.Merge(body)
	if backend := res.Header.Get(couch.BackendHeader); backend != "" {
		e.Attrs[reduce.AttrBackend] = backend
	}
	return nil
}

// Shards fetches GET {host}/{db}/_shards and records the shard count with
// the recommended q for the database's size.
type Shards struct {
	DocsPerShard  int64
	BytesPerShard int64
}

func (Shards) Name() string                 { return NameShards }
func (Shards) Strategy() correlate.Strategy { return correlate.Positional }

func (Shards) URL(e core.Entity) string {
	return couch.ShardsURL(e.Host, e.Name)
}

func (s Shards) Merge(e *core.Entity, res core.Result) error {
	n, err := reduce.ParseShardCount(res.Payload)
	if err != nil {
		return err
	}
	rec := reduce.RecommendShards(reduce.TotalDocs(e.Attrs), reduce.DataSize(e.Attrs), s.DocsPerShard, s.BytesPerShard)
	e.Attrs.Merge(map[string]any{
		reduce.AttrShardCount:    n,
		reduce.AttrShardsByCount: rec.ByCount,
		reduce.AttrShardsBySize:  rec.BySize,
	})
	return nil
}

// Indexes fetches the design documents of each database and merges the
// nine index counters plus the per-index listing.
type Indexes struct{}

func (Indexes) Name() string                 { return NameIndexes }
func (Indexes) Strategy() correlate.Strategy { return correlate.Positional }

func (Indexes) URL(e core.Entity) string {
	return couch.DesignDocsURL(e.Host, e.Name)
}

func (Indexes) Merge(e *core.Entity, res core.Result) error {
	docs, err := reduce.ParseDesignDocs(res.Payload)
	if err != nil {
		return err
	}
	profile, entries := reduce.ProfileDesignDocs(docs)
	e.Attrs.Merge(profile.Attrs())
	e.Attrs[reduce.AttrIndexEntries] = entries
	return nil
}
