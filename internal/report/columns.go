package report

import (
	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
	"github.com/shpitdev/couch-xray/pkg/pipeline/schema"
)

type kind int

const (
	kindText kind = iota
	// kindInt is shown as-is everywhere.
	kindInt
	// kindCount is millified in the table; raw output adds a _human column.
	kindCount
	// kindBytes is shown as a size in the table; raw output adds a _human column.
	kindBytes
)

type column struct {
	name  string
	title string
	kind  kind
	get   func(e core.Entity) (any, bool)
}

func (c column) field() schema.Field {
	if c.kind == kindText {
		return schema.Field{Name: c.name, Type: "string", Nullable: true}
	}
	return schema.Field{Name: c.name, Type: "integer"}
}

func text(get func(core.Entity) string) func(core.Entity) (any, bool) {
	return func(e core.Entity) (any, bool) {
		s := get(e)
		return s, s != ""
	}
}

func attrInt(key string) func(core.Entity) (any, bool) {
	return func(e core.Entity) (any, bool) {
		n, ok := e.Attrs.Int64(key)
		return n, ok
	}
}

func computed(fn func(core.Attributes) int64) func(core.Entity) (any, bool) {
	return func(e core.Entity) (any, bool) {
		return fn(e.Attrs), true
	}
}

var hostColumn = column{name: "host", title: "host", kind: kindText, get: text(func(e core.Entity) string { return displayHost(e.Host) })}

var baseColumns = []column{
	{name: "name", title: "name", kind: kindText, get: text(func(e core.Entity) string { return e.Name })},
	{name: "doc_count", title: "docs", kind: kindCount, get: attrInt(reduce.AttrDocCount)},
	{name: "doc_del_count", title: "deleted", kind: kindCount, get: attrInt(reduce.AttrDocDelCount)},
	{name: "total_docs", title: "total", kind: kindCount, get: computed(reduce.TotalDocs)},
	{name: "data_size", title: "size", kind: kindBytes, get: computed(reduce.DataSize)},
	{name: "backend", title: "backend", kind: kindText, get: text(func(e core.Entity) string { return e.Attrs.String(reduce.AttrBackend) })},
}

var shardColumns = []column{
	{name: reduce.AttrShardCount, title: "shards", kind: kindInt, get: attrInt(reduce.AttrShardCount)},
	{name: reduce.AttrShardsByCount, title: "q by docs", kind: kindInt, get: attrInt(reduce.AttrShardsByCount)},
	{name: reduce.AttrShardsBySize, title: "q by size", kind: kindInt, get: attrInt(reduce.AttrShardsBySize)},
}

var indexColumns = []column{
	{name: reduce.AttrViews, title: "views", kind: kindInt, get: attrInt(reduce.AttrViews)},
	{name: reduce.AttrViewGroups, title: "view groups", kind: kindInt, get: attrInt(reduce.AttrViewGroups)},
	{name: reduce.AttrSearchIndexes, title: "search", kind: kindInt, get: attrInt(reduce.AttrSearchIndexes)},
	{name: reduce.AttrGeoIndexes, title: "geo", kind: kindInt, get: attrInt(reduce.AttrGeoIndexes)},
	{name: reduce.AttrQueryViews, title: "CQ JSON", kind: kindInt, get: attrInt(reduce.AttrQueryViews)},
	{name: reduce.AttrQueryGroups, title: "CQ JSON groups", kind: kindInt, get: attrInt(reduce.AttrQueryGroups)},
	{name: reduce.AttrQuerySearch, title: "CQ Text", kind: kindInt, get: attrInt(reduce.AttrQuerySearch)},
	{name: reduce.AttrValidateFuncs, title: "validate", kind: kindInt, get: attrInt(reduce.AttrValidateFuncs)},
	{name: reduce.AttrUpdateHandlers, title: "update handlers", kind: kindInt, get: attrInt(reduce.AttrUpdateHandlers)},
}
