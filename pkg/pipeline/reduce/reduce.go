// Package reduce holds the pure functions that turn merged database
// attributes into report values.
package reduce

import (
	"fmt"
	"math"

	"github.com/shpitdev/couch-xray/pkg/pipeline/core"
)

const (
	DefaultDocsPerShard  int64 = 10_000_000
	DefaultBytesPerShard int64 = 10 << 30
)

// Attribute keys written by the enrichment stages.
const (
	AttrDocCount       = "doc_count"
	AttrDocDelCount    = "doc_del_count"
	AttrDataSize       = "other.data_size"
	AttrExternalSize   = "sizes.external"
	AttrBackend        = "backend"
	AttrShardCount     = "shard_count"
	AttrShardsByCount  = "recommended_shards_by_count"
	AttrShardsBySize   = "recommended_shards_by_size"
	AttrIndexEntries   = "index_entries"
	AttrViews          = "views"
	AttrViewGroups     = "view_groups"
	AttrSearchIndexes  = "search_indexes"
	AttrGeoIndexes     = "geo_indexes"
	AttrQueryViews     = "query_views"
	AttrQueryGroups    = "query_view_groups"
	AttrQuerySearch    = "query_search_indexes"
	AttrValidateFuncs  = "validate_funcs"
	AttrUpdateHandlers = "update_handlers"
)

// TotalDocs is active plus deleted documents.
func TotalDocs(attrs core.Attributes) int64 {
	active, _ := attrs.Int64(AttrDocCount)
	deleted, _ := attrs.Int64(AttrDocDelCount)
	return active + deleted
}

// DataSize reads other.data_size, falling back to sizes.external which
// replaced it in CouchDB 2.x.
func DataSize(attrs core.Attributes) int64 {
	if n, ok := attrs.Int64(AttrDataSize); ok {
		return n
	}
	n, _ := attrs.Int64(AttrExternalSize)
	return n
}

var millNames = []string{"", "k", "M", "B", "T"}

// Millify renders a count on a base-1000 scale with no decimals: 1500000 is "2M".
func Millify(n int64) string {
	if n <= 0 {
		return "0"
	}
	f := float64(n)
	idx := int(math.Floor(math.Log10(f) / 3))
	idx = max(0, min(len(millNames)-1, idx))
	return fmt.Sprintf("%.0f%s", f/math.Pow10(3*idx), millNames[idx])
}

var sizeUnits = []string{"bytes", "KB", "MB", "GB", "TB"}

// SizeOf renders a byte count on a base-1024 scale with one decimal, using the
// first unit where the magnitude drops below 1024. Anything past that stays in TB.
func SizeOf(n int64) string {
	num := float64(n)
	for i, unit := range sizeUnits {
		if math.Abs(num) < 1024 || i == len(sizeUnits)-1 {
			return fmt.Sprintf("%3.1f %s", num, unit)
		}
		num /= 1024
	}
	return ""
}

// ShardRecommendation suggests a shard count (q) for a database.
type ShardRecommendation struct {
	ByCount int64 `json:"by_count"`
	BySize  int64 `json:"by_size"`
}

// RecommendShards computes ceil((docs+1)/docsPerShard) and
// ceil((bytes+1)/bytesPerShard). The +1 keeps an empty database at one shard.
// Non-positive thresholds fall back to the defaults.
func RecommendShards(totalDocs, dataSize, docsPerShard, bytesPerShard int64) ShardRecommendation {
	if docsPerShard <= 0 {
		docsPerShard = DefaultDocsPerShard
	}
	if bytesPerShard <= 0 {
		bytesPerShard = DefaultBytesPerShard
	}
	return ShardRecommendation{
		ByCount: ceilDiv(max(totalDocs, 0)+1, docsPerShard),
		BySize:  ceilDiv(max(dataSize, 0)+1, bytesPerShard),
	}
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
