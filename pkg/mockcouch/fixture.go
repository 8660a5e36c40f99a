package mockcouch

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Database is one fixture database.
//
// Example (YAML):
//
//	databases:
//	  - name: users
//	    doc_count: 1200
//	    doc_del_count: 30
//	    data_size: 1048576
//	    backend: bm-cc-us-south-1
//	    shards: 16
//	    design_docs:
//	      - _id: _design/app
//	        views: {by_name: {map: "function(doc){}"}}
type Database struct {
	Name        string `yaml:"name"`
	DocCount    int64  `yaml:"doc_count"`
	DocDelCount int64  `yaml:"doc_del_count"`
	DataSize    int64  `yaml:"data_size"`
	Backend     string `yaml:"backend"`
	// Shards is the q value. Zero means 8.
	Shards     int              `yaml:"shards"`
	DesignDocs []map[string]any `yaml:"design_docs"`
}

// Fixture is the file format read by cmd/mock-couch.
type Fixture struct {
	Username  string         `yaml:"username"`
	Password  string         `yaml:"password"`
	Databases []Database     `yaml:"databases"`
	Failures  map[string]int `yaml:"failures"`
}

// LoadFixture reads a YAML fixture file.
func LoadFixture(path string) (Fixture, error) {
	path = strings.TrimSpace(path)
	b, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("read fixture file: %w", err)
	}
	var f Fixture
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Fixture{}, fmt.Errorf("parse fixture YAML: %w", err)
	}
	for i, db := range f.Databases {
		if strings.TrimSpace(db.Name) == "" {
			return Fixture{}, fmt.Errorf("fixture database %d: name is required", i)
		}
	}
	return f, nil
}

func (db Database) info() map[string]any {
	return map[string]any{
		"db_name":       db.Name,
		"doc_count":     db.DocCount,
		"doc_del_count": db.DocDelCount,
		"other":         map[string]any{"data_size": db.DataSize},
		"sizes":         map[string]any{"external": db.DataSize, "active": db.DataSize},
		"update_seq":    fmt.Sprintf("%d-mock", db.DocCount+db.DocDelCount),
	}
}

// shardMap splits the 32-bit hash ring into q ranges the way CouchDB names them.
func (db Database) shardMap() map[string][]string {
	q := db.Shards
	if q <= 0 {
		q = 8
	}
	const ring = uint64(1) << 32
	step := ring / uint64(q)
	out := make(map[string][]string, q)
	for i := 0; i < q; i++ {
		start := uint64(i) * step
		end := start + step - 1
		if i == q-1 {
			end = ring - 1
		}
		out[fmt.Sprintf("%08x-%08x", start, end)] = []string{"node1@127.0.0.1"}
	}
	return out
}

func (db Database) sortedDesignDocs() []map[string]any {
	out := make([]map[string]any, len(db.DesignDocs))
	copy(out, db.DesignDocs)
	sort.SliceStable(out, func(i, j int) bool {
		a, _ := out[i]["_id"].(string)
		b, _ := out[j]["_id"].(string)
		return a < b
	})
	return out
}
