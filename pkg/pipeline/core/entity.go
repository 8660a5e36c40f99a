package core

import (
	"bytes"
	"encoding/json"
	"maps"
	"math"
	"strconv"
	"strings"
)

// Entity is one database tracked through the pipeline.
type Entity struct {
	Host  string
	Name  string
	Attrs Attributes
}

// NewEntity returns an entity with an empty attribute map.
func NewEntity(host, name string) Entity {
	return Entity{Host: host, Name: name, Attrs: Attributes{}}
}

// ID is unique per run: the same database name on two hosts yields two IDs.
func (e Entity) ID() string {
	return strings.TrimRight(e.Host, "/") + "/" + e.Name
}

// Clone returns a copy whose attribute map can be mutated independently.
// Nested values are shared; stages only ever replace top-level keys.
func (e Entity) Clone() Entity {
	out := e
	out.Attrs = maps.Clone(e.Attrs)
	if out.Attrs == nil {
		out.Attrs = Attributes{}
	}
	return out
}

// Attributes accumulate merged data across stages. Keys are only ever added
// or overwritten, never deleted.
type Attributes map[string]any

// Merge copies every key of src into a.
func (a Attributes) Merge(src map[string]any) {
	for k, v := range src {
		a[k] = v
	}
}

// Int64 reads a numeric attribute. Dotted keys walk nested objects
// ("other.data_size"). Missing or non-numeric values report ok=false.
func (a Attributes) Int64(key string) (int64, bool) {
	v, ok := a.lookup(key)
	if !ok {
		return 0, false
	}
	return toInt64(v)
}

// String reads a string attribute.
func (a Attributes) String(key string) string {
	v, ok := a.lookup(key)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// Has reports whether the (possibly dotted) key is present.
func (a Attributes) Has(key string) bool {
	_, ok := a.lookup(key)
	return ok
}

func (a Attributes) lookup(key string) (any, bool) {
	parts := strings.Split(key, ".")
	var cur any = map[string]any(a)
	for _, p := range parts {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Attributes:
		return m, true
	default:
		return nil, false
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return int64(f), true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

// DecodeObject decodes a JSON object keeping numbers exact (json.Number).
func DecodeObject(b []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
