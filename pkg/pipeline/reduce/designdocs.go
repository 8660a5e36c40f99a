package reduce

import (
	"bytes"
	"encoding/json"
	"slices"
)

// Index type labels as shown in the index listing.
const (
	IndexTypeView      = "view"
	IndexTypeQueryJSON = "CQ JSON"
	IndexTypeSearch    = "search"
	IndexTypeQueryText = "CQ Text"
	IndexTypeGeo       = "geo"
)

// DesignDoc is the subset of a design document the index profile reads.
// A nil map means the field was absent.
type DesignDoc struct {
	ID                string                     `json:"_id"`
	Language          string                     `json:"language,omitempty"`
	Views             map[string]json.RawMessage `json:"views,omitempty"`
	Indexes           map[string]json.RawMessage `json:"indexes,omitempty"`
	STIndexes         map[string]json.RawMessage `json:"st_indexes,omitempty"`
	Updates           map[string]json.RawMessage `json:"updates,omitempty"`
	ValidateDocUpdate json.RawMessage            `json:"validate_doc_update,omitempty"`
}

// IsQuery reports whether the document was written by the declarative query engine.
func (d DesignDoc) IsQuery() bool { return d.Language == "query" }

func (d DesignDoc) HasViews() bool   { return d.Views != nil }
func (d DesignDoc) HasSearch() bool  { return d.Indexes != nil }
func (d DesignDoc) HasGeo() bool     { return d.STIndexes != nil }
func (d DesignDoc) HasUpdates() bool { return d.Updates != nil }

func (d DesignDoc) HasValidation() bool {
	v := bytes.TrimSpace(d.ValidateDocUpdate)
	return len(v) > 0 && !bytes.Equal(v, []byte("null"))
}

type allDocsResponse struct {
	Rows []struct {
		ID  string     `json:"id"`
		Doc *DesignDoc `json:"doc"`
	} `json:"rows"`
}

// ParseDesignDocs decodes an _all_docs response fetched with include_docs=true.
// Rows without a document body are skipped.
func ParseDesignDocs(payload []byte) ([]DesignDoc, error) {
	var resp allDocsResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}
	out := make([]DesignDoc, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		if row.Doc == nil {
			continue
		}
		doc := *row.Doc
		if doc.ID == "" {
			doc.ID = row.ID
		}
		out = append(out, doc)
	}
	return out, nil
}

// ParseShardCount returns the number of keys in the "shards" map of a
// /{db}/_shards response.
func ParseShardCount(payload []byte) (int, error) {
	var resp struct {
		Shards map[string]json.RawMessage `json:"shards"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		return 0, err
	}
	return len(resp.Shards), nil
}

// IndexProfile counts index-bearing fields across a database's design documents.
type IndexProfile struct {
	Views              int `json:"views"`
	ViewGroups         int `json:"view_groups"`
	SearchIndexes      int `json:"search_indexes"`
	GeoIndexes         int `json:"geo_indexes"`
	QueryViews         int `json:"query_views"`
	QueryViewGroups    int `json:"query_view_groups"`
	QuerySearchIndexes int `json:"query_search_indexes"`
	ValidateFuncs      int `json:"validate_funcs"`
	UpdateHandlers     int `json:"update_handlers"`
}

// Attrs returns the counters keyed the way they are merged into an entity.
func (p IndexProfile) Attrs() map[string]any {
	return map[string]any{
		AttrViews:          p.Views,
		AttrViewGroups:     p.ViewGroups,
		AttrSearchIndexes:  p.SearchIndexes,
		AttrGeoIndexes:     p.GeoIndexes,
		AttrQueryViews:     p.QueryViews,
		AttrQueryGroups:    p.QueryViewGroups,
		AttrQuerySearch:    p.QuerySearchIndexes,
		AttrValidateFuncs:  p.ValidateFuncs,
		AttrUpdateHandlers: p.UpdateHandlers,
	}
}

// IndexEntry is one row of the index listing.
type IndexEntry struct {
	DesignDoc string `json:"ddoc"`
	Type      string `json:"type"`
	Name      string `json:"name"`
}

// ProfileDesignDocs counts indexes and lists them. Entries follow document
// order; names inside one document are sorted.
func ProfileDesignDocs(docs []DesignDoc) (IndexProfile, []IndexEntry) {
	var p IndexProfile
	var entries []IndexEntry

	add := func(ddoc, typ string, names map[string]json.RawMessage) {
		keys := make([]string, 0, len(names))
		for k := range names {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			entries = append(entries, IndexEntry{DesignDoc: ddoc, Type: typ, Name: k})
		}
	}

	for _, d := range docs {
		query := d.IsQuery()
		if d.HasViews() {
			if query {
				p.QueryViews += len(d.Views)
				p.QueryViewGroups++
				add(d.ID, IndexTypeQueryJSON, d.Views)
			} else {
				p.Views += len(d.Views)
				p.ViewGroups++
				add(d.ID, IndexTypeView, d.Views)
			}
		}
		if d.HasSearch() {
			if query {
				p.QuerySearchIndexes += len(d.Indexes)
				add(d.ID, IndexTypeQueryText, d.Indexes)
			} else {
				p.SearchIndexes += len(d.Indexes)
				add(d.ID, IndexTypeSearch, d.Indexes)
			}
		}
		if d.HasGeo() {
			p.GeoIndexes += len(d.STIndexes)
			add(d.ID, IndexTypeGeo, d.STIndexes)
		}
		if d.HasUpdates() {
			p.UpdateHandlers += len(d.Updates)
		}
		if d.HasValidation() {
			p.ValidateFuncs++
		}
	}
	return p, entries
}
