// Package report turns a finished pipeline run into a table, CSV or JSON
// document. Rendering never fetches anything.
package report

import (
	"fmt"
	"strconv"

	"github.com/shpitdev/couch-xray/internal/pipeline"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
	"github.com/shpitdev/couch-xray/pkg/pipeline/reduce"
	"github.com/shpitdev/couch-xray/pkg/pipeline/schema"
	"github.com/shpitdev/couch-xray/pkg/pipeline/stage"
)

// Sheet is one report ready to write: a column contract, the exact values
// per row, and the total row count before any limit.
type Sheet struct {
	Contract schema.ReportContract
	// Titles are the table headers, parallel to Contract.Fields.
	Titles []string
	Rows   [][]Cell
	Total  int
}

// Cell carries both renderings of one value. Value is nil when the
// attribute was never merged.
type Cell struct {
	Value any
	Text  string
}

type Options struct {
	Format schema.Format
	// Limit caps rows of the index listing. 0 keeps all.
	Limit int
}

// Databases builds the per-database report. The host column only appears
// when the run covered more than one server; shard and index columns only
// when those stages ran.
func Databases(rep pipeline.Report, opts Options) Sheet {
	var cols []column
	if rep.MultiHost() {
		cols = append(cols, hostColumn)
	}
	cols = append(cols, baseColumns...)
	if _, ok := rep.StageOutcome(stage.NameShards); ok {
		cols = append(cols, shardColumns...)
	}
	if _, ok := rep.StageOutcome(stage.NameIndexes); ok {
		cols = append(cols, indexColumns...)
	}

	raw := opts.Format == schema.FormatCSV || opts.Format == schema.FormatJSON
	sheet := Sheet{Contract: schema.ReportContract{Format: opts.Format}, Total: len(rep.Entities)}
	for _, c := range cols {
		sheet.Contract.Fields = append(sheet.Contract.Fields, c.field())
		sheet.Titles = append(sheet.Titles, c.title)
		if raw && (c.kind == kindCount || c.kind == kindBytes) {
			sheet.Contract.Fields = append(sheet.Contract.Fields, schema.Field{Name: c.name + "_human", Type: "string"})
			sheet.Titles = append(sheet.Titles, c.title+" (human)")
		}
	}

	for _, e := range rep.Entities {
		row := make([]Cell, 0, len(sheet.Contract.Fields))
		for _, c := range cols {
			v, ok := c.get(e)
			human := humanize(c.kind, v, ok)
			if raw {
				row = append(row, rawCell(v, ok))
				if c.kind == kindCount || c.kind == kindBytes {
					row = append(row, Cell{Value: human, Text: human})
				}
				continue
			}
			row = append(row, Cell{Value: nilUnless(v, ok), Text: human})
		}
		sheet.Rows = append(sheet.Rows, row)
	}
	return sheet
}

// Indexes builds the per-index listing: one row per view, search index or
// geo index, in report order, limited to opts.Limit rows.
func Indexes(rep pipeline.Report, opts Options) Sheet {
	fields := []schema.Field{
		{Name: "db_name", Type: "string"},
		{Name: "ddoc", Type: "string"},
		{Name: "type", Type: "string"},
		{Name: "name", Type: "string"},
	}
	titles := []string{"db name", "ddoc", "type", "index name"}
	multi := rep.MultiHost()
	if multi {
		fields = append([]schema.Field{{Name: "host", Type: "string"}}, fields...)
		titles = append([]string{"host"}, titles...)
	}

	sheet := Sheet{Contract: schema.ReportContract{Format: opts.Format, Fields: fields}, Titles: titles}
	for _, e := range rep.Entities {
		entries, _ := e.Attrs[reduce.AttrIndexEntries].([]reduce.IndexEntry)
		for _, ix := range entries {
			sheet.Total++
			if opts.Limit > 0 && len(sheet.Rows) >= opts.Limit {
				continue
			}
			vals := []string{e.Name, ix.DesignDoc, ix.Type, ix.Name}
			if multi {
				vals = append([]string{displayHost(e.Host)}, vals...)
			}
			row := make([]Cell, len(vals))
			for i, v := range vals {
				row[i] = Cell{Value: v, Text: v}
			}
			sheet.Rows = append(sheet.Rows, row)
		}
	}
	return sheet
}

// Showing summarises how many rows a limited listing kept.
func Showing(s Sheet, noun string) string {
	if len(s.Rows) < s.Total {
		return fmt.Sprintf("Showing %d of %d %s", len(s.Rows), s.Total, noun)
	}
	return fmt.Sprintf("Showing all %d %s", s.Total, noun)
}

// ServerErrorSummary is printed after a run that absorbed 500 responses.
func ServerErrorSummary(n int) string {
	return fmt.Sprintf("Failed to get data for %d requests due to server errors", n)
}

func humanize(k kind, v any, ok bool) string {
	if !ok {
		return "-"
	}
	switch k {
	case kindCount:
		return reduce.Millify(v.(int64))
	case kindBytes:
		return reduce.SizeOf(v.(int64))
	case kindInt:
		return strconv.FormatInt(v.(int64), 10)
	default:
		return fmt.Sprint(v)
	}
}

func rawCell(v any, ok bool) Cell {
	if !ok {
		return Cell{}
	}
	return Cell{Value: v, Text: fmt.Sprint(v)}
}

func nilUnless(v any, ok bool) any {
	if !ok {
		return nil
	}
	return v
}

func displayHost(h string) string {
	return redact.URL(h)
}
