package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/shpitdev/couch-xray/pkg/pipeline/schema"
)

// Write renders s to w in the sheet's format.
func Write(w io.Writer, s Sheet) error {
	switch s.Contract.Format {
	case schema.FormatCSV:
		return WriteCSV(w, s)
	case schema.FormatJSON:
		return WriteJSON(w, s)
	default:
		return WriteTable(w, s)
	}
}

// WriteTable renders an aligned text table with a header row.
func WriteTable(w io.Writer, s Sheet) error {
	data := pterm.TableData{s.Titles}
	for _, row := range s.Rows {
		line := make([]string, len(row))
		for i, c := range row {
			line[i] = c.Text
		}
		data = append(data, line)
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return fmt.Errorf("render table: %w", err)
	}
	_, err = fmt.Fprintln(w, out)
	return err
}

// WriteCSV writes the field names as the header and one record per row.
// Missing values are empty cells.
func WriteCSV(w io.Writer, s Sheet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Contract.Names()); err != nil {
		return err
	}
	for _, row := range s.Rows {
		rec := make([]string, len(row))
		for i, c := range row {
			rec[i] = c.Text
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes an indented array with one object per row keyed by field
// name. Missing values are null.
func WriteJSON(w io.Writer, s Sheet) error {
	names := s.Contract.Names()
	out := make([]map[string]any, 0, len(s.Rows))
	for _, row := range s.Rows {
		obj := make(map[string]any, len(row))
		for i, c := range row {
			obj[names[i]] = c.Value
		}
		out = append(out, obj)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
