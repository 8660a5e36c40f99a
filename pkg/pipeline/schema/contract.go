package schema

import (
	"fmt"
	"strings"
)

// Format selects how the final report is rendered.
type Format string

const (
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
)

// Formats lists the accepted values in help-text order.
var Formats = []Format{FormatTable, FormatCSV, FormatJSON}

// Field captures the minimal behavior-relevant column description.
type Field struct {
	Name string
	// Type is "string" or "integer"; integers are emitted exactly in CSV and JSON.
	Type     string
	Nullable bool
}

// ReportContract is the logical column contract of one report.
type ReportContract struct {
	Format Format
	Fields []Field
}

// Names returns the field names in order.
func (c ReportContract) Names() []string {
	out := make([]string, len(c.Fields))
	for i, f := range c.Fields {
		out[i] = f.Name
	}
	return out
}

// NormalizeFormat maps loose user input onto a Format, defaulting to table.
func NormalizeFormat(raw string) Format {
	s := strings.TrimSpace(strings.ToLower(raw))
	switch s {
	case "csv":
		return FormatCSV
	case "json", "raw":
		return FormatJSON
	default:
		return FormatTable
	}
}

// ParseFormat is the strict variant used for flag validation.
func ParseFormat(raw string) (Format, error) {
	s := strings.TrimSpace(strings.ToLower(raw))
	if s == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (want table, csv or json)", raw)
}
