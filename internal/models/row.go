package models

import (
	"strconv"
	"strings"
)

// Row is a single spreadsheet row. Cell values are either string or
// float64, depending on what the ingestion layer could parse.
type Row map[string]any

// CellString renders a cell value as a string. Numbers are rendered
// without a trailing ".0" so re-exported data round-trips cleanly.
func CellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}

// CellFloat extracts a numeric cell value. Numeric strings are parsed,
// anything else reports false.
func CellFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
