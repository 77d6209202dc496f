// Package dates coerces the date soup found in bill exports into a
// single display form. Cells arrive as ISO-ish strings, Chinese
// calendar strings, datetimes, or raw spreadsheet serial numbers.
package dates

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"billrecon/internal/models"
)

// Spreadsheet serial day 25569 is the Unix epoch (1970-01-01).
const serialEpochDay = 25569

var (
	simpleDate   = regexp.MustCompile(`^(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})$`)
	embeddedDate = regexp.MustCompile(`(\d{4})[/\-](\d{1,2})[/\-](\d{1,2})`)
	chineseDate  = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	mdyDate      = regexp.MustCompile(`^(\d{1,2})[/\-](\d{1,2})[/\-](\d{4})$`)
)

// parseLayouts are tried in order for strings the regexes miss.
var parseLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

// ForceFormat normalizes a date cell to unpadded "Y/M/D". Blank cells
// and "#N/A" become empty. Unparseable values pass through unchanged so
// the caller never loses data.
func ForceFormat(v any) string {
	if v == nil {
		return ""
	}
	s := models.CellString(v)
	if s == "" || s == "#N/A" {
		return ""
	}

	if f, ok := v.(float64); ok {
		return formatYMD(fromSerial(f))
	}

	if m := simpleDate.FindStringSubmatch(s); m != nil {
		return joinYMD(m[1], m[2], m[3])
	}
	if m := embeddedDate.FindStringSubmatch(s); m != nil {
		return joinYMD(m[1], m[2], m[3])
	}
	if m := chineseDate.FindStringSubmatch(s); m != nil {
		return joinYMD(m[1], m[2], m[3])
	}

	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return formatYMD(t)
		}
	}

	return s
}

// DisplayFormat is ForceFormat with blanks rendered as "#N/A", the
// convention used in generated match tables.
func DisplayFormat(v any) string {
	if f := ForceFormat(v); f != "" {
		return f
	}
	return "#N/A"
}

// Parse extracts a calendar date from a cell for filtering. Unlike
// ForceFormat it reports failure instead of passing values through.
func Parse(v any) (time.Time, bool) {
	if v == nil {
		return time.Time{}, false
	}

	if f, ok := v.(float64); ok {
		return fromSerial(f), true
	}

	s := models.CellString(v)
	if s == "" {
		return time.Time{}, false
	}

	if m := embeddedDate.FindStringSubmatch(s); m != nil {
		return dateFrom(m[1], m[2], m[3]), true
	}
	if m := chineseDate.FindStringSubmatch(s); m != nil {
		return dateFrom(m[1], m[2], m[3]), true
	}
	if m := mdyDate.FindStringSubmatch(s); m != nil {
		return dateFrom(m[3], m[1], m[2]), true
	}

	for _, layout := range parseLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

func fromSerial(days float64) time.Time {
	secs := (days - serialEpochDay) * 86400
	return time.Unix(int64(secs), 0).UTC()
}

func formatYMD(t time.Time) string {
	return fmt.Sprintf("%d/%d/%d", t.Year(), int(t.Month()), t.Day())
}

func joinYMD(y, m, d string) string {
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	return fmt.Sprintf("%d/%d/%d", yi, mi, di)
}

func dateFrom(y, m, d string) time.Time {
	yi, _ := strconv.Atoi(y)
	mi, _ := strconv.Atoi(m)
	di, _ := strconv.Atoi(d)
	return time.Date(yi, time.Month(mi), di, 0, 0, 0, 0, time.UTC)
}
