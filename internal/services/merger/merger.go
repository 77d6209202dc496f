// Package merger combines multiple bill tables into one, ordered by
// billing period, with rows lacking a transaction key moved to the
// front of the output.
package merger

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"billrecon/internal/models"
	"billrecon/internal/services/columns"
)

// ErrUnorderable means a table's billing period could not be
// determined and the caller did not opt into lexical ordering.
var ErrUnorderable = errors.New("cannot determine billing period order")

// nameRange matches the "M.D-M.D" period fragment embedded in bill
// table names, e.g. "3.1-3.31账单".
var nameRange = regexp.MustCompile(`(\d{1,2})\.(\d{1,2})-(\d{1,2})\.(\d{1,2})`)

// Input pairs a table with an optional explicit billing period. The
// explicit range always outranks whatever the name suggests.
type Input struct {
	Table *models.Table
	Range *models.DateRange
}

// Options control merge behavior.
type Options struct {
	// AllowLexicalOrder falls back to name ordering for tables whose
	// billing period cannot be determined. Off by default: an
	// unorderable table fails the merge instead of silently landing in
	// an arbitrary position.
	AllowLexicalOrder bool
}

// Result is the merged table before registration.
type Result struct {
	Name           string
	Columns        []string
	Rows           []models.Row
	SourceTables   []string
	WithKeyRows    int
	WithoutKeyRows int
}

type orderedInput struct {
	table    *models.Table
	start    time.Time
	hasStart bool
	fragment string // "M.D-M.D" used for the merged name
}

// Merge concatenates the bill tables in billing-period order. Rows are
// partitioned by transaction-key presence: all keyless rows first, in
// table order, then all keyed rows. The first table's columns define
// the output schema.
func Merge(inputs []Input, opts Options) (*Result, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no bill tables to merge")
	}

	ordered := make([]orderedInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Table == nil {
			return nil, errors.New("nil table in merge input")
		}
		oi := orderedInput{table: in.Table}
		switch {
		case in.Range != nil:
			oi.start = in.Range.Start
			oi.hasStart = true
			oi.fragment = rangeFragment(in.Range)
		default:
			if start, frag, ok := periodFromName(in.Table.Name); ok {
				oi.start = start
				oi.hasStart = true
				oi.fragment = frag
			}
		}
		if !oi.hasStart && len(inputs) > 1 && !opts.AllowLexicalOrder {
			return nil, fmt.Errorf("table %q: %w", in.Table.Name, ErrUnorderable)
		}
		ordered = append(ordered, oi)
	}

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.hasStart && b.hasStart {
			return a.start.Before(b.start)
		}
		if a.hasStart != b.hasStart {
			return a.hasStart
		}
		return a.table.Name < b.table.Name
	})

	outCols := append([]string(nil), ordered[0].table.Columns...)

	var withKey, withoutKey []models.Row
	sourceIDs := make([]string, 0, len(ordered))
	for _, oi := range ordered {
		sourceIDs = append(sourceIDs, oi.table.ID)
		for _, row := range oi.table.Rows {
			v, _ := columns.TransactionKey.Value(row, oi.table.Columns)
			if columns.IsKeyEmpty(v) {
				withoutKey = append(withoutKey, row)
			} else {
				withKey = append(withKey, row)
			}
		}
	}

	rows := make([]models.Row, 0, len(withKey)+len(withoutKey))
	rows = append(rows, withoutKey...)
	rows = append(rows, withKey...)

	return &Result{
		Name:           mergedName(ordered),
		Columns:        outCols,
		Rows:           rows,
		SourceTables:   sourceIDs,
		WithKeyRows:    len(withKey),
		WithoutKeyRows: len(withoutKey),
	}, nil
}

// periodFromName parses the "M.D-M.D" fragment out of a table name.
// The start date assumes the current year, which is how the uploaded
// bills are named in practice.
func periodFromName(name string) (time.Time, string, bool) {
	m := nameRange.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, "", false
	}
	month, _ := strconv.Atoi(m[1])
	day, _ := strconv.Atoi(m[2])
	start := time.Date(time.Now().Year(), time.Month(month), day, 0, 0, 0, 0, time.UTC)
	frag := fmt.Sprintf("%s.%s-%s.%s", m[1], m[2], m[3], m[4])
	return start, frag, true
}

func rangeFragment(r *models.DateRange) string {
	return fmt.Sprintf("%d.%d-%d.%d",
		int(r.Start.Month()), r.Start.Day(), int(r.End.Month()), r.End.Day())
}

type monthDay struct {
	month, day int
}

func parseMonthDay(s string) (monthDay, bool) {
	var md monthDay
	if _, err := fmt.Sscanf(s, "%d.%d", &md.month, &md.day); err != nil {
		return md, false
	}
	return md, true
}

// mergedName derives the output name from the earliest and latest
// period endpoints, e.g. "3.1-4.30账单汇总-新生成". Without two usable
// endpoints it falls back to joining the first and last table names.
func mergedName(ordered []orderedInput) string {
	seen := make(map[string]bool)
	var endpoints []monthDay
	for _, oi := range ordered {
		if oi.fragment == "" {
			continue
		}
		parts := strings.SplitN(oi.fragment, "-", 2)
		if len(parts) != 2 {
			continue
		}
		for _, part := range parts {
			if seen[part] {
				continue
			}
			seen[part] = true
			if md, ok := parseMonthDay(part); ok {
				endpoints = append(endpoints, md)
			}
		}
	}

	if len(endpoints) >= 2 {
		sort.Slice(endpoints, func(i, j int) bool {
			if endpoints[i].month != endpoints[j].month {
				return endpoints[i].month < endpoints[j].month
			}
			return endpoints[i].day < endpoints[j].day
		})
		first := endpoints[0]
		last := endpoints[len(endpoints)-1]
		return fmt.Sprintf("%d.%d-%d.%d账单汇总-新生成", first.month, first.day, last.month, last.day)
	}

	firstName := stripBill(ordered[0].table.Name)
	lastName := stripBill(ordered[len(ordered)-1].table.Name)
	return firstName + "-" + lastName + "账单汇总-新生成"
}

func stripBill(name string) string {
	return strings.ReplaceAll(name, "账单", "")
}
