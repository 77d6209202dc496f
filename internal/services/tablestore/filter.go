package tablestore

import (
	"fmt"
	"strconv"
	"strings"

	"billrecon/internal/models"
	"billrecon/internal/services/columns"
	"billrecon/internal/services/dates"
)

// FilterByDate returns the rows whose order date falls in the given
// period. Month and day of zero widen the filter to the whole year or
// month. The returned name follows the generated-table convention.
func FilterByDate(t *models.Table, year, month, day int) (string, []models.Row, error) {
	col, ok := columns.OrderDate.Find(t.Columns)
	if !ok {
		return "", nil, fmt.Errorf("table %s has no order date column", t.Name)
	}

	var filtered []models.Row
	for _, row := range t.Rows {
		when, ok := dates.Parse(row[col])
		if !ok {
			continue
		}
		if when.Year() != year {
			continue
		}
		if month > 0 && int(when.Month()) != month {
			continue
		}
		if day > 0 && when.Day() != day {
			continue
		}
		filtered = append(filtered, row.Clone())
	}

	name := fmt.Sprintf("筛选-%04d", year)
	if month > 0 {
		name += fmt.Sprintf("-%02d", month)
	}
	if day > 0 {
		name += fmt.Sprintf("-%02d", day)
	}
	name += " 账单数据"

	return name, filtered, nil
}

// amountColumns are re-coerced to numbers when projecting, since
// hand-edited sheets often reintroduce text cells.
var amountColumns = map[string]bool{
	"Amount": true,
	"amount": true,
	"金额":     true,
}

// SelectColumns projects a table onto the given columns.
func SelectColumns(t *models.Table, selected []string) (string, []models.Row, error) {
	if len(selected) == 0 {
		return "", nil, fmt.Errorf("no columns selected")
	}
	have := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		have[c] = true
	}
	for _, c := range selected {
		if !have[c] {
			return "", nil, fmt.Errorf("table %s has no column %q", t.Name, c)
		}
	}

	rows := make([]models.Row, 0, len(t.Rows))
	for _, row := range t.Rows {
		projected := make(models.Row, len(selected))
		for _, c := range selected {
			v := row[c]
			if amountColumns[c] {
				if s, ok := v.(string); ok {
					if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
						v = f
					}
				}
			}
			projected[c] = v
		}
		rows = append(rows, projected)
	}

	return t.Name + "_已筛选", rows, nil
}
