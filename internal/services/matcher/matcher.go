// Package matcher joins bill rows to order timestamps by purchase
// order number, then folds the matched timestamps back into the bill
// table as a leading 下单时间 column.
package matcher

import (
	"errors"
	"strings"
	"time"

	"billrecon/internal/models"
	"billrecon/internal/services/columns"
	"billrecon/internal/services/dates"
)

// Match table schema, fixed by the downstream review spreadsheets.
var matchColumns = []string{
	"Purchase Order #",
	"匹配下单时间",
	"匹配状态",
	"数据来源",
	"原始行号",
	"订单出现次数",
}

// OrderIndex maps order numbers to their first-seen display timestamp
// and tracks how many times each number appears in the order export.
type OrderIndex struct {
	times  map[string]string
	counts map[string]int
}

// BuildOrderIndex scans an order table once. Duplicate order numbers
// keep the first timestamp but still bump the occurrence count.
func BuildOrderIndex(orders *models.Table, orderNumberCol, orderTimeCol string) *OrderIndex {
	idx := &OrderIndex{
		times:  make(map[string]string),
		counts: make(map[string]int),
	}
	for _, row := range orders.Rows {
		num := models.CellString(row[orderNumberCol])
		if num == "" {
			continue
		}
		num = strings.TrimSpace(num)
		idx.counts[num]++
		if _, ok := idx.times[num]; !ok {
			idx.times[num] = dates.DisplayFormat(row[orderTimeCol])
		}
	}
	return idx
}

// Len returns the number of unique order numbers indexed.
func (idx *OrderIndex) Len() int { return len(idx.times) }

// Lookup returns the display timestamp for an order number.
func (idx *OrderIndex) Lookup(num string) (string, bool) {
	t, ok := idx.times[num]
	return t, ok
}

// MatchResult is the generated match table plus its counters.
type MatchResult struct {
	Name       string       `json:"name"`
	Columns    []string     `json:"columns"`
	Rows       []models.Row `json:"rows"`
	Matched    int          `json:"matched"`
	Unmatched  int          `json:"unmatched"`
	OrderTable string       `json:"orderTable"`
	BillTable  string       `json:"billTable"`
}

// Match produces one output row per bill row that carries a purchase
// order number. Rows are grouped by order number, groups emitted in
// first-appearance order. 原始行号 is the bill row's spreadsheet line
// number (data starts on line 2).
func Match(orders, bills *models.Table, orderNumberCol, orderTimeCol, purchaseOrderCol string) (*MatchResult, error) {
	if orders == nil || bills == nil {
		return nil, errors.New("order and bill tables are required")
	}
	if len(orders.Rows) == 0 {
		return nil, errors.New("order table has no rows")
	}

	idx := BuildOrderIndex(orders, orderNumberCol, orderTimeCol)

	type entry struct {
		rowIndex int
	}
	groups := make(map[string][]entry)
	var groupOrder []string

	for i, row := range bills.Rows {
		po := models.CellString(row[purchaseOrderCol])
		if po == "" {
			continue
		}
		po = strings.TrimSpace(po)
		if _, ok := groups[po]; !ok {
			groupOrder = append(groupOrder, po)
		}
		groups[po] = append(groups[po], entry{rowIndex: i})
	}

	res := &MatchResult{
		Name:       "下单时间匹配-" + time.Now().Format("2006-01-02"),
		Columns:    append([]string(nil), matchColumns...),
		OrderTable: orders.Name,
		BillTable:  bills.Name,
	}

	for _, po := range groupOrder {
		matchedTime, found := idx.Lookup(po)
		status := "未匹配"
		display := "#N/A"
		if found {
			status = "已匹配"
			display = matchedTime
		}
		for _, e := range groups[po] {
			res.Rows = append(res.Rows, models.Row{
				"Purchase Order #": po,
				"匹配下单时间":           display,
				"匹配状态":             status,
				"数据来源":             "账单汇总表",
				"原始行号":             float64(e.rowIndex + 2),
				"订单出现次数":           float64(idx.counts[po]),
			})
			if found {
				res.Matched++
			} else {
				res.Unmatched++
			}
		}
	}

	return res, nil
}

// MergeBackResult is the bill table with the 下单时间 column prepended.
type MergeBackResult struct {
	Name            string       `json:"name"`
	Columns         []string     `json:"columns"`
	Rows            []models.Row `json:"rows"`
	Matched         int          `json:"matched"`
	TimestampFilled int          `json:"timestampFilled"`
	NoData          int          `json:"noData"`
}

// MergeBack builds the final bill table. Pass one backfills 下单时间
// from the row's own transaction timestamp when the transaction key is
// empty; pass two overwrites with the matched order time wherever the
// purchase order resolved. Matched + TimestampFilled + NoData always
// equals the row count.
func MergeBack(bill, matched *models.Table) (*MergeBackResult, error) {
	if bill == nil || matched == nil {
		return nil, errors.New("bill and match tables are required")
	}

	matchedTimes := make(map[string]string)
	for _, row := range matched.Rows {
		po := models.CellString(row["Purchase Order #"])
		mt := models.CellString(row["匹配下单时间"])
		if po == "" || po == "#N/A" || mt == "" || mt == "#N/A" {
			continue
		}
		matchedTimes[strings.TrimSpace(po)] = mt
	}

	newColumns := append([]string{"下单时间"}, bill.Columns...)

	res := &MergeBackResult{
		Name:    finalTableName(bill.Name),
		Columns: newColumns,
		Rows:    make([]models.Row, 0, len(bill.Rows)),
	}

	for _, billRow := range bill.Rows {
		newRow := billRow.Clone()

		orderTime := ""
		key, _ := columns.TransactionKey.Value(billRow, bill.Columns)
		if columns.IsKeyEmpty(key) {
			if ts, ok := columns.TransactionTime.Value(billRow, bill.Columns); ok {
				orderTime = dates.ForceFormat(ts)
				if orderTime != "" {
					res.TimestampFilled++
				}
			}
		}
		newRow["下单时间"] = orderTime
		res.Rows = append(res.Rows, newRow)
	}

	for _, row := range res.Rows {
		po := columns.PurchaseOrder.String(row, newColumns)
		if po == "" {
			continue
		}
		mt, ok := matchedTimes[po]
		if !ok {
			continue
		}
		formatted := dates.ForceFormat(mt)
		if row["下单时间"] == formatted {
			continue
		}
		if row["下单时间"] != "" {
			res.TimestampFilled--
		}
		row["下单时间"] = formatted
		res.Matched++
	}

	res.NoData = len(res.Rows) - res.Matched - res.TimestampFilled
	return res, nil
}

// finalTableName derives the matched-bill name from the merged bill
// name, e.g. "3.1-3.31账单汇总-新生成" becomes "3.1-3.31账单订单匹配-新生成".
func finalTableName(originalName string) string {
	base := originalName
	base = strings.ReplaceAll(base, "账单汇总-新生成", "")
	base = strings.ReplaceAll(base, "账单汇总", "")
	base = strings.ReplaceAll(base, "账单", "")
	base = strings.TrimSpace(base)
	return base + "账单订单匹配-新生成"
}
