package matcher

import (
	"testing"

	"billrecon/internal/models"
)

func orderTable(rows ...models.Row) *models.Table {
	return &models.Table{
		ID:      "orders",
		Name:    "速猫订单",
		Columns: []string{"订单号", "下单时间"},
		Rows:    rows,
	}
}

func billTable(rows ...models.Row) *models.Table {
	return &models.Table{
		ID:      "bills",
		Name:    "3.1-3.31账单汇总-新生成",
		Columns: []string{"Transaction Key", "Transaction Posted Timestamp", "Purchase Order #", "Amount"},
		Rows:    rows,
	}
}

func TestBuildOrderIndexFirstSeenWins(t *testing.T) {
	orders := orderTable(
		models.Row{"订单号": "PO-1", "下单时间": "2024-03-05"},
		models.Row{"订单号": "PO-1", "下单时间": "2024-03-09"},
		models.Row{"订单号": " PO-2 ", "下单时间": "2024-03-06"},
		models.Row{"订单号": "", "下单时间": "2024-03-07"},
	)

	idx := BuildOrderIndex(orders, "订单号", "下单时间")

	if idx.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", idx.Len())
	}
	if tm, _ := idx.Lookup("PO-1"); tm != "2024/3/5" {
		t.Errorf("PO-1 time = %q, want first-seen 2024/3/5", tm)
	}
	if idx.counts["PO-1"] != 2 {
		t.Errorf("PO-1 count = %d, want 2", idx.counts["PO-1"])
	}
	if tm, _ := idx.Lookup("PO-2"); tm != "2024/3/6" {
		t.Errorf("PO-2 (trimmed) time = %q, want 2024/3/6", tm)
	}
}

func TestMatch(t *testing.T) {
	orders := orderTable(
		models.Row{"订单号": "PO-1", "下单时间": "2024-03-05"},
		models.Row{"订单号": "PO-1", "下单时间": "2024-03-09"},
	)
	bills := billTable(
		models.Row{"Purchase Order #": "PO-1", "Amount": "10"},
		models.Row{"Purchase Order #": "", "Amount": "11"},
		models.Row{"Purchase Order #": "PO-9", "Amount": "12"},
		models.Row{"Purchase Order #": "PO-1", "Amount": "13"},
	)

	res, err := Match(orders, bills, "订单号", "下单时间", "Purchase Order #")
	if err != nil {
		t.Fatalf("Match() failed: %v", err)
	}

	if res.Matched != 2 || res.Unmatched != 1 {
		t.Fatalf("counts = (%d, %d), want (2, 1)", res.Matched, res.Unmatched)
	}
	if len(res.Rows) != 3 {
		t.Fatalf("rows = %d, want 3 (row without PO skipped)", len(res.Rows))
	}

	// Groups emit in first-appearance order: both PO-1 rows, then PO-9.
	first := res.Rows[0]
	if first["Purchase Order #"] != "PO-1" || first["匹配下单时间"] != "2024/3/5" {
		t.Errorf("first row = %v", first)
	}
	if first["匹配状态"] != "已匹配" || first["数据来源"] != "账单汇总表" {
		t.Errorf("first row status fields = %v", first)
	}
	if first["原始行号"] != float64(2) {
		t.Errorf("原始行号 = %v, want 2 (spreadsheet line numbering)", first["原始行号"])
	}
	if first["订单出现次数"] != float64(2) {
		t.Errorf("订单出现次数 = %v, want 2", first["订单出现次数"])
	}

	second := res.Rows[1]
	if second["原始行号"] != float64(5) {
		t.Errorf("second PO-1 row 原始行号 = %v, want 5", second["原始行号"])
	}

	third := res.Rows[2]
	if third["Purchase Order #"] != "PO-9" || third["匹配下单时间"] != "#N/A" || third["匹配状态"] != "未匹配" {
		t.Errorf("unmatched row = %v", third)
	}
}

func TestMatchEmptyOrders(t *testing.T) {
	if _, err := Match(orderTable(), billTable(), "订单号", "下单时间", "Purchase Order #"); err == nil {
		t.Error("expected error for empty order table")
	}
}

func TestMergeBack(t *testing.T) {
	bills := billTable(
		// Keyless row with its own timestamp: pass-one backfill.
		models.Row{"Transaction Key": "", "Transaction Posted Timestamp": "2024-03-01 09:00:00", "Purchase Order #": "", "Amount": "1"},
		// Keyed row matched by purchase order: pass-two overwrite.
		models.Row{"Transaction Key": "TXN-1", "Transaction Posted Timestamp": "2024-03-02", "Purchase Order #": "PO-1", "Amount": "2"},
		// Nothing to match: stays empty.
		models.Row{"Transaction Key": "TXN-2", "Transaction Posted Timestamp": "", "Purchase Order #": "PO-9", "Amount": "3"},
	)
	matched := &models.Table{
		ID:      "m",
		Name:    "下单时间匹配-2024-03-10",
		Columns: []string{"Purchase Order #", "匹配下单时间"},
		Rows: []models.Row{
			{"Purchase Order #": "PO-1", "匹配下单时间": "2024/3/5"},
			{"Purchase Order #": "PO-9", "匹配下单时间": "#N/A"},
		},
	}

	res, err := MergeBack(bills, matched)
	if err != nil {
		t.Fatalf("MergeBack() failed: %v", err)
	}

	if res.Columns[0] != "下单时间" {
		t.Fatalf("columns = %v, want 下单时间 leading", res.Columns)
	}
	if len(res.Columns) != 5 {
		t.Fatalf("column count = %d, want 5", len(res.Columns))
	}

	if res.Rows[0]["下单时间"] != "2024/3/1" {
		t.Errorf("backfilled row = %v, want 2024/3/1", res.Rows[0]["下单时间"])
	}
	if res.Rows[1]["下单时间"] != "2024/3/5" {
		t.Errorf("matched row = %v, want 2024/3/5", res.Rows[1]["下单时间"])
	}
	if res.Rows[2]["下单时间"] != "" {
		t.Errorf("unmatched row = %v, want empty", res.Rows[2]["下单时间"])
	}

	if res.Matched != 1 || res.TimestampFilled != 1 || res.NoData != 1 {
		t.Errorf("counts = (%d, %d, %d), want (1, 1, 1)",
			res.Matched, res.TimestampFilled, res.NoData)
	}
	if res.Matched+res.TimestampFilled+res.NoData != len(res.Rows) {
		t.Error("count invariant violated")
	}

	if res.Name != "3.1-3.31账单订单匹配-新生成" {
		t.Errorf("name = %q, want 3.1-3.31账单订单匹配-新生成", res.Name)
	}
}

func TestMergeBackOverwriteDecrementsFilled(t *testing.T) {
	// A keyless row that gets backfilled in pass one and then matched
	// in pass two must move from the filled bucket to the matched one.
	bills := billTable(
		models.Row{"Transaction Key": "#N/A", "Transaction Posted Timestamp": "2024-03-01", "Purchase Order #": "PO-1", "Amount": "1"},
	)
	matched := &models.Table{
		ID:      "m",
		Name:    "下单时间匹配",
		Columns: []string{"Purchase Order #", "匹配下单时间"},
		Rows: []models.Row{
			{"Purchase Order #": "PO-1", "匹配下单时间": "2024/3/7"},
		},
	}

	res, err := MergeBack(bills, matched)
	if err != nil {
		t.Fatalf("MergeBack() failed: %v", err)
	}

	if res.Rows[0]["下单时间"] != "2024/3/7" {
		t.Errorf("下单时间 = %v, want matched time to win", res.Rows[0]["下单时间"])
	}
	if res.Matched != 1 || res.TimestampFilled != 0 || res.NoData != 0 {
		t.Errorf("counts = (%d, %d, %d), want (1, 0, 0)",
			res.Matched, res.TimestampFilled, res.NoData)
	}
}
