package tablestore

import (
	"errors"
	"strings"
	"testing"

	"billrecon/internal/models"
	"billrecon/internal/services/storage"
)

func openStore(t *testing.T, dir string) *Store {
	t.Helper()
	blobs, err := storage.New(dir)
	if err != nil {
		t.Fatalf("storage.New() failed: %v", err)
	}
	st, err := Open(dir, blobs)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	return st
}

func billRows() []models.Row {
	return []models.Row{
		{"Transaction Key": "K1", "Amount": 10.0},
		{"Transaction Key": "K2", "Amount": -5.0},
	}
}

func TestAddTableAndGet(t *testing.T) {
	st := openStore(t, t.TempDir())

	table, err := st.AddTable("1.1-1.15账单", []string{"Transaction Key", "Amount"}, billRows(), models.Metadata{})
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	if table.ID == "" {
		t.Fatal("table ID not assigned")
	}
	if table.Metadata.Kind != models.KindBill {
		t.Errorf("Kind = %q, want inferred bill", table.Metadata.Kind)
	}
	if table.RowCount != 2 {
		t.Errorf("RowCount = %d, want 2", table.RowCount)
	}

	got, err := st.Get(table.ID)
	if err != nil || got.Name != "1.1-1.15账单" {
		t.Errorf("Get() = %v, %v", got, err)
	}
}

func TestAddTableRenamesOrderExports(t *testing.T) {
	st := openStore(t, t.TempDir())

	table, err := st.AddTable("ExportOrder20240305.csv", []string{"Purchase Order #"}, nil, models.Metadata{})
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	if !strings.HasPrefix(table.Name, "速猫订单") {
		t.Errorf("Name = %q, want 速猫订单 prefix", table.Name)
	}
	if table.OriginalName != "ExportOrder20240305.csv" {
		t.Errorf("OriginalName = %q, want preserved", table.OriginalName)
	}
	if table.Metadata.Kind != models.KindOrders {
		t.Errorf("Kind = %q, want orders", table.Metadata.Kind)
	}
}

func TestRename(t *testing.T) {
	st := openStore(t, t.TempDir())

	table, err := st.AddTable("1.1-1.15账单", []string{"Amount"}, billRows(), models.Metadata{})
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	taken, _ := st.AddTable("一月账单", nil, nil, models.Metadata{})

	renamed, err := st.Rename(table.ID, "一月账单")
	if err != nil {
		t.Fatalf("Rename() failed: %v", err)
	}
	if renamed.Name != "一月账单_2" {
		t.Errorf("Name = %q, want dedupe suffix against %q", renamed.Name, taken.Name)
	}
	if renamed.OriginalName != "1.1-1.15账单" {
		t.Errorf("OriginalName = %q, want untouched", renamed.OriginalName)
	}

	if _, err := st.Rename("missing", "x"); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Rename(missing) error = %v, want ErrTableNotFound", err)
	}
}

func TestAddTableDedupesNames(t *testing.T) {
	st := openStore(t, t.TempDir())

	first, _ := st.AddTable("账单", nil, nil, models.Metadata{})
	second, err := st.AddTable("账单", nil, nil, models.Metadata{})
	if err != nil {
		t.Fatalf("AddTable() failed: %v", err)
	}
	if first.Name != "账单" || second.Name != "账单_2" {
		t.Errorf("names = %q, %q, want 账单 and 账单_2", first.Name, second.Name)
	}
}

func TestRowsAfterCompact(t *testing.T) {
	st := openStore(t, t.TempDir())

	meta := models.Metadata{
		Kind:         models.KindBillSummary,
		SourceTables: []string{"a", "b"},
		Transform:    "merge",
	}
	table, _ := st.AddTable("1.1-1.15账单汇总-新生成", []string{"Transaction Key"}, billRows(), meta)

	if err := st.Compact(table.ID); err != nil {
		t.Fatalf("Compact() failed: %v", err)
	}
	if _, err := st.Rows(table.ID); !errors.Is(err, ErrDataUnavailable) {
		t.Errorf("Rows() error = %v, want ErrDataUnavailable", err)
	}

	// Header remains listable with its counters intact.
	got, _ := st.Get(table.ID)
	if !got.Compacted || got.CompactedAt == nil || got.RowCount != 2 {
		t.Errorf("header after compact = %+v", got)
	}
}

func TestCompactRequiresProvenance(t *testing.T) {
	st := openStore(t, t.TempDir())

	table, _ := st.AddTable("uploaded bill", []string{"Transaction Key"}, billRows(), models.Metadata{})
	if err := st.Compact(table.ID); !errors.Is(err, ErrNotCompactable) {
		t.Errorf("Compact() error = %v, want ErrNotCompactable", err)
	}
	if rows, err := st.Rows(table.ID); err != nil || len(rows) != 2 {
		t.Errorf("rows must survive a refused compact: %v, %v", rows, err)
	}
}

func TestDelete(t *testing.T) {
	st := openStore(t, t.TempDir())

	table, _ := st.AddTable("账单", nil, nil, models.Metadata{})
	if err := st.Delete(table.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := st.Get(table.ID); !errors.Is(err, ErrTableNotFound) {
		t.Errorf("Get() after delete = %v, want ErrTableNotFound", err)
	}
	if len(st.List()) != 0 {
		t.Errorf("List() = %v after delete", st.List())
	}
}

func TestPersistenceRoundtrip(t *testing.T) {
	dir := t.TempDir()

	st := openStore(t, dir)
	table, _ := st.AddTable("1.1-1.15账单", []string{"Transaction Key", "Amount"}, billRows(), models.Metadata{})
	if err := st.SaveMapping(&models.FieldMapping{
		TransactionDesc: "FBA storage fee",
		AmountType:      "Fee",
		PrimaryCategory: "仓储费用",
	}); err != nil {
		t.Fatalf("SaveMapping() failed: %v", err)
	}

	reopened := openStore(t, dir)
	got, err := reopened.Get(table.ID)
	if err != nil {
		t.Fatalf("Get() after reopen failed: %v", err)
	}
	if got.Name != "1.1-1.15账单" || len(got.Rows) != 2 {
		t.Errorf("reloaded table = %+v", got)
	}
	if m, ok := reopened.Index().Get("FBA storage fee|Fee"); !ok || m.PrimaryCategory != "仓储费用" {
		t.Errorf("reloaded mapping = %v, %v", m, ok)
	}
}

func TestDeleteMapping(t *testing.T) {
	st := openStore(t, t.TempDir())

	st.SaveMapping(&models.FieldMapping{TransactionDesc: "ad", AmountType: "Fee", PrimaryCategory: "广告费"})
	if err := st.DeleteMapping("ad|Fee"); err != nil {
		t.Fatalf("DeleteMapping() failed: %v", err)
	}
	if err := st.DeleteMapping("ad|Fee"); err == nil {
		t.Error("expected error deleting a missing mapping")
	}
}

func TestByKindAndInferKind(t *testing.T) {
	st := openStore(t, t.TempDir())
	st.AddTable("1.1-1.15账单", nil, nil, models.Metadata{})
	st.AddTable("速猫订单2024年3月5日", nil, nil, models.Metadata{})
	st.AddTable("1.1-1.15账单汇总-新生成", nil, nil, models.Metadata{})

	if got := st.ByKind(models.KindBill); len(got) != 1 || got[0].Name != "1.1-1.15账单" {
		t.Errorf("ByKind(bill) = %v", got)
	}

	tests := []struct {
		name string
		want string
	}{
		{"1.1-1.15账单汇总-新生成", models.KindBillSummary},
		{"下单时间匹配-2024-03-05", models.KindMatchedTime},
		{"1.1-1.15账单订单匹配-新生成", models.KindMatchedBill},
		{"筛选-2024-03 账单数据", models.KindFiltered},
		{"速猫订单2024年3月5日", models.KindOrders},
		{"2.1-2.15账单", models.KindBill},
		{"random sheet", models.KindUnknown},
	}
	for _, tt := range tests {
		if got := InferKind(tt.name); got != tt.want {
			t.Errorf("InferKind(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFilterByDate(t *testing.T) {
	table := &models.Table{
		Name:    "1.1-1.15账单汇总-新生成",
		Columns: []string{"下单时间", "Amount"},
		Rows: []models.Row{
			{"下单时间": "2024/3/5", "Amount": 1.0},
			{"下单时间": "2024/3/9", "Amount": 2.0},
			{"下单时间": "2024/4/1", "Amount": 3.0},
			{"下单时间": "", "Amount": 4.0},
		},
	}

	name, rows, err := FilterByDate(table, 2024, 3, 0)
	if err != nil {
		t.Fatalf("FilterByDate() failed: %v", err)
	}
	if name != "筛选-2024-03 账单数据" {
		t.Errorf("name = %q", name)
	}
	if len(rows) != 2 {
		t.Errorf("row count = %d, want 2", len(rows))
	}

	name, rows, _ = FilterByDate(table, 2024, 3, 5)
	if name != "筛选-2024-03-05 账单数据" || len(rows) != 1 {
		t.Errorf("day filter = %q, %d rows", name, len(rows))
	}

	name, rows, _ = FilterByDate(table, 2024, 0, 0)
	if name != "筛选-2024 账单数据" || len(rows) != 3 {
		t.Errorf("year filter = %q, %d rows", name, len(rows))
	}
}

func TestFilterByDateNoDateColumn(t *testing.T) {
	table := &models.Table{Name: "x", Columns: []string{"Amount"}}
	if _, _, err := FilterByDate(table, 2024, 0, 0); err == nil {
		t.Error("expected error when no order date column exists")
	}
}

func TestSelectColumns(t *testing.T) {
	table := &models.Table{
		Name:    "账单",
		Columns: []string{"Transaction Key", "Amount", "Note"},
		Rows: []models.Row{
			{"Transaction Key": "K1", "Amount": " 12.5 ", "Note": "x"},
			{"Transaction Key": "K2", "Amount": 3.0, "Note": "y"},
		},
	}

	name, rows, err := SelectColumns(table, []string{"Transaction Key", "Amount"})
	if err != nil {
		t.Fatalf("SelectColumns() failed: %v", err)
	}
	if name != "账单_已筛选" {
		t.Errorf("name = %q", name)
	}
	if len(rows) != 2 || len(rows[0]) != 2 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0]["Amount"] != 12.5 {
		t.Errorf("Amount = %v (%T), want re-coerced 12.5", rows[0]["Amount"], rows[0]["Amount"])
	}
	if _, ok := rows[0]["Note"]; ok {
		t.Error("unselected column leaked into projection")
	}

	if _, _, err := SelectColumns(table, []string{"Missing"}); err == nil {
		t.Error("expected error for unknown column")
	}
}
