package summarizer

import (
	"math"
	"testing"

	"billrecon/internal/models"
	"billrecon/internal/services/classifier"
)

var testCols = []string{"Transaction Description", "Amount Type", "Amount"}

func row(desc, amountType string, amount float64) models.Row {
	return models.Row{
		"Transaction Description": desc,
		"Amount Type":             amountType,
		"Amount":                  amount,
	}
}

func newClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	c, err := classifier.New(classifier.DefaultRules())
	if err != nil {
		t.Fatalf("classifier.New() failed: %v", err)
	}
	return c
}

func category(t *testing.T, sum *models.Summary, name string) models.Category {
	t.Helper()
	for _, c := range sum.Categories {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("category %s missing from summary", name)
	return models.Category{}
}

func TestSummarizeBasic(t *testing.T) {
	rows := []models.Row{
		row("Product sales", "Order", 100),
		row("Product sales", "Order", 50),
		row("Sponsored Products", "Fee", -10),
		row("FBA storage fee", "Fee", -5),
	}

	sum, err := Summarize(rows, testCols, nil, newClassifier(t), ManualInputs{})
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	if len(sum.Categories) != 8 {
		t.Fatalf("category count = %d, want all 8 pre-initialized", len(sum.Categories))
	}

	sales := category(t, sum, "销售额")
	if sales.Amount != 150 {
		t.Errorf("销售额 = %v, want 150", sales.Amount)
	}
	if len(sales.Subcategories) != 1 || sales.Subcategories[0].Count != 2 {
		t.Errorf("销售额 subcategories = %+v, want one line with count 2", sales.Subcategories)
	}

	// "FBA storage fee" hits the commission rule first ("fee").
	commission := category(t, sum, "平台佣金")
	if commission.Amount != -5 {
		t.Errorf("平台佣金 = %v, want -5", commission.Amount)
	}

	if sum.TotalSales != 150 {
		t.Errorf("TotalSales = %v, want 150", sum.TotalSales)
	}
	if sum.TotalCost != -15 {
		t.Errorf("TotalCost = %v, want -15", sum.TotalCost)
	}
	if sum.Profit != 165 {
		t.Errorf("Profit = %v, want 165", sum.Profit)
	}
	if math.Abs(sum.ProfitMargin-110) > 1e-9 {
		t.Errorf("ProfitMargin = %v, want 110", sum.ProfitMargin)
	}
	if sum.ProcessedRows != 4 || sum.RowCount != 4 {
		t.Errorf("row counters = (%d, %d), want (4, 4)", sum.ProcessedRows, sum.RowCount)
	}
}

func TestSummarizeMappingOutranksRules(t *testing.T) {
	rows := []models.Row{
		row("Product sales", "Order", 100),
	}
	mappings := map[string]*models.FieldMapping{
		"Product sales|Order": {
			PrimaryCategory: "测评费用",
			SubcategoryName: "样品",
		},
	}

	sum, err := Summarize(rows, testCols, mappings, newClassifier(t), ManualInputs{})
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	review := category(t, sum, "测评费用")
	if review.Amount != 100 {
		t.Errorf("测评费用 = %v, want mapping to outrank the sale rule", review.Amount)
	}
	if review.Subcategories[0].Name != "样品" {
		t.Errorf("subcategory = %q, want mapped name 样品", review.Subcategories[0].Name)
	}
	if category(t, sum, "销售额").Amount != 0 {
		t.Error("销售额 should be untouched when mapping redirects the row")
	}
}

func TestSummarizeIgnoredAndUnmapped(t *testing.T) {
	rows := []models.Row{
		row("internal transfer", "", 99),
		row("mystery line", "", 7),
		row("", "Fee", 1), // empty description: skipped, not counted
		row("Product sales", "", 10),
	}
	mappings := map[string]*models.FieldMapping{
		"internal transfer|": {PrimaryCategory: models.IgnoreCategory},
	}

	sum, err := Summarize(rows, testCols, mappings, newClassifier(t), ManualInputs{})
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	if sum.IgnoredRows != 1 {
		t.Errorf("IgnoredRows = %d, want 1", sum.IgnoredRows)
	}
	if sum.UnmappedRows != 1 {
		t.Errorf("UnmappedRows = %d, want 1", sum.UnmappedRows)
	}
	if sum.ProcessedRows != 3 {
		t.Errorf("ProcessedRows = %d, want 3 (empty description uncounted)", sum.ProcessedRows)
	}
	if sum.TotalSales != 10 {
		t.Errorf("TotalSales = %v, want 10", sum.TotalSales)
	}
}

func TestSummarizeManualInputs(t *testing.T) {
	rows := []models.Row{
		row("Product sales", "Order", 1000),
		row("shipping charge", "Fee", -20),
	}
	manual := ManualInputs{
		HeadLogisticsFee:         50,
		AdditionalAdvertisingFee: 30,
		AdditionalProductCost:    200,
	}

	sum, err := Summarize(rows, testCols, nil, newClassifier(t), manual)
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	logistics := category(t, sum, "物流费")
	if logistics.Amount != 30 { // -20 shipping + 50 manual
		t.Errorf("物流费 = %v, want 30", logistics.Amount)
	}
	found := false
	for _, sub := range logistics.Subcategories {
		if sub.Name == "头程物流费" && sub.Amount == 50 && sub.AmountType == "手动输入" {
			found = true
		}
	}
	if !found {
		t.Errorf("头程物流费 subcategory missing: %+v", logistics.Subcategories)
	}

	ads := category(t, sum, "广告费")
	if ads.Amount != 30 {
		t.Errorf("广告费 = %v, want 30", ads.Amount)
	}

	// Extra product cost shows as a subcategory but stays out of the
	// category total.
	product := category(t, sum, "产品成本")
	if product.Amount != 0 {
		t.Errorf("产品成本 = %v, want 0 (planning figure excluded)", product.Amount)
	}
	if len(product.Subcategories) != 1 || product.Subcategories[0].Amount != 200 {
		t.Errorf("产品成本 subcategories = %+v, want 额外产品成本 at 200", product.Subcategories)
	}
	if sum.AdditionalProductCost != 200 {
		t.Errorf("AdditionalProductCost = %v, want 200", sum.AdditionalProductCost)
	}
}

func TestSummarizeSubcategorySorting(t *testing.T) {
	rows := []models.Row{
		row("sale small", "A", 10),
		row("sale big", "B", 100),
		row("sale mid", "C", 50),
		row("sale tie1", "D", 25),
		row("sale tie2", "E", 25),
	}

	sum, err := Summarize(rows, testCols, nil, newClassifier(t), ManualInputs{})
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	subs := category(t, sum, "销售额").Subcategories
	want := []string{"sale big", "sale mid", "sale tie1", "sale tie2", "sale small"}
	if len(subs) != len(want) {
		t.Fatalf("subcategory count = %d, want %d", len(subs), len(want))
	}
	for i, name := range want {
		if subs[i].Name != name {
			t.Errorf("subs[%d] = %q, want %q (desc amount, insertion-stable ties)", i, subs[i].Name, name)
		}
	}
}

func TestSummarizeZeroSalesMargin(t *testing.T) {
	rows := []models.Row{
		row("Sponsored Products", "Fee", -10),
		row("FBA storage fee", "Fee", -5),
	}

	sum, err := Summarize(rows, testCols, nil, newClassifier(t), ManualInputs{})
	if err != nil {
		t.Fatalf("Summarize() failed: %v", err)
	}

	if sum.TotalSales != 0 {
		t.Fatalf("TotalSales = %v, want 0", sum.TotalSales)
	}
	if sum.ProfitMargin != 0 {
		t.Errorf("ProfitMargin = %v, want 0 when there are no sales", sum.ProfitMargin)
	}
	for name, v := range map[string]float64{
		"Profit":       sum.Profit,
		"TotalCost":    sum.TotalCost,
		"ProfitMargin": sum.ProfitMargin,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("%s = %v, want a finite value", name, v)
		}
	}
	if sum.Profit != 15 {
		t.Errorf("Profit = %v, want 15", sum.Profit)
	}
}

func TestSummarizeEmptyInput(t *testing.T) {
	if _, err := Summarize(nil, testCols, nil, newClassifier(t), ManualInputs{}); err == nil {
		t.Error("expected error for empty input")
	}
}
