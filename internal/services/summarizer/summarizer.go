// Package summarizer rolls reconciled bill rows up into the
// eight-category profit and loss summary.
package summarizer

import (
	"errors"
	"sort"

	"billrecon/internal/models"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/columns"
)

// ManualInputs are operator-entered adjustments that never appear in
// the bill export.
type ManualInputs struct {
	HeadLogisticsFee         float64 `json:"headLogisticsFee"`
	AdditionalAdvertisingFee float64 `json:"additionalAdvertisingFee"`
	AdditionalProductCost    float64 `json:"additionalProductCost"`
}

const manualAmountType = "手动输入"

type bucket struct {
	amount   float64
	subs     map[string]*models.Subcategory
	subOrder []string
}

// Summarize classifies every row and accumulates amounts into the
// primary categories. Resolution order per row: explicit mapping,
// then the classifier (which memoizes rule results). Rows mapped to
// IgnoreCategory are counted as ignored; rows no rule or mapping
// places are counted as unmapped so review can catch silent leakage.
func Summarize(rows []models.Row, cols []string, mappings map[string]*models.FieldMapping, cls *classifier.Classifier, manual ManualInputs) (*models.Summary, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to summarize")
	}

	buckets := make(map[string]*bucket, len(classifier.PrimaryCategories))
	for _, name := range classifier.PrimaryCategories {
		buckets[name] = &bucket{subs: make(map[string]*models.Subcategory)}
	}

	sum := &models.Summary{
		RowCount:                 len(rows),
		AdditionalProductCost:    manual.AdditionalProductCost,
		AdditionalAdvertisingFee: manual.AdditionalAdvertisingFee,
	}

	for _, row := range rows {
		desc := columns.Description.String(row, cols)
		if desc == "" {
			continue
		}
		amountType := columns.AmountType.String(row, cols)
		amount := 0.0
		if v, ok := columns.Amount.Value(row, cols); ok {
			if f, ok := models.CellFloat(v); ok {
				amount = f
			}
		}

		sum.ProcessedRows++

		category := ""
		subName := desc
		key := models.MappingKey(desc, amountType)
		if m, ok := mappings[key]; ok {
			category = m.PrimaryCategory
			if m.SubcategoryName != "" {
				subName = m.SubcategoryName
			}
		} else {
			category = cls.Classify(desc, amountType)
		}

		if category == models.IgnoreCategory {
			sum.IgnoredRows++
			continue
		}
		b, ok := buckets[category]
		if !ok {
			sum.UnmappedRows++
			continue
		}

		addSub(b, category, subName, amountType, amount, 1)
		b.amount += amount
	}

	applyManualInputs(buckets, manual)

	for _, name := range classifier.PrimaryCategories {
		b := buckets[name]
		cat := models.Category{Name: name, Amount: b.amount}
		for _, subKey := range b.subOrder {
			cat.Subcategories = append(cat.Subcategories, *b.subs[subKey])
		}
		sort.SliceStable(cat.Subcategories, func(i, j int) bool {
			return cat.Subcategories[i].Amount > cat.Subcategories[j].Amount
		})
		sum.Categories = append(sum.Categories, cat)
	}

	sum.TotalSales = buckets["销售额"].amount
	for _, name := range classifier.PrimaryCategories {
		if name != "销售额" {
			sum.TotalCost += buckets[name].amount
		}
	}
	sum.Profit = sum.TotalSales - sum.TotalCost
	if sum.TotalSales > 0 {
		sum.ProfitMargin = (sum.Profit / sum.TotalSales) * 100
	}

	return sum, nil
}

func addSub(b *bucket, category, name, amountType string, amount float64, count int) {
	key := category + "|" + name
	sub, ok := b.subs[key]
	if !ok {
		sub = &models.Subcategory{Name: name, AmountType: amountType}
		b.subs[key] = sub
		b.subOrder = append(b.subOrder, key)
	}
	sub.Amount += amount
	sub.Count += count
}

// applyManualInputs folds operator adjustments in. Head logistics and
// extra advertising join their category totals; extra product cost is
// recorded as a subcategory but deliberately kept out of the 产品成本
// total, since it is a planning figure rather than a settled cost.
func applyManualInputs(buckets map[string]*bucket, manual ManualInputs) {
	if manual.HeadLogisticsFee > 0 {
		b := buckets["物流费"]
		addSub(b, "物流费", "头程物流费", manualAmountType, manual.HeadLogisticsFee, 1)
		b.amount += manual.HeadLogisticsFee
	}
	if manual.AdditionalAdvertisingFee > 0 {
		b := buckets["广告费"]
		addSub(b, "广告费", "额外广告费", manualAmountType, manual.AdditionalAdvertisingFee, 1)
		b.amount += manual.AdditionalAdvertisingFee
	}
	if manual.AdditionalProductCost > 0 {
		addSub(buckets["产品成本"], "产品成本", "额外产品成本", manualAmountType, manual.AdditionalProductCost, 1)
	}
}
