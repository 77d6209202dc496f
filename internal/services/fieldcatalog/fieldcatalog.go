// Package fieldcatalog rolls bill rows up into unique (description,
// amount type) pairs. The catalog is what the mapping editor shows:
// one line per pair with its occurrence count and total amount.
package fieldcatalog

import (
	"time"

	"billrecon/internal/models"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/columns"
	"billrecon/internal/services/searchindex"
)

// FieldStat is one catalog line.
type FieldStat struct {
	Key             string  `json:"key"`
	TransactionDesc string  `json:"transactionDesc"`
	AmountType      string  `json:"amountType"`
	Count           int     `json:"count"`
	TotalAmount     float64 `json:"totalAmount"`
	Rows            []int   `json:"rows"`
	PrimaryCategory string  `json:"primaryCategory,omitempty"`
	MatchedBy       string  `json:"matchedBy,omitempty"`
}

// Collect builds the catalog in first-appearance order. Rows without a
// description are skipped.
func Collect(rows []models.Row, cols []string) []FieldStat {
	byKey := make(map[string]*FieldStat)
	var order []string

	for i, row := range rows {
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

		key := models.MappingKey(desc, amountType)
		stat, ok := byKey[key]
		if !ok {
			stat = &FieldStat{
				Key:             key,
				TransactionDesc: desc,
				AmountType:      amountType,
			}
			byKey[key] = stat
			order = append(order, key)
		}
		stat.Count++
		stat.TotalAmount += amount
		stat.Rows = append(stat.Rows, i)
	}

	out := make([]FieldStat, 0, len(order))
	for _, key := range order {
		out = append(out, *byKey[key])
	}
	return out
}

// AutoMap proposes mappings for catalog lines that lack one: saved
// mappings via the search index first, then the rule classifier.
// Nothing is persisted; the caller decides which proposals to save.
func AutoMap(stats []FieldStat, cls *classifier.Classifier, ix *searchindex.Index) []models.FieldMapping {
	now := time.Now()
	var proposals []models.FieldMapping

	for _, stat := range stats {
		if m := ix.AutoMatch(stat.TransactionDesc, stat.AmountType); m != nil {
			proposals = append(proposals, models.FieldMapping{
				Key:             stat.Key,
				TransactionDesc: stat.TransactionDesc,
				AmountType:      stat.AmountType,
				PrimaryCategory: m.PrimaryCategory,
				SubcategoryName: m.SubcategoryName,
				MatchedBy:       "index",
				UpdatedAt:       now,
			})
			continue
		}
		if cat := cls.Classify(stat.TransactionDesc, stat.AmountType); cat != "" {
			proposals = append(proposals, models.FieldMapping{
				Key:             stat.Key,
				TransactionDesc: stat.TransactionDesc,
				AmountType:      stat.AmountType,
				PrimaryCategory: cat,
				MatchedBy:       "rule",
				UpdatedAt:       now,
			})
		}
	}

	return proposals
}
