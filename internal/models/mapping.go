package models

import "time"

// IgnoreCategory marks rows that should be excluded from summaries but
// still counted as ignored.
const IgnoreCategory = "__ignore__"

// FieldMapping assigns a (description, amount type) pair to a primary
// category, optionally under a custom subcategory name.
type FieldMapping struct {
	Key             string    `json:"key"`
	TransactionDesc string    `json:"transactionDesc"`
	AmountType      string    `json:"amountType"`
	PrimaryCategory string    `json:"primaryCategory"`
	SubcategoryName string    `json:"subcategoryName,omitempty"`
	MatchedBy       string    `json:"matchedBy,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// MappingKey builds the canonical lookup key for a description and
// amount type pair.
func MappingKey(desc, amountType string) string {
	return desc + "|" + amountType
}
