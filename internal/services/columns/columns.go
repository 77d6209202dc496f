// Package columns locates loosely labeled spreadsheet columns. Bill
// exports from different platforms name the same column a dozen ways,
// so every lookup tries an ordered exact-alias list first and falls
// back to normalized substring matching.
package columns

import (
	"strings"

	"billrecon/internal/models"
)

// Field describes how to locate one logical column.
type Field struct {
	// Name identifies the field in error messages.
	Name string

	// Aliases are exact header names, checked in order.
	Aliases []string

	// Fragments are fallback matchers: a header matches when any
	// group's substrings all appear in its lowercased,
	// whitespace-stripped form.
	Fragments [][]string

	// RequireValue makes row lookups skip columns holding an empty
	// cell, so a later candidate with data can win.
	RequireValue bool
}

// TransactionKey identifies settled platform transactions. Rows without
// one are pending order lines.
var TransactionKey = Field{
	Name: "transaction key",
	Aliases: []string{
		"Transaction Key", "Transaction_Key",
		"transaction key", "transaction_key",
		"交易密钥", "交易key",
	},
	Fragments: [][]string{{"transaction", "key"}},
}

// TransactionTime is the platform's posted-transaction timestamp.
var TransactionTime = Field{
	Name: "transaction timestamp",
	Aliases: []string{
		"Transaction Posted Timestamp", "Transaction_Posted_Timestamp",
		"transaction posted timestamp", "交易时间戳",
		"Posted Timestamp", "posted_timestamp",
		"Timestamp", "timestamp",
		"Transaction Time", "Transaction_Time", "交易时间",
	},
	Fragments:    [][]string{{"timestamp"}, {"时间"}},
	RequireValue: true,
}

// PurchaseOrder is the order number used to join bills to orders.
var PurchaseOrder = Field{
	Name: "purchase order",
	Aliases: []string{
		"Purchase Order #", "Purchase Order", "PurchaseOrder", "采购订单号",
	},
	Fragments:    [][]string{{"purchase"}, {"order"}, {"采购订单"}},
	RequireValue: true,
}

// OrderDate is whichever column carries a usable date for filtering.
var OrderDate = Field{
	Name: "order date",
	Aliases: []string{
		"下单时间", "Transaction Posted Timestamp", "Posted Timestamp",
		"Timestamp", "交易时间", "日期", "Date", "下单日期", "时间",
	},
	Fragments:    [][]string{{"date"}, {"时间"}, {"timestamp"}},
	RequireValue: true,
}

// Description is the transaction description used for categorization.
var Description = Field{
	Name: "transaction description",
	Aliases: []string{
		"Transaction Description", "Transaction_Description", "transaction_description",
	},
	RequireValue: true,
}

// AmountType qualifies a description (fee vs charge vs credit).
var AmountType = Field{
	Name: "amount type",
	Aliases: []string{
		"Amount Type", "Amount_Type", "amount_type", "Type",
	},
	RequireValue: true,
}

// Amount is the monetary value column.
var Amount = Field{
	Name:         "amount",
	Aliases:      []string{"Amount", "amount"},
	RequireValue: true,
}

// normalize lowercases a header and strips all whitespace.
func normalize(col string) string {
	return strings.ToLower(strings.Join(strings.Fields(col), ""))
}

func (f Field) matchesFragments(col string) bool {
	n := normalize(col)
	for _, group := range f.Fragments {
		all := true
		for _, frag := range group {
			if !strings.Contains(n, frag) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// Find locates the field in a header list by alias, then by fragment
// fallback. Returns the matched column name.
func (f Field) Find(cols []string) (string, bool) {
	for _, alias := range f.Aliases {
		for _, col := range cols {
			if col == alias {
				return col, true
			}
		}
	}
	for _, col := range cols {
		if f.matchesFragments(col) {
			return col, true
		}
	}
	return "", false
}

// Value resolves the field's cell in a row. The column list fixes the
// scan order so fallback matching stays deterministic.
func (f Field) Value(row models.Row, cols []string) (any, bool) {
	for _, alias := range f.Aliases {
		v, ok := row[alias]
		if !ok {
			continue
		}
		if f.RequireValue && models.CellString(v) == "" {
			continue
		}
		return v, true
	}
	for _, col := range cols {
		if !f.matchesFragments(col) {
			continue
		}
		v, ok := row[col]
		if !ok {
			continue
		}
		if f.RequireValue && models.CellString(v) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// String resolves the field's cell as a trimmed string.
func (f Field) String(row models.Row, cols []string) string {
	v, ok := f.Value(row, cols)
	if !ok {
		return ""
	}
	return strings.TrimSpace(models.CellString(v))
}

// IsKeyEmpty reports whether a transaction key cell is effectively
// blank. Spreadsheet error artifacts count as empty.
func IsKeyEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch strings.TrimSpace(models.CellString(v)) {
	case "", "#N/A", "N/A", "null", "undefined":
		return true
	}
	return false
}
