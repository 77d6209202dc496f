package models

// Subcategory is one line item within a primary category.
type Subcategory struct {
	Name       string  `json:"name"`
	Amount     float64 `json:"amount"`
	Count      int     `json:"count"`
	AmountType string  `json:"amountType"`
}

// Category is a primary bucket with its line items, sorted by
// descending amount.
type Category struct {
	Name          string        `json:"name"`
	Amount        float64       `json:"amount"`
	Subcategories []Subcategory `json:"subcategories"`
}

// Summary is the profit and loss rollup of a reconciled bill table.
type Summary struct {
	Categories               []Category `json:"categories"`
	TotalSales               float64    `json:"totalSales"`
	TotalCost                float64    `json:"totalCost"`
	Profit                   float64    `json:"profit"`
	ProfitMargin             float64    `json:"profitMargin"`
	RowCount                 int        `json:"rowCount"`
	ProcessedRows            int        `json:"processedRows"`
	IgnoredRows              int        `json:"ignoredRows"`
	UnmappedRows             int        `json:"unmappedRows"`
	AdditionalProductCost    float64    `json:"additionalProductCost"`
	AdditionalAdvertisingFee float64    `json:"additionalAdvertisingFee"`
}
