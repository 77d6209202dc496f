package models

import "time"

// Table kinds assigned at ingest or by the operation that produced the
// table. Listing endpoints filter on these instead of sniffing names.
const (
	KindBill        = "bill"
	KindBillSummary = "bill_summary"
	KindOrders      = "orders"
	KindMatchedTime = "matched_time"
	KindMatchedBill = "matched_bill"
	KindFiltered    = "filtered"
	KindUnknown     = ""
)

// DateRange is the billing period a table covers.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Metadata records where a table came from and what produced it.
type Metadata struct {
	Kind           string     `json:"kind,omitempty"`
	SourceTables   []string   `json:"sourceTables,omitempty"`
	Transform      string     `json:"transform,omitempty"`
	WithKeyRows    int        `json:"withKeyRows,omitempty"`
	WithoutKeyRows int        `json:"withoutKeyRows,omitempty"`
	DateRange      *DateRange `json:"dateRange,omitempty"`
}

// Table is an imported or derived spreadsheet.
type Table struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	OriginalName string     `json:"originalName"`
	Columns      []string   `json:"columns"`
	Rows         []Row      `json:"rows,omitempty"`
	RowCount     int        `json:"rowCount"`
	CreatedAt    time.Time  `json:"createdAt"`
	Compacted    bool       `json:"compacted,omitempty"`
	CompactedAt  *time.Time `json:"compactedAt,omitempty"`
	Metadata     Metadata   `json:"metadata"`
}

// HasProvenance reports whether the table records enough lineage to be
// rebuilt from its sources. Compaction requires it.
func (t *Table) HasProvenance() bool {
	return len(t.Metadata.SourceTables) > 0 && t.Metadata.Transform != ""
}

// Header returns a copy of the table without row data, for listings.
func (t *Table) Header() Table {
	h := *t
	h.Rows = nil
	return h
}
