// Package recon serves the reconciliation pipeline endpoints: merging
// bill tables, matching order times, folding matches back into the
// bill, and summarizing.
package recon

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"billrecon/internal/httpx"
	"billrecon/internal/models"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/columns"
	"billrecon/internal/services/matcher"
	"billrecon/internal/services/merger"
	"billrecon/internal/services/summarizer"
	"billrecon/internal/services/tablestore"
)

// Handlers holds the reconciliation endpoint dependencies.
type Handlers struct {
	store      *tablestore.Store
	classifier *classifier.Classifier
}

// New creates reconciliation handlers.
func New(store *tablestore.Store, cls *classifier.Classifier) *Handlers {
	return &Handlers{store: store, classifier: cls}
}

type dateRangeRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

func (d dateRangeRequest) parse() (*models.DateRange, error) {
	start, err := time.Parse("2006-01-02", d.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", d.Start, err)
	}
	end, err := time.Parse("2006-01-02", d.End)
	if err != nil {
		return nil, fmt.Errorf("invalid end date %q: %w", d.End, err)
	}
	return &models.DateRange{Start: start, End: end}, nil
}

// Merge combines bill tables into one summary table. Tables whose
// billing period cannot be read from the name need an explicit range,
// unless the caller opts into lexical ordering.
func (h *Handlers) Merge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableIDs          []string                    `json:"tableIds"`
		Ranges            map[string]dateRangeRequest `json:"ranges"`
		AllowLexicalOrder bool                        `json:"allowLexicalOrder"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.TableIDs) == 0 {
		httpx.Error(w, "tableIds is required", http.StatusBadRequest)
		return
	}

	inputs := make([]merger.Input, 0, len(req.TableIDs))
	for _, id := range req.TableIDs {
		table, ok := h.loadWithRows(w, id)
		if !ok {
			return
		}
		in := merger.Input{Table: table}
		if dr, ok := req.Ranges[id]; ok {
			parsed, err := dr.parse()
			if err != nil {
				httpx.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			in.Range = parsed
		}
		inputs = append(inputs, in)
	}

	result, err := merger.Merge(inputs, merger.Options{AllowLexicalOrder: req.AllowLexicalOrder})
	if err != nil {
		if errors.Is(err, merger.ErrUnorderable) {
			httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.store.AddTable(result.Name, result.Columns, result.Rows, models.Metadata{
		Kind:           models.KindBillSummary,
		SourceTables:   result.SourceTables,
		Transform:      "merge",
		WithKeyRows:    result.WithKeyRows,
		WithoutKeyRows: result.WithoutKeyRows,
	})
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"table":          created.Header(),
		"withKeyRows":    result.WithKeyRows,
		"withoutKeyRows": result.WithoutKeyRows,
	})
}

// Match builds the order-time match table for a bill summary.
func (h *Handlers) Match(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BillTableID  string `json:"billTableId"`
		OrderTableID string `json:"orderTableId"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bills, ok := h.loadWithRows(w, req.BillTableID)
	if !ok {
		return
	}
	orders, ok := h.loadWithRows(w, req.OrderTableID)
	if !ok {
		return
	}

	orderNumberCol, ok := columns.PurchaseOrder.Find(orders.Columns)
	if !ok {
		httpx.Error(w, fmt.Sprintf("order table %s has no order number column", orders.Name), http.StatusUnprocessableEntity)
		return
	}
	orderTimeCol, ok := columns.OrderDate.Find(orders.Columns)
	if !ok {
		httpx.Error(w, fmt.Sprintf("order table %s has no order time column", orders.Name), http.StatusUnprocessableEntity)
		return
	}
	purchaseOrderCol, ok := columns.PurchaseOrder.Find(bills.Columns)
	if !ok {
		httpx.Error(w, fmt.Sprintf("bill table %s has no purchase order column", bills.Name), http.StatusUnprocessableEntity)
		return
	}

	result, err := matcher.Match(orders, bills, orderNumberCol, orderTimeCol, purchaseOrderCol)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.store.AddTable(result.Name, result.Columns, result.Rows, models.Metadata{
		Kind:         models.KindMatchedTime,
		SourceTables: []string{bills.ID, orders.ID},
		Transform:    "match-order-time",
	})
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"table":     created.Header(),
		"matched":   result.Matched,
		"unmatched": result.Unmatched,
	})
}

// MergeBack prepends the matched 下单时间 column to the bill summary.
func (h *Handlers) MergeBack(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BillTableID  string `json:"billTableId"`
		MatchTableID string `json:"matchTableId"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	bill, ok := h.loadWithRows(w, req.BillTableID)
	if !ok {
		return
	}
	matched, ok := h.loadWithRows(w, req.MatchTableID)
	if !ok {
		return
	}

	result, err := matcher.MergeBack(bill, matched)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.store.AddTable(result.Name, result.Columns, result.Rows, models.Metadata{
		Kind:         models.KindMatchedBill,
		SourceTables: []string{bill.ID, matched.ID},
		Transform:    "merge-back",
	})
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"table":           created.Header(),
		"matched":         result.Matched,
		"timestampFilled": result.TimestampFilled,
		"noData":          result.NoData,
	})
}

// Summarize rolls a bill table up into the eight-category summary.
func (h *Handlers) Summarize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableID string                  `json:"tableId"`
		Manual  summarizer.ManualInputs `json:"manual"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	table, ok := h.loadWithRows(w, req.TableID)
	if !ok {
		return
	}

	mappings := make(map[string]*models.FieldMapping)
	for _, m := range h.store.Index().All() {
		mappings[m.Key] = m
	}

	summary, err := summarizer.Summarize(table.Rows, table.Columns, mappings, h.classifier, req.Manual)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// loadWithRows fetches a table and verifies its rows are available,
// writing the error response itself on failure.
func (h *Handlers) loadWithRows(w http.ResponseWriter, id string) (*models.Table, bool) {
	table, err := h.store.Get(id)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	if _, err := h.store.Rows(id); err != nil {
		httpx.Error(w, err.Error(), http.StatusGone)
		return nil, false
	}
	return table, true
}
