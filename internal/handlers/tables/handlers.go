// Package tables serves the table registry endpoints: upload, listing,
// inspection, date filtering, column projection, and compaction.
package tables

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"billrecon/internal/httpx"
	"billrecon/internal/models"
	"billrecon/internal/services/ingest"
	"billrecon/internal/services/tablestore"
)

// Handlers holds the table endpoint dependencies.
type Handlers struct {
	store          *tablestore.Store
	maxUploadBytes int64
}

// New creates table handlers backed by the given store.
func New(store *tablestore.Store, maxUploadBytes int64) *Handlers {
	return &Handlers{store: store, maxUploadBytes: maxUploadBytes}
}

// Upload accepts a multipart file (CSV, XLSX, or a ZIP of either) and
// registers one table per parsed sheet.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		httpx.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.Error(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	sheets, err := ingest.File(header.Filename, content)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created := make([]models.Table, 0, len(sheets))
	for _, sheet := range sheets {
		table, err := h.store.AddTable(sheet.Name, sheet.Columns, sheet.Rows, models.Metadata{})
		if err != nil {
			httpx.Error(w, fmt.Sprintf("failed to register sheet %s: %v", sheet.Name, err), http.StatusInternalServerError)
			return
		}
		created = append(created, table.Header())
	}

	log.Printf("Uploaded %s: %d tables created", header.Filename, len(created))
	httpx.JSON(w, http.StatusCreated, map[string]any{"tables": created})
}

// List returns table headers, optionally filtered by ?kind=.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("kind")

	var out []models.Table
	if kind != "" {
		out = h.store.ByKind(kind)
	} else {
		out = h.store.List()
	}
	if out == nil {
		out = []models.Table{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tables": out})
}

// Get returns a full table including rows.
func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	table, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, table)
}

// Columns returns just a table's column names.
func (h *Handlers) Columns(w http.ResponseWriter, r *http.Request) {
	table, ok := h.lookup(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"columns": table.Columns})
}

// Rename updates a table's display name.
func (h *Handlers) Rename(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Name string `json:"name"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		httpx.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	table, err := h.store.Rename(id, req.Name)
	if err != nil {
		if errors.Is(err, tablestore.ErrTableNotFound) {
			httpx.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusOK, table.Header())
}

// Delete removes a table.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.Delete(id); err != nil {
		if errors.Is(err, tablestore.ErrTableNotFound) {
			httpx.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Compact drops a table's rows, keeping its header and counters.
func (h *Handlers) Compact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.store.Compact(id)
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "compacted"})
	case errors.Is(err, tablestore.ErrTableNotFound):
		httpx.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, tablestore.ErrNotCompactable):
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// FilterByDate creates a new table from the rows in a given period.
func (h *Handlers) FilterByDate(w http.ResponseWriter, r *http.Request) {
	table, ok := h.lookupWithRows(w, r)
	if !ok {
		return
	}

	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil || year < 1900 {
		httpx.Error(w, "year query parameter is required", http.StatusBadRequest)
		return
	}
	month, _ := strconv.Atoi(r.URL.Query().Get("month"))
	day, _ := strconv.Atoi(r.URL.Query().Get("day"))

	name, rows, err := tablestore.FilterByDate(table, year, month, day)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.store.AddTable(name, table.Columns, rows, models.Metadata{
		Kind:         models.KindFiltered,
		SourceTables: []string{table.ID},
		Transform:    "filter-by-date",
	})
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// SelectColumns creates a new table projected onto the given columns.
func (h *Handlers) SelectColumns(w http.ResponseWriter, r *http.Request) {
	table, ok := h.lookupWithRows(w, r)
	if !ok {
		return
	}

	var req struct {
		Columns []string `json:"columns"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	name, rows, err := tablestore.SelectColumns(table, req.Columns)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	created, err := h.store.AddTable(name, req.Columns, rows, models.Metadata{
		Kind:         models.KindFiltered,
		SourceTables: []string{table.ID},
		Transform:    "select-columns",
	})
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// lookup fetches the table for the request's {id}, writing the error
// response itself on failure.
func (h *Handlers) lookup(w http.ResponseWriter, r *http.Request) (*models.Table, bool) {
	id := chi.URLParam(r, "id")
	table, err := h.store.Get(id)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusNotFound)
		return nil, false
	}
	return table, true
}

// lookupWithRows is lookup for operations that need row data, which
// compacted tables no longer have.
func (h *Handlers) lookupWithRows(w http.ResponseWriter, r *http.Request) (*models.Table, bool) {
	table, ok := h.lookup(w, r)
	if !ok {
		return nil, false
	}
	if table.Compacted {
		httpx.Error(w, fmt.Sprintf("table %s was compacted, row data unavailable", table.Name), http.StatusGone)
		return nil, false
	}
	return table, true
}
