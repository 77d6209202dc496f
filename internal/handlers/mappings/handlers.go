// Package mappings serves the field-mapping endpoints: the saved
// mapping set, search and auto-match over it, the per-table field
// catalog, and the classification rule set.
package mappings

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"billrecon/internal/config"
	"billrecon/internal/httpx"
	"billrecon/internal/models"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/fieldcatalog"
	"billrecon/internal/services/tablestore"
)

// Handlers holds the mapping endpoint dependencies.
type Handlers struct {
	store      *tablestore.Store
	classifier *classifier.Classifier
	cfg        *config.Config
}

// New creates mapping handlers.
func New(store *tablestore.Store, cls *classifier.Classifier, cfg *config.Config) *Handlers {
	return &Handlers{store: store, classifier: cls, cfg: cfg}
}

// List returns every saved mapping, ordered by key.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"mappings": h.store.Index().All()})
}

// Put upserts a mapping.
func (h *Handlers) Put(w http.ResponseWriter, r *http.Request) {
	var m models.FieldMapping
	if err := httpx.DecodeJSON(r, &m); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if m.TransactionDesc == "" {
		httpx.Error(w, "transactionDesc is required", http.StatusBadRequest)
		return
	}
	if m.PrimaryCategory == "" {
		httpx.Error(w, "primaryCategory is required", http.StatusBadRequest)
		return
	}
	if m.MatchedBy == "" {
		m.MatchedBy = "manual"
	}
	// The keyed PUT route is an alias; the canonical key always comes
	// from the description and amount type in the body.
	m.Key = ""

	if err := h.store.SaveMapping(&m); err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

// Delete removes a mapping by key.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := h.store.DeleteMapping(key); err != nil {
		httpx.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Search finds mappings for a ?q= term.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	term := r.URL.Query().Get("q")
	if term == "" {
		httpx.Error(w, "q query parameter is required", http.StatusBadRequest)
		return
	}
	results := h.store.Index().Search(term)
	if results == nil {
		results = []*models.FieldMapping{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": results})
}

// AutoMatch resolves one (description, amount type) pair the same way
// the summarizer would: saved mapping first, then the rules.
func (h *Handlers) AutoMatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionDesc string `json:"transactionDesc"`
		AmountType      string `json:"amountType"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.TransactionDesc == "" {
		httpx.Error(w, "transactionDesc is required", http.StatusBadRequest)
		return
	}

	if m := h.store.Index().AutoMatch(req.TransactionDesc, req.AmountType); m != nil {
		httpx.JSON(w, http.StatusOK, map[string]any{"matchedBy": "index", "mapping": m})
		return
	}
	if cat := h.classifier.Classify(req.TransactionDesc, req.AmountType); cat != "" {
		httpx.JSON(w, http.StatusOK, map[string]any{"matchedBy": "rule", "primaryCategory": cat})
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"matchedBy": ""})
}

// Fields returns the field catalog for a table, each line annotated
// with its proposed mapping when one can be derived.
func (h *Handlers) Fields(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "tableId")
	table, err := h.store.Get(id)
	if err != nil {
		httpx.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if table.Compacted {
		httpx.Error(w, fmt.Sprintf("table %s was compacted, row data unavailable", table.Name), http.StatusGone)
		return
	}

	stats := fieldcatalog.Collect(table.Rows, table.Columns)
	proposals := fieldcatalog.AutoMap(stats, h.classifier, h.store.Index())

	byKey := make(map[string]models.FieldMapping, len(proposals))
	for _, p := range proposals {
		byKey[p.Key] = p
	}
	for i := range stats {
		if p, ok := byKey[stats[i].Key]; ok {
			stats[i].PrimaryCategory = p.PrimaryCategory
			stats[i].MatchedBy = p.MatchedBy
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{"fields": stats})
}

// Rules returns the active classification rules.
func (h *Handlers) Rules(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"rules":   h.classifier.Rules(),
		"version": h.classifier.Version(),
	})
}

// PutRules replaces the classification rules and persists them.
func (h *Handlers) PutRules(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules []classifier.Rule `json:"rules"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.classifier.SetRules(req.Rules); err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	if err := h.cfg.SaveRules(req.Rules); err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"version": h.classifier.Version()})
}
