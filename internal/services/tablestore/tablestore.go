// Package tablestore keeps every imported and generated table, backed
// by JSON blobs under the data directory. Blobs go through the storage
// layer so encryption at rest is transparent to callers.
package tablestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"billrecon/internal/models"
	"billrecon/internal/services/searchindex"
	"billrecon/internal/services/storage"
)

var (
	// ErrTableNotFound is returned for unknown table IDs.
	ErrTableNotFound = errors.New("table not found")

	// ErrDataUnavailable is returned when row data was compacted away.
	ErrDataUnavailable = errors.New("table data unavailable: rows were compacted")

	// ErrNotCompactable is returned when a table has no recorded
	// provenance. Compacting it would orphan its rows for good.
	ErrNotCompactable = errors.New("table has no provenance, refusing to compact")
)

const (
	tablesDir    = "tables"
	mappingsFile = "mappings.json"
)

// Store is the table registry. All mutations persist synchronously.
type Store struct {
	mu    sync.RWMutex
	dir   string
	blobs *storage.Storage

	tables map[string]*models.Table
	order  []string
	index  *searchindex.Index
}

// Open loads every persisted table and mapping from dir.
func Open(dir string, blobs *storage.Storage) (*Store, error) {
	st := &Store{
		dir:   dir,
		blobs: blobs,
	}
	if err := st.load(); err != nil {
		return nil, err
	}
	log.Printf("Loaded %d tables and %d mappings from %s", len(st.tables), st.index.Len(), dir)
	return st, nil
}

// Reload re-reads all blobs from disk, replacing in-memory state. Used
// after an archive import drops new blobs into the data directory.
func (st *Store) Reload() error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := st.load(); err != nil {
		return err
	}
	log.Printf("Reloaded %d tables and %d mappings", len(st.tables), st.index.Len())
	return nil
}

func (st *Store) load() error {
	st.tables = make(map[string]*models.Table)
	st.order = nil
	st.index = searchindex.New()

	if err := st.blobs.MkdirAll(filepath.Join(st.dir, tablesDir), 0755); err != nil {
		return fmt.Errorf("failed to create tables directory: %w", err)
	}

	paths, err := st.blobs.Glob(filepath.Join(st.dir, tablesDir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to scan tables directory: %w", err)
	}
	for _, path := range paths {
		data, err := st.blobs.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
		}
		var table models.Table
		if err := json.Unmarshal(data, &table); err != nil {
			log.Printf("Warning: skipping corrupt table blob %s: %v", filepath.Base(path), err)
			continue
		}
		st.tables[table.ID] = &table
		st.order = append(st.order, table.ID)
	}
	sort.Slice(st.order, func(i, j int) bool {
		return st.tables[st.order[i]].CreatedAt.Before(st.tables[st.order[j]].CreatedAt)
	})

	return st.loadMappings()
}

// Index exposes the mapping search index.
func (st *Store) Index() *searchindex.Index {
	return st.index
}

// AddTable registers a new table and persists it. Raw order exports
// named by the marketplace get a readable Chinese date name; name
// collisions get a numeric suffix.
func (st *Store) AddTable(name string, columns []string, rows []models.Row, meta models.Metadata) (*models.Table, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	originalName := name
	if strings.Contains(name, "ExportOrder") {
		now := time.Now()
		name = fmt.Sprintf("速猫订单%d年%d月%d日", now.Year(), int(now.Month()), now.Day())
	}
	name = st.dedupeName(name)

	if meta.Kind == models.KindUnknown {
		meta.Kind = InferKind(name)
	}

	table := &models.Table{
		ID:           uuid.NewString(),
		Name:         name,
		OriginalName: originalName,
		Columns:      columns,
		Rows:         rows,
		RowCount:     len(rows),
		CreatedAt:    time.Now(),
		Metadata:     meta,
	}

	if err := st.persistTable(table); err != nil {
		return nil, err
	}
	st.tables[table.ID] = table
	st.order = append(st.order, table.ID)

	log.Printf("Added table %s (%s, %d rows, kind=%s)", table.Name, table.ID, table.RowCount, table.Metadata.Kind)
	return table, nil
}

// Get returns a table by ID.
func (st *Store) Get(id string) (*models.Table, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	table, ok := st.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	return table, nil
}

// Rows returns a table's row data, or ErrDataUnavailable when the
// table was compacted.
func (st *Store) Rows(id string) ([]models.Row, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()

	table, ok := st.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	if table.Compacted {
		return nil, fmt.Errorf("%w: %s", ErrDataUnavailable, table.Name)
	}
	return table.Rows, nil
}

// List returns table headers in creation order, without row data.
func (st *Store) List() []models.Table {
	st.mu.RLock()
	defer st.mu.RUnlock()

	out := make([]models.Table, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, st.tables[id].Header())
	}
	return out
}

// ByKind returns headers of tables with the given kind.
func (st *Store) ByKind(kind string) []models.Table {
	st.mu.RLock()
	defer st.mu.RUnlock()

	var out []models.Table
	for _, id := range st.order {
		if st.tables[id].Metadata.Kind == kind {
			out = append(out, st.tables[id].Header())
		}
	}
	return out
}

// Rename changes a table's display name. The original name and kind
// are untouched; collisions get the usual numeric suffix.
func (st *Store) Rename(id, name string) (*models.Table, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	table, ok := st.tables[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	if name == table.Name {
		return table, nil
	}

	table.Name = st.dedupeName(name)
	if err := st.persistTable(table); err != nil {
		return nil, err
	}
	log.Printf("Renamed table %s to %s", id, table.Name)
	return table, nil
}

// Delete removes a table and its blob.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	table, ok := st.tables[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}

	if err := st.blobs.Remove(st.tablePath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove table blob: %w", err)
	}
	delete(st.tables, id)
	for i, oid := range st.order {
		if oid == id {
			st.order = append(st.order[:i], st.order[i+1:]...)
			break
		}
	}

	log.Printf("Deleted table %s (%s)", table.Name, id)
	return nil
}

// Compact drops a table's row data to reclaim space. Only tables whose
// metadata records how to regenerate them can be compacted.
func (st *Store) Compact(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	table, ok := st.tables[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, id)
	}
	if table.Compacted {
		return nil
	}
	if !table.HasProvenance() {
		return fmt.Errorf("%w: %s", ErrNotCompactable, table.Name)
	}

	table.Rows = nil
	table.Compacted = true
	now := time.Now()
	table.CompactedAt = &now

	if err := st.persistTable(table); err != nil {
		return err
	}
	log.Printf("Compacted table %s (%s)", table.Name, id)
	return nil
}

// SaveMapping upserts a field mapping and persists the mapping set.
func (st *Store) SaveMapping(m *models.FieldMapping) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if m.Key == "" {
		m.Key = models.MappingKey(m.TransactionDesc, m.AmountType)
	}
	m.UpdatedAt = time.Now()
	st.index.Insert(m)
	return st.persistMappings()
}

// DeleteMapping removes a mapping by key.
func (st *Store) DeleteMapping(key string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.index.Delete(key) {
		return fmt.Errorf("mapping not found: %s", key)
	}
	return st.persistMappings()
}

// InferKind classifies a table by its name conventions. Metadata wins
// when present; this covers imports that predate kind tagging.
func InferKind(name string) string {
	switch {
	case strings.Contains(name, "账单汇总"):
		return models.KindBillSummary
	case strings.Contains(name, "下单时间匹配"):
		return models.KindMatchedTime
	case strings.Contains(name, "账单订单匹配"):
		return models.KindMatchedBill
	case strings.HasPrefix(name, "筛选"):
		return models.KindFiltered
	case strings.Contains(name, "速猫订单") || strings.Contains(name, "ExportOrder"):
		return models.KindOrders
	case strings.Contains(name, "账单"):
		return models.KindBill
	default:
		return models.KindUnknown
	}
}

func (st *Store) tablePath(id string) string {
	return filepath.Join(st.dir, tablesDir, id+".json")
}

func (st *Store) persistTable(table *models.Table) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("failed to encode table %s: %w", table.Name, err)
	}
	if err := st.blobs.WriteFile(st.tablePath(table.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to persist table %s: %w", table.Name, err)
	}
	return nil
}

func (st *Store) persistMappings() error {
	data, err := json.Marshal(st.index.All())
	if err != nil {
		return fmt.Errorf("failed to encode mappings: %w", err)
	}
	path := filepath.Join(st.dir, mappingsFile)
	if err := st.blobs.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to persist mappings: %w", err)
	}
	return nil
}

func (st *Store) loadMappings() error {
	path := filepath.Join(st.dir, mappingsFile)
	if _, err := st.blobs.Stat(path); err != nil {
		return nil
	}
	data, err := st.blobs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read mappings: %w", err)
	}
	var mappings []*models.FieldMapping
	if err := json.Unmarshal(data, &mappings); err != nil {
		return fmt.Errorf("failed to decode mappings: %w", err)
	}
	for _, m := range mappings {
		st.index.Insert(m)
	}
	return nil
}

// dedupeName appends _2, _3, ... while the name is taken.
func (st *Store) dedupeName(name string) string {
	taken := make(map[string]bool, len(st.tables))
	for _, t := range st.tables {
		taken[t.Name] = true
	}
	if !taken[name] {
		return name
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s_%d", name, i)
		if !taken[candidate] {
			return candidate
		}
	}
}
