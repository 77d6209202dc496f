// Package system serves the operational endpoints: health, version,
// runtime metrics, archive export/import, and encryption control.
package system

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"billrecon/internal/config"
	"billrecon/internal/httpx"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/storage"
	"billrecon/internal/services/tablestore"
	"billrecon/internal/version"
)

// Handlers holds the system endpoint dependencies.
type Handlers struct {
	cfg        *config.Config
	blobs      *storage.Storage
	store      *tablestore.Store
	classifier *classifier.Classifier
}

// New creates system handlers.
func New(cfg *config.Config, blobs *storage.Storage, store *tablestore.Store, cls *classifier.Classifier) *Handlers {
	return &Handlers{cfg: cfg, blobs: blobs, store: store, classifier: cls}
}

// Health reports liveness and whether encrypted storage is unlocked.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"encrypted": h.blobs.IsEncrypted(),
		"unlocked":  h.blobs.IsUnlocked(),
	})
}

// Version reports build information.
func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, version.Get())
}

// Metrics reports table counts and the lookup cache counters.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	hits, misses := h.classifier.CacheStats()
	httpx.JSON(w, http.StatusOK, map[string]any{
		"tables":         len(h.store.List()),
		"index":          h.store.Index().Stats(),
		"cacheHitRate":   h.store.Index().CacheHitRate(),
		"classifierHits": hits, "classifierMisses": misses,
		"rulesVersion": h.classifier.Version(),
	})
}

// Export streams the data directory as a ZIP archive. Blobs are read
// through the storage layer so exports are always plaintext.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("billrecon_export_%s.zip", timestamp)

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	zw := zip.NewWriter(w)
	defer zw.Close()

	dataDir := h.cfg.DataDirectory
	err := filepath.Walk(dataDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// Skip encryption marker and verify files
		base := filepath.Base(path)
		if base == ".encrypted" || base == ".encryption-verify" {
			return nil
		}
		if !strings.HasSuffix(strings.ToLower(base), ".json") {
			return nil
		}

		relPath, err := filepath.Rel(dataDir, path)
		if err != nil {
			return err
		}

		f, err := zw.Create(relPath)
		if err != nil {
			return err
		}

		file, err := h.blobs.OpenFile(path)
		if err != nil {
			return err
		}
		defer file.Close()

		_, err = io.Copy(f, file)
		return err
	})

	if err != nil {
		// Headers are already out; the broken archive is all we can
		// signal with.
		log.Printf("Error creating export: %v", err)
	}
}

// Import restores JSON blobs from an exported ZIP archive, then
// reloads the table registry.
func (h *Handlers) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		httpx.Error(w, "File too large", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httpx.Error(w, "Error reading file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if !strings.HasSuffix(strings.ToLower(header.Filename), ".zip") {
		httpx.Error(w, "Only ZIP export files are allowed", http.StatusBadRequest)
		return
	}

	content, err := io.ReadAll(file)
	if err != nil {
		httpx.Error(w, "Error reading file", http.StatusInternalServerError)
		return
	}

	zipReader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		httpx.Error(w, "Invalid ZIP file", http.StatusBadRequest)
		return
	}

	restoredCount := 0
	for _, zipFile := range zipReader.File {
		if zipFile.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(zipFile.Name), ".json") {
			continue
		}

		// Rebuild the path from sanitized components to prevent
		// traversal outside the data directory.
		relPath := filepath.Clean(zipFile.Name)
		if strings.Contains(relPath, "..") || filepath.IsAbs(relPath) {
			continue
		}

		rc, err := zipFile.Open()
		if err != nil {
			log.Printf("Error opening zip entry %s: %v", zipFile.Name, err)
			continue
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			log.Printf("Error reading zip entry %s: %v", zipFile.Name, err)
			continue
		}

		destPath := filepath.Join(h.cfg.DataDirectory, relPath)
		if err := h.blobs.WriteFile(destPath, data, 0644); err != nil {
			log.Printf("Error writing file %s: %v", destPath, err)
			continue
		}

		restoredCount++
		log.Printf("Restored file: %s", relPath)
	}

	if restoredCount == 0 {
		httpx.Error(w, "No JSON blobs found in archive", http.StatusBadRequest)
		return
	}

	if err := h.store.Reload(); err != nil {
		httpx.Error(w, fmt.Sprintf("restored %d files but reload failed: %v", restoredCount, err), http.StatusInternalServerError)
		return
	}

	log.Printf("Import complete: %d files restored", restoredCount)
	httpx.JSON(w, http.StatusOK, map[string]any{"restored": restoredCount})
}

// Unlock decrypts storage with the supplied password and reloads the
// registry, which could not read the blobs while locked.
func (h *Handlers) Unlock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.blobs.Unlock(req.Password); err != nil {
		httpx.Error(w, err.Error(), http.StatusForbidden)
		return
	}
	if err := h.store.Reload(); err != nil {
		httpx.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "unlocked"})
}

// EnableEncryption migrates the data directory to encrypted storage.
func (h *Handlers) EnableEncryption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.blobs.EnableEncryption(req.Password); err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "encrypted"})
}

// DisableEncryption decrypts the data directory back to plaintext.
func (h *Handlers) DisableEncryption(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.blobs.DisableEncryption(req.Password); err != nil {
		httpx.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"status": "decrypted"})
}

// Kill shuts the server down. Useful when running as a local desktop
// companion process.
func (h *Handlers) Kill(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("Server shutting down...\n"))
	log.Println("Received /killme request, shutting down")
	go func() {
		time.Sleep(100 * time.Millisecond)
		os.Exit(0)
	}()
}
