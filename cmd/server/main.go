package main

import (
	"fmt"
	"log"
	"net/http"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/term"

	"billrecon/internal/config"
	mappingshandlers "billrecon/internal/handlers/mappings"
	reconhandlers "billrecon/internal/handlers/recon"
	systemhandlers "billrecon/internal/handlers/system"
	tableshandlers "billrecon/internal/handlers/tables"
	"billrecon/internal/services/classifier"
	"billrecon/internal/services/storage"
	"billrecon/internal/services/tablestore"
	"billrecon/internal/version"
)

// app wires the services into the handler packages.
type app struct {
	cfg      *config.Config
	blobs    *storage.Storage
	store    *tablestore.Store
	tables   *tableshandlers.Handlers
	recon    *reconhandlers.Handlers
	mappings *mappingshandlers.Handlers
	system   *systemhandlers.Handlers
}

func newApp(cfg *config.Config) (*app, error) {
	blobs, err := storage.New(cfg.DataDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	if blobs.IsEncrypted() && !blobs.IsUnlocked() {
		if err := unlockFromTerminal(blobs); err != nil {
			return nil, err
		}
	}

	store, err := tablestore.Open(cfg.DataDirectory, blobs)
	if err != nil {
		return nil, fmt.Errorf("failed to open table store: %w", err)
	}

	rules, err := cfg.LoadRules()
	if err != nil {
		return nil, err
	}
	cls, err := classifier.New(rules)
	if err != nil {
		return nil, fmt.Errorf("failed to compile classification rules: %w", err)
	}

	return &app{
		cfg:      cfg,
		blobs:    blobs,
		store:    store,
		tables:   tableshandlers.New(store, cfg.MaxUploadBytes),
		recon:    reconhandlers.New(store, cls),
		mappings: mappingshandlers.New(store, cls, cfg),
		system:   systemhandlers.New(cfg, blobs, store, cls),
	}, nil
}

// unlockFromTerminal prompts for the storage password. Without a
// terminal the server starts locked; /api/system/unlock takes over.
func unlockFromTerminal(blobs *storage.Storage) error {
	if !term.IsTerminal(int(syscall.Stdin)) {
		log.Printf("Storage is encrypted and no terminal is attached; unlock via the API")
		return nil
	}

	for attempts := 0; attempts < 3; attempts++ {
		fmt.Print("Storage password: ")
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		if err := blobs.Unlock(string(password)); err != nil {
			log.Printf("Unlock failed: %v", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("too many failed unlock attempts")
}

func (a *app) router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", a.system.Health)
		r.Get("/version", a.system.Version)
		r.Get("/metrics", a.system.Metrics)
		r.Get("/export", a.system.Export)
		r.Post("/import", a.system.Import)
		r.Post("/system/unlock", a.system.Unlock)
		r.Post("/system/encrypt", a.system.EnableEncryption)
		r.Post("/system/decrypt", a.system.DisableEncryption)

		r.Route("/tables", func(r chi.Router) {
			r.Get("/", a.tables.List)
			r.Post("/upload", a.tables.Upload)
			r.Get("/{id}", a.tables.Get)
			r.Put("/{id}", a.tables.Rename)
			r.Delete("/{id}", a.tables.Delete)
			r.Get("/{id}/columns", a.tables.Columns)
			r.Post("/{id}/compact", a.tables.Compact)
			r.Post("/{id}/filter-by-date", a.tables.FilterByDate)
			r.Post("/{id}/select-columns", a.tables.SelectColumns)
		})

		r.Route("/recon", func(r chi.Router) {
			r.Post("/merge", a.recon.Merge)
			r.Post("/match", a.recon.Match)
			r.Post("/merge-back", a.recon.MergeBack)
			r.Post("/summarize", a.recon.Summarize)
		})

		r.Route("/mappings", func(r chi.Router) {
			r.Get("/", a.mappings.List)
			r.Put("/", a.mappings.Put)
			r.Put("/{key}", a.mappings.Put)
			r.Delete("/{key}", a.mappings.Delete)
			r.Get("/search", a.mappings.Search)
			r.Post("/auto-match", a.mappings.AutoMatch)
		})

		r.Get("/fields/{tableId}", a.mappings.Fields)
		r.Get("/rules", a.mappings.Rules)
		r.Put("/rules", a.mappings.PutRules)
	})

	r.Get("/killme", a.system.Kill)

	return r
}

func main() {
	cfg := config.Load()
	log.Printf("Starting bill reconciliation server on %s", cfg.ListenAddr)
	log.Printf("Data directory: %s", cfg.DataDirectory)
	log.Printf("%s", version.Get())
	if warning := version.Get().Check(); warning != "" {
		log.Printf("%s", warning)
	}

	a, err := newApp(cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	log.Printf("Server starting on %s", cfg.ListenAddr)
	log.Fatal(http.ListenAndServe(cfg.ListenAddr, a.router()))
}
