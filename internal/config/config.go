package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"billrecon/internal/services/classifier"
)

// Config holds application configuration
type Config struct {
	// Server settings
	ListenAddr string `json:"listen_addr"`
	Debug      bool   `json:"debug"`

	// Directories
	DataDirectory    string `json:"data_directory"`
	TablesDirectory  string `json:"tables_directory"`
	ExportsDirectory string `json:"exports_directory"`

	// File paths
	RulesFile string `json:"rules_file"`

	// Upload limits
	MaxUploadBytes int64 `json:"max_upload_bytes"`
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}

	return &Config{
		ListenAddr:       ":8080",
		Debug:            false,
		DataDirectory:    filepath.Join(wd, "data"),
		TablesDirectory:  filepath.Join(wd, "data", "tables"),
		ExportsDirectory: filepath.Join(wd, "data", "exports"),
		RulesFile:        filepath.Join(wd, "data", "rules.json"),
		MaxUploadBytes:   64 << 20,
	}
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := DefaultConfig()

	if addr := os.Getenv("RECON_LISTEN_ADDR"); addr != "" {
		cfg.ListenAddr = addr
	}
	if debug := os.Getenv("RECON_DEBUG"); debug == "true" || debug == "1" {
		cfg.Debug = true
	}
	if dataDir := os.Getenv("RECON_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
		cfg.TablesDirectory = filepath.Join(dataDir, "tables")
		cfg.ExportsDirectory = filepath.Join(dataDir, "exports")
		cfg.RulesFile = filepath.Join(dataDir, "rules.json")
	}
	if rulesFile := os.Getenv("RECON_RULES_FILE"); rulesFile != "" {
		cfg.RulesFile = rulesFile
	}

	cfg.ensureDirectories()

	return cfg
}

// ensureDirectories creates required directories if they don't exist
func (c *Config) ensureDirectories() {
	dirs := []string{
		c.DataDirectory,
		c.TablesDirectory,
		c.ExportsDirectory,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Printf("Warning: could not create directory %s: %v", dir, err)
		}
	}
}

// LoadRules reads the classification rule file, falling back to the
// built-in rules when no file exists.
func (c *Config) LoadRules() ([]classifier.Rule, error) {
	data, err := os.ReadFile(c.RulesFile)
	if err != nil {
		if os.IsNotExist(err) {
			return classifier.DefaultRules(), nil
		}
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	var rules []classifier.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %s: %w", c.RulesFile, err)
	}
	return rules, nil
}

// SaveRules writes the classification rules to the rule file.
func (c *Config) SaveRules(rules []classifier.Rule) error {
	data, err := json.MarshalIndent(rules, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.RulesFile, data, 0644)
}
