package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the data and state directories.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	StateDir string `toml:"state_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	Dir           string `toml:"dir"`
	RetentionDays int    `toml:"retention_days"`
}

// HTTP contains settings shared by every download.
type HTTP struct {
	UserAgent        string `toml:"user_agent"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
	Retries          int    `toml:"retries"`
	RetryWaitSeconds int    `toml:"retry_wait_seconds"`
}

// Companies configures the Companies Registry scraper.
type Companies struct {
	RegistryURL         string `toml:"registry_url"`
	PageSize            int    `toml:"page_size"`
	PageDelaySeconds    int    `toml:"page_delay_seconds"`
	DetailsDelaySeconds int    `toml:"details_delay_seconds"`
}

// Planning configures the planning applications reader.
type Planning struct {
	SourceEncoding string `toml:"source_encoding"`
}

// OpenStreetMap configures Overpass queries.
type OpenStreetMap struct {
	OverpassURL    string `toml:"overpass_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	Verbosity      string `toml:"verbosity"`
}

// Footprints configures the Global ML Building Footprints download.
type Footprints struct {
	LinksURL string `toml:"links_url"`
	Location string `toml:"location"`
}

// Registered configures the registered buildings pipeline. Blank paths are
// derived from paths.data_dir.
type Registered struct {
	IndexCSV        string  `toml:"index_csv"`
	PDFDir          string  `toml:"pdf_dir"`
	OutputDir       string  `toml:"output_dir"`
	MDRoot          string  `toml:"md_root"`
	ExtractedCSV    string  `toml:"extracted_csv"`
	MergedCSV       string  `toml:"merged_csv"`
	StatusJSONL     string  `toml:"status_jsonl"`
	DebugDir        string  `toml:"debug_dir"`
	PDFURLBase      string  `toml:"pdf_url_base"`
	UserAgent       string  `toml:"user_agent"`
	DelayMinSeconds float64 `toml:"delay_min_seconds"`
	DelayMaxSeconds float64 `toml:"delay_max_seconds"`
	TimeoutSeconds  int     `toml:"timeout_seconds"`
	Retries         int     `toml:"retries"`
	MaxChars        int     `toml:"max_chars"`
	ValidateSchema  bool    `toml:"validate_schema"`
}

// LLM contains the chat completion settings used by `rb extract`.
type LLM struct {
	APIKey             string  `toml:"api_key"`
	BaseURL            string  `toml:"base_url"`
	Model              string  `toml:"model"`
	TimeoutSeconds     int     `toml:"timeout_seconds"`
	MaxRetries         int     `toml:"max_retries"`
	RetryUnauthorized  bool    `toml:"retry_unauthorized"`
	BackoffBaseSeconds float64 `toml:"backoff_base_seconds"`
	BackoffCapSeconds  float64 `toml:"backoff_cap_seconds"`
	DelayMinSeconds    float64 `toml:"delay_min_seconds"`
	DelayMaxSeconds    float64 `toml:"delay_max_seconds"`
}

// Config encapsulates all configuration values for imdata.
//
// Configuration sections by job:
//   - Paths: data tree root and state directory (lock + run ledger)
//   - Logging: log format, level, per-run log directory and retention
//   - HTTP: user agent, timeout and retry policy for every download
//   - Companies, Planning, OpenStreetMap, Footprints: dataset specifics
//   - Registered, LLM: registered buildings pipeline and its extraction model
type Config struct {
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
	HTTP          HTTP          `toml:"http"`
	Companies     Companies     `toml:"companies"`
	Planning      Planning      `toml:"planning"`
	OpenStreetMap OpenStreetMap `toml:"openstreetmap"`
	Footprints    Footprints    `toml:"footprints"`
	Registered    Registered    `toml:"registered"`
	LLM           LLM           `toml:"llm"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/imdata/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("imdata.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the data and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.StateDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the file guarding against overlapping runs.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "imdata.lock")
}

// LedgerPath is the sqlite run ledger location.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "runs.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// CompaniesDir is the Companies Registry dataset root.
func (c *Config) CompaniesDir() string {
	return filepath.Join(c.Paths.DataDir, "gov.im", "companies")
}

// LandTransactionsDir is the land transactions dataset root.
func (c *Config) LandTransactionsDir() string {
	return filepath.Join(c.Paths.DataDir, "gov.im", "land-transactions")
}

// PlanningDir is the planning applications dataset root.
func (c *Config) PlanningDir() string {
	return filepath.Join(c.Paths.DataDir, "gov.im", "planning-applications")
}

// OpenStreetMapDir is the OpenStreetMap dataset root.
func (c *Config) OpenStreetMapDir() string {
	return filepath.Join(c.Paths.DataDir, "openstreetmap")
}

// FootprintsDir is the building footprints dataset root.
func (c *Config) FootprintsDir() string {
	return filepath.Join(c.Paths.DataDir, "microsoft", "global-ml-building-footprints")
}

// RegisteredDir is the registered buildings dataset root.
func (c *Config) RegisteredDir() string {
	return filepath.Join(c.Paths.DataDir, "gov.im", "registered-buildings")
}
