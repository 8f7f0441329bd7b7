package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeHTTP()
	c.normalizeCompanies()
	c.Planning.SourceEncoding = strings.ToLower(strings.TrimSpace(c.Planning.SourceEncoding))
	if c.Planning.SourceEncoding == "" {
		c.Planning.SourceEncoding = defaultPlanningEncoding
	}
	c.OpenStreetMap.OverpassURL = strings.TrimSpace(c.OpenStreetMap.OverpassURL)
	if c.OpenStreetMap.OverpassURL == "" {
		c.OpenStreetMap.OverpassURL = defaultOverpassURL
	}
	c.OpenStreetMap.Verbosity = strings.TrimSpace(c.OpenStreetMap.Verbosity)
	if c.OpenStreetMap.Verbosity == "" {
		c.OpenStreetMap.Verbosity = defaultOverpassVerbosity
	}
	c.Footprints.LinksURL = strings.TrimSpace(c.Footprints.LinksURL)
	c.Footprints.Location = strings.TrimSpace(c.Footprints.Location)
	if c.Footprints.Location == "" {
		c.Footprints.Location = defaultFootprintLocation
	}
	if err := c.normalizeRegistered(); err != nil {
		return err
	}
	c.normalizeLLM()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Logging.Dir, err = expandPath(strings.TrimSpace(c.Logging.Dir)); err != nil {
		return fmt.Errorf("logging.dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func (c *Config) normalizeHTTP() {
	c.HTTP.UserAgent = strings.TrimSpace(c.HTTP.UserAgent)
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = defaultUserAgent
	}
	if c.HTTP.Retries < 0 {
		c.HTTP.Retries = 0
	}
}

func (c *Config) normalizeCompanies() {
	c.Companies.RegistryURL = strings.TrimSpace(c.Companies.RegistryURL)
	if c.Companies.RegistryURL == "" {
		c.Companies.RegistryURL = defaultRegistryURL
	}
	if !strings.HasSuffix(c.Companies.RegistryURL, "/") {
		c.Companies.RegistryURL += "/"
	}
}

func (c *Config) normalizeRegistered() error {
	r := &c.Registered
	root := c.RegisteredDir()
	defaults := []struct {
		name     string
		value    *string
		fallback string
	}{
		{"registered.index_csv", &r.IndexCSV, filepath.Join(root, "sources", "index.csv")},
		{"registered.pdf_dir", &r.PDFDir, filepath.Join(root, "sources", "pdfs")},
		{"registered.output_dir", &r.OutputDir, filepath.Join(root, "outputs", "rb")},
		{"registered.extracted_csv", &r.ExtractedCSV, filepath.Join(root, "outputs", "extracted.csv")},
		{"registered.merged_csv", &r.MergedCSV, filepath.Join(root, "outputs", "registered-buildings.csv")},
		{"registered.status_jsonl", &r.StatusJSONL, filepath.Join(root, "outputs", "extract-status.jsonl")},
		{"registered.debug_dir", &r.DebugDir, filepath.Join(root, "debug")},
	}
	for _, d := range defaults {
		value := strings.TrimSpace(*d.value)
		if value == "" {
			value = d.fallback
		}
		expanded, err := expandPath(value)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.value = expanded
	}
	var err error
	if strings.TrimSpace(r.MDRoot) == "" {
		r.MDRoot = r.OutputDir
	}
	if r.MDRoot, err = expandPath(strings.TrimSpace(r.MDRoot)); err != nil {
		return fmt.Errorf("registered.md_root: %w", err)
	}
	r.PDFURLBase = strings.TrimSpace(r.PDFURLBase)
	r.UserAgent = strings.TrimSpace(r.UserAgent)
	if r.UserAgent == "" {
		r.UserAgent = defaultRBUserAgent
	}
	if r.Retries < 0 {
		r.Retries = 0
	}
	return nil
}

func (c *Config) normalizeLLM() {
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if c.LLM.APIKey == "" {
		if value, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(value)
		}
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.MaxRetries < 0 {
		c.LLM.MaxRetries = 0
	}
}

// Normalize applies defaults and path expansion to a config built in code
// rather than loaded from a file.
func (c *Config) Normalize() error {
	return c.normalize()
}
