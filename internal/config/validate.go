package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"http.timeout_seconds":          c.HTTP.TimeoutSeconds,
		"companies.page_size":           c.Companies.PageSize,
		"openstreetmap.timeout_seconds": c.OpenStreetMap.TimeoutSeconds,
		"registered.timeout_seconds":    c.Registered.TimeoutSeconds,
		"registered.max_chars":          c.Registered.MaxChars,
		"llm.timeout_seconds":           c.LLM.TimeoutSeconds,
	}); err != nil {
		return err
	}
	if err := ensureNonNegativeMap(map[string]int{
		"http.retry_wait_seconds":         c.HTTP.RetryWaitSeconds,
		"companies.page_delay_seconds":    c.Companies.PageDelaySeconds,
		"companies.details_delay_seconds": c.Companies.DetailsDelaySeconds,
	}); err != nil {
		return err
	}
	for key, value := range map[string]string{
		"companies.registry_url":     c.Companies.RegistryURL,
		"openstreetmap.overpass_url": c.OpenStreetMap.OverpassURL,
		"llm.base_url":               c.LLM.BaseURL,
	} {
		if err := validateURL(key, value); err != nil {
			return err
		}
	}
	if c.Footprints.LinksURL != "" {
		if err := validateURL("footprints.links_url", c.Footprints.LinksURL); err != nil {
			return err
		}
	}
	if c.Registered.PDFURLBase != "" {
		if err := validateURL("registered.pdf_url_base", c.Registered.PDFURLBase); err != nil {
			return err
		}
	}
	switch c.Planning.SourceEncoding {
	case "iso-8859-1", "latin1", "windows-1252", "utf-8":
	default:
		return fmt.Errorf("planning.source_encoding: unsupported value %q", c.Planning.SourceEncoding)
	}
	if err := validateDelayRange("registered", c.Registered.DelayMinSeconds, c.Registered.DelayMaxSeconds); err != nil {
		return err
	}
	if err := validateDelayRange("llm", c.LLM.DelayMinSeconds, c.LLM.DelayMaxSeconds); err != nil {
		return err
	}
	if c.LLM.BackoffBaseSeconds <= 0 {
		return errors.New("llm.backoff_base_seconds must be positive")
	}
	if c.LLM.BackoffCapSeconds < c.LLM.BackoffBaseSeconds {
		return errors.New("llm.backoff_cap_seconds must be >= llm.backoff_base_seconds")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func validateDelayRange(section string, lo, hi float64) error {
	if lo < 0 || hi < 0 {
		return fmt.Errorf("%s delays must be >= 0", section)
	}
	if hi < lo {
		return fmt.Errorf("%s.delay_max_seconds must be >= %s.delay_min_seconds", section, section)
	}
	return nil
}

func validateURL(key, value string) error {
	parsed, err := url.Parse(strings.TrimSpace(value))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}

func ensureNonNegativeMap(values map[string]int) error {
	for key, value := range values {
		if value < 0 {
			return fmt.Errorf("%s must be >= 0", key)
		}
	}
	return nil
}
