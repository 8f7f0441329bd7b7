package checkpoint

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"imdata/internal/logging"
)

// Details is one cached company detail page.
type Details struct {
	Number       string            `json:"number"`
	RegistryType string            `json:"registry_type"`
	URL          string            `json:"url"`
	Fetched      time.Time         `json:"fetched"`
	Fields       map[string]string `json:"fields"`
}

// DetailsKey identifies a company across registers; the same number can be
// issued under more than one registry type.
func DetailsKey(registryType, number string) string {
	return strings.TrimSpace(registryType) + "/" + strings.TrimSpace(number)
}

// DetailsCache provides thread-safe access to sources/details.json, keyed by
// registry type and company number.
type DetailsCache struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Details
}

// NewDetailsCache opens the cache at path. A load failure is logged and the
// cache starts empty; the file is rewritten on the next Store.
func NewDetailsCache(path string, logger *slog.Logger) *DetailsCache {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "checkpoint")

	c := &DetailsCache{
		path:    path,
		logger:  logger,
		entries: make(map[string]Details),
	}
	if path == "" {
		return c
	}

	var stored map[string]Details
	found, err := Load(path, &stored)
	if err != nil {
		logger.Warn("failed to load company details cache",
			logging.String(logging.FieldEventType, "details_cache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty"),
			logging.String(logging.FieldImpact, "company details will be fetched again"))
		return c
	}
	if found {
		for key, entry := range stored {
			entry.Number = strings.TrimSpace(entry.Number)
			if entry.Number == "" {
				// Entries written before registry types were recorded.
				entry.Number = strings.TrimSpace(key)
			}
			if entry.Number == "" {
				continue
			}
			entry.RegistryType = strings.TrimSpace(entry.RegistryType)
			c.entries[DetailsKey(entry.RegistryType, entry.Number)] = entry
		}
		logger.Debug("loaded company details cache",
			logging.Int("entry_count", len(c.entries)),
			logging.String("path", path))
	}
	return c
}

// Lookup returns the cached details for a company number within a registry
// type.
func (c *DetailsCache) Lookup(registryType, number string) (Details, bool) {
	if strings.TrimSpace(number) == "" {
		return Details{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[DetailsKey(registryType, number)]
	return entry, ok
}

// Store adds or replaces an entry and persists the cache.
func (c *DetailsCache) Store(entry Details) error {
	entry.Number = strings.TrimSpace(entry.Number)
	entry.RegistryType = strings.TrimSpace(entry.RegistryType)
	if entry.Number == "" {
		return errors.New("company number cannot be empty")
	}
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[DetailsKey(entry.RegistryType, entry.Number)] = entry
	if err := Save(c.path, c.entries); err != nil {
		return fmt.Errorf("persist details cache: %w", err)
	}
	return nil
}

// List returns every entry sorted by company number, then registry type.
func (c *DetailsCache) List() []Details {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Details, 0, len(c.entries))
	for _, entry := range c.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Number != out[j].Number {
			return out[i].Number < out[j].Number
		}
		return out[i].RegistryType < out[j].RegistryType
	})
	return out
}

// Count returns the number of cached entries.
func (c *DetailsCache) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
