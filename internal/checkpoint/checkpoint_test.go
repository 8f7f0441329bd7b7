package checkpoint

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingAndEmptyFiles(t *testing.T) {
	dir := t.TempDir()
	var out map[string]any
	found, err := Load(filepath.Join(dir, "missing.json"), &out)
	if err != nil || found {
		t.Fatalf("missing file: found=%v err=%v", found, err)
	}
	empty := filepath.Join(dir, "empty.json")
	if err := os.WriteFile(empty, []byte("  \n"), 0o644); err != nil {
		t.Fatal(err)
	}
	found, err = Load(empty, &out)
	if err != nil || found {
		t.Fatalf("empty file: found=%v err=%v", found, err)
	}
	broken := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(broken, []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(broken, &out); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStatusRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sources", "status.json")
	status, err := LoadStatus(path)
	if err != nil {
		t.Fatalf("LoadStatus: %v", err)
	}
	if _, ok := status.Latest("a"); ok {
		t.Fatal("expected no mark for fresh status")
	}

	now := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	status.Record("a", PageMark{Page: 3, Rows: 12, LastRow: map[string]string{"Number": "000123C"}}, now)
	if err := status.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := LoadStatus(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	mark, ok := reloaded.Latest("a")
	if !ok {
		t.Fatal("expected mark after reload")
	}
	want := PageMark{Updated: "2024-03-01 12:30:00", Page: 3, Rows: 12, LastRow: map[string]string{"Number": "000123C"}}
	if diff := cmp.Diff(want, mark); diff != "" {
		t.Fatalf("mark (-want +got):\n%s", diff)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), `"search"`) || !strings.Contains(string(data), `"latest"`) {
		t.Fatalf("unexpected status layout: %s", data)
	}
}

func TestDetailsCachePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.json")
	cache := NewDetailsCache(path, nil)
	if err := cache.Store(Details{Number: " ", URL: "x"}); err == nil {
		t.Fatal("expected error for blank number")
	}
	fetched := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := cache.Store(Details{Number: "2", Fields: map[string]string{"Status": "Live"}, Fetched: fetched}); err != nil {
		t.Fatal(err)
	}
	if err := cache.Store(Details{Number: "1", Fields: map[string]string{"Status": "Dissolved"}, Fetched: fetched}); err != nil {
		t.Fatal(err)
	}

	reopened := NewDetailsCache(path, nil)
	if reopened.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", reopened.Count())
	}
	entry, ok := reopened.Lookup("", "2")
	if !ok || entry.Fields["Status"] != "Live" || !entry.Fetched.Equal(fetched) {
		t.Fatalf("unexpected entry %+v", entry)
	}
	var numbers []string
	for _, d := range reopened.List() {
		numbers = append(numbers, d.Number)
	}
	if diff := cmp.Diff([]string{"1", "2"}, numbers); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestDetailsCacheSeparatesRegistryTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.json")
	cache := NewDetailsCache(path, nil)
	for _, d := range []Details{
		{Number: "7", RegistryType: "Company", Fields: map[string]string{"Status": "Live"}},
		{Number: "7", RegistryType: "Foundation", Fields: map[string]string{"Status": "Dissolved"}},
	} {
		if err := cache.Store(d); err != nil {
			t.Fatal(err)
		}
	}

	reopened := NewDetailsCache(path, nil)
	if reopened.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", reopened.Count())
	}
	company, _ := reopened.Lookup("Company", "7")
	foundation, _ := reopened.Lookup("Foundation", "7")
	if company.Fields["Status"] != "Live" || foundation.Fields["Status"] != "Dissolved" {
		t.Fatalf("company=%+v foundation=%+v", company, foundation)
	}
	if _, ok := reopened.Lookup("Partnership", "7"); ok {
		t.Fatal("unexpected hit for another registry type")
	}
}

func TestDetailsCacheReadsNumberKeyedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.json")
	if err := os.WriteFile(path, []byte(`{"12":{"url":"x","fields":{"Status":"Live"}}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	entry, ok := NewDetailsCache(path, nil).Lookup("", "12")
	if !ok || entry.Number != "12" || entry.Fields["Status"] != "Live" {
		t.Fatalf("ok=%v entry=%+v", ok, entry)
	}
}

func TestDetailsCacheStartsEmptyOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "details.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	cache := NewDetailsCache(path, nil)
	if cache.Count() != 0 {
		t.Fatalf("expected empty cache, got %d", cache.Count())
	}
}
