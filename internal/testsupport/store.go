package testsupport

import (
	"testing"

	"imdata/internal/config"
	"imdata/internal/runlog"
)

// MustOpenLedger opens the run ledger under cfg's state directory and
// registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *runlog.Store {
	t.Helper()

	store, err := runlog.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("runlog.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// Asker answers every download question with a fixed value unless forced.
type Asker bool

// Force implements prompt.Asker.
func (a Asker) Force(forced bool, _ string) bool {
	return forced || bool(a)
}
