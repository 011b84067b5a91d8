package testsupport

import (
	"testing"

	"coursewatch/internal/config"
	"coursewatch/internal/seen"
)

// MustOpenStore opens a seen.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *seen.Store {
	t.Helper()

	store, err := seen.Open(cfg)
	if err != nil {
		t.Fatalf("seen.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
