package testsupport

import (
	"context"
	"testing"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
)

// MustOpenStore opens a catalog.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *catalog.Store {
	t.Helper()

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("catalog.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewItem creates an active catalog item for tests using the provided store.
func NewItem(t testing.TB, store *catalog.Store, key, name string) *catalog.Item {
	t.Helper()

	item, _, err := store.UpsertItem(context.Background(), &catalog.Item{
		Key:    key,
		Name:   name,
		Price:  1500,
		Active: true,
	})
	if err != nil {
		t.Fatalf("store.UpsertItem: %v", err)
	}
	return item
}
