package testsupport

import (
	"context"
	"testing"
	"time"

	"teanga/internal/config"
	"teanga/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewEpisode creates a pending episode for tests using the provided store.
func NewEpisode(t testing.TB, st *store.Store, id string) *store.Episode {
	t.Helper()

	episode, err := st.CreateEpisode(context.Background(), &store.Episode{
		ID:          id,
		Source:      "rnag",
		Show:        "barrscealta",
		Title:       "Barrscéalta",
		PublishedAt: time.Date(2025, 10, 17, 11, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("store.CreateEpisode: %v", err)
	}
	return episode
}
