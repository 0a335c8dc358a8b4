// Package testutil provides shared test helpers for setting up document
// roots, databases and model fakes.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/dossier/internal/index"
	"github.com/starford/dossier/internal/storage"
)

// TestDB creates a temporary SQLite database that is automatically cleaned
// up. The database embeds with a HashEmbedder unless opts override it.
func TestDB(t *testing.T, opts ...index.Option) *index.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "dossier-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	opts = append([]index.Option{index.WithEmbedder(&HashEmbedder{})}, opts...)
	db, err := index.Open(dbFile.Name(), opts...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRoot creates a temporary document root with a storage.Provider.
func TestRoot(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return store.Root(), store
}
