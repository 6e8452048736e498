package helpers

import (
	"path/filepath"
	"testing"

	"github.com/dhawansolanki/weavium-ai/internal/repository"
)

// NewTestSQLiteStore opens a store on a fresh file in a temporary directory.
func NewTestSQLiteStore(t *testing.T, opts ...store.Option) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "agent_memory.db"), opts...)
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}
