package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskUsageBytes(t *testing.T) {
	dir := t.TempDir()
	write := func(path string, n int) {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, make([]byte, n), 0644))
	}
	db := filepath.Join(dir, "events.db")
	write(db, 100)
	write(db+"-wal", 20)
	catalog := filepath.Join(dir, "catalog")
	write(filepath.Join(catalog, "store", "a"), 7)
	write(filepath.Join(catalog, "meta"), 3)
	other := filepath.Join(dir, "notes.txt")
	write(other, 5)
	write(other+"-wal", 50)

	tests := []struct {
		name  string
		paths []string
		want  int64
	}{
		{"database with wal", []string{db}, 120},
		{"nested directory", []string{catalog}, 10},
		{"database and catalog", []string{db, catalog}, 130},
		{"side files only for .db", []string{other}, 5},
		{"missing path", []string{filepath.Join(dir, "missing.db"), catalog}, 10},
		{"empty path", []string{"", db}, 120},
		{"no paths", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiskUsageBytes(tt.paths...)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEnsureDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a", "b", "events.db")
	require.NoError(t, ensureDir(path))
	info, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.NoError(t, ensureDir("events.db"))
}
