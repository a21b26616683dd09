package files

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retailpulse/internal/schema"
)

// createFiles writes the named files into dir, each one minute newer than
// the previous.
func createFiles(t *testing.T, dir string, names ...string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0755))
	base := time.Now().Add(-time.Hour)
	for i, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0644))
		modTime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, modTime, modTime))
	}
}

func TestNewDiscovery(t *testing.T) {
	discovery := NewDiscovery("/test/base")
	assert.Equal(t, "/test/base", discovery.basePath)
}

func TestFindTableFiles(t *testing.T) {
	tests := []struct {
		name      string
		files     []string
		wantNames []string
	}{
		{
			name:      "csv and excel",
			files:     []string{"sales.csv", "stores.XLSX", "products.xlsm"},
			wantNames: []string{"sales.csv", "stores.XLSX", "products.xlsm"},
		},
		{
			name:      "unsupported formats skipped",
			files:     []string{"sales.csv", "notes.pdf", "old.xls", "data.json"},
			wantNames: []string{"sales.csv"},
		},
		{
			name:      "empty directory",
			files:     nil,
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := t.TempDir()
			createFiles(t, filepath.Join(base, "uploads"), tt.files...)
			require.NoError(t, os.MkdirAll(filepath.Join(base, "uploads", "archive.csv"), 0755))

			found, err := NewDiscovery(base).FindTableFiles("uploads")
			require.NoError(t, err)

			var names []string
			for i, f := range found {
				names = append(names, f.Name)
				assert.Equal(t, filepath.Join(base, "uploads", f.Name), f.Path)
				assert.Greater(t, f.Size, int64(0))
				if i > 0 {
					assert.False(t, f.ModTime.Before(found[i-1].ModTime), "sorted oldest first")
				}
			}
			assert.Equal(t, tt.wantNames, names)
		})
	}
}

func TestFindTableFiles_AbsolutePath(t *testing.T) {
	dir := t.TempDir()
	createFiles(t, dir, "sales.csv")

	found, err := NewDiscovery("/ignored").FindTableFiles(dir)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, filepath.Join(dir, "sales.csv"), found[0].Path)
}

func TestFindTableFiles_MissingDirectory(t *testing.T) {
	_, err := NewDiscovery(t.TempDir()).FindTableFiles("nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read directory")
}

func TestMatchTables(t *testing.T) {
	dir := t.TempDir()
	createFiles(t, dir,
		"sales_2024_q1.csv",
		"Stores.csv",
		"sales_2024_q2.xlsx",
		"products.csv",
		"readme.pdf",
	)

	found, err := NewDiscovery("").MatchTables(dir, schema.DefaultRegistry().Types())
	require.NoError(t, err)

	assert.Equal(t, "sales_2024_q2.xlsx", found[schema.Sales].Name, "newest sales file wins")
	assert.Equal(t, "Stores.csv", found[schema.Stores].Name)
	assert.Equal(t, "products.csv", found[schema.Products].Name)
	_, ok := found[schema.Inventory]
	assert.False(t, ok)
}

func TestGetLatestFile(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		files    []FileInfo
		wantName string
		wantOK   bool
	}{
		{"empty", nil, "", false},
		{"single", []FileInfo{{Name: "a", ModTime: now}}, "a", true},
		{
			name: "newest wins",
			files: []FileInfo{
				{Name: "old", ModTime: now.Add(-2 * time.Hour)},
				{Name: "new", ModTime: now},
				{Name: "mid", ModTime: now.Add(-time.Hour)},
			},
			wantName: "new",
			wantOK:   true,
		},
		{
			name: "ties keep the first",
			files: []FileInfo{
				{Name: "first", ModTime: now},
				{Name: "second", ModTime: now},
			},
			wantName: "first",
			wantOK:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			latest, ok := GetLatestFile(tt.files)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, latest.Name)
		})
	}
}
