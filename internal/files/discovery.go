package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"retailpulse/internal/ingest"
	"retailpulse/internal/schema"
)

// FileInfo represents information about a discovered file
type FileInfo struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Discovery finds input tables in a directory
type Discovery struct {
	basePath string
}

// NewDiscovery creates a new file discovery instance. Relative directories
// passed to its methods are resolved against basePath.
func NewDiscovery(basePath string) *Discovery {
	return &Discovery{basePath: basePath}
}

// FindTableFiles lists the files in dir that the ingest package can read,
// oldest first.
func (d *Discovery) FindTableFiles(dir string) ([]FileInfo, error) {
	fullPath := d.resolve(dir)

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory %s: %w", fullPath, err)
	}

	var files []FileInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, err := ingest.FormatFromName(name); err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, FileInfo{
			Path:    filepath.Join(fullPath, name),
			Name:    name,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})
	return files, nil
}

// MatchTables assigns table files to entity types by file name prefix, so
// "sales.csv" and "sales_2024_q1.xlsx" both count as sales. When several
// files match an entity the most recently modified wins.
func (d *Discovery) MatchTables(dir string, types []schema.EntityType) (map[schema.EntityType]FileInfo, error) {
	files, err := d.FindTableFiles(dir)
	if err != nil {
		return nil, err
	}

	out := make(map[schema.EntityType]FileInfo, len(types))
	for _, entity := range types {
		var candidates []FileInfo
		for _, f := range files {
			if strings.HasPrefix(strings.ToLower(f.Name), string(entity)) {
				candidates = append(candidates, f)
			}
		}
		if latest, ok := GetLatestFile(candidates); ok {
			out[entity] = latest
		}
	}
	return out, nil
}

func (d *Discovery) resolve(dir string) string {
	if filepath.IsAbs(dir) || d.basePath == "" {
		return dir
	}
	return filepath.Join(d.basePath, dir)
}

// GetLatestFile returns the most recently modified file from a list
func GetLatestFile(files []FileInfo) (FileInfo, bool) {
	if len(files) == 0 {
		return FileInfo{}, false
	}

	latest := files[0]
	for _, file := range files[1:] {
		if file.ModTime.After(latest.ModTime) {
			latest = file
		}
	}
	return latest, true
}
