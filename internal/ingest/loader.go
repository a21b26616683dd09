package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"retailpulse/internal/dataset"
	"retailpulse/internal/schema"
)

// Source is a named, reopenable tabular input such as a file on disk or a
// multipart upload.
type Source struct {
	Name string
	Open func() (io.ReadCloser, error)
}

// FileSource returns a Source reading path.
func FileSource(path string) Source {
	return Source{
		Name: path,
		Open: func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Bundle holds the loaded tables keyed by entity type.
type Bundle map[schema.EntityType]*dataset.Table

func (b Bundle) Sales() *dataset.Table     { return b[schema.Sales] }
func (b Bundle) Stores() *dataset.Table    { return b[schema.Stores] }
func (b Bundle) Products() *dataset.Table  { return b[schema.Products] }
func (b Bundle) Inventory() *dataset.Table { return b[schema.Inventory] }

// LoadError reports which entity's source failed to load.
type LoadError struct {
	Entity schema.EntityType
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Entity, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Loader turns sources into tables.
type Loader struct {
	logger  *slog.Logger
	maxRows int
}

// NewLoader creates a loader. maxRows <= 0 disables the row limit.
func NewLoader(logger *slog.Logger, maxRows int) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger:  logger.With(slog.String("component", "ingest")),
		maxRows: maxRows,
	}
}

// LoadFile validates and reads a file from disk.
func (l *Loader) LoadFile(ctx context.Context, path string) (*dataset.Table, error) {
	if err := l.ValidateFile(path); err != nil {
		return nil, err
	}
	return l.Load(ctx, FileSource(path))
}

// Load reads a single source, choosing the decoder from its name.
func (l *Loader) Load(ctx context.Context, src Source) (*dataset.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	format, err := FormatFromName(src.Name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	rc, err := src.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src.Name, err)
	}
	defer rc.Close()

	t, err := Read(rc, format)
	if err != nil {
		l.logger.WarnContext(ctx, "Failed to parse file",
			slog.String("file", src.Name),
			slog.String("format", string(format)),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}
	if l.maxRows > 0 && t.Len() > l.maxRows {
		return nil, fmt.Errorf("%s: %w (%d > %d)", src.Name, ErrTooManyRows, t.Len(), l.maxRows)
	}

	l.logger.DebugContext(ctx, "File loaded",
		slog.String("file", src.Name),
		slog.String("format", string(format)),
		slog.Int("rows", t.Len()),
		slog.Int("columns", len(t.Columns())),
		slog.Duration("duration", time.Since(start)))
	return t, nil
}

// LoadBundle loads every source concurrently. The first failure cancels the
// rest and is returned.
func (l *Loader) LoadBundle(ctx context.Context, sources map[schema.EntityType]Source) (Bundle, error) {
	var mu sync.Mutex
	out := make(Bundle, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	for entity, src := range sources {
		g.Go(func() error {
			t, err := l.Load(ctx, src)
			if err != nil {
				return &LoadError{Entity: entity, Err: err}
			}
			mu.Lock()
			out[entity] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateFile checks that path exists, is a regular file and is readable.
func (l *Loader) ValidateFile(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		l.logger.Error("File does not exist", slog.String("file", path))
		return fmt.Errorf("file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat file %s: %w", path, err)
	}
	if info.IsDir() {
		l.logger.Error("Path is a directory, not a file", slog.String("path", path))
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("file %s is not readable: %w", path, err)
	}
	f.Close()
	return nil
}
