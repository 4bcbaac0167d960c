package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// DirSink writes each item to <root>/<name><ext>.
type DirSink struct {
	root string
	ext  string
}

// NewDirSink creates root if needed and returns a sink writing into it.
func NewDirSink(root, ext string) (*DirSink, error) {
	if root == "" {
		return nil, fmt.Errorf("sink root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sink root: %w", err)
	}

	return &DirSink{root: root, ext: ext}, nil
}

// Root returns the directory items are written to.
func (s *DirSink) Root() string {
	return s.root
}

// Path returns the destination of name.
func (s *DirSink) Path(name string) string {
	return filepath.Join(s.root, name+s.ext)
}

// Persist writes data with a single whole-buffer write, truncating any
// earlier file of the same name.
func (s *DirSink) Persist(ctx context.Context, name string, data []byte) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.WriteFile(s.Path(name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", s.Path(name), err)
	}
	return nil
}
