package chat

import (
	"context"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// FileDocument keeps the collection in a single JSON file.
type FileDocument struct {
	path string
}

var _ Document = (*FileDocument)(nil)

// NewFileDocument returns a document stored at path. Parent directories are
// created on first write.
func NewFileDocument(path string) *FileDocument {
	return &FileDocument{path: path}
}

// Location returns the file path.
func (d *FileDocument) Location() string {
	return d.path
}

// Read returns the raw file content.
func (d *FileDocument) Read(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrDocumentMissing
		}
		return nil, errors.Wrapf(err, "read %s", d.path)
	}
	return data, nil
}

// Write replaces the file through a sibling temp file and a rename.
func (d *FileDocument) Write(_ context.Context, body []byte) error {
	dir := filepath.Dir(d.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(body); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close temp file")
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return errors.Wrap(err, "chmod temp file")
	}
	if err := os.Rename(tmpPath, d.path); err != nil {
		return errors.Wrapf(err, "replace %s", d.path)
	}
	committed = true
	return nil
}
