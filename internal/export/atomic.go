package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteError reports a filesystem failure while producing path.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("export: write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// writeFileAtomic streams content produced by fill into a temp file next to
// path and renames it over path.
func writeFileAtomic(path string, fill func(io.Writer) error) error {
	if path == "" {
		return &WriteError{Path: path, Err: fmt.Errorf("empty path")}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &WriteError{Path: path, Err: err}
	}
	tmpName := tmp.Name()
	// No-op once the rename succeeded.
	defer os.Remove(tmpName)

	if err := fill(tmp); err != nil {
		tmp.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &WriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}
