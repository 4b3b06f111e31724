package repositories

import (
	"fmt"
	"os"
	"path/filepath"

	"txt-worker/domain"
)

const (
	defaultDirPerm  os.FileMode = 0o755
	defaultFilePerm os.FileMode = 0o644
)

// FileSystem creates output directories and writes page files into them.
type FileSystem struct {
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func NewFileSystem() *FileSystem {
	return &FileSystem{dirPerm: defaultDirPerm, filePerm: defaultFilePerm}
}

// EnsureDir creates path and any missing parents. Existing directories are left alone.
func (fs *FileSystem) EnsureDir(path string) error {
	if err := os.MkdirAll(path, fs.dirPerm); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", path, err)
	}
	return nil
}

// WritePage stores page.Text as <dir>/<index+1>.txt and returns the final path.
// The file is written to a temp sibling and renamed, so readers never see a partial page.
// An existing file with the same name is replaced.
func (fs *FileSystem) WritePage(dir string, page domain.PageResult) (string, error) {
	if page.Index < 0 {
		return "", fmt.Errorf("%w: %d", domain.ErrInvalidPage, page.Index)
	}
	dest := filepath.Join(dir, page.FileName())

	tmp, err := os.CreateTemp(dir, ".page-*.tmp")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file for %s: %w", dest, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.WriteString(page.Text); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write %s: %w", dest, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sync %s: %w", dest, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to close %s: %w", dest, err)
	}
	_ = os.Chmod(tmpPath, fs.filePerm)

	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move page into %s: %w", dest, err)
	}
	return dest, nil
}
