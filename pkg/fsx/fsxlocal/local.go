package fsxlocal

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/fsx"
)

// LocalFileSystem implements fsx.FileSystem using local disk
type LocalFileSystem struct {
	basePath string // Root directory for all files
	baseURL  string
}

// NewLocalFileSystem creates a new local file system
// basePath: root directory (e.g., "./uploads")
// baseURL: prefix clients use to fetch files (e.g., "/uploads")
func NewLocalFileSystem(basePath, baseURL string) (*LocalFileSystem, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fsx.Wrap(fsx.ErrWriteFailed, basePath, err)
	}

	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fsx.Wrap(fsx.ErrInvalidPath, basePath, err)
	}

	return &LocalFileSystem{
		basePath: absPath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// ============================================================================
// FileReader Implementation
// ============================================================================

func (fs *LocalFileSystem) ReadFile(ctx context.Context, path string) ([]byte, error) {
	fullPath, err := fs.fullPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fsx.NotFound(path)
		}
		return nil, fsx.Wrap(fsx.ErrReadFailed, path, err)
	}
	return data, nil
}

func (fs *LocalFileSystem) Stat(ctx context.Context, path string) (fsx.FileInfo, error) {
	fullPath, err := fs.fullPath(path)
	if err != nil {
		return fsx.FileInfo{}, err
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fsx.FileInfo{}, fsx.NotFound(path)
		}
		return fsx.FileInfo{}, fsx.Wrap(fsx.ErrReadFailed, path, err)
	}

	return fsx.FileInfo{
		Path:        path,
		Size:        info.Size(),
		ModTime:     info.ModTime(),
		ContentType: fsx.ContentTypeFor(fullPath),
	}, nil
}

func (fs *LocalFileSystem) Exists(ctx context.Context, path string) (bool, error) {
	fullPath, err := fs.fullPath(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fsx.Wrap(fsx.ErrReadFailed, path, err)
	}
	return true, nil
}

// ============================================================================
// FileWriter Implementation
// ============================================================================

// WriteFile writes data through a temporary file so readers never see a partial file.
// The content type is implied by the extension on disk.
func (fs *LocalFileSystem) WriteFile(ctx context.Context, path string, data []byte, contentType string) error {
	fullPath, err := fs.fullPath(path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fsx.Wrap(fsx.ErrWriteFailed, path, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".tmp-*")
	if err != nil {
		return fsx.Wrap(fsx.ErrWriteFailed, path, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fsx.Wrap(fsx.ErrWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fsx.Wrap(fsx.ErrWriteFailed, path, err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return fsx.Wrap(fsx.ErrWriteFailed, path, err)
	}
	return nil
}

// ============================================================================
// FileDeleter Implementation
// ============================================================================

func (fs *LocalFileSystem) DeleteFile(ctx context.Context, path string) error {
	fullPath, err := fs.fullPath(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil // Already deleted
		}
		return fsx.Wrap(fsx.ErrDeleteFailed, path, err)
	}
	return nil
}

// URL returns the address under which the HTTP server exposes path.
func (fs *LocalFileSystem) URL(path string) string {
	clean, err := fsx.CleanPath(path)
	if err != nil {
		return ""
	}
	return fs.baseURL + "/" + clean
}

// fullPath converts a relative path to absolute path
func (fs *LocalFileSystem) fullPath(path string) (string, error) {
	clean, err := fsx.CleanPath(path)
	if err != nil {
		return "", err
	}
	return filepath.Join(fs.basePath, filepath.FromSlash(clean)), nil
}

// GetBasePath returns the base path
func (fs *LocalFileSystem) GetBasePath() string {
	return fs.basePath
}
