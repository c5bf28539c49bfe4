// Package fsx abstracts the blob storage holding rendered images and plan documents.
package fsx

import (
	"context"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

var fsxErrors = errx.NewRegistry("FSX")

var (
	ErrNotFound     = fsxErrors.Register("NOT_FOUND", errx.TypeNotFound, http.StatusNotFound, "File not found")
	ErrInvalidPath  = fsxErrors.Register("INVALID_PATH", errx.TypeValidation, http.StatusBadRequest, "Invalid file path")
	ErrReadFailed   = fsxErrors.Register("READ_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to read file")
	ErrWriteFailed  = fsxErrors.Register("WRITE_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to write file")
	ErrDeleteFailed = fsxErrors.Register("DELETE_FAILED", errx.TypeExternal, http.StatusBadGateway, "Failed to delete file")
)

// FileInfo represents information about a file
type FileInfo struct {
	Path        string
	Size        int64
	ModTime     time.Time
	ContentType string
}

// FileReader provides read-only operations
type FileReader interface {
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Stat(ctx context.Context, path string) (FileInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// FileWriter provides write operations
type FileWriter interface {
	WriteFile(ctx context.Context, path string, data []byte, contentType string) error
}

// FileDeleter provides deletion operations
type FileDeleter interface {
	DeleteFile(ctx context.Context, path string) error
}

// URLResolver maps a stored path to the address clients fetch it from.
type URLResolver interface {
	URL(path string) string
}

// FileSystem combines all file operations
type FileSystem interface {
	FileReader
	FileWriter
	FileDeleter
	URLResolver
}

// CleanPath normalizes p to a relative slash path and rejects paths
// escaping the storage root.
func CleanPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fsxErrors.New(ErrInvalidPath).WithDetail("path", p)
	}
	slashed := strings.ReplaceAll(p, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fsxErrors.New(ErrInvalidPath).WithDetail("path", p)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if clean == "" {
		return "", fsxErrors.New(ErrInvalidPath).WithDetail("path", p)
	}
	return clean, nil
}

// SessionPath returns the storage path of a file owned by a session.
func SessionPath(sessionID, kind, name string) string {
	return path.Join("sessions", sessionID, kind, name)
}

// ExtensionFor returns the file extension, dot included, for a MIME type.
func ExtensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "application/pdf":
		return ".pdf"
	case "text/html", "text/html; charset=utf-8":
		return ".html"
	default:
		return ".bin"
	}
}

// ContentTypeFor detects the MIME type from the file extension.
func ContentTypeFor(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".html":
		return "text/html; charset=utf-8"
	case ".json":
		return "application/json"
	default:
		return "application/octet-stream"
	}
}

// NotFound builds the not-found error for p.
func NotFound(p string) *errx.Error {
	return fsxErrors.New(ErrNotFound).WithDetail("path", p)
}

// Wrap attaches an operation error code to a backend error.
func Wrap(code *errx.ErrorCode, p string, err error) *errx.Error {
	return fsxErrors.NewWithCause(code, err).WithDetail("path", p)
}
