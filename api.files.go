package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
)

// CoversFolder is the folder of the book covers, relative to the uploads root.
const CoversFolder = "books/covers"

// allowedCoverTypes maps the accepted image types to their file extension.
var allowedCoverTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// CoverStorage persists book cover images.
type CoverStorage interface {
	Save(src io.Reader) (string, error)
	Remove(relativePath string) error
}

// localCoverStorage keeps the covers on the local disk under the uploads root.
type localCoverStorage struct {
	root    string
	maxSize int64
	clock   Clocker
}

func NewLocalCoverStorage(config *UploadsConfig, clock Clocker) CoverStorage {
	return &localCoverStorage{root: config.Folder, maxSize: config.MaxFileSize, clock: clock}
}

// Save validates the image then writes it under a generated name. It
// returns the path of the file relative to the uploads root.
func (cs *localCoverStorage) Save(src io.Reader) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("covers: failed to read image: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", ErrMissingCoverPayload
	}

	ext, ok := allowedCoverTypes[http.DetectContentType(head)]
	if !ok {
		return "", ErrInvalidCoverType
	}

	if err = os.MkdirAll(filepath.Join(cs.root, filepath.FromSlash(CoversFolder)), 0o755); err != nil {
		return "", fmt.Errorf("covers: failed to create folder: %w", err)
	}

	relativePath := path.Join(CoversFolder, cs.generateName(ext))
	fullPath := filepath.Join(cs.root, filepath.FromSlash(relativePath))
	file, err := os.OpenFile(fullPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("covers: failed to create file: %w", err)
	}

	// read one byte more than allowed to detect oversized payloads.
	written, err := io.Copy(file, io.LimitReader(io.MultiReader(bytes.NewReader(head), src), cs.maxSize+1))
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > cs.maxSize {
		err = ErrCoverTooLarge
	}
	if err != nil {
		_ = os.Remove(fullPath)
		if errors.Is(err, ErrCoverTooLarge) {
			return "", err
		}
		return "", fmt.Errorf("covers: failed to write file: %w", err)
	}
	return relativePath, nil
}

// Remove deletes a stored cover. Missing files and external urls are ignored.
func (cs *localCoverStorage) Remove(relativePath string) error {
	if relativePath == "" || strings.Contains(relativePath, "://") {
		return nil
	}
	cleaned := path.Clean("/" + strings.ReplaceAll(relativePath, "\\", "/"))
	if !strings.HasPrefix(cleaned, "/"+CoversFolder+"/") {
		return fmt.Errorf("covers: refusing to remove %q outside of covers folder", relativePath)
	}
	err := os.Remove(filepath.Join(cs.root, filepath.FromSlash(strings.TrimPrefix(cleaned, "/"))))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("covers: failed to remove file: %w", err)
	}
	return nil
}

// generateName builds a unique file name made of the current unix
// milliseconds and a random suffix.
func (cs *localCoverStorage) generateName(ext string) string {
	random := strings.ReplaceAll(uuid.Must(uuid.NewV4()).String(), "-", "")[:8]
	return fmt.Sprintf("%d-%s%s", cs.clock.Now().UnixMilli(), random, ext)
}
