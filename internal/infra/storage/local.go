package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/focusmon/screenwatch/internal/domain/vision"
)

// LocalSource reads captures from the upload directory on disk. Relative
// locators are resolved against baseDir; absolute paths are used as-is.
type LocalSource struct {
	baseDir string
}

func NewLocal(baseDir string) *LocalSource {
	return &LocalSource{baseDir: baseDir}
}

// Fetch implementasi vision.ImageSource
func (s *LocalSource) Fetch(_ context.Context, locator string) ([]byte, error) {
	path := locator
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s", vision.ErrResourceUnavailable, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}
