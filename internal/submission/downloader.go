package submission

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/informes/backend/internal/models"
)

// Downloader delivers a processed document to the user.
type Downloader interface {
	Trigger(ctx context.Context, data []byte, filename string) (*models.Download, error)
}

// DirDownloader writes results into a directory. An existing file with the
// same name is not overwritten; a numeric suffix is added instead.
type DirDownloader struct {
	Dir string
}

// Trigger implements Downloader.
func (d *DirDownloader) Trigger(ctx context.Context, data []byte, filename string) (*models.Download, error) {
	if err := os.MkdirAll(d.Dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	path, f, err := createUnique(d.Dir, filepath.Base(filename))
	if err != nil {
		return nil, err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	return &models.Download{
		ID:       uuid.New().String(),
		Filename: filepath.Base(path),
		Size:     int64(len(data)),
		URL:      "file://" + filepath.ToSlash(path),
	}, nil
}

func createUnique(dir, name string) (string, *os.File, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for i := 0; i < 1000; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		path := filepath.Join(dir, candidate)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return path, f, nil
		}
		if !os.IsExist(err) {
			return "", nil, fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return "", nil, fmt.Errorf("no free file name for %s in %s", name, dir)
}
