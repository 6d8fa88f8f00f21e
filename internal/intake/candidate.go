// Package intake turns file selections from any source (browser drop, file
// picker, CLI path, watched folder) into the candidates a session stages.
package intake

import (
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Candidate is a file offered for staging, not yet validated.
type Candidate struct {
	Name        string
	RelPath     string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// DisplayName returns the folder-relative path when known.
func (c Candidate) DisplayName() string {
	if c.RelPath != "" {
		return c.RelPath
	}
	return c.Name
}

// FromPath builds a candidate for a single file on disk.
func FromPath(p string) (Candidate, error) {
	info, err := os.Stat(p)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{
		Name:        filepath.Base(p),
		ContentType: DetectContentType(p, nil),
		Size:        info.Size(),
		Open:        func() (io.ReadCloser, error) { return os.Open(p) },
	}, nil
}

// FromFileHeaders converts multipart parts into candidates. paths, when
// present, carries the folder-relative path of each part in the same order
// (browsers send it as webkitRelativePath).
func FromFileHeaders(headers []*multipart.FileHeader, paths []string) []Candidate {
	out := make([]Candidate, 0, len(headers))
	for i, fh := range headers {
		name := fh.Filename
		var rel string
		if i < len(paths) && paths[i] != "" {
			rel = cleanRelPath(paths[i])
		} else if strings.ContainsAny(name, `/\`) {
			rel = cleanRelPath(name)
		}
		if rel != "" {
			name = path.Base(rel)
		}
		ct := fh.Header.Get("Content-Type")
		if ct == "" || ct == "application/octet-stream" {
			ct = DetectContentType(name, nil)
		}
		out = append(out, Candidate{
			Name:        name,
			RelPath:     rel,
			ContentType: ct,
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return out
}

func cleanRelPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/")
}
