package models

import "time"

// FileStatus describes where a stored file is in its lifecycle.
type FileStatus string

const (
	FileStatusStaged FileStatus = "staged"
	FileStatusResult FileStatus = "result"
)

// FileInfo represents metadata about a stored file.
type FileInfo struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	ContentType string     `json:"contentType,omitempty"`
	Size        int64      `json:"size"`
	UploadedAt  time.Time  `json:"uploadedAt"`
	Status      FileStatus `json:"status"`
}
