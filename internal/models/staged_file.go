package models

// StagedFile is a file selected by the user and waiting for submission.
// The content lives in storage under ID.
type StagedFile struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	RelPath     string `json:"relPath,omitempty"` // path inside a dropped folder
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// DisplayName returns the relative path when the file came from a folder.
func (f StagedFile) DisplayName() string {
	if f.RelPath != "" {
		return f.RelPath
	}
	return f.Name
}
