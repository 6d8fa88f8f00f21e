package intake

import (
	"strings"

	"github.com/informes/backend/internal/models"
)

// Rejection and prompt strings shown to the user.
const (
	MsgOnlyDocx = "Solo se permiten archivos .docx"
)

// Selection is the outcome of applying a Policy to a set of candidates.
type Selection struct {
	Files     []Candidate
	Rejection string // non-empty when nothing acceptable was offered
}

// Policy decides which of the offered candidates get staged.
type Policy interface {
	Select(files []Candidate) Selection
}

// PolicyFor returns the staging policy of a variant.
func PolicyFor(v models.Variant) Policy {
	if v == models.VariantFolder {
		return FolderPolicy{}
	}
	return SingleFilePolicy{}
}

// SingleFilePolicy keeps only the first .docx candidate.
type SingleFilePolicy struct{}

// Select implements Policy.
func (SingleFilePolicy) Select(files []Candidate) Selection {
	for _, f := range files {
		if IsDocx(f.Name, f.ContentType) {
			return Selection{Files: []Candidate{f}}
		}
	}
	return Selection{Rejection: MsgOnlyDocx}
}

// FolderPolicy keeps every candidate.
type FolderPolicy struct{}

// Select implements Policy.
func (FolderPolicy) Select(files []Candidate) Selection {
	out := make([]Candidate, len(files))
	copy(out, files)
	return Selection{Files: out}
}

// IsDocx reports whether a file qualifies for the single-file variant. The
// suffix check is case-sensitive; other spellings qualify through the MIME type.
func IsDocx(name, contentType string) bool {
	if mediaType(contentType) == DocxContentType {
		return true
	}
	return strings.HasSuffix(name, ".docx")
}

func mediaType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(strings.ToLower(ct))
}
