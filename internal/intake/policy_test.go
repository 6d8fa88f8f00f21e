package intake

import (
	"testing"

	"github.com/informes/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func cand(name, ct string) Candidate {
	return Candidate{Name: name, ContentType: ct}
}

func TestSingleFilePolicy(t *testing.T) {
	tests := []struct {
		name      string
		files     []Candidate
		wantName  string
		wantEmpty bool
	}{
		{
			name:     "single docx by extension",
			files:    []Candidate{cand("informe.docx", "")},
			wantName: "informe.docx",
		},
		{
			name:     "docx by mime type without extension",
			files:    []Candidate{cand("scan", DocxContentType)},
			wantName: "scan",
		},
		{
			name:     "mime type with parameters",
			files:    []Candidate{cand("scan", DocxContentType+"; charset=binary")},
			wantName: "scan",
		},
		{
			name: "first qualifying file after non-qualifying ones",
			files: []Candidate{
				cand("notes.txt", "text/plain"),
				cand("photo.png", "image/png"),
				cand("first.docx", ""),
				cand("second.docx", DocxContentType),
			},
			wantName: "first.docx",
		},
		{
			name:      "no qualifying file",
			files:     []Candidate{cand("notes.txt", "text/plain"), cand("old.doc", "application/msword")},
			wantEmpty: true,
		},
		{
			name:      "uppercase suffix without mime",
			files:     []Candidate{cand("INFORME.DOCX", "")},
			wantEmpty: true,
		},
		{
			name:      "empty selection",
			files:     nil,
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := SingleFilePolicy{}.Select(tt.files)
			if tt.wantEmpty {
				assert.Empty(t, sel.Files)
				assert.Equal(t, MsgOnlyDocx, sel.Rejection)
				return
			}
			if assert.Len(t, sel.Files, 1) {
				assert.Equal(t, tt.wantName, sel.Files[0].Name)
			}
			assert.Empty(t, sel.Rejection)
		})
	}
}

func TestFolderPolicy(t *testing.T) {
	files := []Candidate{cand("a.txt", ""), cand("b.png", ""), cand("c.docx", "")}

	sel := FolderPolicy{}.Select(files)

	assert.Empty(t, sel.Rejection)
	assert.Equal(t, files, sel.Files)

	sel.Files[0].Name = "changed"
	assert.Equal(t, "a.txt", files[0].Name, "selection must not alias the input")
}

func TestPolicyFor(t *testing.T) {
	assert.IsType(t, SingleFilePolicy{}, PolicyFor(models.VariantSingleFile))
	assert.IsType(t, FolderPolicy{}, PolicyFor(models.VariantFolder))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, DocxContentType, DetectContentType("a.docx", nil))
	assert.Equal(t, DocxContentType, DetectContentType("A.DOCX", nil))
	assert.Equal(t, "application/pdf", DetectContentType("x.pdf", nil))
	assert.Equal(t, "application/octet-stream", DetectContentType("noext", nil))
	assert.Contains(t, DetectContentType("noext", []byte("<html><body>hi</body></html>")), "text/html")
}
