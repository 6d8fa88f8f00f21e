package intake

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, p, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0644))
}

func TestReadDir(t *testing.T) {
	root := filepath.Join(t.TempDir(), "estudio")
	writeFile(t, filepath.Join(root, "informe.docx"), "docx")
	writeFile(t, filepath.Join(root, "imagenes", "eco1.jpg"), "jpeg")
	writeFile(t, filepath.Join(root, "imagenes", "sub", "eco2.jpg"), "jpeg2")
	writeFile(t, filepath.Join(root, ".DS_Store"), "junk")
	writeFile(t, filepath.Join(root, "Thumbs.db"), "junk")
	writeFile(t, filepath.Join(root, ".git", "config"), "hidden")

	files, err := ReadDir(root)
	require.NoError(t, err)

	var paths []string
	for _, f := range files {
		paths = append(paths, f.RelPath)
	}
	assert.Equal(t, []string{
		"estudio/imagenes/eco1.jpg",
		"estudio/imagenes/sub/eco2.jpg",
		"estudio/informe.docx",
	}, paths)

	last := files[2]
	assert.Equal(t, "informe.docx", last.Name)
	assert.Equal(t, DocxContentType, last.ContentType)
	assert.EqualValues(t, 4, last.Size)

	rc, err := last.Open()
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "docx", string(data))
}

func TestReadDir_NotADirectory(t *testing.T) {
	p := filepath.Join(t.TempDir(), "file.docx")
	writeFile(t, p, "x")

	_, err := ReadDir(p)
	assert.Error(t, err)
}

func TestFromPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "informe.docx")
	writeFile(t, p, "content")

	c, err := FromPath(p)
	require.NoError(t, err)
	assert.Equal(t, "informe.docx", c.Name)
	assert.Empty(t, c.RelPath)
	assert.EqualValues(t, 7, c.Size)

	_, err = FromPath(filepath.Join(t.TempDir(), "missing.docx"))
	assert.Error(t, err)
}

func TestFromFileHeaders(t *testing.T) {
	body := new(bytes.Buffer)
	w := multipart.NewWriter(body)
	part, _ := w.CreateFormFile("files", "informe.docx")
	part.Write([]byte("docx bytes"))
	part, _ = w.CreateFormFile("files", "eco.jpg")
	part.Write([]byte("jpeg"))
	w.WriteField("paths", "")
	w.WriteField("paths", `estudio\imagenes\eco.jpg`)
	w.Close()

	req := httptest.NewRequest("POST", "/", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))

	got := FromFileHeaders(req.MultipartForm.File["files"], req.MultipartForm.Value["paths"])
	require.Len(t, got, 2)

	assert.Equal(t, "informe.docx", got[0].Name)
	assert.Empty(t, got[0].RelPath)
	assert.Equal(t, DocxContentType, got[0].ContentType)

	assert.Equal(t, "eco.jpg", got[1].Name)
	assert.Equal(t, "estudio/imagenes/eco.jpg", got[1].RelPath)
	assert.Equal(t, "estudio/imagenes/eco.jpg", got[1].DisplayName())

	rc, err := got[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "docx bytes", string(data))
}

func TestCleanRelPath(t *testing.T) {
	assert.Equal(t, "a/b.docx", cleanRelPath("../../a/b.docx"))
	assert.Equal(t, "a/b.docx", cleanRelPath(`a\b.docx`))
	assert.Equal(t, "b.docx", cleanRelPath("/b.docx"))
}
