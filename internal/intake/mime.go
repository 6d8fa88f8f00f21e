package intake

import (
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// DocxContentType is the Office Open XML WordprocessingML MIME type.
const DocxContentType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// Types the mime package does not reliably know on minimal hosts.
var knownTypes = map[string]string{
	".docx": DocxContentType,
	".doc":  "application/msword",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
}

// DetectContentType guesses a MIME type from the file extension, then from
// the first bytes of content when given.
func DetectContentType(name string, head []byte) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := knownTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	if len(head) > 0 {
		return http.DetectContentType(head)
	}
	return "application/octet-stream"
}
