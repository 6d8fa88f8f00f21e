// Package submission sends staged files to the remote report generator.
package submission

import (
	"context"
	"fmt"
	"io"

	"github.com/informes/backend/internal/models"
)

// User-facing strings of the submission workflow.
const (
	ResultFilename       = "informe_procesado.docx"
	MsgSelectDocxFirst   = "Por favor, seleccione un archivo .docx primero"
	MsgSelectFolderFirst = "Por favor, seleccione una carpeta primero"
	MsgReportGenerated   = "Informe generado exitosamente"
	MsgFolderPending     = "Procesamiento de carpetas aún no disponible"
)

// Payload is one staged file handed to a strategy.
type Payload struct {
	Name        string
	RelPath     string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// Result is what a successful submission produced.
type Result struct {
	// Data is the processed document; nil when the strategy only reports a message.
	Data       []byte
	Filename   string
	Message    string
	HTTPStatus int
	// KeepStaged leaves the staged set resident after success.
	KeepStaged bool
}

// Strategy is one way of submitting a staged set.
type Strategy interface {
	Variant() models.Variant
	// EmptyMessage is shown when submit is triggered with nothing staged.
	EmptyMessage() string
	Submit(ctx context.Context, files []Payload) (*Result, error)
}

// EmptyAccepter is implemented by strategies that handle an empty staged set
// themselves instead of having it rejected.
type EmptyAccepter interface {
	AcceptsEmpty() bool
}

// AcceptsEmpty reports whether s wants to be called with nothing staged.
func AcceptsEmpty(s Strategy) bool {
	ea, ok := s.(EmptyAccepter)
	return ok && ea.AcceptsEmpty()
}

// HTTPError is a non-2xx answer from the remote generator.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("Error HTTP: %d", e.StatusCode)
}

// FailureMessage formats an error for the status line.
func FailureMessage(err error) string {
	return "Error: " + err.Error()
}
