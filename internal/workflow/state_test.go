package workflow

import (
	"testing"

	"github.com/informes/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func staged(names ...string) []models.StagedFile {
	out := make([]models.StagedFile, len(names))
	for i, n := range names {
		out[i] = models.StagedFile{ID: "id-" + n, Name: n, Size: 1}
	}
	return out
}

func TestReduce_StagingReplacesSet(t *testing.T) {
	s := NewState(models.VariantSingleFile)
	s = Reduce(s, DragEntered{})
	assert.True(t, s.DragActive)

	s = Reduce(s, FilesStaged{Files: staged("a.docx")})
	s = Reduce(s, FilesStaged{Files: staged("b.docx")})

	assert.False(t, s.DragActive)
	assert.Equal(t, []string{"b.docx"}, names(s.Staged))
	assert.True(t, s.Message.IsZero())
	assert.Equal(t, models.PhaseIdle, s.Phase)
}

func TestReduce_RejectionEmptiesSet(t *testing.T) {
	s := Reduce(NewState(models.VariantSingleFile), FilesStaged{Files: staged("a.docx")})
	s = Reduce(s, FilesStaged{Rejection: "Solo se permiten archivos .docx"})

	assert.Empty(t, s.Staged)
	assert.Equal(t, models.ErrorMessage("Solo se permiten archivos .docx"), s.Message)
}

func TestReduce_SubmitLifecycle(t *testing.T) {
	s := Reduce(NewState(models.VariantSingleFile), FilesStaged{Files: staged("a.docx")})
	s = Reduce(s, SubmitRequested{})
	assert.Equal(t, models.PhaseValidating, s.Phase)

	s = Reduce(s, SubmitStarted{})
	assert.True(t, s.Loading)
	assert.Equal(t, models.PhaseSubmitting, s.Phase)

	dl := &models.Download{ID: "d1", Filename: "informe_procesado.docx"}
	s = Reduce(s, SubmitSucceeded{Message: "ok", Download: dl, ClearStaged: true})
	assert.False(t, s.Loading)
	assert.Empty(t, s.Staged)
	assert.Equal(t, models.SuccessMessage("ok"), s.Message)
	assert.Equal(t, dl, s.Download)
}

func TestReduce_FailureKeepsStaged(t *testing.T) {
	s := Reduce(NewState(models.VariantSingleFile), FilesStaged{Files: staged("a.docx")})
	s = Reduce(s, SubmitStarted{})
	s = Reduce(s, SubmitFailed{Message: "Error: Error HTTP: 500"})

	assert.False(t, s.Loading)
	assert.Equal(t, models.PhaseFailed, s.Phase)
	assert.Equal(t, []string{"a.docx"}, names(s.Staged))
	assert.Equal(t, models.MessageError, s.Message.Kind)
}

func TestReduce_StaleExpiryIgnored(t *testing.T) {
	s := Reduce(NewState(models.VariantSingleFile), SubmitRejected{Reason: "first"})
	oldSeq := s.MessageSeq
	s = Reduce(s, SubmitRejected{Reason: "second"})

	s = Reduce(s, MessageExpired{Seq: oldSeq})
	assert.Equal(t, "second", s.Message.Text)

	s = Reduce(s, MessageExpired{Seq: s.MessageSeq})
	assert.True(t, s.Message.IsZero())
	assert.Equal(t, models.PhaseIdle, s.Phase)
}

func TestReduce_DoesNotAliasInput(t *testing.T) {
	s := Reduce(NewState(models.VariantFolder), FilesStaged{Files: staged("a.docx", "b.docx")})
	next := Reduce(s, SubmitSucceeded{ClearStaged: true})

	assert.Len(t, s.Staged, 2)
	assert.Empty(t, next.Staged)
}

func names(files []models.StagedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Name
	}
	return out
}
