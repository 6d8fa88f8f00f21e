package upload

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/testutil"
	"github.com/informes/backend/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	sessionID string
	name      string
	content   string
}

func captureStager(out *captured) Stager {
	return func(ctx context.Context, sessionID string, files []intake.Candidate) (workflow.State, error) {
		rc, err := files[0].Open()
		if err != nil {
			return workflow.State{}, err
		}
		defer rc.Close()
		data, _ := io.ReadAll(rc)
		*out = captured{sessionID: sessionID, name: files[0].Name, content: string(data)}

		st := workflow.NewState(models.VariantSingleFile)
		st.Staged = []models.StagedFile{{ID: "staged", Name: files[0].Name, Size: int64(len(data))}}
		return st, nil
	}
}

func TestManager_AssemblesAndStages(t *testing.T) {
	store := testutil.NewMockStorage()
	require.NoError(t, store.SaveChunk("up1", 0, bytes.NewReader([]byte("hello "))))
	require.NoError(t, store.SaveChunk("up1", 1, bytes.NewReader([]byte("world"))))

	var got captured
	m := NewManager(store, captureStager(&got))
	job := m.StartJob(Request{UploadID: "up1", SessionID: "s1", FileName: "a.docx", TotalChunks: 2})
	m.Wait()

	final, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, float64(100), final.Progress)
	require.NotNil(t, final.State)
	assert.Len(t, final.State.Staged, 1)

	assert.Equal(t, captured{sessionID: "s1", name: "a.docx", content: "hello world"}, got)
	assert.Equal(t, 0, store.GetFileCount(), "assembled file is released after staging")
}

func TestManager_Gzip(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte("document body"))
	zw.Close()

	store := testutil.NewMockStorage()
	require.NoError(t, store.SaveChunk("up2", 0, bytes.NewReader(buf.Bytes())))

	var got captured
	m := NewManager(store, captureStager(&got))
	job := m.StartJob(Request{
		UploadID:     "up2",
		SessionID:    "s2",
		FileName:     "b.docx",
		TotalChunks:  1,
		OriginalSize: int64(len("document body")),
		Encoding:     "gzip",
	})
	m.Wait()

	final, _ := m.GetJob(job.ID)
	assert.Equal(t, StatusComplete, final.Status)
	assert.Equal(t, "document body", got.content)
	assert.Equal(t, 0, store.GetFileCount())
}

func TestManager_Errors(t *testing.T) {
	t.Run("missing chunk", func(t *testing.T) {
		store := testutil.NewMockStorage()
		require.NoError(t, store.SaveChunk("up3", 0, bytes.NewReader([]byte("x"))))

		m := NewManager(store, captureStager(&captured{}))
		job := m.StartJob(Request{UploadID: "up3", FileName: "c.docx", TotalChunks: 2})
		m.Wait()

		final, _ := m.GetJob(job.ID)
		assert.Equal(t, StatusError, final.Status)
		assert.Contains(t, final.Error, "assemble")
	})

	t.Run("bad gzip", func(t *testing.T) {
		store := testutil.NewMockStorage()
		require.NoError(t, store.SaveChunk("up4", 0, bytes.NewReader([]byte("plain"))))

		m := NewManager(store, captureStager(&captured{}))
		job := m.StartJob(Request{UploadID: "up4", FileName: "d.docx", TotalChunks: 1, Encoding: "gzip"})
		m.Wait()

		final, _ := m.GetJob(job.ID)
		assert.Equal(t, StatusError, final.Status)
		assert.Equal(t, 0, store.GetFileCount())
	})

	t.Run("stager fails", func(t *testing.T) {
		store := testutil.NewMockStorage()
		require.NoError(t, store.SaveChunk("up5", 0, bytes.NewReader([]byte("x"))))

		m := NewManager(store, func(context.Context, string, []intake.Candidate) (workflow.State, error) {
			return workflow.State{}, errors.New("session not found")
		})
		job := m.StartJob(Request{UploadID: "up5", FileName: "e.docx", TotalChunks: 1})
		m.Wait()

		final, _ := m.GetJob(job.ID)
		assert.Equal(t, StatusError, final.Status)
		assert.Contains(t, final.Error, "session not found")
	})
}

func TestManager_CleanupOldJobs(t *testing.T) {
	store := testutil.NewMockStorage()
	require.NoError(t, store.SaveChunk("up6", 0, bytes.NewReader([]byte("x"))))

	m := NewManager(store, captureStager(&captured{}))
	job := m.StartJob(Request{UploadID: "up6", FileName: "f.docx", TotalChunks: 1})
	m.Wait()

	assert.Equal(t, 0, m.CleanupOldJobs(time.Hour))
	assert.Equal(t, 1, m.CleanupOldJobs(-time.Second))
	_, ok := m.GetJob(job.ID)
	assert.False(t, ok)
}
