package watch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/submission"
	"github.com/informes/backend/internal/testutil"
	"github.com/informes/backend/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEligible(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"informe.docx", true},
		{"/tmp/in/acta.docx", true},
		{"~$informe.docx", false},
		{".informe.docx", false},
		{"notas.pdf", false},
		{"imagen.png", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Eligible(tt.name), tt.name)
	}
}

type handled struct {
	mu    sync.Mutex
	paths []string
	ch    chan string
}

func (h *handled) handle(ctx context.Context, path string) error {
	h.mu.Lock()
	h.paths = append(h.paths, filepath.Base(path))
	h.mu.Unlock()
	h.ch <- path
	return nil
}

func TestWatcher_ProcessesSettledDocuments(t *testing.T) {
	dir := t.TempDir()
	done := filepath.Join(t.TempDir(), "procesados")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "existente.docx"), []byte("a"), 0644))

	h := &handled{ch: make(chan string, 8)}
	w := New(Config{Dir: dir, DoneDir: done, Debounce: 20 * time.Millisecond, Handle: h.handle})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()

	wait := func() string {
		select {
		case p := <-h.ch:
			return filepath.Base(p)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for document")
			return ""
		}
	}

	assert.Equal(t, "existente.docx", wait())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignorar.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nuevo.docx"), []byte("b"), 0644))
	assert.Equal(t, "nuevo.docx", wait())

	cancel()
	require.NoError(t, <-errc)

	h.mu.Lock()
	assert.Equal(t, []string{"existente.docx", "nuevo.docx"}, h.paths)
	h.mu.Unlock()

	_, err := os.Stat(filepath.Join(done, "nuevo.docx"))
	assert.NoError(t, err, "processed file moved")
	_, err = os.Stat(filepath.Join(dir, "ignorar.txt"))
	assert.NoError(t, err, "non-documents are left alone")
}

func TestWatcher_DebounceWithFakeClock(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	dir := t.TempDir()
	path := filepath.Join(dir, "a.docx")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))

	h := &handled{ch: make(chan string, 8)}
	w := New(Config{Dir: dir, Debounce: time.Second, Handle: h.handle, Clock: fake})

	ctx := context.Background()
	w.schedule(ctx, path)
	fake.Advance(900 * time.Millisecond)
	w.schedule(ctx, path)
	fake.Advance(900 * time.Millisecond)
	assert.Empty(t, h.ch, "rescheduled before the first deadline")

	fake.Advance(100 * time.Millisecond)
	require.Len(t, h.ch, 1)

	w.schedule(ctx, path)
	w.cancel(path)
	fake.Advance(2 * time.Second)
	assert.Len(t, h.ch, 1, "cancelled timer does not fire")
}

func TestProcessFile(t *testing.T) {
	remote := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		w.Write(append([]byte("ok:"), data...))
	}))
	defer remote.Close()

	out := t.TempDir()
	newController := func() *workflow.Controller {
		return workflow.New(workflow.Config{
			SessionID:  "cli",
			Variant:    models.VariantSingleFile,
			Store:      testutil.NewMockStorage(),
			Strategy:   &submission.SingleFileStrategy{URL: remote.URL, Client: remote.Client()},
			Downloader: &submission.DirDownloader{Dir: out},
		})
	}

	in := t.TempDir()
	doc := filepath.Join(in, "informe.docx")
	require.NoError(t, os.WriteFile(doc, []byte("contenido"), 0644))

	c := newController()
	defer c.Close()
	st, err := ProcessFile(context.Background(), c, doc)
	require.NoError(t, err)
	assert.Equal(t, models.PhaseSucceeded, st.Phase)
	require.NotNil(t, st.Download)

	data, err := os.ReadFile(filepath.Join(out, submission.ResultFilename))
	require.NoError(t, err)
	assert.Equal(t, "ok:contenido", string(data))

	// Rejected file
	pdf := filepath.Join(in, "notas.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("x"), 0644))
	c2 := newController()
	defer c2.Close()
	_, err = ProcessFile(context.Background(), c2, pdf)
	assert.EqualError(t, err, "Solo se permiten archivos .docx")

	_, err = ProcessFile(context.Background(), c2, filepath.Join(in, "missing.docx"))
	assert.Error(t, err)
}
