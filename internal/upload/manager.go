// Package upload assembles chunked browser uploads and stages the result into
// an intake session.
package upload

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/workflow"
)

// Status represents the upload processing status.
type Status string

const (
	StatusProcessing    Status = "processing"
	StatusAssembling    Status = "assembling"
	StatusDecompressing Status = "decompressing"
	StatusStaging       Status = "staging"
	StatusComplete      Status = "complete"
	StatusError         Status = "error"
)

// Job represents an async upload processing job.
type Job struct {
	ID             string           `json:"id"`
	UploadID       string           `json:"uploadId"`
	SessionID      string           `json:"sessionId"`
	FileName       string           `json:"fileName"`
	RelPath        string           `json:"relPath,omitempty"`
	ContentType    string           `json:"contentType,omitempty"`
	TotalChunks    int              `json:"totalChunks"`
	OriginalSize   int64            `json:"originalSize"`
	CompressedSize int64            `json:"compressedSize"`
	Encoding       string           `json:"encoding"`
	Status         Status           `json:"status"`
	Progress       float64          `json:"progress"`
	Stage          string           `json:"stage"`
	FileInfo       *models.FileInfo `json:"fileInfo,omitempty"`
	State          *workflow.State  `json:"state,omitempty"`
	Error          string           `json:"error,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	CompletedAt    *time.Time       `json:"completedAt,omitempty"`
}

// Request describes a finished chunked upload.
type Request struct {
	UploadID       string
	SessionID      string
	FileName       string
	RelPath        string
	ContentType    string
	TotalChunks    int
	OriginalSize   int64
	CompressedSize int64
	Encoding       string
}

// Stager hands an assembled file to the session it was uploaded for.
type Stager func(ctx context.Context, sessionID string, files []intake.Candidate) (workflow.State, error)

// Manager handles async upload processing.
type Manager struct {
	jobs   map[string]*Job
	mu     sync.RWMutex
	store  storage.Store
	stage  Stager
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewManager creates a new upload processing manager.
func NewManager(store storage.Store, stage Stager) *Manager {
	return &Manager{
		jobs:   make(map[string]*Job),
		store:  store,
		stage:  stage,
		logger: slog.With("component", "upload"),
	}
}

// StartJob begins async processing of an upload.
func (m *Manager) StartJob(req Request) Job {
	job := &Job{
		ID:             uuid.New().String(),
		UploadID:       req.UploadID,
		SessionID:      req.SessionID,
		FileName:       req.FileName,
		RelPath:        req.RelPath,
		ContentType:    req.ContentType,
		TotalChunks:    req.TotalChunks,
		OriginalSize:   req.OriginalSize,
		CompressedSize: req.CompressedSize,
		Encoding:       req.Encoding,
		Status:         StatusProcessing,
		Stage:          "preparing",
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	snapshot := *job
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.processJob(job)
	}()

	return snapshot
}

// GetJob returns a snapshot of a job.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// Wait blocks until every started job finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) processJob(job *Job) {
	log := m.logger.With("job", job.ID, "file", job.FileName)
	defer func() {
		if r := recover(); r != nil {
			m.markJobError(job, fmt.Sprintf("upload processing panicked: %v", r))
		}
	}()

	log.Info("processing upload", "chunks", job.TotalChunks, "encoding", job.Encoding)

	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 0)
	info, err := m.store.CompleteChunkedUpload(job.UploadID, job.FileName, job.TotalChunks)
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to assemble chunks: %v", err))
		return
	}
	m.updateJobStatus(job, StatusAssembling, "assembling chunks", 100)

	if job.Encoding == "gzip" {
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 0)
		decompressed, err := m.decompress(job, info)
		if err != nil {
			m.store.Delete(info.ID)
			m.markJobError(job, fmt.Sprintf("failed to decompress: %v", err))
			return
		}
		info = decompressed
		m.updateJobStatus(job, StatusDecompressing, "decompressing file", 100)
	}
	defer m.store.Delete(info.ID)

	m.updateJobStatus(job, StatusStaging, "staging file", 0)
	ct := job.ContentType
	if ct == "" {
		ct = intake.DetectContentType(job.FileName, nil)
	}
	id := info.ID
	candidate := intake.Candidate{
		Name:        job.FileName,
		RelPath:     job.RelPath,
		ContentType: ct,
		Size:        info.Size,
		Open:        func() (io.ReadCloser, error) { return m.store.Open(id) },
	}

	state, err := m.stage(context.Background(), job.SessionID, []intake.Candidate{candidate})
	if err != nil {
		m.markJobError(job, fmt.Sprintf("failed to stage file: %v", err))
		return
	}

	m.mu.Lock()
	job.FileInfo = info
	job.State = &state
	m.mu.Unlock()

	m.markJobComplete(job)
	log.Info("upload staged", "bytes", info.Size, "staged", len(state.Staged))
}

// decompress gunzips an assembled upload into a new stored file and removes
// the compressed one.
func (m *Manager) decompress(job *Job, info *models.FileInfo) (*models.FileInfo, error) {
	in, err := m.store.Open(info.ID)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	zr, err := gzip.NewReader(in)
	if err != nil {
		return nil, fmt.Errorf("not a gzip stream: %w", err)
	}
	defer zr.Close()

	pr := &progressReader{r: zr, onRead: func(n int64) {
		if job.OriginalSize > 0 {
			m.updateJobStatus(job, StatusDecompressing, "decompressing file",
				min(float64(n)/float64(job.OriginalSize)*100, 99))
		}
	}}
	out, err := m.store.Save(info.Name, job.ContentType, pr)
	if err != nil {
		return nil, err
	}

	if job.OriginalSize > 0 && out.Size != job.OriginalSize {
		m.store.Delete(out.ID)
		return nil, fmt.Errorf("decompressed size mismatch: got %d bytes, expected %d bytes", out.Size, job.OriginalSize)
	}

	m.store.Delete(info.ID)
	return out, nil
}

type progressReader struct {
	r        io.Reader
	n        int64
	onRead   func(total int64)
	lastTick time.Time
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.n += int64(n)
	if time.Since(p.lastTick) > 100*time.Millisecond {
		p.onRead(p.n)
		p.lastTick = time.Now()
	}
	return n, err
}

// updateJobStatus updates job progress (thread-safe).
func (m *Manager) updateJobStatus(job *Job, status Status, stage string, stageProgress float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = status
	job.Stage = stage

	// Assembling: 0-40%, Decompressing: 40-80%, Staging: 80-100%
	switch status {
	case StatusAssembling:
		job.Progress = stageProgress * 0.4
	case StatusDecompressing:
		job.Progress = 40 + stageProgress*0.4
	case StatusStaging:
		job.Progress = 80 + stageProgress*0.2
	case StatusComplete:
		job.Progress = 100
	}
}

func (m *Manager) markJobComplete(job *Job) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusComplete
	job.Stage = "done"
	job.Progress = 100
	now := time.Now()
	job.CompletedAt = &now
}

func (m *Manager) markJobError(job *Job, errMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job.Status = StatusError
	job.Error = errMsg
	now := time.Now()
	job.CompletedAt = &now
	m.logger.Warn("upload failed", "job", job.ID, "err", errMsg)
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Status == StatusComplete || job.Status == StatusError {
			if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
				delete(m.jobs, id)
				removed++
			}
		}
	}
	return removed
}
