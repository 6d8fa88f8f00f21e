package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/submission"
)

// RecordingDownloader keeps every triggered download in memory.
type RecordingDownloader struct {
	mu    sync.Mutex
	calls []RecordedDownload
}

// RecordedDownload is one call to RecordingDownloader.Trigger.
type RecordedDownload struct {
	Data     []byte
	Filename string
}

var _ submission.Downloader = (*RecordingDownloader)(nil)

// Trigger records the call.
func (d *RecordingDownloader) Trigger(ctx context.Context, data []byte, filename string) (*models.Download, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, RecordedDownload{Data: data, Filename: filename})
	return &models.Download{
		ID:       fmt.Sprintf("download-%d", len(d.calls)),
		Filename: filename,
		Size:     int64(len(data)),
	}, nil
}

// Calls returns a copy of the recorded calls.
func (d *RecordingDownloader) Calls() []RecordedDownload {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RecordedDownload, len(d.calls))
	copy(out, d.calls)
	return out
}
