// Package downloads hands processed documents to browsers as one-shot links.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/submission"
)

// ErrNotFound is returned for unknown, fetched or expired links.
var ErrNotFound = errors.New("download not found")

// DefaultTTL is how long an unfetched result stays available.
const DefaultTTL = 10 * time.Minute

// Manager stores results and serves each of them once.
type Manager struct {
	mu      sync.Mutex
	store   storage.Store
	clock   clock.Clock
	ttl     time.Duration
	prefix  string
	pending map[string]*entry
	logger  *slog.Logger
}

type entry struct {
	download models.Download
	fileID   string
}

// NewManager creates a download manager. prefix is the URL path the API
// serves downloads under, e.g. "/api/downloads/".
func NewManager(store storage.Store, clk clock.Clock, ttl time.Duration, prefix string) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		store:   store,
		clock:   clk,
		ttl:     ttl,
		prefix:  prefix,
		pending: make(map[string]*entry),
		logger:  slog.With("component", "downloads"),
	}
}

var _ submission.Downloader = (*Manager)(nil)

// Trigger stores data and returns a link for it.
func (m *Manager) Trigger(ctx context.Context, data []byte, filename string) (*models.Download, error) {
	info, err := m.store.SaveBytes(filename, "", data)
	if err != nil {
		return nil, fmt.Errorf("saving result: %w", err)
	}
	result := *info
	result.Status = models.FileStatusResult
	m.store.RegisterFile(&result)

	d := models.Download{
		ID:        info.ID,
		Filename:  filename,
		Size:      info.Size,
		URL:       m.prefix + info.ID,
		ExpiresAt: m.clock.Now().Add(m.ttl),
	}

	m.mu.Lock()
	m.pending[d.ID] = &entry{download: d, fileID: info.ID}
	m.mu.Unlock()

	m.logger.Debug("result ready", "id", d.ID, "bytes", d.Size)
	return &d, nil
}

// Fetch claims a download. The link is gone once Fetch returns; the caller
// must call release after streaming to remove the stored bytes.
func (m *Manager) Fetch(id string) (models.Download, io.ReadCloser, func(), error) {
	m.mu.Lock()
	e, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if !ok {
		return models.Download{}, nil, nil, ErrNotFound
	}
	if m.clock.Now().After(e.download.ExpiresAt) {
		m.store.Delete(e.fileID)
		return models.Download{}, nil, nil, ErrNotFound
	}

	rc, err := m.store.Open(e.fileID)
	if err != nil {
		return models.Download{}, nil, nil, err
	}
	release := func() {
		if err := m.store.Delete(e.fileID); err != nil && !errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn("failed to remove result", "id", id, "err", err)
		}
	}
	return e.download, rc, release, nil
}

// CleanupExpired drops links that were never fetched in time.
func (m *Manager) CleanupExpired() int {
	now := m.clock.Now()
	var expired []*entry

	m.mu.Lock()
	for id, e := range m.pending {
		if now.After(e.download.ExpiresAt) {
			expired = append(expired, e)
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, e := range expired {
		m.store.Delete(e.fileID)
	}
	if len(expired) > 0 {
		m.logger.Info("expired unfetched results", "count", len(expired))
	}
	return len(expired)
}

// Pending returns the number of links not fetched yet.
func (m *Manager) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}
