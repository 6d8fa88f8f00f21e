package session

import (
	"context"
	"testing"
	"time"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/submission"
	"github.com/informes/backend/internal/testutil"
	"github.com/informes/backend/internal/workflow"
)

func newTestManager(t *testing.T, max int) (*Manager, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store := testutil.NewMockStorage()
	factory := func(id string, variant models.Variant) (*workflow.Controller, error) {
		var strategy submission.Strategy = &submission.SingleFileStrategy{URL: "http://127.0.0.1:0"}
		if variant == models.VariantFolder {
			strategy = &submission.FolderStrategy{}
		}
		return workflow.New(workflow.Config{
			SessionID:  id,
			Variant:    variant,
			Store:      store,
			Strategy:   strategy,
			Downloader: &testutil.RecordingDownloader{},
			Clock:      clk,
		}), nil
	}
	m := NewManagerWithLimit(factory, clk, max)
	t.Cleanup(m.Close)
	return m, clk
}

func TestSessionManager(t *testing.T) {
	m, _ := newTestManager(t, 10)

	sess, err := m.Create(models.VariantFolder)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if sess.Variant != models.VariantFolder {
		t.Errorf("Expected folder variant, got %s", sess.Variant)
	}

	got, ok := m.Get(sess.ID)
	if !ok {
		t.Fatalf("Session not found")
	}
	if got.Controller.State().Variant != models.VariantFolder {
		t.Errorf("Controller has wrong variant: %s", got.Controller.State().Variant)
	}

	if len(m.List()) != 1 {
		t.Errorf("Expected 1 session, got %d", len(m.List()))
	}

	if !m.Delete(sess.ID) {
		t.Errorf("Delete returned false")
	}
	if _, ok := m.Get(sess.ID); ok {
		t.Errorf("Session still present after delete")
	}
	if m.Delete(sess.ID) {
		t.Errorf("Second delete should return false")
	}
}

func TestSessionManager_EvictsLeastRecentlyUsed(t *testing.T) {
	m, clk := newTestManager(t, 2)

	first, _ := m.Create(models.VariantSingleFile)
	clk.Advance(time.Second)
	second, _ := m.Create(models.VariantSingleFile)
	clk.Advance(time.Second)
	m.Touch(first.ID)
	clk.Advance(time.Second)

	third, err := m.Create(models.VariantSingleFile)
	if err != nil {
		t.Fatalf("Create at capacity failed: %v", err)
	}

	if _, ok := m.Get(second.ID); ok {
		t.Errorf("Least recently used session should have been evicted")
	}
	if _, ok := m.Get(first.ID); !ok {
		t.Errorf("Touched session should survive")
	}
	if _, ok := m.Get(third.ID); !ok {
		t.Errorf("New session missing")
	}
	if _, err := second.Controller.Submit(context.Background()); err != workflow.ErrClosed {
		t.Errorf("Evicted controller should be closed, got %v", err)
	}
}

func TestSessionManager_CleanupOldSessions(t *testing.T) {
	m, clk := newTestManager(t, 10)

	old, _ := m.Create(models.VariantSingleFile)
	clk.Advance(20 * time.Minute)
	fresh, _ := m.Create(models.VariantSingleFile)
	clk.Advance(15 * time.Minute)

	if n := m.CleanupOldSessions(SessionMaxAge); n != 1 {
		t.Errorf("Expected 1 session cleaned, got %d", n)
	}
	if _, ok := m.Get(old.ID); ok {
		t.Errorf("Old session should be gone")
	}
	if _, ok := m.Get(fresh.ID); !ok {
		t.Errorf("Fresh session should remain")
	}
}
