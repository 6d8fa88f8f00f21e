package downloads

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_TriggerAndFetchOnce(t *testing.T) {
	store := testutil.NewMockStorage()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	m := NewManager(store, clk, time.Minute, "/api/downloads/")

	d, err := m.Trigger(context.Background(), []byte("report"), "informe_procesado.docx")
	require.NoError(t, err)
	assert.Equal(t, "/api/downloads/"+d.ID, d.URL)
	assert.Equal(t, clk.Now().Add(time.Minute), d.ExpiresAt)

	info, err := store.Get(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusResult, info.Status)

	got, rc, release, err := m.Fetch(d.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	release()

	assert.Equal(t, "informe_procesado.docx", got.Filename)
	assert.Equal(t, "report", string(data))
	assert.Equal(t, 0, store.GetFileCount(), "bytes removed after fetch")

	_, _, _, err = m.Fetch(d.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestManager_Expiry(t *testing.T) {
	store := testutil.NewMockStorage()
	clk := clock.NewFake(time.Now())
	m := NewManager(store, clk, time.Minute, "/d/")

	a, _ := m.Trigger(context.Background(), []byte("a"), "a.docx")
	clk.Advance(2 * time.Minute)

	_, _, _, err := m.Fetch(a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	m.Trigger(context.Background(), []byte("b"), "b.docx")
	m.Trigger(context.Background(), []byte("c"), "c.docx")
	clk.Advance(30 * time.Second)
	assert.Equal(t, 0, m.CleanupExpired())
	clk.Advance(31 * time.Second)
	assert.Equal(t, 2, m.CleanupExpired())
	assert.Equal(t, 0, m.Pending())
	assert.Equal(t, 0, store.GetFileCount())
}
