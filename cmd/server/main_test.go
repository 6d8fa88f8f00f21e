package main

import (
	"bytes"
	"testing"

	"github.com/informes/backend/internal/config"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	client := newHTTPClient(cfg)

	single, ok := newStrategy(cfg, client, models.VariantSingleFile).(*submission.SingleFileStrategy)
	require.True(t, ok)
	assert.Equal(t, config.DefaultSubmitURL, single.URL)
	assert.Equal(t, cfg.MaxResultBytes(), single.MaxResultBytes)

	folder, ok := newStrategy(cfg, client, models.VariantFolder).(*submission.FolderStrategy)
	require.True(t, ok)
	assert.Empty(t, folder.URL, "folder endpoint stays a placeholder by default")
}

func TestAllowOrigins(t *testing.T) {
	cfg := config.DefaultConfig()

	cfg.Server.AllowOrigins = " http://a.test , ,http://b.test"
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, allowOrigins(cfg))

	cfg.Server.AllowOrigins = ""
	assert.Equal(t, []string{"*"}, allowOrigins(cfg))

	cfg.Server.EnableCORS = false
	assert.Nil(t, allowOrigins(cfg))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "…6789", truncate("0123456789", 5))
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "informes dev")
}
