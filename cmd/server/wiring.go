package main

import (
	"net/http"

	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/config"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/submission"
	"github.com/informes/backend/internal/workflow"
)

func newHTTPClient(cfg *config.AppConfig) *http.Client {
	return &http.Client{Timeout: cfg.RemoteTimeout()}
}

func newStrategy(cfg *config.AppConfig, client *http.Client, v models.Variant) submission.Strategy {
	if v == models.VariantFolder {
		return &submission.FolderStrategy{URL: cfg.Remote.FolderURL, Client: client}
	}
	return &submission.SingleFileStrategy{
		URL:            cfg.Remote.SubmitURL,
		Client:         client,
		MaxResultBytes: cfg.MaxResultBytes(),
	}
}

// controllerDeps are the parts shared by every controller of one process.
type controllerDeps struct {
	cfg        *config.AppConfig
	store      storage.Store
	client     *http.Client
	downloader submission.Downloader
	recorder   workflow.Recorder
	clock      clock.Clock
}

func (d controllerDeps) newController(id string, v models.Variant) *workflow.Controller {
	return workflow.New(workflow.Config{
		SessionID:  id,
		Variant:    v,
		Store:      d.store,
		Strategy:   newStrategy(d.cfg, d.client, v),
		Downloader: d.downloader,
		Clock:      d.clock,
		MessageTTL: d.cfg.MessageTTL(v),
		Recorder:   d.recorder,
	})
}
