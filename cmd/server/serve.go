package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/informes/backend/internal/api"
	"github.com/informes/backend/internal/clock"
	"github.com/informes/backend/internal/config"
	"github.com/informes/backend/internal/downloads"
	"github.com/informes/backend/internal/history"
	"github.com/informes/backend/internal/intake"
	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/ratelimit"
	"github.com/informes/backend/internal/session"
	"github.com/informes/backend/internal/storage"
	"github.com/informes/backend/internal/upload"
	"github.com/informes/backend/internal/web"
	"github.com/informes/backend/internal/workflow"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, configPath, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileStore, err := storage.NewLocalStore(cfg.Storage.UploadsDirectory)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	hist, err := history.Open(cfg.Storage.HistoryFile)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer hist.Close()

	clk := clock.Real()
	downloadMgr := downloads.NewManager(fileStore, clk, cfg.DownloadTTL(), api.DownloadsPrefix)

	deps := controllerDeps{
		cfg:        cfg,
		store:      fileStore,
		client:     newHTTPClient(cfg),
		downloader: downloadMgr,
		recorder:   hist,
		clock:      clk,
	}
	sessionMgr := session.NewManagerWithLimit(func(id string, v models.Variant) (*workflow.Controller, error) {
		return deps.newController(id, v), nil
	}, clk, cfg.Processing.MaxSessions)
	defer sessionMgr.Close()

	uploadMgr := upload.NewManager(fileStore, func(ctx context.Context, id string, files []intake.Candidate) (workflow.State, error) {
		s, ok := sessionMgr.Get(id)
		if !ok {
			return workflow.State{}, workflow.ErrClosed
		}
		return s.Controller.Stage(ctx, files)
	})

	var limiter *ratelimit.Limiter
	if cfg.Submission.RateLimitPerMinute > 0 {
		limiter = ratelimit.NewLimiter(cfg.Submission.RateLimitPerMinute, time.Minute, cfg.Submission.RateLimitBurst)
		defer limiter.Close()
	}

	go runCleanup(ctx, cfg, fileStore, sessionMgr, uploadMgr, downloadMgr, hist)

	api.ExposeErrorDetails = strings.EqualFold(cfg.Advanced.LogLevel, "debug")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	api.SetupMiddleware(e, api.MiddlewareOptions{
		BodyLimit:      cfg.Server.BodyLimit,
		AllowOrigins:   allowOrigins(cfg),
		RequestLogging: cfg.Advanced.EnableRequestLogging,
	})
	api.RegisterRoutes(e, api.NewHandlers(&api.Dependencies{
		Store:          fileStore,
		Sessions:       sessionMgr,
		Uploads:        uploadMgr,
		Downloads:      downloadMgr,
		History:        hist,
		SubmitLimiter:  limiter,
		DefaultVariant: cfg.DefaultVariant(),
		WSMaxMessageKB: cfg.Advanced.WebSocketMaxMessageSize,
		Version:        Version,
	}))

	embeddedMode := web.HasEmbeddedFiles()
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			slog.Warn("failed to register static routes", "err", err)
			embeddedMode = false
		}
	}

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      e,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath, embeddedMode)

	errc := make(chan error, 1)
	go func() {
		errc <- s.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown", "err", err)
		}
	}

	uploadMgr.Wait()
	return nil
}

func allowOrigins(cfg *config.AppConfig) []string {
	if !cfg.Server.EnableCORS {
		return nil
	}
	var origins []string
	for _, o := range strings.Split(cfg.Server.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return origins
}

// runCleanup expires idle sessions, finished upload jobs, abandoned chunks,
// unclaimed downloads and old history rows until ctx is done.
func runCleanup(ctx context.Context, cfg *config.AppConfig, store *storage.LocalStore, sessions *session.Manager, uploads *upload.Manager, dl *downloads.Manager, hist *history.Store) {
	ticker := time.NewTicker(cfg.CleanupInterval())
	defer ticker.Stop()
	log := slog.With("component", "cleanup")

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := sessions.CleanupOldSessions(cfg.SessionTimeout())
			j := uploads.CleanupOldJobs(cfg.JobMaxAge())
			j += store.CleanupStaleChunks(cfg.JobMaxAge())
			d := dl.CleanupExpired()
			var h int64
			if retention := cfg.HistoryRetention(); retention > 0 {
				n, err := hist.Prune(ctx, retention)
				if err != nil {
					log.Warn("history prune failed", "err", err)
				}
				h = n
			}
			if s+j+d > 0 || h > 0 {
				log.Info("cleanup", "sessions", s, "jobs", j, "downloads", d, "history", h)
			}
		}
	}
}

func printBanner(cfg *config.AppConfig, configPath string, embedded bool) {
	mode := "API only"
	if embedded {
		mode = "Embedded UI"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Informe Service                                 ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("║  Variant:    %-45s║\n", cfg.DefaultVariant())
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", truncate(configPath, 46))
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Remote:    %-46s║\n", truncate(cfg.Remote.SubmitURL, 46))
	fmt.Printf("║  Data Dir:  %-46s║\n", truncate(cfg.Storage.DataDirectory, 46))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	if embedded {
		fmt.Printf("Open http://localhost:%d in your browser\n\n", cfg.Server.Port)
	}
}

func truncate(s string, n int) string {
	if len([]rune(s)) <= n {
		return s
	}
	r := []rune(s)
	return "…" + string(r[len(r)-n+1:])
}
