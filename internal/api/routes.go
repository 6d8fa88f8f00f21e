// routes.go - Route registration helpers
// This file provides a clean way to register all API routes
package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/informes/backend/internal/models"
	"github.com/informes/backend/internal/ratelimit"
	"github.com/informes/backend/internal/session"
	"github.com/informes/backend/internal/storage"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// DownloadsPrefix is the URL path results are served under
const DownloadsPrefix = "/api/downloads/"

// Dependencies holds all handler dependencies
type Dependencies struct {
	Store          storage.Store
	Sessions       *session.Manager
	Uploads        UploadJobs
	Downloads      DownloadSource
	History        HistoryReader
	SubmitLimiter  *ratelimit.Limiter // nil disables throttling
	DefaultVariant models.Variant
	WSMaxMessageKB int
	Version        string
}

// Handlers holds all handler instances
type Handlers struct {
	Health    HealthHandler
	Sessions  SessionHandler
	Downloads DownloadHandler
	Upload    UploadHandler
	History   HistoryHandler
	Events    EventsHandler

	submitLimiter *ratelimit.Limiter
}

// NewHandlers creates all handler instances
func NewHandlers(deps *Dependencies) *Handlers {
	return &Handlers{
		Health:        NewHealthHandler(deps.Version, deps.Sessions),
		Sessions:      NewSessionHandler(deps.Sessions, deps.DefaultVariant),
		Downloads:     NewDownloadHandler(deps.Downloads),
		Upload:        NewUploadHandler(deps.Store, deps.Sessions, deps.Uploads),
		History:       NewHistoryHandler(deps.History),
		Events:        NewWebSocketHandler(deps.Sessions, deps.WSMaxMessageKB),
		submitLimiter: deps.SubmitLimiter,
	}
}

// RegisterRoutes registers all API routes with the Echo instance
func RegisterRoutes(e *echo.Echo, handlers *Handlers) {
	apiGroup := e.Group("/api")

	apiGroup.GET("/health", handlers.Health.HandleHealth)

	// Intake sessions
	sessions := apiGroup.Group("/sessions")
	sessions.POST("", handlers.Sessions.HandleCreateSession)
	sessions.GET("", handlers.Sessions.HandleListSessions)
	sessions.GET("/:id", handlers.Sessions.HandleGetSession)
	sessions.GET("/:id/state/msgpack", handlers.Sessions.HandleGetSessionMsgpack)
	sessions.DELETE("/:id", handlers.Sessions.HandleDeleteSession)
	sessions.POST("/:id/drag", handlers.Sessions.HandleDrag)
	sessions.POST("/:id/files", handlers.Sessions.HandleStageFiles)
	sessions.POST("/:id/dismiss", handlers.Sessions.HandleDismissMessage)
	sessions.GET("/:id/events", handlers.Events.HandleEvents)

	var submitMW []echo.MiddlewareFunc
	if handlers.submitLimiter != nil {
		submitMW = append(submitMW, ratelimit.Middleware(handlers.submitLimiter, ratelimit.ByIP,
			func(c echo.Context, d ratelimit.Decision) error {
				return NewRateLimitedError(d.RetryAfter)
			}))
	}
	sessions.POST("/:id/submit", handlers.Sessions.HandleSubmit, submitMW...)

	// Results
	apiGroup.GET("/downloads/:id", handlers.Downloads.HandleDownload)

	// Chunked uploads
	uploadGroup := apiGroup.Group("/files/upload")
	uploadGroup.POST("/chunk", handlers.Upload.HandleUploadChunk)
	uploadGroup.POST("/complete", handlers.Upload.HandleCompleteUpload)
	uploadGroup.GET("/:jobId", handlers.Upload.HandleUploadJobStatus)
	uploadGroup.GET("/:jobId/stream", handlers.Upload.HandleUploadJobStream)

	apiGroup.GET("/history", handlers.History.HandleHistory)
}

// MiddlewareOptions tunes SetupMiddleware
type MiddlewareOptions struct {
	BodyLimit      string
	AllowOrigins   []string // empty disables CORS
	RequestLogging bool
}

// SetupMiddleware configures common middleware
func SetupMiddleware(e *echo.Echo, opts MiddlewareOptions) {
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			slog.Error("panic in handler", "component", "api", "path", c.Path(), "err", err, "stack", string(stack))
			return err
		},
	}))

	if opts.RequestLogging {
		logger := slog.With("component", "http")
		e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
			LogMethod:   true,
			LogURI:      true,
			LogStatus:   true,
			LogLatency:  true,
			LogRemoteIP: true,
			LogError:    true,
			Skipper: func(c echo.Context) bool {
				path := c.Request().URL.Path
				return path == "/api/health" || !strings.HasPrefix(path, "/api/")
			},
			LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
				attrs := []any{"method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "ip", v.RemoteIP}
				if v.Error != nil {
					logger.Warn("request", append(attrs, "err", v.Error)...)
				} else {
					logger.Info("request", attrs...)
				}
				return nil
			},
		}))
	}

	e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			// documents are already zip containers; websockets cannot be wrapped
			return strings.HasPrefix(path, DownloadsPrefix) ||
				strings.HasSuffix(path, "/events") ||
				strings.HasSuffix(path, "/stream")
		},
	}))

	if opts.BodyLimit != "" {
		e.Use(middleware.BodyLimit(opts.BodyLimit))
	}

	if len(opts.AllowOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins:  opts.AllowOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
			ExposeHeaders: []string{"Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining", echo.HeaderContentDisposition},
		}))
	}
}
