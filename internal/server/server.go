package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	Addr string
	Path string
	// VerificationToken keys the HMAC of X-Notion-Signature. Empty disables the check.
	VerificationToken string
	// Secret guards manual triggers. Empty leaves them open.
	Secret      string
	SyncTimeout time.Duration
	BodyLimit   string
}

type Server struct {
	echo   *echo.Echo
	syncer Syncer
	config Config
	logger *slog.Logger
}

func New(syncer Syncer, cfg Config, logger *slog.Logger) *Server {
	if cfg.BodyLimit == "" {
		cfg.BodyLimit = "2M"
	}

	s := &Server{
		echo:   echo.New(),
		syncer: syncer,
		config: cfg,
		logger: logger.With("component", "server"),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.HTTPErrorHandler = s.httpErrorHandler

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURIPath: true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("http request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
			)
			return nil
		},
	}))
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.BodyLimit(cfg.BodyLimit))

	s.echo.GET("/healthz", s.handleHealth)
	s.echo.POST(cfg.Path, s.handleWebhook)
	s.echo.GET(cfg.Path, s.handleStatus)

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start blocks serving on the configured address until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.config.Addr, "path", s.config.Path)
	if err := s.echo.Start(s.config.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	message := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		} else {
			message = http.StatusText(code)
		}
	}
	if code >= 500 {
		s.logger.Error("server error", "uri", c.Request().RequestURI, "error", err)
	}
	if err := c.JSON(code, errorResponse{Error: message}); err != nil {
		s.logger.Error("failed to write error response", "error", err)
	}
}

// syncContext detaches a sync from the client connection and bounds it by SyncTimeout.
func (s *Server) syncContext(c echo.Context) (context.Context, context.CancelFunc) {
	ctx := context.WithoutCancel(c.Request().Context())
	if s.config.SyncTimeout > 0 {
		return context.WithTimeout(ctx, s.config.SyncTimeout)
	}
	return context.WithCancel(ctx)
}
