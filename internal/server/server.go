package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mohammad-safakhou/landlord/internal/agent/core"
	"github.com/mohammad-safakhou/landlord/internal/runtime"
	"github.com/mohammad-safakhou/landlord/internal/worker"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Drafter runs the email drafter directly.
type Drafter interface {
	DraftEmail(ctx context.Context, w core.WorkerInfo, issue core.IssueDetails) (*core.State, error)
}

// Refresher drains the inbox once.
type Refresher interface {
	Refresh(ctx context.Context) ([]worker.Result, error)
}

// Deps are the collaborators behind the HTTP surface.
type Deps struct {
	Drafter     Drafter
	Inbox       worker.Inbox
	Refresher   Refresher
	Metrics     http.Handler
	Logger      *zap.Logger
	JWTSecret   []byte
	CORSOrigins []string
}

// Server is the echo application.
type Server struct {
	e      *echo.Echo
	deps   Deps
	logger *zap.Logger
}

// New builds the echo app and mounts every route.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = promhttp.Handler()
	}
	if len(d.CORSOrigins) == 0 {
		d.CORSOrigins = []string{"*"}
	}
	s := &Server{e: echo.New(), deps: d, logger: d.Logger.Named("http")}
	e := s.e
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = s.errorHandler
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: d.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
	}))

	e.GET("/health", s.health)
	e.GET("/metrics", echo.WrapHandler(d.Metrics))

	auth := runtime.EchoAuthMiddleware(d.JWTSecret)
	e.POST("/messages", s.enqueue, auth)
	e.POST("/refresh", s.refresh, auth, runtime.RequireScopes(d.JWTSecret, runtime.ScopeRefresh))
	e.POST("/draft-email", s.draftEmail, auth)
	return s
}

// Echo exposes the underlying app for tests and embedding.
func (s *Server) Echo() *echo.Echo { return s.e }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- s.e.Start(addr)
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if he.Message != nil {
			msg = fmt.Sprint(he.Message)
		}
	}
	req := c.Request()
	fields := []zap.Field{
		zap.Int("status", code),
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.String("remote_ip", c.RealIP()),
		zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.Error(err),
	}
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	if !c.Response().Committed {
		_ = c.JSON(code, HTTPError{Error: msg})
	}
}
