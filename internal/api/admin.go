package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bit2swaz/salesflood/internal/injector"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

// StatusSource is the read-only view of the injector the admin server needs.
type StatusSource interface {
	Stats() injector.Stats
	Connected() bool
}

type Server struct {
	source   StatusSource
	logger   *slog.Logger
	http     *http.Server
	listener net.Listener
}

func NewServer(source StatusSource, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		source: source,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Router registers the admin endpoints on a fresh gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.GET("/status", s.handleStatus)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// Listen binds the admin address without serving, so a bad or busy address
// is reported before anything else starts.
func (s *Server) Listen() error {
	if s.listener != nil {
		return nil
	}
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind admin address %s: %w", s.http.Addr, err)
	}
	s.listener = l
	return nil
}

// Addr is the bound address once Listen has succeeded, the configured one
// before that.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.http.Addr
}

// Close releases a listener that was bound but never served. It is safe
// after Start has returned.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Start serves until ctx is cancelled, then shuts down. It calls Listen if
// the caller has not.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.logger.Info("Starting admin HTTP server", "addr", s.Addr())
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Admin server shutdown failed", "error", err)
			return err
		}
		s.logger.Info("Admin server stopped")
		return nil
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	if !s.source.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.source.Stats())
}
