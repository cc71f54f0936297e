package daemon

import (
	"context"
	"fmt"
	"net"

	"github.com/labstack/echo/v4"
	"github.com/matheus3301/wpplus/internal/api"
	"go.uber.org/zap"
)

// Server manages the HTTP server lifecycle for a profile daemon.
type Server struct {
	echo     *echo.Echo
	listener net.Listener
	logger   *zap.Logger
}

// NewServer binds the configured listen address. Binding here rather than
// in Start makes a busy port fail daemon startup.
func NewServer(p Params, h *api.Handler, logger *zap.Logger) (*Server, error) {
	cfg := p.config()
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}

	e := api.NewEcho(h, cfg.CORSOrigin, logger.Named("http"))
	e.Listener = listener

	return &Server{
		echo:     e,
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr is the bound address, useful when listening on port 0.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start serves HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("HTTP server starting", zap.String("addr", s.Addr()))
	return s.echo.Start("")
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("HTTP server stopping")
	return s.echo.Shutdown(ctx)
}
